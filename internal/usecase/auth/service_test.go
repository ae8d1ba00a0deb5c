package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sampleapp/backend/internal/credential"
	domain "sampleapp/backend/internal/domain/auth"
	"sampleapp/backend/internal/infrastructure/memory"
	"sampleapp/backend/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct{}

func (fakeTokens) Generate(userID string) (string, error) { return "access-" + userID, nil }

func (fakeTokens) Validate(token string) (string, error) {
	id, ok := strings.CutPrefix(token, "access-")
	if !ok || id == "" {
		return "", errors.New("bad token")
	}
	return id, nil
}

type captureMailer struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func (m *captureMailer) SendActivation(ctx context.Context, user *domain.User, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.tokens == nil {
		m.tokens = make(map[string]string)
	}
	m.tokens[user.Email] = token
	return nil
}

type countingLimiter struct {
	max    int
	counts map[string]int
	err    error
}

func (l *countingLimiter) Allow(ctx context.Context, key string) error {
	if l.err != nil {
		return l.err
	}
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	if l.counts[key] > l.max {
		return domain.ErrTooManyAttempts
	}
	return nil
}

func (l *countingLimiter) Reset(ctx context.Context, key string) error {
	delete(l.counts, key)
	return nil
}

type fixture struct {
	svc    *Service
	repo   *memory.UserRepository
	creds  *credential.Manager
	mailer *captureMailer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	creds, err := credential.NewManager(credential.WithCostMode(credential.CostFast))
	require.NoError(t, err)
	repo := memory.NewUserRepository()
	mailer := &captureMailer{}
	opts = append([]Option{WithMailer(mailer)}, opts...)
	return &fixture{
		svc:    NewService(repo, fakeTokens{}, creds, opts...),
		repo:   repo,
		creds:  creds,
		mailer: mailer,
	}
}

// registerActive signs a user up and follows the mailed activation link.
func (f *fixture) registerActive(t *testing.T, email, password string) *domain.User {
	t.Helper()
	ctx := context.Background()
	user, err := f.svc.Register(ctx, RegisterInput{Name: "Example User", Email: email, Password: password, PasswordConfirmation: password})
	require.NoError(t, err)
	_, err = f.svc.ActivateAccount(ctx, email, f.mailer.tokens[domain.NormalizeEmail(email)])
	require.NoError(t, err)
	return user
}

func (f *fixture) stored(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestRegister_CreatesInactiveUserWithActivationDigest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, RegisterInput{Name: "  Alice ", Email: " Alice@Example.COM ", Password: "foobar", PasswordConfirmation: "foobar"})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.False(t, user.Activated)
	assert.Empty(t, user.PasswordHash)
	assert.Empty(t, user.ActivationDigest)

	stored := f.stored(t, user.ID)
	token := f.mailer.tokens["alice@example.com"]
	require.NotEmpty(t, token)
	assert.NotEqual(t, token, stored.ActivationDigest)
	assert.True(t, f.creds.Verify(token, stored.ActivationDigest))
	assert.True(t, f.creds.Verify("foobar", stored.PasswordHash))
	assert.Empty(t, stored.RememberDigest)
	assert.Nil(t, stored.ActivatedAt)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RegisterInput
		field string
	}{
		{"blank name", RegisterInput{Name: " ", Email: "a@b.com", Password: "foobar"}, "name"},
		{"long name", RegisterInput{Name: strings.Repeat("a", 51), Email: "a@b.com", Password: "foobar"}, "name"},
		{"bad email", RegisterInput{Name: "A", Email: "user@example,com", Password: "foobar"}, "email"},
		{"short password", RegisterInput{Name: "A", Email: "a@b.com", Password: "foo"}, "password"},
		{"confirmation mismatch", RegisterInput{Name: "A", Email: "a@b.com", Password: "foobar", PasswordConfirmation: "barfoo"}, "password_confirmation"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tc.input)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestRegister_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Name: "A", Email: "dup@example.com", Password: "foobar"})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, RegisterInput{Name: "B", Email: "DUP@example.com", Password: "foobar"})
	require.ErrorIs(t, err, domain.ErrEmailExists)
}

func TestRegister_MailFailureIsReported(t *testing.T) {
	var logs bytes.Buffer
	f := newFixture(t, WithLogger(logging.New(&logs, "text", "debug")))
	f.mailer.err = errors.New("smtp down")

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@b.com", Password: "foobar"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "foobar")
	assert.Contains(t, err.Error(), "smtp down")
	assert.NotContains(t, err.Error(), "removing user")
	assert.NotContains(t, logs.String(), "level=ERROR")
}

func TestRegister_MailFailureAllowsRetry(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")
	ctx := context.Background()
	input := RegisterInput{Name: "A", Email: "a@b.com", Password: "foobar"}

	_, err := f.svc.Register(ctx, input)
	require.Error(t, err)
	_, err = f.repo.GetByEmail(ctx, "a@b.com")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	f.mailer.err = nil
	user, err := f.svc.Register(ctx, input)
	require.NoError(t, err)
	assert.False(t, user.Activated)
	assert.NotEmpty(t, f.mailer.tokens["a@b.com"])
}

func TestActivateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.nowFunc = func() time.Time { return fixed }

	user, err := f.svc.Register(ctx, RegisterInput{Name: "A", Email: "a@b.com", Password: "foobar"})
	require.NoError(t, err)
	token := f.mailer.tokens["a@b.com"]

	_, err = f.svc.ActivateAccount(ctx, "a@b.com", "wrong-token")
	require.ErrorIs(t, err, domain.ErrActivationInvalid)
	_, err = f.svc.ActivateAccount(ctx, "other@b.com", token)
	require.ErrorIs(t, err, domain.ErrActivationInvalid)
	assert.False(t, f.stored(t, user.ID).Activated)

	result, err := f.svc.ActivateAccount(ctx, "A@B.com", token)
	require.NoError(t, err)
	assert.Equal(t, "access-"+user.ID, result.AccessToken)
	assert.True(t, result.User.Activated)

	stored := f.stored(t, user.ID)
	assert.True(t, stored.Activated)
	require.NotNil(t, stored.ActivatedAt)
	assert.True(t, fixed.Equal(*stored.ActivatedAt))

	f.svc.nowFunc = func() time.Time { return fixed.Add(time.Hour) }
	_, err = f.svc.ActivateAccount(ctx, "a@b.com", token)
	require.ErrorIs(t, err, domain.ErrActivationInvalid)
	assert.True(t, fixed.Equal(*f.stored(t, user.ID).ActivatedAt))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerActive(t, "login@example.com", "Secret123!")

	result, err := f.svc.Login(ctx, domain.Credentials{Email: "LOGIN@example.com", Password: "Secret123!"}, false)
	require.NoError(t, err)
	assert.Equal(t, "access-"+user.ID, result.AccessToken)
	assert.Empty(t, result.RememberToken)
	assert.Empty(t, result.User.PasswordHash)

	_, err = f.svc.Login(ctx, domain.Credentials{Email: "login@example.com", Password: "wrongpass"}, false)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, domain.Credentials{Email: "nobody@example.com", Password: "Secret123!"}, false)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, domain.Credentials{Email: "", Password: ""}, false)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_RequiresActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, RegisterInput{Name: "A", Email: "new@example.com", Password: "foobar"})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, domain.Credentials{Email: "new@example.com", Password: "foobar"}, false)
	require.ErrorIs(t, err, domain.ErrAccountNotActivated)
}

func TestLogin_RememberMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerActive(t, "r@example.com", "foobar")

	result, err := f.svc.Login(ctx, domain.Credentials{Email: "r@example.com", Password: "foobar"}, true)
	require.NoError(t, err)
	require.NotEmpty(t, result.RememberToken)

	stored := f.stored(t, user.ID)
	assert.NotEqual(t, result.RememberToken, stored.RememberDigest)
	assert.True(t, f.svc.Authenticated(stored, domain.DigestRemember, result.RememberToken))

	_, err = f.svc.Login(ctx, domain.Credentials{Email: "r@example.com", Password: "foobar"}, false)
	require.NoError(t, err)
	assert.Empty(t, f.stored(t, user.ID).RememberDigest)
}

func TestRemember_RotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerActive(t, "rot@example.com", "foobar")

	t1, err := f.svc.Remember(ctx, user.ID)
	require.NoError(t, err)
	t2, err := f.svc.Remember(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	stored := f.stored(t, user.ID)
	assert.False(t, f.svc.Authenticated(stored, domain.DigestRemember, t1))
	assert.True(t, f.svc.Authenticated(stored, domain.DigestRemember, t2))
}

func TestForget_InvalidatesRememberToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerActive(t, "f@example.com", "foobar")

	token, err := f.svc.Remember(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Forget(ctx, user.ID))

	stored := f.stored(t, user.ID)
	assert.Empty(t, stored.RememberDigest)
	assert.False(t, f.svc.Authenticated(stored, domain.DigestRemember, token))
	assert.False(t, f.svc.Authenticated(stored, domain.DigestRemember, ""))

	require.NoError(t, f.svc.Forget(ctx, user.ID))
}

func TestAuthenticated_NilUser(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.svc.Authenticated(nil, domain.DigestPassword, "foobar"))
}

func TestRestoreSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerActive(t, "s@example.com", "foobar")

	token, err := f.svc.Remember(ctx, user.ID)
	require.NoError(t, err)

	result, err := f.svc.RestoreSession(ctx, user.ID, token)
	require.NoError(t, err)
	assert.Equal(t, "access-"+user.ID, result.AccessToken)

	_, err = f.svc.RestoreSession(ctx, user.ID, "forged")
	require.ErrorIs(t, err, domain.ErrRememberInvalid)
	_, err = f.svc.RestoreSession(ctx, "missing", token)
	require.ErrorIs(t, err, domain.ErrRememberInvalid)

	require.NoError(t, f.svc.Logout(ctx, user.ID))
	_, err = f.svc.RestoreSession(ctx, user.ID, token)
	require.ErrorIs(t, err, domain.ErrRememberInvalid)
}

func TestVerifyAndRenewToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerActive(t, "v@example.com", "foobar")

	got, err := f.svc.VerifyToken(ctx, "access-"+user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Empty(t, got.PasswordHash)

	_, err = f.svc.VerifyToken(ctx, "garbage")
	require.ErrorIs(t, err, domain.ErrTokenInvalid)
	_, err = f.svc.VerifyToken(ctx, "access-unknown")
	require.ErrorIs(t, err, domain.ErrTokenInvalid)

	renewed, err := f.svc.RenewToken(ctx, "access-"+user.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-"+user.ID, renewed.AccessToken)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.registerActive(t, "c@example.com", "foobar")
	remember, err := f.svc.Remember(ctx, user.ID)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.ChangePassword(ctx, user.ID, "wrong!", "newpass"), domain.ErrPasswordMismatch)
	require.ErrorIs(t, f.svc.ChangePassword(ctx, user.ID, "foobar", "foobar"), domain.ErrPasswordUnchanged)

	var ve *domain.ValidationError
	require.ErrorAs(t, f.svc.ChangePassword(ctx, user.ID, "foobar", "abc"), &ve)

	require.NoError(t, f.svc.ChangePassword(ctx, user.ID, "foobar", "newpass"))

	stored := f.stored(t, user.ID)
	assert.True(t, f.svc.Authenticated(stored, domain.DigestPassword, "newpass"))
	assert.False(t, f.svc.Authenticated(stored, domain.DigestPassword, "foobar"))
	assert.False(t, f.svc.Authenticated(stored, domain.DigestRemember, remember))

	_, err = f.svc.Login(ctx, domain.Credentials{Email: "c@example.com", Password: "newpass"}, false)
	require.NoError(t, err)
}

func TestLogin_Throttled(t *testing.T) {
	limiter := &countingLimiter{max: 2}
	f := newFixture(t, WithLoginLimiter(limiter))
	ctx := context.Background()
	f.registerActive(t, "t@example.com", "foobar")

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(ctx, domain.Credentials{Email: "t@example.com", Password: "nope!!"}, false)
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	_, err := f.svc.Login(ctx, domain.Credentials{Email: "t@example.com", Password: "foobar"}, false)
	require.ErrorIs(t, err, domain.ErrTooManyAttempts)
}

func TestLogin_SuccessResetsLimiter(t *testing.T) {
	limiter := &countingLimiter{max: 2}
	f := newFixture(t, WithLoginLimiter(limiter))
	ctx := context.Background()
	f.registerActive(t, "ok@example.com", "foobar")

	_, err := f.svc.Login(ctx, domain.Credentials{Email: "ok@example.com", Password: "nope!!"}, false)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, domain.Credentials{Email: "ok@example.com", Password: "foobar"}, false)
	require.NoError(t, err)
	assert.Zero(t, limiter.counts["ok@example.com"])
}

func TestLogin_LimiterOutageFailsOpen(t *testing.T) {
	f := newFixture(t, WithLoginLimiter(&countingLimiter{err: errors.New("redis down")}))
	f.registerActive(t, "o@example.com", "foobar")

	_, err := f.svc.Login(context.Background(), domain.Credentials{Email: "o@example.com", Password: "foobar"}, false)
	require.NoError(t, err)
}
