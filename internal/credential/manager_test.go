package credential

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func newFastManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(WithCostMode(CostFast))
	require.NoError(t, err)
	return m
}

func TestHash_RoundTrip(t *testing.T) {
	m := newFastManager(t)
	for _, secret := range []string{"a", "Secret123!", "пароль", strings.Repeat("x", MaxSecretLength)} {
		digest, err := m.Hash(secret, CostFast)
		require.NoError(t, err)
		assert.True(t, m.Verify(secret, digest), "secret %q should verify", secret)
		assert.NotContains(t, digest, secret)
	}
}

func TestHash_FreshSaltPerCall(t *testing.T) {
	m := newFastManager(t)

	d1, err := m.Hash("Secret123!", CostFast)
	require.NoError(t, err)
	d2, err := m.Hash("Secret123!", CostFast)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
	assert.True(t, m.Verify("Secret123!", d1))
	assert.True(t, m.Verify("Secret123!", d2))
}

func TestHash_CostFollowsMode(t *testing.T) {
	m, err := NewManager(WithStrongCost(bcrypt.MinCost + 1))
	require.NoError(t, err)

	fast, err := m.Hash("secret", CostFast)
	require.NoError(t, err)
	strong, err := m.Hash("secret", CostStrong)
	require.NoError(t, err)

	fastCost, err := bcrypt.Cost([]byte(fast))
	require.NoError(t, err)
	strongCost, err := bcrypt.Cost([]byte(strong))
	require.NoError(t, err)

	assert.Equal(t, bcrypt.MinCost, fastCost)
	assert.Equal(t, bcrypt.MinCost+1, strongCost)
}

func TestDigest_UsesConfiguredMode(t *testing.T) {
	m := newFastManager(t)
	digest, err := m.Digest("secret")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(digest))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
	assert.Equal(t, CostFast, m.Mode())
}

func TestHash_InvalidInput(t *testing.T) {
	m := newFastManager(t)

	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("x", MaxSecretLength+1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Hash(tc.secret, CostFast)
			require.ErrorIs(t, err, ErrInvalidInput)
			if tc.secret != "" {
				assert.NotContains(t, err.Error(), tc.secret)
			}
		})
	}
}

func TestNewManager_RejectsCostOutOfRange(t *testing.T) {
	_, err := NewManager(WithStrongCost(bcrypt.MaxCost + 1))
	require.Error(t, err)
	_, err = NewManager(WithStrongCost(bcrypt.MinCost - 1))
	require.Error(t, err)
}

func TestVerify_WrongSecret(t *testing.T) {
	m := newFastManager(t)
	digest, err := m.Hash("Secret123!", CostFast)
	require.NoError(t, err)

	assert.False(t, m.Verify("wrongpass", digest))
	assert.False(t, m.Verify("", digest))
}

func TestVerify_RejectsSecretExtendingMaxLength(t *testing.T) {
	m := newFastManager(t)
	secret := strings.Repeat("a", MaxSecretLength)
	digest, err := m.Hash(secret, CostFast)
	require.NoError(t, err)

	assert.True(t, m.Verify(secret, digest))
	assert.False(t, m.Verify(secret+"X", digest))
	assert.False(t, m.Verify(secret+secret, digest))
}

func TestVerify_AbsentOrMalformedDigest(t *testing.T) {
	m := newFastManager(t)

	assert.False(t, m.Verify("anything", ""))
	assert.False(t, m.Verify("", ""))
	assert.False(t, m.Verify("anything", "not-a-digest"))
	assert.False(t, m.Verify("anything", "$2a$04$short"))
}

func TestNewToken_Unique(t *testing.T) {
	m := newFastManager(t)

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		tok, err := m.NewToken()
		require.NoError(t, err)
		seen[tok] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestNewToken_URLSafe(t *testing.T) {
	m := newFastManager(t)
	tok, err := m.NewToken()
	require.NoError(t, err)

	assert.Len(t, tok, 43)
	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
	assert.NotContains(t, tok, "=")
}

func TestNewToken_EntropyFailure(t *testing.T) {
	m, err := NewManager(WithRandom(failingReader{}))
	require.NoError(t, err)

	tok, err := m.NewToken()
	require.ErrorIs(t, err, ErrEntropyUnavailable)
	assert.Empty(t, tok)
}

func TestManager_ConcurrentUse(t *testing.T) {
	m := newFastManager(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.NewToken()
			if err != nil {
				errs <- err
				return
			}
			digest, err := m.Digest(tok)
			if err != nil {
				errs <- err
				return
			}
			if !m.Verify(tok, digest) {
				errs <- errors.New("token did not verify")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestParseCostMode(t *testing.T) {
	assert.Equal(t, CostFast, ParseCostMode("fast"))
	assert.Equal(t, CostStrong, ParseCostMode("strong"))
	assert.Equal(t, CostStrong, ParseCostMode(""))
	assert.Equal(t, "fast", CostFast.String())
	assert.Equal(t, "strong", CostStrong.String())
}
