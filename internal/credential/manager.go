// Package credential turns secrets into storage-safe digests, generates
// unguessable tokens and verifies presented secrets against stored digests.
//
// A Manager holds no mutable state and is safe for concurrent use.
package credential

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// CostMode selects the bcrypt work factor used by Hash.
type CostMode int

const (
	// CostStrong uses the configured production cost.
	CostStrong CostMode = iota
	// CostFast uses bcrypt's minimum cost and is meant for automated tests.
	CostFast
)

const (
	// MaxSecretLength is the longest secret bcrypt accepts, in bytes.
	MaxSecretLength = 72
	tokenBytes      = 32
)

var (
	// ErrInvalidInput reports an empty or oversized secret.
	ErrInvalidInput = errors.New("credential: invalid input")
	// ErrEntropyUnavailable reports a failure of the secure random source.
	ErrEntropyUnavailable = errors.New("credential: entropy source unavailable")
)

// ParseCostMode maps "fast" and "strong" to their CostMode. Anything else is strong.
func ParseCostMode(raw string) CostMode {
	if raw == "fast" {
		return CostFast
	}
	return CostStrong
}

func (m CostMode) String() string {
	if m == CostFast {
		return "fast"
	}
	return "strong"
}

// Manager hashes secrets and issues tokens.
type Manager struct {
	mode       CostMode
	strongCost int
	random     io.Reader
}

// Option customises a Manager.
type Option func(*Manager)

// WithCostMode sets the mode used by Digest.
func WithCostMode(mode CostMode) Option {
	return func(m *Manager) { m.mode = mode }
}

// WithStrongCost overrides the bcrypt cost used in CostStrong mode.
func WithStrongCost(cost int) Option {
	return func(m *Manager) { m.strongCost = cost }
}

// WithRandom replaces the token source. Tests use it to simulate entropy failures.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.random = r }
}

// NewManager constructs a Manager. The strong cost must lie within bcrypt's bounds.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		mode:       CostStrong,
		strongCost: bcrypt.DefaultCost,
		random:     rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.strongCost < bcrypt.MinCost || m.strongCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("credential: bcrypt cost %d outside [%d, %d]", m.strongCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return m, nil
}

// Mode reports the cost mode used by Digest.
func (m *Manager) Mode() CostMode {
	return m.mode
}

// Hash digests secret with a fresh salt at the cost selected by mode.
func (m *Manager) Hash(secret string, mode CostMode) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: secret is empty", ErrInvalidInput)
	}
	if len(secret) > MaxSecretLength {
		return "", fmt.Errorf("%w: secret exceeds %d bytes", ErrInvalidInput, MaxSecretLength)
	}

	cost := m.strongCost
	if mode == CostFast {
		cost = bcrypt.MinCost
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: secret exceeds %d bytes", ErrInvalidInput, MaxSecretLength)
		}
		// Cost is validated up front, so the remaining failure is the salt read.
		return "", fmt.Errorf("%w: salt generation failed", ErrEntropyUnavailable)
	}
	return string(digest), nil
}

// Digest hashes secret using the manager's configured cost mode.
func (m *Manager) Digest(secret string) (string, error) {
	return m.Hash(secret, m.mode)
}

// NewToken returns a URL-safe random token carrying 256 bits of entropy.
func (m *Manager) NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(m.random, b); err != nil {
		return "", fmt.Errorf("%w: token generation failed", ErrEntropyUnavailable)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Verify reports whether presented matches digest. An empty or malformed
// digest never matches. Secrets longer than MaxSecretLength never match
// either, since bcrypt would only compare their first 72 bytes.
func (m *Manager) Verify(presented, digest string) bool {
	if digest == "" || len(presented) > MaxSecretLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(presented)) == nil
}
