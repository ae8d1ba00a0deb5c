package auth

// TokenManager abstracts access token issuance and verification.
type TokenManager interface {
	Generate(userID string) (string, error)
	Validate(token string) (string, error)
}
