package auth

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// bcrypt ignores input past 72 bytes, so longer passwords are refused outright.
const maxPasswordBytes = 72

var emailPattern = regexp.MustCompile(`(?i)^[\w+\-.]+@[a-z\d\-.]+\.[a-z]+$`)

// Policy holds the validation limits applied to user records.
type Policy struct {
	NameMaxLength     int
	EmailMaxLength    int
	PasswordMinLength int
}

// DefaultPolicy returns the limits used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{NameMaxLength: 50, EmailMaxLength: 255, PasswordMinLength: 6}
}

// NormalizeEmail trims and downcases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p Policy) ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Message: "can't be blank"}
	}
	if utf8.RuneCountInString(name) > p.NameMaxLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("is too long (maximum is %d characters)", p.NameMaxLength)}
	}
	return nil
}

func (p Policy) ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "can't be blank"}
	}
	if utf8.RuneCountInString(email) > p.EmailMaxLength {
		return &ValidationError{Field: "email", Message: fmt.Sprintf("is too long (maximum is %d characters)", p.EmailMaxLength)}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Message: "is invalid"}
	}
	return nil
}

func (p Policy) ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return &ValidationError{Field: "password", Message: "can't be blank"}
	}
	if utf8.RuneCountInString(password) < p.PasswordMinLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("is too short (minimum is %d characters)", p.PasswordMinLength)}
	}
	if len(password) > maxPasswordBytes {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("is too long (maximum is %d bytes)", maxPasswordBytes)}
	}
	return nil
}
