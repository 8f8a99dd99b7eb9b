package service

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{2,31}$`)
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

func validateEmail(email string) error {
	if email == "" {
		return invalidInput("email is required")
	}
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return invalidInput("invalid email format")
	}
	return nil
}

// validateUsername expects a normalized (lowercased, trimmed) username.
func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return invalidInput("username must be 3-32 characters of a-z, 0-9, '.', '_' or '-'")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < 12 {
		return invalidInput("password must be at least 12 characters")
	}
	if len(password) > maxPasswordBytes {
		return invalidInput("password must be at most 72 bytes")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return invalidInput("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return invalidInput("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return invalidInput("password must contain at least one number")
	}
	if !hasSymbol {
		return invalidInput("password must contain at least one symbol")
	}
	return nil
}
