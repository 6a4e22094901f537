package auth

import (
	_ "embed"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/anonto42/reviewinn/backend/internal/domain"
)

// PasswordPolicy selects how strictly a new password is checked.
type PasswordPolicy int

const (
	// PolicyStrict applies every rule, including sequence and repetition checks.
	PolicyStrict PasswordPolicy = iota
	// PolicyBasic applies length, character classes, the weak list and personal info.
	PolicyBasic
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	specialChars      = "!@#$%^&*()_+-=[]{};:'\"\\|,.<>/?`~"
)

//go:embed weak_passwords.txt
var weakPasswordList string

var weakPasswords = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(weakPasswordList, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			set[strings.ToLower(line)] = struct{}{}
		}
	}
	return set
}()

var sequenceSources = []string{
	"abcdefghijklmnopqrstuvwxyz",
	"0123456789",
	"qwertyuiop",
	"asdfghjkl",
	"zxcvbnm",
}

// PersonalInfo holds values a password must not contain.
type PersonalInfo struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
}

// ValidatePassword checks password against policy and returns a
// *domain.ValidationError listing every broken rule.
func ValidatePassword(password string, info PersonalInfo, policy PasswordPolicy) error {
	var problems []domain.FieldError
	add := func(msg string) {
		problems = append(problems, domain.FieldError{Field: "password", Message: msg})
	}

	n := len([]rune(password))
	if n < minPasswordLength || n > maxPasswordLength {
		add("must be between 8 and 128 characters")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	if !upper {
		add("must contain an uppercase letter")
	}
	if !lower {
		add("must contain a lowercase letter")
	}
	if !digit {
		add("must contain a digit")
	}
	if !special {
		add("must contain a special character")
	}

	lowered := strings.ToLower(password)
	if _, weak := weakPasswords[lowered]; weak {
		add("is too common")
	}

	for _, part := range info.parts() {
		if strings.Contains(lowered, part) {
			add("must not contain your name, username or email")
			break
		}
	}

	if policy == PolicyStrict {
		if hasSequence(lowered) {
			add("must not contain sequences like abc, 123 or qwe")
		}
		if hasRepeat(password, 4) {
			add("must not repeat the same character 4 times in a row")
		}
	}

	if len(problems) > 0 {
		return domain.NewValidationErrors(problems)
	}
	return nil
}

// parts returns the lowercased personal values longer than two characters.
func (p PersonalInfo) parts() []string {
	local := p.Email
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	var out []string
	for _, v := range []string{local, p.Username, p.FirstName, p.LastName} {
		v = strings.ToLower(strings.TrimSpace(v))
		if len(v) > 2 {
			out = append(out, v)
		}
	}
	return out
}

func hasSequence(s string) bool {
	for i := 0; i+3 <= len(s); i++ {
		chunk := s[i : i+3]
		for _, src := range sequenceSources {
			if strings.Contains(src, chunk) {
				return true
			}
		}
	}
	return false
}

func hasRepeat(s string, n int) bool {
	run := 1
	runes := []rune(s)
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// HashPassword hashes a password with bcrypt at the given cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
