package auth

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/anonto42/reviewinn/backend/internal/domain"
)

const (
	minNameLength = 2
	maxNameLength = 50
	maxUsername   = 30
)

var reservedNames = map[string]struct{}{
	"admin": {}, "administrator": {}, "root": {}, "system": {}, "null": {}, "undefined": {},
	"moderator": {}, "support": {}, "reviewinn": {}, "api": {}, "guest": {}, "anonymous": {},
}

// ValidateNames checks first and last name. The 2-50 length applies to the
// full display name; each part may only hold letters, spaces, hyphens and
// apostrophes and must not be a reserved word.
func ValidateNames(first, last string) error {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	var problems []domain.FieldError

	full := strings.TrimSpace(first + " " + last)
	if n := len([]rune(full)); n < minNameLength || n > maxNameLength {
		problems = append(problems, domain.FieldError{Field: "name", Message: "must be between 2 and 50 characters"})
	}

	for _, part := range [2][2]string{{"first_name", first}, {"last_name", last}} {
		field, v := part[0], part[1]
		if v == "" {
			problems = append(problems, domain.FieldError{Field: field, Message: "is required"})
			continue
		}
		if !validNameChars(v) {
			problems = append(problems, domain.FieldError{Field: field, Message: "may only contain letters, spaces, hyphens and apostrophes"})
			continue
		}
		if _, reserved := reservedNames[strings.ToLower(v)]; reserved {
			problems = append(problems, domain.FieldError{Field: field, Message: "is a reserved word"})
		}
	}

	if len(problems) > 0 {
		return domain.NewValidationErrors(problems)
	}
	return nil
}

func validNameChars(s string) bool {
	for i, r := range s {
		switch {
		case unicode.IsLetter(r):
		case i > 0 && (r == ' ' || r == '-' || r == '\''):
		default:
			return false
		}
	}
	return true
}

// usernameBase derives a username candidate from the email local part.
func usernameBase(email string) string {
	local := strings.ToLower(email)
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	var b strings.Builder
	for _, r := range local {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else if r == '.' || r == '-' || r == '+' {
			b.WriteRune('_')
		}
	}
	base := strings.Trim(b.String(), "_")
	if len(base) > maxUsername-6 {
		base = base[:maxUsername-6]
	}
	if len(base) < 3 {
		base = "user" + base
	}
	if _, reserved := reservedNames[base]; reserved {
		base += "_user"
	}
	return base
}

// GenerateUsername returns the first free username derived from email,
// suffixing 1, 2, ... on collision.
func GenerateUsername(ctx context.Context, email string, exists func(context.Context, string) (bool, error)) (string, error) {
	base := usernameBase(email)
	candidate := base
	for i := 1; i <= 10000; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", fmt.Errorf("no free username for %q: %w", base, domain.ErrConflict)
}
