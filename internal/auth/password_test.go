package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/reviewinn/backend/internal/domain"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	info := PersonalInfo{Email: "jane.doe@example.com", Username: "janedoe", FirstName: "Jane", LastName: "Doe"}

	tests := []struct {
		name     string
		password string
		policy   PasswordPolicy
		wantMsg  string
	}{
		{name: "strong", password: "Zx9!mRt#Lp2q", policy: PolicyStrict},
		{name: "too short", password: "Zx9!mR", policy: PolicyStrict, wantMsg: "must be between 8 and 128 characters"},
		{name: "no upper", password: "zx9!mrt#lp2q", policy: PolicyStrict, wantMsg: "must contain an uppercase letter"},
		{name: "no digit", password: "Zxq!mRt#Lpwq", policy: PolicyStrict, wantMsg: "must contain a digit"},
		{name: "no special", password: "Zx9vmRtkLp2q", policy: PolicyStrict, wantMsg: "must contain a special character"},
		{name: "weak list", password: "Password123!", policy: PolicyBasic, wantMsg: "is too common"},
		{name: "contains first name", password: "Jane!Rx9mtLq", policy: PolicyBasic, wantMsg: "must not contain your name, username or email"},
		{name: "no personal info", password: "Do!9RxmtLqwZ", policy: PolicyBasic},
		{name: "alphabet sequence", password: "Abcdef1!", policy: PolicyStrict, wantMsg: "must not contain sequences like abc, 123 or qwe"},
		{name: "keyboard sequence", password: "Zqwe9!mRtL", policy: PolicyStrict, wantMsg: "must not contain sequences like abc, 123 or qwe"},
		{name: "basic allows sequence", password: "Abcdef1!", policy: PolicyBasic},
		{name: "repeat", password: "Zx9!mmmmRt#L", policy: PolicyStrict, wantMsg: "must not repeat the same character 4 times in a row"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePassword(tt.password, info, tt.policy)
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			var msgs []string
			for _, fe := range verr.Errors {
				msgs = append(msgs, fe.Message)
			}
			assert.Contains(t, msgs, tt.wantMsg)
		})
	}
}

func TestValidateNames(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateNames("A", "B"))
	assert.NoError(t, ValidateNames("Mary-Jane", "O'Neil"))
	assert.Error(t, ValidateNames("", "Smith"))
	assert.Error(t, ValidateNames("J0hn", "Smith"))
	assert.Error(t, ValidateNames("Admin", "Smith"))
	assert.Error(t, ValidateNames("Averyveryveryverylongfirstname", "Andanevenlongerlastnamethanthat"))
}

func TestUsernameBase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "jane_doe", usernameBase("Jane.Doe@example.com"))
	assert.Equal(t, "usera", usernameBase("a@b.com"))
	assert.Equal(t, "admin_user", usernameBase("admin@example.com"))
}

func TestHashAndCheckPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("Zx9!mRt#Lp2q", 4)
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "Zx9!mRt#Lp2q"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
