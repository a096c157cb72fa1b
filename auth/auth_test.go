package auth

import (
	"chathub/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_HashPassword_Round_Trips(t *testing.T) {
	req := require.New(t)
	hash, err := HashPassword("Sup3r-Secret-Pass!")
	req.NoError(err)

	match, err := ComparePassword("Sup3r-Secret-Pass!", hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("wrong-password", hash)
	req.NoError(err)
	req.False(match)
}

func Test_ComparePassword_Rejects_Malformed_Hash(t *testing.T) {
	_, err := ComparePassword("anything", "not-an-encoded-hash")
	require.Error(t, err)
}

func Test_Token_Round_Trips(t *testing.T) {
	req := require.New(t)
	secret := []byte("test-secret")

	token, err := GenerateToken("uid-1", "alice@example.com", secret, time.Hour)
	req.NoError(err)

	claims, err := ValidateToken(token, secret)
	req.NoError(err)
	req.Equal("uid-1", claims.UserID)
	req.Equal("alice@example.com", claims.Email)
}

func Test_Token_Rejects_Wrong_Secret_And_Expiry(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken("uid-1", "alice@example.com", []byte("right"), time.Hour)
	req.NoError(err)
	_, err = ValidateToken(token, []byte("wrong"))
	req.Error(err)

	expired, err := GenerateToken("uid-1", "alice@example.com", []byte("right"), -time.Minute)
	req.NoError(err)
	_, err = ValidateToken(expired, []byte("right"))
	req.Error(err)
}

func Test_ValidateRegister_Enforces_Complexity(t *testing.T) {
	assert.NoError(t, ValidateRegister(RegisterRequest{
		Email:    "alice@example.com",
		Password: "Sup3r-Secret-Pass!",
	}))

	assert.Error(t, ValidateRegister(RegisterRequest{
		Email:    "not-an-email",
		Password: "Sup3r-Secret-Pass!",
	}))

	// Long enough but all lowercase.
	assert.ErrorIs(t, ValidateRegister(RegisterRequest{
		Email:    "alice@example.com",
		Password: "alllowercasepassword",
	}), errors.ErrInvalidPassword)

	// Too short.
	assert.Error(t, ValidateRegister(RegisterRequest{
		Email:    "alice@example.com",
		Password: "Sh0rt!",
	}))
}
