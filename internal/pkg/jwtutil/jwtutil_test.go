package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("secret", time.Hour, "user-42")
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID())
}

func TestParse_Rejects(t *testing.T) {
	valid, err := GenerateToken("secret", time.Hour, "user-42")
	require.NoError(t, err)
	expired, err := GenerateToken("secret", -time.Minute, "user-42")
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", valid},
		{"expired", "secret", expired},
		{"garbage", "secret", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.secret, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestGenerate_RequiresSubject(t *testing.T) {
	_, err := GenerateToken("secret", time.Hour, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
