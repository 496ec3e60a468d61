package service

import (
	"testing"
	"time"

	"memchat/internal/dto"
	"memchat/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuthServiceLogin(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	manager := auth.NewJWTManager("test-secret", time.Hour)
	svc := NewAuthService(hash, manager, zap.NewNop())

	resp, err := svc.Login(&dto.TokenRequest{Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := manager.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)

	_, err = svc.Login(&dto.TokenRequest{Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
