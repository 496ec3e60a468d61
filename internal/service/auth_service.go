package service

import (
	"errors"

	"memchat/internal/dto"
	"memchat/pkg/auth"

	"go.uber.org/zap"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const operatorSubject = "operator"

// AuthService issues API tokens to the single operator. The operator is
// identified by a bcrypt password hash from the configuration.
type AuthService struct {
	passwordHash string
	jwtManager   *auth.JWTManager
	logger       *zap.Logger
}

func NewAuthService(passwordHash string, jwtManager *auth.JWTManager, logger *zap.Logger) *AuthService {
	return &AuthService{
		passwordHash: passwordHash,
		jwtManager:   jwtManager,
		logger:       logger,
	}
}

func (s *AuthService) Login(req *dto.TokenRequest) (*dto.TokenResponse, error) {
	if !auth.CheckPasswordHash(req.Password, s.passwordHash) {
		s.logger.Warn("Rejected operator login")
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtManager.GenerateToken(operatorSubject)
	if err != nil {
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.jwtManager.GetTokenDuration().Seconds()),
	}, nil
}
