package service

import (
	"fmt"
	"time"

	"github.com/durantgrace/phoneotp/internal/config"
	"github.com/durantgrace/phoneotp/internal/phone"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TokenTypeVerification is the claim type of tokens proving a phone was verified.
const TokenTypeVerification = "phone_verified"

// VerificationToken is a signed proof that a phone passed OTP verification.
type VerificationToken struct {
	Token     string
	TokenType string
	ExpiresIn int64
}

type JWTService struct {
	secretKey []byte
	expiry    time.Duration
	logger    *logrus.Logger
}

func NewJWTService(cfg *config.JWTConfig, logger *logrus.Logger) (*JWTService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &JWTService{
		secretKey: secretKey,
		expiry:    cfg.VerificationExpiry,
		logger:    logger,
	}, nil
}

type Claims struct {
	Phone string `json:"phone"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

func (s *JWTService) IssueVerificationToken(phoneNumber string) (*VerificationToken, error) {
	now := time.Now()
	jti := uuid.New().String()

	claims := &Claims{
		Phone: phoneNumber,
		Type:  TokenTypeVerification,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phoneNumber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign verification token")
		return nil, fmt.Errorf("failed to sign verification token: %w", err)
	}

	return &VerificationToken{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int64(s.expiry.Seconds()),
	}, nil
}

// VerifyToken parses a verification token and checks its signature, expiry
// and type.
func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.Type != TokenTypeVerification {
		return nil, fmt.Errorf("token is not a verification token")
	}

	if !phone.IsCanonical(claims.Phone) {
		return nil, fmt.Errorf("token carries no verified phone")
	}

	return claims, nil
}
