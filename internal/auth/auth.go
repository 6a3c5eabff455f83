package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ksred/lobby-trading-api/pkg/response"
)

var (
	ErrInvalidAddress  = errors.New("invalid wallet address")
	ErrTokenGeneration = errors.New("failed to generate token")
)

// SessionRequest carries the wallet identity resolved by the upstream
// signature check. This service trusts that resolution; it does not verify
// signatures itself.
type SessionRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	VenueToken    string `json:"venue_token"`
}

// TokenResponse represents the JWT session token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	Address    string `json:"address"`
	VenueToken string `json:"venue_token,omitempty"`
}

// Service issues and validates wallet session tokens
type Service struct {
	jwtSecret []byte
}

// NewService creates a new authentication service with the given JWT secret
func NewService(jwtSecret string) *Service {
	return &Service{jwtSecret: []byte(jwtSecret)}
}

// GenerateToken issues a session JWT for a wallet address with 24-hour
// expiration. The venue bearer token rides along in the claims so trading
// calls can be made on the player's behalf.
func (s *Service) GenerateToken(req SessionRequest) (*TokenResponse, error) {
	address := strings.ToLower(strings.TrimSpace(req.WalletAddress))
	if address == "" {
		return nil, ErrInvalidAddress
	}

	expiration := time.Now().Add(24 * time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		Address:    address,
		VenueToken: req.VenueToken,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a session JWT and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// CreateSessionHandler handles POST requests to create wallet sessions
func (h *GinHandlers) CreateSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(req)
		if errors.Is(err, ErrInvalidAddress) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// GetAddress extracts the wallet address stored by the JWT middleware.
// Returns empty string if missing.
func GetAddress(c *gin.Context) string {
	return c.GetString("address")
}

// GetVenueToken extracts the venue bearer token stored by the JWT
// middleware.
func GetVenueToken(c *gin.Context) string {
	return c.GetString("venueToken")
}
