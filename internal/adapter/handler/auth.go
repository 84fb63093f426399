package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/logger"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"

	identityKey = "identity"
)

var (
	ErrMissingToken = errors.New("authorization header is required")
	ErrInvalidToken = errors.New("invalid token")
)

type Claims struct {
	jwt.RegisteredClaims
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Identity is the authenticated caller.
type Identity struct {
	Customer domain.Customer
	Role     string
}

// Auth verifies bearer tokens issued by the account service.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// IssueToken signs a token for the customer.
func (a *Auth) IssueToken(c domain.Customer, role string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		UID:   c.ID,
		Email: c.Email,
		Name:  c.Name,
		Role:  role,
	})
	return token.SignedString(a.secret)
}

func (a *Auth) verify(header string) (Identity, error) {
	if header == "" {
		return Identity{}, ErrMissingToken
	}
	scheme, tokenStr, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || tokenStr == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UID == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		Customer: domain.Customer{ID: claims.UID, Email: claims.Email, Name: claims.Name},
		Role:     claims.Role,
	}, nil
}

// Authenticate rejects requests without a valid bearer token.
func (a *Auth) Authenticate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, err := a.verify(ctx.GetHeader("Authorization"))
		if err != nil {
			logger.Get().Debug().Err(err).Str("path", ctx.FullPath()).Msg("authentication failed")
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx.Set(identityKey, id)
		ctx.Next()
	}
}

// RequireRole must run after Authenticate.
func (a *Auth) RequireRole(role string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if identityOf(ctx).Role != role {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		ctx.Next()
	}
}

func identityOf(ctx *gin.Context) Identity {
	v, _ := ctx.Get(identityKey)
	id, _ := v.(Identity)
	return id
}

type identityCtxKey struct{}

// UnaryServerInterceptor authenticates gRPC calls from the authorization
// metadata entry.
func (a *Auth) UnaryServerInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("authorization"); len(v) > 0 {
			header = v[0]
		}
	}

	id, err := a.verify(header)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return handler(context.WithValue(ctx, identityCtxKey{}, id), req)
}

func identityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}
