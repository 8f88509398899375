package auth

import (
	"context"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

type Config struct {
	Secret string        `yaml:"secret" envconfig:"JWT_SECRET" default:"rent-a-car-secret"`
	TTL    time.Duration `yaml:"ttl" envconfig:"JWT_TTL" default:"24h"`
}

// Role is the closed set of principal roles.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Principal identifies the authenticated caller.
type Principal struct {
	UserUid  string
	Username string
	Role     Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type Profile struct {
	UserUid  string `json:"userUid"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type Claims struct {
	jwt.RegisteredClaims
	Profile Profile `json:"profile"`
}

var ErrNoPrincipal = errors.New("no principal in context")

// NewToken issues a signed HS256 token for the principal.
func NewToken(cfg Config, p Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserUid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		},
		Profile: Profile{
			UserUid:  p.UserUid,
			Username: p.Username,
			Role:     p.Role,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseToken validates the token and returns its principal.
func ParseToken(cfg Config, tokenStr string) (Principal, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return Principal{}, errors.New("invalid token")
	}
	p := Principal{
		UserUid:  claims.Profile.UserUid,
		Username: claims.Profile.Username,
		Role:     claims.Profile.Role,
	}
	if !p.Role.Valid() {
		return Principal{}, errors.Errorf("unknown role %q", p.Role)
	}
	return p, nil
}

type contextKey int

const principalKey contextKey = iota + 1

func SetAuthContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func FromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Principal{}, ErrNoPrincipal
	}
	return p, nil
}
