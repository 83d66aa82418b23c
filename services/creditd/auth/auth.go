// Package auth verifies the bearer tokens presented to the credit API. The
// token subject is the trading account; the role claim selects the
// operator endpoints a caller may reach.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const contextKeyClaims contextKey = "credit_claims"

// Role represents an authorised persona.
type Role string

const (
	RoleTrader Role = "trader"
	RoleKeeper Role = "keeper"
	RoleAdmin  Role = "admin"
)

var allowedRoles = map[Role]struct{}{
	RoleTrader: {},
	RoleKeeper: {},
	RoleAdmin:  {},
}

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrNoIdentity   = errors.New("auth: no identity in context")
)

// Claims identifies the caller.
type Claims struct {
	Account common.Address
	Role    Role
}

// Options configures HS256 verification.
type Options struct {
	Secret   []byte
	Issuer   string
	Audience []string
	Leeway   time.Duration
	Now      func() time.Time
}

// Verifier checks signed tokens.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
	issuer string
}

// NewVerifier builds a verifier. The secret must be at least 32 bytes.
func NewVerifier(opts Options) (*Verifier, error) {
	if len(opts.Secret) < 32 {
		return nil, errors.New("auth: hs256 secret must be at least 32 bytes")
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, errors.New("auth: issuer required")
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	}
	if opts.Leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(opts.Leeway))
	}
	if opts.Now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(opts.Now))
	}
	// Only the primary audience is enforced.
	for _, aud := range opts.Audience {
		if aud = strings.TrimSpace(aud); aud != "" {
			parserOpts = append(parserOpts, jwt.WithAudience(aud))
			break
		}
	}
	return &Verifier{
		secret: append([]byte(nil), opts.Secret...),
		parser: jwt.NewParser(parserOpts...),
		issuer: issuer,
	}, nil
}

// Verify parses token and extracts the account and role.
func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	sub = strings.TrimSpace(sub)
	if !common.IsHexAddress(sub) {
		return nil, errors.Join(ErrInvalidToken, errors.New("subject is not an account"))
	}
	roleStr, _ := claims["role"].(string)
	role := Role(strings.ToLower(strings.TrimSpace(roleStr)))
	if role == "" {
		role = RoleTrader
	}
	if _, ok := allowedRoles[role]; !ok {
		return nil, errors.Join(ErrInvalidToken, errors.New("unknown role"))
	}
	return &Claims{Account: common.HexToAddress(sub), Role: role}, nil
}

// Issue signs a token for account. Operators use it to mint keeper and admin
// credentials.
func (v *Verifier) Issue(account common.Address, role Role, audience []string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  account.Hex(),
		"role": string(role),
		"iss":  v.issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if len(audience) > 0 {
		claims["aud"] = audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware rejects requests without a valid bearer token and stores the
// claims on the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearer(r)
		if err != nil {
			writeUnauthorized(w, err.Error())
			return
		}
		claims, err := v.Verify(token)
		if err != nil {
			writeUnauthorized(w, "invalid authorization token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func bearer(r *http.Request) (string, error) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"` + msg + `"}}`))
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// FromContext returns the claims attached by Middleware.
func FromContext(ctx context.Context) (*Claims, error) {
	if claims, ok := ctx.Value(contextKeyClaims).(*Claims); ok && claims != nil {
		return claims, nil
	}
	return nil, ErrNoIdentity
}

// RequireRole lets through callers holding one of roles. Admins pass every
// check.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles)+1)
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	allowed[RoleAdmin] = struct{}{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := FromContext(r.Context())
			if err != nil {
				writeUnauthorized(w, "missing identity")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":{"code":"forbidden","message":"insufficient role"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
