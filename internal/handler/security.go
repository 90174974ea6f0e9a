package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/kitchen-orders/internal/domain/auth"
	"github.com/xenking/kitchen-orders/internal/wire"
)

// Claims are the JWT claims issued by the identity provider. The subject
// is the user ID.
type Claims struct {
	Role     string `json:"role"`
	BranchID string `json:"branch_id,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator turns bearer tokens into principals. Requests without a
// token proceed as guests; requests with an invalid token are rejected.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator verifies HS256 tokens signed with secret.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// Middleware stores the request principal in the context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), auth.Guest())))
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			unauthorized(w, "malformed authorization header")
			return
		}
		p, err := a.Principal(strings.TrimSpace(token))
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// Principal validates token and returns the principal it asserts.
func (a *Authenticator) Principal(token string) (auth.Principal, error) {
	if len(a.secret) == 0 {
		return auth.Principal{}, errors.New("authentication is not configured")
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return auth.Principal{}, errors.Wrap(err, "parse token")
	}

	role := auth.Role(claims.Role)
	switch role {
	case auth.RoleCustomer, auth.RoleStaff, auth.RoleBranchAdmin, auth.RoleSuperAdmin:
	default:
		return auth.Principal{}, errors.Errorf("unknown role %q", claims.Role)
	}
	if claims.Subject == "" {
		return auth.Principal{}, errors.New("token has no subject")
	}
	return auth.Principal{UserID: claims.Subject, Role: role, BranchID: claims.BranchID}, nil
}

// Sign issues a token for p valid for ttl. Used by tooling and tests.
func (a *Authenticator) Sign(p auth.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:     string(p.Role),
		BranchID: p.BranchID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="kitchen"`)
	writeErrorBody(w, wire.Error{Code: http.StatusUnauthorized, Kind: KindUnauthorized, Message: msg})
}
