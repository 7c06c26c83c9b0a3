package middleware

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	EmailKey  contextKey = "email"
)

// AuthMiddleware verifies Supabase access tokens: HS256 with the project
// secret, or ES256 against the project's JWKS.
type AuthMiddleware struct {
	jwtSecret   string
	supabaseURL string
	httpClient  *http.Client

	keysMu    sync.RWMutex
	keys      map[string]*ecdsa.PublicKey
	lastFetch time.Time
	keysTTL   time.Duration
}

func NewAuthMiddleware(jwtSecret, supabaseURL string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret:   jwtSecret,
		supabaseURL: strings.TrimSuffix(supabaseURL, "/"),
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		keysTTL:     1 * time.Hour,
	}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			respondError(w, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc(r.Context()),
			jwt.WithValidMethods([]string{"HS256", "ES256"}),
			jwt.WithExpirationRequired(),
		)
		if err != nil || !token.Valid {
			zap.L().Debug("Rejected token",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			if errors.Is(err, jwt.ErrTokenExpired) {
				respondError(w, http.StatusUnauthorized, "token expired")
				return
			}
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		userID, _ := claims["sub"].(string)
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "user id not found in token")
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		if email, _ := claims["email"].(string); email != "" {
			ctx = context.WithValue(ctx, EmailKey, email)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

func (m *AuthMiddleware) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		switch token.Method.Alg() {
		case "HS256":
			if m.jwtSecret == "" {
				return nil, fmt.Errorf("jwt secret not configured")
			}
			if decoded, err := base64.StdEncoding.DecodeString(m.jwtSecret); err == nil {
				return decoded, nil
			}
			return []byte(m.jwtSecret), nil
		case "ES256":
			kid, _ := token.Header["kid"].(string)
			return m.publicKey(ctx, kid)
		default:
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
	}
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

func GetUserEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}

func (m *AuthMiddleware) cachedKey(kid string) (*ecdsa.PublicKey, bool) {
	m.keysMu.RLock()
	defer m.keysMu.RUnlock()
	if m.keys == nil || time.Since(m.lastFetch) >= m.keysTTL {
		return nil, false
	}
	key, ok := m.keys[kid]
	return key, ok
}

func (m *AuthMiddleware) publicKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	if key, ok := m.cachedKey(kid); ok {
		return key, nil
	}

	m.keysMu.Lock()
	defer m.keysMu.Unlock()

	if m.supabaseURL == "" {
		return nil, fmt.Errorf("SUPABASE_URL not configured")
	}

	keys, err := m.fetchJWKS(ctx)
	if err != nil {
		zap.L().Error("Failed to fetch JWKS", zap.Error(err))
		return nil, err
	}
	m.keys = keys
	m.lastFetch = time.Now()

	if key, ok := keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("key %q not found in JWKS (%d keys)", kid, len(keys))
}

func (m *AuthMiddleware) fetchJWKS(ctx context.Context) (map[string]*ecdsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.supabaseURL+"/auth/v1/.well-known/jwks.json", nil)
	if err != nil {
		return nil, fmt.Errorf("building jwks request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching jwks: status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Crv string `json:"crv"`
			X   string `json:"x"`
			Y   string `json:"y"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("decoding jwks: %w", err)
	}

	keys := make(map[string]*ecdsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Crv != "P-256" {
			continue
		}
		x, errX := base64.RawURLEncoding.DecodeString(k.X)
		y, errY := base64.RawURLEncoding.DecodeString(k.Y)
		if errX != nil || errY != nil {
			continue
		}
		keys[k.Kid] = &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}
	}
	return keys, nil
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
