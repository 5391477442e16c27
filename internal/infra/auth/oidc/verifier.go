package oidc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"coffeeshop/internal/config"
	"coffeeshop/internal/domain"
	"coffeeshop/internal/infra/auth/rbac"

	"github.com/golang-jwt/jwt/v5"
)

const bearerScheme = "Bearer"

var supportedAlgorithms = map[string]bool{
	"RS256": true,
	"RS384": true,
	"RS512": true,
}

// Verifier validates bearer tokens issued by an OIDC provider against the
// provider's published key set. It keeps no per-token state; the only shared
// state is the key set cache.
type Verifier struct {
	issuer    string
	audience  string
	algorithm string
	clockSkew time.Duration
	now       func() time.Time
	jwks      *jwksCache
	policy    domain.PermissionPolicy
}

type Option func(*Verifier)

func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		if client != nil {
			v.jwks.httpClient = client
		}
	}
}

func WithPermissionPolicy(policy domain.PermissionPolicy) Option {
	return func(v *Verifier) {
		if policy != nil {
			v.policy = policy
		}
	}
}

func WithSnapshotStore(store SnapshotStore) Option {
	return func(v *Verifier) {
		v.jwks.snapshots = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.jwks.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
			v.jwks.now = now
		}
	}
}

func NewVerifier(cfg config.Config, opts ...Option) (*Verifier, error) {
	issuer := strings.TrimSpace(cfg.OIDCIssuerURL)
	if issuer == "" {
		return nil, errors.New("OIDC_ISSUER_URL is required")
	}
	audience := strings.TrimSpace(cfg.OIDCAudience)
	if audience == "" {
		return nil, errors.New("OIDC_AUDIENCE is required")
	}
	algorithm := strings.TrimSpace(cfg.OIDCAlgorithm)
	if algorithm == "" {
		algorithm = "RS256"
	}
	if !supportedAlgorithms[algorithm] {
		return nil, errors.New("unsupported OIDC_ALGORITHM " + algorithm)
	}
	fetchTimeout := cfg.JWKSFetchTimeout()
	if fetchTimeout <= 0 {
		fetchTimeout = defaultJWKSFetchTimeout
	}
	jwks := newJWKSCache(cfg.JWKSURL(), &http.Client{Timeout: fetchTimeout})
	jwks.fetchTimeout = fetchTimeout
	jwks.setTTL(cfg.JWKSCacheTTL(), cfg.JWKSMaxStale())

	v := &Verifier{
		issuer:    issuer,
		audience:  audience,
		algorithm: algorithm,
		clockSkew: cfg.ClockSkew(),
		now:       time.Now,
		jwks:      jwks,
		policy:    rbac.NewPermissionChecker(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Permissions *[]string `json:"permissions"`
}

func (v *Verifier) Verify(ctx context.Context, authorizationHeader string, permission string) (domain.Claims, error) {
	raw, authErr := extractBearerToken(authorizationHeader)
	if authErr != nil {
		return domain.Claims{}, authErr
	}

	parser := v.parser()
	unverified, _, err := parser.ParseUnverified(raw, &tokenClaims{})
	if err != nil {
		return domain.Claims{}, domain.NewAuthError(domain.AuthInvalidHeader, domain.CodeInvalidHeader, "Unable to parse authentication token.", err)
	}
	if alg, _ := unverified.Header["alg"].(string); alg != v.algorithm {
		return domain.Claims{}, domain.NewAuthError(domain.AuthInvalidHeader, domain.CodeInvalidHeader, "Unsupported signing algorithm.", nil)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return domain.Claims{}, domain.NewAuthError(domain.AuthInvalidHeader, domain.CodeInvalidHeader, "Authorization malformed.", nil)
	}

	key, err := v.jwks.getKey(ctx, kid)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return domain.Claims{}, domain.NewAuthError(domain.AuthInvalidHeader, domain.CodeInvalidHeader, "Unable to find the appropriate key.", err)
		}
		return domain.Claims{}, domain.NewAuthError(domain.AuthKeySetUnavailable, domain.CodeKeySetUnavailable, "Unable to verify token at this time.", err)
	}

	var claims tokenClaims
	_, err = parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return domain.Claims{}, classifyParseError(err)
	}

	out := claimsFromToken(claims)
	if permission == "" {
		return out, nil
	}
	input := domain.PermissionInput{
		Permissions: out.Permissions,
		HasClaim:    claims.Permissions != nil,
		Required:    permission,
	}
	if err := v.policy.Check(ctx, input); err != nil {
		if authErr, ok := domain.AsAuthError(err); ok {
			return domain.Claims{}, authErr
		}
		return domain.Claims{}, domain.NewAuthError(domain.AuthPermissionNotFound, domain.CodeUnauthorized, "Permission not found.", err)
	}
	return out, nil
}

func (v *Verifier) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{v.algorithm}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(v.now),
	)
}

func extractBearerToken(header string) (string, *domain.AuthError) {
	if header == "" {
		return "", domain.NewAuthError(domain.AuthInvalidHeader, domain.CodeHeaderMissing, "Authorization header is expected.", nil)
	}
	parts := strings.Split(header, " ")
	if parts[0] != bearerScheme {
		return "", domain.NewAuthError(domain.AuthInvalidHeader, domain.CodeInvalidHeader, "Authorization header must start with \"Bearer\".", nil)
	}
	if len(parts) == 1 || parts[1] == "" {
		return "", domain.NewAuthError(domain.AuthInvalidHeader, domain.CodeInvalidHeader, "Token not found.", nil)
	}
	if len(parts) > 2 {
		return "", domain.NewAuthError(domain.AuthInvalidHeader, domain.CodeInvalidHeader, "Authorization header must be bearer token.", nil)
	}
	return parts[1], nil
}

func classifyParseError(err error) *domain.AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return domain.NewAuthError(domain.AuthInvalidHeader, domain.CodeInvalidHeader, "Unable to parse authentication token.", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return domain.NewAuthError(domain.AuthInvalidSignature, domain.CodeInvalidSignature, "Token signature is invalid.", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.NewAuthError(domain.AuthInvalidClaims, domain.CodeTokenExpired, "Token expired.", err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return domain.NewAuthError(domain.AuthInvalidClaims, domain.CodeInvalidClaims, "Incorrect claims. Please, check the audience and issuer.", err)
	default:
		return domain.NewAuthError(domain.AuthInvalidHeader, domain.CodeInvalidHeader, "Unable to parse authentication token.", err)
	}
}

func claimsFromToken(claims tokenClaims) domain.Claims {
	out := domain.Claims{
		Subject:  claims.Subject,
		Issuer:   claims.Issuer,
		Audience: append([]string(nil), claims.Audience...),
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.Permissions != nil {
		out.Permissions = append([]string{}, (*claims.Permissions)...)
	}
	return out
}

var _ domain.Verifier = (*Verifier)(nil)
