package middleware

import (
	"log/slog"
	"net/url"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	adapter "github.com/gwatts/gin-adapter"
)

// SubjectKey holds the authenticated subject in the Gin context. Test
// setups inject a subject directly under this key to bypass JWT
// validation.
const SubjectKey = "auth_subject"

// EnsureValidToken validates the bearer token against the Auth0 tenant's
// JWKS and stores the claims in the request context.
func EnsureValidToken(domain, audience string) (gin.HandlerFunc, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
	)
	if err != nil {
		return nil, err
	}

	mw := jwtmiddleware.New(jwtValidator.ValidateToken)
	return adapter.Wrap(mw.CheckJWT), nil
}

// GetAuthSubject returns the authenticated subject: an injected one if a
// test middleware set it, otherwise the sub claim of the validated JWT.
func GetAuthSubject(c *gin.Context) (string, bool) {
	if v, exists := c.Get(SubjectKey); exists {
		subject, ok := v.(string)
		return subject, ok
	}

	claims, ok := c.Request.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if !ok {
		slog.Default().Debug("no user claims found in context")
		return "", false
	}
	return claims.RegisteredClaims.Subject, true
}
