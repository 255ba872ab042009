package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AuthModeJWT         = "jwt"
	AuthModeDevelopment = "development"

	// HeaderDoctorID identifies the caller in development mode.
	HeaderDoctorID = "X-Doctor-ID"

	doctorIDKey = "doctor_id"
)

// DoctorLookup confirms that an authenticated doctor still exists.
type DoctorLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Doctor, error)
}

// AuthConfig selects how the calling doctor is identified.
// Doctors is optional; when set, unknown doctors are rejected.
type AuthConfig struct {
	Mode    string
	Secret  string
	Issuer  string
	Doctors DoctorLookup
}

var errMissingToken = errors.New("missing bearer token")

// Auth resolves the calling doctor and aborts with 401 when it cannot.
// In jwt mode the bearer token must be HS256-signed with Secret and carry the
// doctor id as its subject.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			doctorID string
			err      error
		)
		if cfg.Mode == AuthModeDevelopment {
			doctorID = strings.TrimSpace(c.GetHeader(HeaderDoctorID))
			if doctorID == "" {
				err = errors.New("missing " + HeaderDoctorID + " header")
			}
		} else {
			doctorID, err = verifyBearer(c.GetHeader("Authorization"), cfg)
		}
		if err == nil && cfg.Doctors != nil {
			if _, lookupErr := cfg.Doctors.GetByID(c.Request.Context(), doctorID); lookupErr != nil {
				if !errors.Is(lookupErr, domain.ErrNotFound) {
					logger.CtxError(c.Request.Context(), "Doctor lookup failed: error=%v", lookupErr)
					c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Doctor directory unavailable"})
					return
				}
				err = errors.New("doctor not found")
			}
		}

		if err != nil {
			logger.CtxWarn(c.Request.Context(), "Unauthorized request: path=%s, error=%v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
			return
		}

		c.Set(doctorIDKey, doctorID)
		c.Request = c.Request.WithContext(logger.SetDoctorID(c.Request.Context(), doctorID))
		c.Next()
	}
}

func verifyBearer(header string, cfg AuthConfig) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// DoctorID returns the doctor resolved by Auth.
func DoctorID(c *gin.Context) string {
	return c.GetString(doctorIDKey)
}
