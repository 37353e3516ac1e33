package auth

import (
	"crypto/sha256"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"golang.org/x/crypto/hkdf"
)

const (
	CSRFCookieName = "csrftoken"
	CSRFFieldName  = "csrfmiddlewaretoken"
	CSRFHeaderName = "X-CSRFToken"
	csrfKey        = "csrf_token"
)

// CSRFKey derives the 32-byte cookie signing key from the application secret.
func CSRFKey(secret string) []byte {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("useradmin csrf")), key); err != nil {
		panic(err)
	}
	return key
}

// CSRF guards unsafe methods with gorilla/csrf. The cookie holds a signed
// token; forms echo a masked copy in the csrfmiddlewaretoken field and
// scripts send it in the X-CSRFToken header. With secure unset the request
// is treated as plain HTTP and the Referer check for TLS is skipped.
func CSRF(key []byte, secure bool) gin.HandlerFunc {
	protect := csrf.Protect(key,
		csrf.CookieName(CSRFCookieName),
		csrf.FieldName(CSRFFieldName),
		csrf.RequestHeader(CSRFHeaderName),
		csrf.Path("/"),
		csrf.Secure(secure),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(csrfFailed)),
	)

	return func(c *gin.Context) {
		if !secure {
			c.Request = csrf.PlaintextHTTPRequest(c.Request)
		}
		passed := false
		protect(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Set(csrfKey, csrf.Token(r))
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

func csrfFailed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"CSRF verification failed"}`))
}

// CSRFToken returns the masked token for the current request, for templates.
func CSRFToken(c *gin.Context) string {
	return c.GetString(csrfKey)
}
