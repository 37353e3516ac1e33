package auth_test

import (
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"useradmin/internal/auth"
)

func csrfEngine(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(auth.CSRF(auth.CSRFKey(secret), false))
	h := func(c *gin.Context) { c.String(http.StatusOK, auth.CSRFToken(c)) }
	r.GET("/form", h)
	r.POST("/form", h)
	return r
}

// issue performs a GET and returns the CSRF cookie and the form token.
func issue(t *testing.T, r *gin.Engine) (*http.Cookie, string) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/form", nil))
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CSRFCookieName {
			return c, html.UnescapeString(w.Body.String())
		}
	}
	t.Fatal("no csrf cookie issued")
	return nil, ""
}

func postForm(token string, cookie *http.Cookie) *http.Request {
	form := url.Values{}
	if token != "" {
		form.Set(auth.CSRFFieldName, token)
	}
	req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return req
}

func TestCSRF(t *testing.T) {
	r := csrfEngine("s3cret")
	cookie, token := issue(t, r)

	t.Run("Should issue a token on safe requests", func(t *testing.T) {
		assert.NotEmpty(t, token)
		assert.NotEqual(t, cookie.Value, token)
	})

	t.Run("Should mask the token differently on every request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/form", nil)
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		other := w.Body.String()
		assert.NotEqual(t, token, other)

		w = httptest.NewRecorder()
		r.ServeHTTP(w, postForm(other, cookie))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should accept the form field", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, postForm(token, cookie))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should accept the header", func(t *testing.T) {
		req := postForm("", cookie)
		req.Header.Set(auth.CSRFHeaderName, token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should reject a missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, postForm("", cookie))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"error":"CSRF verification failed"}`, w.Body.String())
	})

	t.Run("Should reject a missing cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, postForm(token, nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Should reject a token from another cookie", func(t *testing.T) {
		_, foreign := issue(t, r)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, postForm(foreign, cookie))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Should reject a cookie planted without the signing key", func(t *testing.T) {
		plantedCookie, plantedToken := issue(t, csrfEngine("attacker"))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, postForm(plantedToken, plantedCookie))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Should reject a raw uuid pair", func(t *testing.T) {
		raw := &http.Cookie{Name: auth.CSRFCookieName, Value: "abc"}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, postForm("abc", raw))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
