package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authenticate checks the bearer token of r against token. An empty token disables
// authentication and allows every request.
func Authenticate(r *http.Request, token string) error {
	if token == "" {
		return nil
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
