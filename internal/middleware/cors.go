// Package middleware provides HTTP middleware for the Lippe assistant.
package middleware

import (
	"net/http"
	"slices"

	"github.com/ashureev/lippe-assistant/internal/identity"
	"github.com/rs/cors"
)

// CORS returns middleware that handles CORS headers. Credentials are only
// allowed when every origin is listed explicitly; a wildcard echo with
// credentials would enable CSRF.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", identity.SessionHeaderName},
		AllowCredentials: !wildcard,
	})
	return c.Handler
}
