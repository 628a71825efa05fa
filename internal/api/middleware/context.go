package middleware

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const clientIPKey contextKey = "client_ip"

// ClientIP stores the caller's address in the request context. It runs after
// chi's RealIP so proxies are honoured.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			r = r.WithContext(context.WithValue(r.Context(), clientIPKey, host))
		}
		next.ServeHTTP(w, r)
	})
}

func GetClientIP(r *http.Request) (string, bool) {
	ip, ok := r.Context().Value(clientIPKey).(string)
	return ip, ok
}
