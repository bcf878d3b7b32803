package httpapi

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// withCORS sets permissive CORS and security headers on every response and
// answers CORS preflights directly. Other OPTIONS requests reach the mux so
// the WebDAV handler can advertise its capabilities.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("access-control-allow-origin", "*")
		h.Set("access-control-allow-methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("access-control-allow-headers", "Content-Type, Authorization")
		h.Set("x-content-type-options", "nosniff")
		h.Set("referrer-policy", "no-referrer")
		if r.TLS != nil {
			h.Set("strict-transport-security", "max-age=31536000")
		}
		if r.Method == http.MethodOptions && r.Header.Get("access-control-request-method") != "" {
			h.Set("access-control-max-age", "86400")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
