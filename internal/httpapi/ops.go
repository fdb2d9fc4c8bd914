package httpapi

import (
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/gorilla/mux"
)

// Health is reported by /healthz. A non-empty Error turns the status to 503.
type Health struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

func healthHandler(probe func() Health) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h := Health{Status: "ok"}
		if probe != nil {
			h = probe()
		}
		code := http.StatusOK
		if h.Error != "" {
			h.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		if h.Status == "" {
			h.Status = "ok"
		}
		writeJSON(w, code, h)
	}
}

// mountPprof registers net/http/pprof under prefix behind an optional token.
func mountPprof(r *mux.Router, prefix, token string) {
	prefix = normalizePrefix(prefix)
	base := strings.TrimSuffix(prefix, "/")
	r.Handle(base, http.RedirectHandler(prefix, http.StatusPermanentRedirect))

	sub := r.PathPrefix(base).Subrouter()
	sub.Use(func(next http.Handler) http.Handler { return withAuth(token, next) })
	sub.HandleFunc("/cmdline", hpprof.Cmdline)
	sub.HandleFunc("/profile", hpprof.Profile)
	sub.HandleFunc("/symbol", hpprof.Symbol)
	sub.HandleFunc("/trace", hpprof.Trace)
	sub.PathPrefix("/").HandlerFunc(pprofIndexAt(prefix))
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h.ServeHTTP(w, r)
			return
		}
		unauthorized(w)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// pprof.Index resolves profiles relative to /debug/pprof/, so custom
// prefixes are rewritten before the call.
func pprofIndexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, r2)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
