package httpserver

import (
	"net/http"
	"net/url"
	"strings"
)

// originMiddleware enforces the browser origin policy on every route,
// including the WebSocket handshake. Requests without an Origin header
// (non-browser clients, same-origin fetches in some browsers) pass through.
func originMiddleware(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			originHeader := strings.TrimSpace(r.Header.Get("Origin"))
			if originHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			normalized, originHost, ok := normalizeOrigin(originHeader)
			if !ok || !originAllowed(normalized, originHost, r.Host, allowedOrigins) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", normalized)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
				if reqHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers")); reqHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
				}
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// normalizeOrigin validates an Origin header and normalizes it to
// scheme://host[:port] with default ports stripped. The sandboxed-document
// value "null" is passed through; the allowlist decides its fate.
func normalizeOrigin(header string) (normalized string, host string, ok bool) {
	if header == "null" {
		return "null", "", true
	}

	u, err := url.Parse(header)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" || (u.Path != "" && u.Path != "/") {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host = strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) ||
		(scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	if host == "" || strings.HasPrefix(host, ":") {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// originAllowed applies the allowlist when one is configured; otherwise the
// default policy is same-host only. Scheme is deliberately not compared to
// the request: behind a TLS-terminating proxy the relay sees plain HTTP
// while the browser Origin says HTTPS.
func originAllowed(normalized, originHost, requestHost string, allowedOrigins []string) bool {
	if len(allowedOrigins) > 0 {
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == normalized {
				return true
			}
		}
		return false
	}

	if originHost == "" {
		// "null" never matches a host-based request.
		return false
	}
	reqHost := strings.ToLower(strings.TrimSpace(requestHost))
	if strings.HasSuffix(reqHost, ":80") || strings.HasSuffix(reqHost, ":443") {
		reqHost = reqHost[:strings.LastIndex(reqHost, ":")]
	}
	return originHost == reqHost
}
