package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"carepilot/pkg/requestcontext"
)

// TimezoneHeader names the caller's IANA zone. A timezone in the request body
// takes precedence.
const TimezoneHeader = "X-Timezone"

// ClientMetadata extracts client IP, User-Agent, a readable device label
// ("Chrome on macOS") for audit records and the caller's timezone. Apply early
// in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua)
		ctx = requestcontext.WithDevice(ctx, DeviceLabel(ua))
		ctx = requestcontext.WithTimezone(ctx, strings.TrimSpace(r.Header.Get(TimezoneHeader)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceLabel renders a User-Agent as "<browser> on <os>". Bots and unparsable
// agents get a generic label.
func DeviceLabel(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "unknown"
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		return "bot"
	}
	browser, _ := parsed.Browser()
	os := parsed.OSInfo().Name
	switch {
	case browser != "" && os != "":
		return browser + " on " + os
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "unknown"
	}
}

// ClientIPFromRequest extracts the real client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}
