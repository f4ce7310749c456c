package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/sessionlake/internal/core"
	"github.com/JonMunkholm/sessionlake/internal/web/middleware"
)

// WithRequestMetadata adds IP and User-Agent to context for operation logs.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, clientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.Header.Get("User-Agent"))
	return ctx
}

// clientIP returns the caller address without the port. RemoteAddr has
// already been rewritten by TrustedRealIP for trusted proxies.
func clientIP(r *http.Request) string {
	if ip := middleware.ExtractIP(r.RemoteAddr); ip.IsValid() {
		return ip.String()
	}
	return r.RemoteAddr
}
