package httputil

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// RequestContext carries the audit-relevant facts about an HTTP request
// (client IP, user agent) so services below the transport layer can record
// them without seeing *http.Request.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

type requestContextKey struct{}

// NewRequestContext extracts audit context from an HTTP request.
func NewRequestContext(r *http.Request) *RequestContext {
	ipStr := GetClientIP(r)
	if host, _, err := net.SplitHostPort(ipStr); err == nil {
		ipStr = host
	}

	return &RequestContext{
		IPAddress: ipStr,
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// WithRequestContext adds RequestContext to the context.
func WithRequestContext(ctx context.Context, reqCtx *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, reqCtx)
}

// GetRequestContext retrieves RequestContext from the context, or nil.
func GetRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return rc
	}
	return nil
}

// GetClientIP extracts the real client IP address from request headers.
// It handles proxy scenarios by checking headers in this order:
//  1. X-Forwarded-For (first IP in the comma-separated list)
//  2. X-Real-IP
//  3. RemoteAddr
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultVal
}
