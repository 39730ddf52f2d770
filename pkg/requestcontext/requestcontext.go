// Package requestcontext carries per-request metadata through context.Context
// so services can enrich audit entries without depending on net/http.
package requestcontext

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	clientIPKey
	userAgentKey
	deviceKey
	principalKey
	roleKey
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the correlation ID or "".
func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithClientMetadata stores the resolved client address and raw User-Agent.
func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, ip)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

func ClientIP(ctx context.Context) string {
	return stringValue(ctx, clientIPKey)
}

func UserAgent(ctx context.Context) string {
	return stringValue(ctx, userAgentKey)
}

// WithDevice stores a human-readable device label such as "Firefox on Linux".
func WithDevice(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, deviceKey, label)
}

func Device(ctx context.Context) string {
	return stringValue(ctx, deviceKey)
}

// WithPrincipal stores the authenticated identity making the request.
func WithPrincipal(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, principalKey, identity)
}

// Principal returns the authenticated identity or "" for anonymous requests.
func Principal(ctx context.Context) string {
	return stringValue(ctx, principalKey)
}

// WithRole stores the authenticated principal's role.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

func Role(ctx context.Context) string {
	return stringValue(ctx, roleKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
