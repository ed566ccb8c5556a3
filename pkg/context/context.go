package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	CallerKey    = ContextKey("X-Caller")
)

func set(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return set(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return set(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return get(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return set(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return get(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return set(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return get(ctx, RemoteIPKey)
}

// SetCaller records which entry point ("http", "kafka") started the work.
func SetCaller(ctx context.Context, caller string) context.Context {
	return set(ctx, CallerKey, caller)
}

func GetCaller(ctx context.Context) string {
	return get(ctx, CallerKey)
}

// LogFields returns the request-scoped values worth attaching to log lines.
func LogFields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	if v := GetRequestID(ctx); v != "" {
		fields["request_id"] = v
	}
	if v := GetCaller(ctx); v != "" {
		fields["caller"] = v
	}
	return fields
}
