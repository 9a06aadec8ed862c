package ws

import "context"

type connIDKey struct{}

// WithConnID, isteği yapan WebSocket bağlantısının kimliğini context'e ekler.
// Middleware X-Socket-ID header'ından doldurur.
func WithConnID(ctx context.Context, connID string) context.Context {
	if connID == "" {
		return ctx
	}
	return context.WithValue(ctx, connIDKey{}, connID)
}

// ConnIDFromContext, Publish'te hariç tutulacak bağlantıyı döner ("" = yok).
func ConnIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(connIDKey{}).(string)
	return id
}
