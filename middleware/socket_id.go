package middleware

import (
	"net/http"

	"github.com/akinalp/relay/ws"
)

// SocketIDHeader, client'ın kendi WebSocket bağlantı ID'sini taşıdığı header.
// Değer "ready" event'indeki connection_id'dir.
const SocketIDHeader = "X-Socket-ID"

// SocketID, header'daki bağlantı ID'sini context'e koyar. Servisler bu ID'yi
// event yayınlarken hariç tutar; böylece isteği yapan sekme kendi event'ini almaz.
func SocketID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SocketIDHeader)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ws.WithConnID(r.Context(), id)))
	})
}
