package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/akinalp/relay/pkg"
)

// Pinger, sağlık kontrolünde yoklanan bağımlılık (ör. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConnectionCounter, hub'daki aktif WebSocket bağlantı sayısını verir.
type ConnectionCounter interface {
	ConnectionCount() int
}

// HealthHandler, GET /api/health.
type HealthHandler struct {
	db  Pinger
	hub ConnectionCounter
}

// NewHealthHandler, constructor.
func NewHealthHandler(db Pinger, hub ConnectionCounter) *HealthHandler {
	return &HealthHandler{db: db, hub: hub}
}

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Connections int    `json:"connections"`
}

// Check, veritabanını yoklar. Veritabanı yanıt vermiyorsa 503.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok", Connections: h.hub.ConnectionCount()}
	status := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		resp.Status, resp.Database = "degraded", "unreachable"
		status = http.StatusServiceUnavailable
	}

	pkg.JSON(w, status, resp)
}
