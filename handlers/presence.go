package handlers

import (
	"net/http"
	"time"

	"github.com/akinalp/relay/pkg"
	"github.com/akinalp/relay/pkg/ratelimit"
	"github.com/akinalp/relay/services"
)

// PresenceHandler, presence ping ve typing endpoint'leri.
type PresenceHandler struct {
	presenceService services.PresenceService
	typingLimiter   *ratelimit.Limiter[int64]
}

// NewPresenceHandler, constructor. typingLimiter nil ise typing sınırsızdır.
func NewPresenceHandler(presenceService services.PresenceService, typingLimiter *ratelimit.Limiter[int64]) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		typingLimiter:   typingLimiter,
	}
}

// Ping godoc
// POST /api/auth/ping
func (h *PresenceHandler) Ping(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	at, err := h.presenceService.Ping(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]time.Time{"last_seen_at": at})
}

// Typing godoc
// POST /api/chats/{id}/typing
func (h *PresenceHandler) Typing(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	chatID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if h.typingLimiter != nil {
		if allowed, retry := h.typingLimiter.Allow(user.ID); !allowed {
			tooManyRequests(w, retry, "typing events are rate limited")
			return
		}
	}

	if err := h.presenceService.Typing(r.Context(), chatID, user.ID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.NoContent(w)
}
