package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/relay/handlers"
	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg/cache"
	"github.com/akinalp/relay/repository"
)

// DefaultLastSeenInterval, aynı kullanıcı için iki last_seen_at yazımı arasındaki en kısa süre.
const DefaultLastSeenInterval = 30 * time.Second

// LastSeenMiddleware, kimliği doğrulanmış her istekte users.last_seen_at'i günceller.
// Yazımlar kullanıcı başına interval'de bir kez yapılır.
type LastSeenMiddleware struct {
	userRepo repository.UserRepository
	recent   *cache.TTLCache[int64, struct{}]
	now      func() time.Time
	logger   *zap.Logger
}

// NewLastSeenMiddleware, constructor. Close ile arka plan temizleyicisi durdurulur.
func NewLastSeenMiddleware(userRepo repository.UserRepository, interval time.Duration, logger *zap.Logger) *LastSeenMiddleware {
	if interval <= 0 {
		interval = DefaultLastSeenInterval
	}
	return &LastSeenMiddleware{
		userRepo: userRepo,
		recent:   cache.New[int64, struct{}](interval, 2*interval),
		now:      time.Now,
		logger:   logger.Named("last_seen"),
	}
}

// Touch, AuthMiddleware.Require'dan SONRA zincirlenmelidir.
func (m *LastSeenMiddleware) Touch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(handlers.UserContextKey).(*models.User)
		if ok && m.recent.SetIfAbsent(user.ID, struct{}{}) {
			if err := m.userRepo.UpdateLastSeen(r.Context(), user.ID, m.now().UTC()); err != nil {
				// Başarısız yazım bir sonraki istekte tekrar denensin.
				m.recent.Delete(user.ID)
				m.logger.Warn("failed to update last seen", zap.Int64("user_id", user.ID), zap.Error(err))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Close, throttle cache'inin temizleyicisini durdurur.
func (m *LastSeenMiddleware) Close() {
	m.recent.Close()
}
