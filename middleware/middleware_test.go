package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/akinalp/relay/handlers"
	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/repository"
	"github.com/akinalp/relay/ws"
)

func TestSocketID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"header present", "conn-1", "conn-1"},
		{"header missing", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := SocketID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = ws.ConnIDFromContext(r.Context())
			}))

			r := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				r.Header.Set(SocketIDHeader, tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)

			assert.Equal(t, tt.want, got)
		})
	}
}

// lastSeenRepo, yalnızca UpdateLastSeen çağrılarını sayar.
type lastSeenRepo struct {
	repository.UserRepository

	mu    sync.Mutex
	calls int
	err   error
}

func (r *lastSeenRepo) UpdateLastSeen(_ context.Context, _ int64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *lastSeenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func serveAs(h http.Handler, user *models.User) int {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if user != nil {
		r = r.WithContext(context.WithValue(r.Context(), handlers.UserContextKey, user))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w.Code
}

func TestLastSeen_ThrottlesPerUser(t *testing.T) {
	repo := &lastSeenRepo{}
	m := NewLastSeenMiddleware(repo, time.Minute, zap.NewNop())
	t.Cleanup(m.Close)

	h := m.Touch(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	ada := &models.User{ID: 1}
	bob := &models.User{ID: 2}

	assert.Equal(t, http.StatusTeapot, serveAs(h, ada))
	serveAs(h, ada)
	serveAs(h, ada)
	serveAs(h, bob)
	serveAs(h, nil)

	assert.Equal(t, 2, repo.count())
}

func TestLastSeen_RetriesAfterFailure(t *testing.T) {
	repo := &lastSeenRepo{err: errors.New("db down")}
	m := NewLastSeenMiddleware(repo, time.Minute, zap.NewNop())
	t.Cleanup(m.Close)

	h := m.Touch(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ada := &models.User{ID: 1}

	// Yazım hatası isteği bozmaz.
	assert.Equal(t, http.StatusOK, serveAs(h, ada))
	serveAs(h, ada)

	assert.Equal(t, 2, repo.count())
}
