package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg"
	"github.com/akinalp/relay/pkg/ratelimit"
)

// maxBodyBytes, JSON body üst sınırı. En büyük istek 2000 karakterlik mesajdır.
const maxBodyBytes = 64 << 10

// currentUser, AuthMiddleware'ın context'e koyduğu kullanıcıyı döner.
// Yoksa 401 yazar ve false döner.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return nil, false
	}
	return user, true
}

// decodeJSON, body'yi v'ye parse eder. Hata durumunda 400 yazar ve false döner.
// Boş body hata değildir (ör. mark-read'de message_id opsiyonel).
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathID, URL path'teki pozitif int64 parametresini okur. Geçersizse 404 yazar.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		pkg.ErrorWithMessage(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}

// queryInt, query parametresini int olarak okur; yoksa veya geçersizse 0.
// Sınırlar service katmanında uygulanır.
func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

// tooManyRequests, Retry-After header'lı 429 yanıtı yazar.
func tooManyRequests(w http.ResponseWriter, retry time.Duration, message string) {
	seconds := max(ratelimit.RetryAfterSeconds(retry), 1)
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	pkg.ErrorWithMessage(w, http.StatusTooManyRequests,
		message+", please try again in "+ratelimit.FormatRetryMessage(seconds))
}
