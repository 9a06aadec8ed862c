// Package ratelimit: key bazlı token-bucket rate limiting.
//
// Her key (kullanıcı ID'si veya IP adresi) kendi rate.Limiter'ına sahiptir.
// Limiter'lar TTLCache içinde tutulur: bir süre kullanılmayan key'ler
// otomatik düşer, bellek sınırsız büyümez.
//
// Kullanım:
//
//	sendLimiter := ratelimit.New[int64](rate.Every(time.Second), 5)
//	if ok, retry := sendLimiter.Allow(userID); !ok { return 429 }
//
// pkg/ratelimit hiçbir proje içi pakete bağımlı değildir (leaf dependency),
// pkg/cache hariç.
package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/akinalp/relay/pkg/cache"
)

// idleTTL, kullanılmayan bir key'in limiter'ının ne kadar süre tutulacağı.
const idleTTL = 10 * time.Minute

// Limiter, K tipindeki key'ler için token-bucket rate limiter.
type Limiter[K comparable] struct {
	limit    rate.Limit
	burst    int
	limiters *cache.TTLCache[K, *rate.Limiter]
	now      func() time.Time
}

// New, her key için saniyede limit kadar token üreten ve burst kadar
// biriktirebilen bir limiter oluşturur.
func New[K comparable](limit rate.Limit, burst int) *Limiter[K] {
	return &Limiter[K]{
		limit:    limit,
		burst:    burst,
		limiters: cache.New[K, *rate.Limiter](idleTTL, time.Minute),
		now:      time.Now,
	}
}

// NewPerWindow, "window içinde max istek" tarzı bir limiter oluşturur.
// Örn: NewPerWindow[string](5, 2*time.Minute) → 2 dakikada 5 login denemesi.
func NewPerWindow[K comparable](max int, window time.Duration) *Limiter[K] {
	return New[K](rate.Every(window/time.Duration(max)), max)
}

func (l *Limiter[K]) get(key K) *rate.Limiter {
	return l.limiters.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
}

// Allow, key için bir token harcar. Token yoksa false ve
// bir sonraki token'a kadar beklenmesi gereken süreyi döner.
func (l *Limiter[K]) Allow(key K) (bool, time.Duration) {
	lim := l.get(key)
	now := l.now()

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	// Token ileri tarihli: rezervasyonu geri ver, istek reddedilir.
	r.CancelAt(now)
	return false, delay
}

// Reset, key'in bucket'ını sıfırlar (ör. başarılı login sonrası).
func (l *Limiter[K]) Reset(key K) {
	l.limiters.Delete(key)
}

// Close, arka plan temizleme goroutine'ini durdurur.
func (l *Limiter[K]) Close() {
	l.limiters.Close()
}

// RetryAfterSeconds, Retry-After header değeri için süreyi yukarı yuvarlar.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// ExtractIP, HTTP request'ten client IP adresini çıkarır.
//
// Öncelik sırası: X-Forwarded-For (ilk IP), X-Real-IP, RemoteAddr.
// Uygulama genellikle bir reverse proxy arkasında çalışır.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FormatRetryMessage, kalan süreyi okunabilir formata çevirir.
// Örn: 120 → "2 minute(s)", 45 → "45 second(s)"
func FormatRetryMessage(seconds int) string {
	if seconds >= 60 {
		return fmt.Sprintf("%d minute(s)", seconds/60)
	}
	return fmt.Sprintf("%d second(s)", seconds)
}
