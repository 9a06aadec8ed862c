// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// Her yerde ayrı ayrı os.Getenv() çağırmak yerine tek bir Config nesnesi taşınır.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/akinalp/relay/pkg/crypto"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Crypto    CryptoConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig, SQLite database ayarları.
type DatabaseConfig struct {
	Path string // SQLite dosya yolu (ör: ./data/relay.db)
}

// JWTConfig, JWT token ayarları.
type JWTConfig struct {
	Secret             string // Token imzalama anahtarı: GİZLİ TUTULMALI
	AccessTokenExpiry  int    // Dakika cinsinden (varsayılan: 15)
	RefreshTokenExpiry int    // Gün cinsinden (varsayılan: 7)
}

// CryptoConfig, mesaj gövdelerinin at-rest şifrelemesi.
type CryptoConfig struct {
	MessageKey string // 64 hex karakter (32 byte AES-256)
}

// RedisConfig, presence/typing/özet cache ve instance'lar arası event köprüsü.
// Addr boşsa Redis kullanılmaz; in-memory implementasyonlar devreye girer.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	OpTimeout time.Duration // presence/typing/cache çağrılarının üst sınırı
}

// Enabled, Redis yapılandırılmışsa true.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// KafkaConfig, event akışının Kafka'ya kopyalanması. Brokers boşsa kapalı.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled, en az bir broker tanımlıysa true.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// LogConfig, zap logger ayarları.
type LogConfig struct {
	Level       string
	Development bool
}

// RateLimitConfig, kullanıcı/IP bazlı limitler.
type RateLimitConfig struct {
	MessagesPerMinute int           // kullanıcı başına send + forward
	TypingPerMinute   int           // kullanıcı başına typing
	LoginAttempts     int           // IP başına pencere içinde deneme
	LoginWindow       time.Duration // login penceresi
}

// CORSConfig, izin verilen origin'ler. Boş liste veya "*" tümüne izin verir.
type CORSConfig struct {
	AllowedOrigins []string
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler; production'da gerçek env variable'lar kullanılır.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := getInt("SERVER_PORT", 9090)
	if err != nil {
		return nil, err
	}
	shutdown, err := getDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	accessExpiry, err := getInt("JWT_ACCESS_EXPIRY_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	refreshExpiry, err := getInt("JWT_REFRESH_EXPIRY_DAYS", 7)
	if err != nil {
		return nil, err
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	messageKey := getEnv("MESSAGE_ENCRYPTION_KEY", "")
	if _, err := crypto.DeriveKey(messageKey); err != nil {
		return nil, fmt.Errorf("invalid MESSAGE_ENCRYPTION_KEY: %w", err)
	}

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	opTimeout, err := getDuration("REDIS_OP_TIMEOUT", 250*time.Millisecond)
	if err != nil {
		return nil, err
	}

	messagesPerMinute, err := getInt("RATE_LIMIT_MESSAGES_PER_MINUTE", 60)
	if err != nil {
		return nil, err
	}
	typingPerMinute, err := getInt("RATE_LIMIT_TYPING_PER_MINUTE", 30)
	if err != nil {
		return nil, err
	}
	loginAttempts, err := getInt("RATE_LIMIT_LOGIN_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	loginWindow, err := getDuration("RATE_LIMIT_LOGIN_WINDOW", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	for key, v := range map[string]int{
		"RATE_LIMIT_MESSAGES_PER_MINUTE": messagesPerMinute,
		"RATE_LIMIT_TYPING_PER_MINUTE":   typingPerMinute,
		"RATE_LIMIT_LOGIN_ATTEMPTS":      loginAttempts,
	} {
		if v <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %d", key, v)
		}
	}
	if loginWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_LOGIN_WINDOW must be positive")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            port,
			ShutdownTimeout: shutdown,
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/relay.db"),
		},
		JWT: JWTConfig{
			Secret:             jwtSecret,
			AccessTokenExpiry:  accessExpiry,
			RefreshTokenExpiry: refreshExpiry,
		},
		Crypto: CryptoConfig{
			MessageKey: messageKey,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        redisDB,
			OpTimeout: opTimeout,
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "relay.events"),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("APP_ENV", "production") == "development",
		},
		RateLimit: RateLimitConfig{
			MessagesPerMinute: messagesPerMinute,
			TypingPerMinute:   typingPerMinute,
			LoginAttempts:     loginAttempts,
			LoginWindow:       loginWindow,
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		},
	}

	return cfg, nil
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:9090").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// getDuration, "250ms", "10s" gibi Go duration formatını okur.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// splitList, virgülle ayrılmış listeyi boşlukları temizleyerek böler.
func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
