// Package models, uygulamanın domain modellerini (veri yapıları) tanımlar.
//
// JSON tag'leri API response'larını ve WebSocket event payload'larını belirler.
// Request struct'ları kendi Validate() metoduyla gelir; hatalar alan bazlı
// *pkg.ValidationError olarak döner (HTTP 422).
package models

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/akinalp/relay/pkg"
)

// User, bir kullanıcıyı temsil eder.
type User struct {
	ID           int64      `json:"id"`
	Nickname     string     `json:"nickname"`
	Name         *string    `json:"name"`      // *string = nullable
	LastName     *string    `json:"last_name"` // *string = nullable
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // API response'a DAHİL EDİLMEZ
	LastSeenAt   *time.Time `json:"last_seen_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DisplayLabel, typing göstergesi gibi yerlerde kullanılan okunabilir isim.
// Öncelik: "ad soyad" → ad → nickname → email.
func (u *User) DisplayLabel() string {
	name := deref(u.Name)
	last := deref(u.LastName)

	switch {
	case name != "" && last != "":
		return name + " " + last
	case name != "":
		return name
	case u.Nickname != "":
		return u.Nickname
	default:
		return u.Email
	}
}

// Summary, kullanıcının event/arama çıktılarında kullanılan kısa hali.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Nickname: u.Nickname,
		Name:     u.Name,
		Email:    u.Email,
	}
}

// UserSummary, arama sonuçlarında ve mesaj sender alanında döner.
type UserSummary struct {
	ID       int64   `json:"id"`
	Nickname string  `json:"nickname"`
	Name     *string `json:"name"`
	Email    string  `json:"email"`
}

var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// ValidateNickname, nickname kurallarını kontrol eder: 3-64 karakter, [A-Za-z0-9_.-].
func ValidateNickname(nickname string) string {
	n := utf8.RuneCountInString(nickname)
	switch {
	case nickname == "":
		return "nickname is required"
	case n < 3 || n > 64:
		return "nickname must be between 3 and 64 characters"
	case !nicknamePattern.MatchString(nickname):
		return "nickname can only contain letters, numbers, dots, dashes and underscores"
	}
	return ""
}

// RegisterRequest, kayıt olurken client'tan gelen veri.
type RegisterRequest struct {
	Nickname             string `json:"nickname"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Name                 string `json:"name"`
	LastName             string `json:"last_name"`
}

// Validate, alanları normalize eder (trim) ve kuralları kontrol eder.
func (r *RegisterRequest) Validate() error {
	verr := &pkg.ValidationError{}

	r.Nickname = strings.TrimSpace(r.Nickname)
	if msg := ValidateNickname(r.Nickname); msg != "" {
		verr.Add("nickname", msg)
	}

	r.Email = strings.TrimSpace(r.Email)
	if r.Email == "" {
		verr.Add("email", "email is required")
	} else if _, err := mail.ParseAddress(r.Email); err != nil || utf8.RuneCountInString(r.Email) > 255 {
		verr.Add("email", "email must be a valid address")
	}

	if utf8.RuneCountInString(r.Password) < 8 {
		verr.Add("password", "password must be at least 8 characters")
	} else if r.Password != r.PasswordConfirmation {
		verr.Add("password", "password confirmation does not match")
	}

	r.Name = strings.TrimSpace(r.Name)
	if utf8.RuneCountInString(r.Name) > 255 {
		verr.Add("name", "name must be at most 255 characters")
	}
	r.LastName = strings.TrimSpace(r.LastName)
	if utf8.RuneCountInString(r.LastName) > 255 {
		verr.Add("last_name", "last name must be at most 255 characters")
	}

	return verr.OrNil()
}

// LoginRequest, giriş yaparken client'tan gelen veri. Giriş nickname ile yapılır.
type LoginRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

// Validate, LoginRequest'in geçerli olup olmadığını kontrol eder.
func (r *LoginRequest) Validate() error {
	verr := &pkg.ValidationError{}
	r.Nickname = strings.TrimSpace(r.Nickname)
	if r.Nickname == "" {
		verr.Add("nickname", "nickname is required")
	}
	if r.Password == "" {
		verr.Add("password", "password is required")
	}
	return verr.OrNil()
}

// UpdateProfileRequest, profil güncellemesi. nil alanlar değişmez,
// boş string ise ad/soyad alanını temizler.
type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	LastName *string `json:"last_name"`
	Nickname *string `json:"nickname"`
}

// Validate, gönderilen alanları kontrol eder.
func (r *UpdateProfileRequest) Validate() error {
	verr := &pkg.ValidationError{}

	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		r.Name = &trimmed
		if utf8.RuneCountInString(trimmed) > 255 {
			verr.Add("name", "name must be at most 255 characters")
		}
	}
	if r.LastName != nil {
		trimmed := strings.TrimSpace(*r.LastName)
		r.LastName = &trimmed
		if utf8.RuneCountInString(trimmed) > 255 {
			verr.Add("last_name", "last name must be at most 255 characters")
		}
	}
	if r.Nickname != nil {
		trimmed := strings.TrimSpace(*r.Nickname)
		r.Nickname = &trimmed
		if msg := ValidateNickname(trimmed); msg != "" {
			verr.Add("nickname", msg)
		}
	}

	return verr.OrNil()
}

// NullableString, boş string'i nil'e çevirir (DB'de NULL saklamak için).
func NullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
