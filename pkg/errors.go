// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Error karşılaştırması string yerine referans ile yapılır:
//
//	if errors.Is(err, pkg.ErrNotAMember) { ... }
package pkg

import (
	"errors"
	"sort"
	"strings"
)

// Domain-level error'lar.
// Service katmanı bunları döner (çoğunlukla fmt.Errorf("%w: ...") ile wrap edilmiş),
// handler katmanı Error() üzerinden HTTP status code'a map'ler.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotAMember      = errors.New("not a member of this chat")
	ErrAlreadyExists   = errors.New("already exists")
	ErrBadRequest      = errors.New("bad request")
	ErrValidation      = errors.New("validation failed")
	ErrMessageDeleted  = errors.New("message has been deleted")
	ErrTooManyRequests = errors.New("too many requests")
	ErrInternal        = errors.New("internal error")
)

// ValidationError, alan bazlı doğrulama hatalarını taşır.
// errors.Is(err, ErrValidation) true döner; response katmanı Fields'ı
// "errors" anahtarı altında client'a iletir.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError, tek alanlı bir ValidationError oluşturur.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add, bir alan hatası ekler. Aynı alan için ilk mesaj korunur.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// OrNil, hiç alan hatası yoksa nil döner: validate fonksiyonlarının sonunda kullanılır.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
