package services

import (
	"cmp"
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/relay/kv"
	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/repository"
	"github.com/akinalp/relay/ws"
)

// PresenceService, online durumu ve "yazıyor..." göstergesini yönetir.
//
// Presence ve typing verisi kv'de yaşar ve tavsiye niteliğindedir:
// kv erişilemezse veri yokmuş gibi davranılır, hata kullanıcıya dönmez.
type PresenceService interface {
	// Ping, presence işaretini yeniler, users.last_seen_at'i günceller ve
	// kullanıcının tüm sohbetlerine user.presence yayınlar.
	Ping(ctx context.Context, userID int64) (time.Time, error)
	// Typing, üyelik kontrolünden sonra typing kaydı ekler ve user.typing yayınlar.
	Typing(ctx context.Context, chatID, userID int64) error
	// TypingUsers, sohbette o an yazan kullanıcıları (exclude hariç) döner.
	TypingUsers(ctx context.Context, chatID, excludeUserID int64) []models.TypingUser
	// Annotate, üyelerin Online/LastSeenAt alanlarını presence verisiyle doldurur.
	Annotate(ctx context.Context, members []models.ChatMember)
}

type presenceService struct {
	userRepo  repository.UserRepository
	chatRepo  repository.ChatRepository
	presence  kv.PresenceTracker
	typing    kv.TypingTracker
	hub       ws.Publisher
	opTimeout time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewPresenceService, constructor. opTimeout kv çağrılarının üst sınırıdır.
func NewPresenceService(
	userRepo repository.UserRepository,
	chatRepo repository.ChatRepository,
	presence kv.PresenceTracker,
	typing kv.TypingTracker,
	hub ws.Publisher,
	opTimeout time.Duration,
	logger *zap.Logger,
) PresenceService {
	return &presenceService{
		userRepo:  userRepo,
		chatRepo:  chatRepo,
		presence:  presence,
		typing:    typing,
		hub:       hub,
		opTimeout: opTimeout,
		now:       time.Now,
		logger:    logger.Named("presence"),
	}
}

func (s *presenceService) Ping(ctx context.Context, userID int64) (time.Time, error) {
	now := s.now().UTC()

	s.touch(ctx, userID, now)

	if err := s.userRepo.UpdateLastSeen(ctx, userID, now); err != nil {
		return time.Time{}, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}

	chatIDs, err := s.chatRepo.ChatIDsForUser(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}

	connID := ws.ConnIDFromContext(ctx)
	for _, chatID := range chatIDs {
		s.hub.Publish(ws.ChatChannel(chatID), ws.EventUserPresence, ws.PresencePayload{
			ChatID:     chatID,
			User:       ws.EventUser{ID: user.ID, Name: nameOrEmail(user), Email: user.Email},
			LastSeenAt: now,
		}, connID)
	}

	return now, nil
}

func (s *presenceService) touch(ctx context.Context, userID int64, at time.Time) {
	kctx, cancel := ephemeral(ctx, s.opTimeout)
	defer cancel()

	if err := s.presence.Touch(kctx, userID, at); err != nil {
		s.logger.Warn("failed to touch presence", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *presenceService) Typing(ctx context.Context, chatID, userID int64) error {
	if err := assertMember(ctx, s.chatRepo, chatID, userID); err != nil {
		return err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	kctx, cancel := ephemeral(ctx, s.opTimeout)
	defer cancel()
	if err := s.typing.StartTyping(kctx, chatID, userID); err != nil {
		s.logger.Warn("failed to record typing",
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}

	s.hub.Publish(ws.ChatChannel(chatID), ws.EventUserTyping, ws.TypingPayload{
		User: ws.EventUser{ID: user.ID, Email: user.Email},
	}, ws.ConnIDFromContext(ctx))

	return nil
}

func (s *presenceService) TypingUsers(ctx context.Context, chatID, excludeUserID int64) []models.TypingUser {
	result := []models.TypingUser{}

	kctx, cancel := ephemeral(ctx, s.opTimeout)
	ids, err := s.typing.TypingUserIDs(kctx, chatID)
	cancel()
	if err != nil {
		s.logger.Warn("failed to read typing users", zap.Int64("chat_id", chatID), zap.Error(err))
		return result
	}

	ids = slices.DeleteFunc(ids, func(id int64) bool { return id == excludeUserID || id <= 0 })
	if len(ids) == 0 {
		return result
	}

	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load typing users", zap.Int64("chat_id", chatID), zap.Error(err))
		return result
	}

	for i := range users {
		result = append(result, models.TypingUser{ID: users[i].ID, Label: users[i].DisplayLabel()})
	}
	slices.SortFunc(result, func(a, b models.TypingUser) int { return cmp.Compare(a.ID, b.ID) })
	return result
}

func (s *presenceService) Annotate(ctx context.Context, members []models.ChatMember) {
	if len(members) == 0 {
		return
	}

	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	kctx, cancel := ephemeral(ctx, s.opTimeout)
	defer cancel()

	online, err := s.presence.Online(kctx, ids)
	if err != nil {
		// users.last_seen_at olduğu gibi kalır.
		s.logger.Warn("failed to read presence", zap.Error(err))
		return
	}

	for i := range members {
		at, ok := online[members[i].ID]
		members[i].Online = ok
		if ok {
			members[i].LastSeenAt = &at
		}
	}
}
