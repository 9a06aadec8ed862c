package services

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/relay/kv"
	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/repository"
)

// SummaryService, kullanıcının sohbet listesini (son mesaj + okunmamış sayısı)
// cache-through olarak sunar.
//
// Cache'e presence'sız hali yazılır; online bilgisi her okumada yeniden eklenir.
// Mesaj, okundu, silme, üyelik gibi her değişiklikten SONRA (commit sonrası)
// etkilenen sohbetin TÜM üyeleri için Invalidate çağrılmalıdır.
type SummaryService interface {
	GetChatsWithUnread(ctx context.Context, userID int64) ([]models.ChatSummary, error)
	Invalidate(ctx context.Context, userIDs ...int64)
}

type summaryService struct {
	chatRepo    repository.ChatRepository
	messageRepo repository.MessageRepository
	cache       kv.SummaryCache
	presence    PresenceService
	opTimeout   time.Duration
	logger      *zap.Logger

	// generations: userID → Invalidate sayacı. compute'tan önce okunan değer
	// Set anında değişmişse sonuç cache'e yazılmaz; arada commit olmuştur.
	genMu       sync.Mutex
	generations map[int64]uint64
}

// NewSummaryService, constructor.
func NewSummaryService(
	chatRepo repository.ChatRepository,
	messageRepo repository.MessageRepository,
	cache kv.SummaryCache,
	presence PresenceService,
	opTimeout time.Duration,
	logger *zap.Logger,
) SummaryService {
	return &summaryService{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		cache:       cache,
		presence:    presence,
		opTimeout:   opTimeout,
		logger:      logger.Named("summary"),
		generations: make(map[int64]uint64),
	}
}

func (s *summaryService) GetChatsWithUnread(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	if cached, ok := s.fromCache(ctx, userID); ok {
		s.annotate(ctx, cached)
		return cached, nil
	}

	gen := s.generation(userID)

	summaries, err := s.compute(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.generation(userID) == gen {
		kctx, cancel := ephemeral(ctx, s.opTimeout)
		if err := s.cache.Set(kctx, userID, summaries); err != nil {
			s.logger.Warn("failed to cache chat summaries", zap.Int64("user_id", userID), zap.Error(err))
		}
		cancel()
	}

	s.annotate(ctx, summaries)
	return summaries, nil
}

func (s *summaryService) fromCache(ctx context.Context, userID int64) ([]models.ChatSummary, bool) {
	kctx, cancel := ephemeral(ctx, s.opTimeout)
	defer cancel()

	cached, ok, err := s.cache.Get(kctx, userID)
	if err != nil {
		s.logger.Warn("failed to read chat summaries", zap.Int64("user_id", userID), zap.Error(err))
		return nil, false
	}
	return cached, ok
}

func (s *summaryService) compute(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	chats, err := s.chatRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		var cursor *int64
		for _, m := range chat.Users {
			if m.ID == userID {
				cursor = m.LastReadMessageID
				break
			}
		}

		last, err := s.messageRepo.LastVisible(ctx, chat.ID, userID)
		if err != nil {
			return nil, err
		}

		unread, err := s.messageRepo.CountUnread(ctx, chat.ID, userID, cursor)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, models.ChatSummary{
			Chat:        chat,
			LastMessage: last,
			UnreadCount: unread,
		})
	}

	sortByActivity(summaries)
	return summaries, nil
}

// sortByActivity, sohbetleri son aktiviteye göre (yeni → eski) sıralar.
// Mesajı olmayan sohbette aktivite zamanı sohbetin oluşturulma zamanıdır.
func sortByActivity(summaries []models.ChatSummary) {
	activity := func(s models.ChatSummary) time.Time {
		if s.LastMessage != nil {
			return s.LastMessage.CreatedAt
		}
		return s.Chat.CreatedAt
	}

	slices.SortStableFunc(summaries, func(a, b models.ChatSummary) int {
		if c := activity(b).Compare(activity(a)); c != 0 {
			return c
		}
		return cmp.Compare(b.Chat.ID, a.Chat.ID)
	})
}

func (s *summaryService) annotate(ctx context.Context, summaries []models.ChatSummary) {
	for i := range summaries {
		s.presence.Annotate(ctx, summaries[i].Chat.Users)
	}
}

func (s *summaryService) generation(userID int64) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

func (s *summaryService) Invalidate(ctx context.Context, userIDs ...int64) {
	if len(userIDs) == 0 {
		return
	}

	s.genMu.Lock()
	for _, id := range userIDs {
		s.generations[id]++
	}
	s.genMu.Unlock()

	// Commit olmuş bir değişiklikten sonra çağrılır; istek iptal edilse de silinmeli.
	kctx, cancel := ephemeral(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()

	if err := s.cache.Invalidate(kctx, userIDs...); err != nil {
		s.logger.Warn("failed to invalidate chat summaries",
			zap.Int64s("user_ids", userIDs),
			zap.Error(err),
		)
	}
}
