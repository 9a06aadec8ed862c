package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/repository"
)

// Kullanıcı arama sınırları.
const (
	DefaultUserSearchLimit = 10
	MaxUserSearchLimit     = 50
)

// UserService, kullanıcı arama ve profil işlemleri.
type UserService interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// Search, nickname'e göre arar (baştaki @ yok sayılır). 2 karakterden kısa sorgu boş döner.
	Search(ctx context.Context, userID int64, query string, limit int) ([]models.UserSummary, error)
	UpdateProfile(ctx context.Context, userID int64, req *models.UpdateProfileRequest) (*models.User, error)
}

type userService struct {
	userRepo repository.UserRepository
	chatRepo repository.ChatRepository
	summary  SummaryService
	logger   *zap.Logger
}

// NewUserService, constructor.
func NewUserService(
	userRepo repository.UserRepository,
	chatRepo repository.ChatRepository,
	summary SummaryService,
	logger *zap.Logger,
) UserService {
	return &userService{
		userRepo: userRepo,
		chatRepo: chatRepo,
		summary:  summary,
		logger:   logger.Named("user"),
	}
}

func (s *userService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) Search(ctx context.Context, userID int64, query string, limit int) ([]models.UserSummary, error) {
	result := []models.UserSummary{}

	term := strings.TrimPrefix(strings.TrimSpace(query), "@")
	if utf8.RuneCountInString(term) < MinSearchLength {
		return result, nil
	}

	users, err := s.userRepo.SearchByNickname(ctx, term, userID, clamp(limit, DefaultUserSearchLimit, 1, MaxUserSearchLimit))
	if err != nil {
		return nil, err
	}

	for i := range users {
		result = append(result, users[i].Summary())
	}
	return result, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID int64, req *models.UpdateProfileRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = models.NullableString(*req.Name)
	}
	if req.LastName != nil {
		user.LastName = models.NullableString(*req.LastName)
	}
	if req.Nickname != nil {
		user.Nickname = *req.Nickname
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}

	// Sohbet özetleri üye isimlerini içerir; ortak sohbeti olan herkesin cache'i düşer.
	s.summary.Invalidate(ctx, s.peerIDs(ctx, userID)...)

	user.PasswordHash = ""
	return user, nil
}

func (s *userService) peerIDs(ctx context.Context, userID int64) []int64 {
	chatIDs, err := s.chatRepo.ChatIDsForUser(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to list chats for invalidation", zap.Int64("user_id", userID), zap.Error(err))
		return []int64{userID}
	}

	seen := map[int64]bool{userID: true}
	ids := []int64{userID}
	for _, chatID := range chatIDs {
		members, err := s.chatRepo.MemberIDs(ctx, chatID)
		if err != nil {
			s.logger.Warn("failed to list members for invalidation", zap.Int64("chat_id", chatID), zap.Error(err))
			continue
		}
		for _, id := range members {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
