package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/relay/database"
	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg"
	"github.com/akinalp/relay/repository"
	"github.com/akinalp/relay/ws"
)

// ChatService, sohbet oluşturma, üyelik ve okundu imleci iş kurallarını yönetir.
type ChatService interface {
	// CreatePrivate, iki kullanıcı arasındaki private sohbeti döner; yoksa oluşturur.
	// created=false ise sohbet zaten vardı.
	CreatePrivate(ctx context.Context, userID, otherID int64) (*models.ChatWithMembers, bool, error)
	CreateGroup(ctx context.Context, ownerID int64, req *models.CreateGroupChatRequest) (*models.ChatWithMembers, error)
	AddMemberByNickname(ctx context.Context, chatID, actorID int64, nickname string) (*models.ChatWithMembers, error)
	GetChat(ctx context.Context, chatID, userID int64) (*models.ChatDetail, error)
	DeleteChat(ctx context.Context, chatID, userID int64) error
	ListChats(ctx context.Context, userID int64) ([]models.ChatSummary, error)
	// MarkRead, messageID nil ise başkalarından gelen en yeni mesaja kadar okundu işaretler.
	MarkRead(ctx context.Context, chatID, userID int64, messageID *int64) error
	// CanSubscribe, WebSocket kanal aboneliği için yetki kontrolü (ws.Authorizer).
	CanSubscribe(ctx context.Context, userID int64, channel string) (bool, error)
}

type chatService struct {
	db          *sql.DB // CreatePrivate/CreateGroup atomik çalışır
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	messageRepo repository.MessageRepository
	summary     SummaryService
	presence    PresenceService
	hub         ws.Publisher
	revoker     ws.ChannelRevoker
	now         func() time.Time
	logger      *zap.Logger
}

// NewChatService, constructor.
//
// db: oluşturma işlemlerinde WithTx için gerekir; transaction içinde
// tx-bound repository'ler oluşturulur.
func NewChatService(
	db *sql.DB,
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	messageRepo repository.MessageRepository,
	summary SummaryService,
	presence PresenceService,
	hub ws.Publisher,
	revoker ws.ChannelRevoker,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		db:          db,
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		messageRepo: messageRepo,
		summary:     summary,
		presence:    presence,
		hub:         hub,
		revoker:     revoker,
		now:         time.Now,
		logger:      logger.Named("chat"),
	}
}

// CreatePrivate: private_chat_pairs tablosundaki UNIQUE(user_low, user_high)
// aynı çift için ikinci bir sohbeti engeller. Transaction'lar IMMEDIATE açıldığı
// için lookup ve insert yazıcılar arasında sıralanır; yine de kaybeden taraf
// ErrAlreadyExists alırsa kazananın sohbeti okunur.
func (s *chatService) CreatePrivate(ctx context.Context, userID, otherID int64) (*models.ChatWithMembers, bool, error) {
	if otherID == userID {
		return nil, false, pkg.NewValidationError("user_id", "cannot start a private chat with yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, otherID); err != nil {
		return nil, false, err
	}

	var chatID int64
	created := false
	now := s.now().UTC()

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		chats := repository.NewSQLiteChatRepo(tx)

		existing, err := chats.FindPrivateBetween(ctx, userID, otherID)
		if err == nil {
			chatID = existing.ID
			return nil
		}
		if !errors.Is(err, pkg.ErrNotFound) {
			return err
		}

		chat := &models.Chat{Type: models.ChatTypePrivate, CreatedAt: now}
		if err := chats.Create(ctx, chat); err != nil {
			return err
		}
		if err := chats.ReservePrivatePair(ctx, chat.ID, userID, otherID); err != nil {
			return err
		}
		for _, id := range []int64{userID, otherID} {
			if _, err := chats.AddMember(ctx, chat.ID, id, models.RoleMember, now); err != nil {
				return err
			}
		}

		chatID = chat.ID
		created = true
		return nil
	})

	if errors.Is(err, pkg.ErrAlreadyExists) {
		existing, findErr := s.chatRepo.FindPrivateBetween(ctx, userID, otherID)
		if findErr != nil {
			return nil, false, findErr
		}
		chatID, created, err = existing.ID, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create private chat: %w", err)
	}

	chat, err := s.chatRepo.GetWithMembers(ctx, chatID)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.summary.Invalidate(ctx, userID, otherID)
		s.logger.Info("private chat created",
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", userID),
			zap.Int64("other_id", otherID),
		)
	}

	return chat, created, nil
}

func (s *chatService) CreateGroup(ctx context.Context, ownerID int64, req *models.CreateGroupChatRequest) (*models.ChatWithMembers, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ids, err := s.userRepo.IDsByNicknames(ctx, req.Nicknames)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, pkg.NewValidationError("nicknames", "none of the given users were found")
	}

	// Owner ve tekrarlar listeden çıkarılır; owner ayrıca "owner" rolüyle eklenir.
	seen := map[int64]bool{ownerID: true}
	memberIDs := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 && !seen[id] {
			seen[id] = true
			memberIDs = append(memberIDs, id)
		}
	}

	now := s.now().UTC()
	title := req.Title
	chat := &models.Chat{Type: models.ChatTypeGroup, Title: &title, CreatedAt: now}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		chats := repository.NewSQLiteChatRepo(tx)

		if err := chats.Create(ctx, chat); err != nil {
			return err
		}
		if _, err := chats.AddMember(ctx, chat.ID, ownerID, models.RoleOwner, now); err != nil {
			return err
		}
		for _, id := range memberIDs {
			if _, err := chats.AddMember(ctx, chat.ID, id, models.RoleMember, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group chat: %w", err)
	}

	full, err := s.chatRepo.GetWithMembers(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	s.summary.Invalidate(ctx, full.MemberIDs()...)
	s.announce(ctx, full, nil, memberIDs...)

	s.logger.Info("group chat created",
		zap.Int64("chat_id", chat.ID),
		zap.Int64("owner_id", ownerID),
		zap.Int("members", len(full.Users)),
	)
	return full, nil
}

func (s *chatService) AddMemberByNickname(ctx context.Context, chatID, actorID int64, nickname string) (*models.ChatWithMembers, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := assertMember(ctx, s.chatRepo, chatID, actorID); err != nil {
		return nil, err
	}
	if chat.Type == models.ChatTypePrivate {
		return nil, fmt.Errorf("%w: cannot add members to a private chat", pkg.ErrForbidden)
	}

	target, err := s.userRepo.GetByNickname(ctx, nickname)
	if err != nil {
		return nil, err
	}

	added, err := s.chatRepo.AddMember(ctx, chatID, target.ID, models.RoleMember, s.now().UTC())
	if err != nil {
		return nil, err
	}

	full, err := s.chatRepo.GetWithMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if added {
		s.summary.Invalidate(ctx, full.MemberIDs()...)
		last, err := s.messageRepo.LastVisible(ctx, chatID, target.ID)
		if err != nil {
			s.logger.Warn("failed to load last message", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		s.announce(ctx, full, last, target.ID)
	}

	return full, nil
}

// announce, chat.updated event'ini verilen kullanıcıların user.{id} kanallarına yayınlar.
func (s *chatService) announce(ctx context.Context, chat *models.ChatWithMembers, last *models.Message, userIDs ...int64) {
	connID := ws.ConnIDFromContext(ctx)
	payload := ws.ChatUpdatedPayload{Chat: chatRef(chat), LastMessage: last}
	for _, id := range userIDs {
		s.hub.Publish(ws.UserChannel(id), ws.EventChatUpdated, payload, connID)
	}
}

func (s *chatService) GetChat(ctx context.Context, chatID, userID int64) (*models.ChatDetail, error) {
	chat, err := s.chatRepo.GetWithMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}

	member := false
	for _, u := range chat.Users {
		if u.ID == userID {
			member = true
			break
		}
	}
	if !member {
		return nil, fmt.Errorf("%w: chat %d", pkg.ErrNotAMember, chatID)
	}

	s.presence.Annotate(ctx, chat.Users)

	return &models.ChatDetail{
		ChatWithMembers: *chat,
		TypingUsers:     s.presence.TypingUsers(ctx, chatID, userID),
	}, nil
}

func (s *chatService) DeleteChat(ctx context.Context, chatID, userID int64) error {
	if _, err := s.chatRepo.GetByID(ctx, chatID); err != nil {
		return err
	}
	if err := assertMember(ctx, s.chatRepo, chatID, userID); err != nil {
		return err
	}

	memberIDs, err := s.chatRepo.MemberIDs(ctx, chatID)
	if err != nil {
		return err
	}

	if err := s.chatRepo.Delete(ctx, chatID); err != nil {
		return err
	}

	s.summary.Invalidate(ctx, memberIDs...)
	s.revoker.RevokeChannel(0, ws.ChatChannel(chatID))
	s.logger.Info("chat deleted", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID))
	return nil
}

func (s *chatService) ListChats(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	return s.summary.GetChatsWithUnread(ctx, userID)
}

func (s *chatService) MarkRead(ctx context.Context, chatID, userID int64, messageID *int64) error {
	if err := assertMember(ctx, s.chatRepo, chatID, userID); err != nil {
		return err
	}

	target, err := s.readTarget(ctx, chatID, userID, messageID)
	if err != nil {
		return err
	}
	if target == 0 {
		return nil
	}

	now := s.now().UTC()
	if err := s.chatRepo.UpdateReadCursor(ctx, chatID, userID, target, now); err != nil {
		return err
	}

	// İmleç MAX ile clamp'lendiği için yayınlanan değer DB'deki güncel değerdir.
	membership, err := s.chatRepo.GetMembership(ctx, chatID, userID)
	if err != nil {
		return err
	}
	cursor := target
	if membership.LastReadMessageID != nil {
		cursor = *membership.LastReadMessageID
	}

	memberIDs, err := s.chatRepo.MemberIDs(ctx, chatID)
	if err != nil {
		return err
	}
	s.summary.Invalidate(ctx, memberIDs...)

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	lastSeen := now
	if user.LastSeenAt != nil {
		lastSeen = *user.LastSeenAt
	}

	connID := ws.ConnIDFromContext(ctx)
	channel := ws.ChatChannel(chatID)
	s.hub.Publish(channel, ws.EventUserPresence, ws.PresencePayload{
		ChatID:     chatID,
		User:       ws.EventUser{ID: user.ID, Name: nameOrEmail(user), Email: user.Email},
		LastSeenAt: lastSeen,
	}, connID)
	s.hub.Publish(channel, ws.EventMessageRead, ws.MessageReadPayload{
		ChatID:            chatID,
		User:              ws.EventUser{ID: user.ID, Name: nameOrEmail(user)},
		LastReadMessageID: cursor,
	}, connID)

	return nil
}

// readTarget, okundu imlecinin taşınacağı mesaj ID'sini bulur. 0 = yapılacak bir şey yok.
// Belirtilen mesaj bu sohbete ait değilse ya da kullanıcının kendi mesajıysa yok sayılır.
func (s *chatService) readTarget(ctx context.Context, chatID, userID int64, messageID *int64) (int64, error) {
	if messageID == nil {
		return s.messageRepo.MaxIncomingID(ctx, chatID, userID)
	}

	msg, err := s.messageRepo.GetByID(ctx, *messageID)
	if errors.Is(err, pkg.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if msg.ChatID != chatID || msg.UserID == userID {
		return 0, nil
	}
	return msg.ID, nil
}

func (s *chatService) CanSubscribe(ctx context.Context, userID int64, channel string) (bool, error) {
	kind, id, err := ws.ParseChannel(channel)
	if err != nil {
		return false, nil
	}

	switch kind {
	case ws.ChannelUser:
		return id == userID, nil
	case ws.ChannelChat:
		return s.chatRepo.IsMember(ctx, id, userID)
	default:
		return false, nil
	}
}
