package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/akinalp/relay/database"
	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg"
	"github.com/akinalp/relay/pkg/crypto"
	"github.com/akinalp/relay/repository"
	"github.com/akinalp/relay/ws"
)

// Sayfalama ve arama sınırları.
const (
	DefaultPerPage     = 10
	MaxPerPage         = 100
	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
	MinSearchLength    = 2
)

// MessageService, mesaj gönderme, iletme, silme ve listeleme iş kurallarını yönetir.
type MessageService interface {
	Send(ctx context.Context, chatID, userID int64, req *models.SendMessageRequest) (*models.Message, error)
	Forward(ctx context.Context, messageID, userID int64, req *models.ForwardMessageRequest) (*models.Message, error)
	// HideForUser, mesajı sadece bu kullanıcı için gizler.
	HideForUser(ctx context.Context, messageID, userID int64) error
	// DeleteForAll, mesajı herkes için siler. Sadece yazarı yapabilir; tekrar çağrı no-op.
	DeleteForAll(ctx context.Context, messageID, userID int64) error
	List(ctx context.Context, chatID, userID int64, page, perPage int) (*models.MessagePage, error)
	Search(ctx context.Context, chatID, userID int64, query string, limit int) ([]models.Message, error)
}

type messageService struct {
	db          *sql.DB
	codec       crypto.BodyCodec // tx-bound message repo için
	chatRepo    repository.ChatRepository
	messageRepo repository.MessageRepository
	summary     SummaryService
	hub         ws.Publisher
	now         func() time.Time
	logger      *zap.Logger
}

// NewMessageService, constructor.
func NewMessageService(
	db *sql.DB,
	codec crypto.BodyCodec,
	chatRepo repository.ChatRepository,
	messageRepo repository.MessageRepository,
	summary SummaryService,
	hub ws.Publisher,
	logger *zap.Logger,
) MessageService {
	return &messageService{
		db:          db,
		codec:       codec,
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		summary:     summary,
		hub:         hub,
		now:         time.Now,
		logger:      logger.Named("message"),
	}
}

func (s *messageService) Send(ctx context.Context, chatID, userID int64, req *models.SendMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := assertMember(ctx, s.chatRepo, chatID, userID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ChatID:    chatID,
		UserID:    userID,
		Body:      req.Body,
		CreatedAt: s.now().UTC(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}

	return s.afterCreate(ctx, msg.ID)
}

func (s *messageService) Forward(ctx context.Context, messageID, userID int64, req *models.ForwardMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	source, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := assertMember(ctx, s.chatRepo, source.ChatID, userID); err != nil {
		return nil, err
	}
	if _, err := s.chatRepo.GetByID(ctx, req.ChatID); err != nil {
		return nil, err
	}
	if err := assertMember(ctx, s.chatRepo, req.ChatID, userID); err != nil {
		return nil, err
	}
	if source.IsDeletedForAll() {
		return nil, fmt.Errorf("%w: message %d", pkg.ErrMessageDeleted, messageID)
	}

	sourceChatID := source.ChatID
	sourceUserID := source.UserID
	sourceID := source.ID

	msg := &models.Message{
		ChatID:               req.ChatID,
		UserID:               userID,
		Body:                 source.Body,
		CreatedAt:            s.now().UTC(),
		ForwardFromMessageID: &sourceID,
		ForwardFromUserID:    &sourceUserID,
		ForwardFromChatID:    &sourceChatID,
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}

	return s.afterCreate(ctx, msg.ID)
}

// afterCreate, commit edilmiş yeni mesajı sender bilgisiyle yeniden okur,
// üyelerin özet cache'ini siler ve event'leri yayınlar:
//   - message.sent → chat.{id}
//   - chat.updated → diğer her üyenin user.{id} kanalı
func (s *messageService) afterCreate(ctx context.Context, messageID int64) (*models.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	chat, err := s.chatRepo.GetWithMembers(ctx, msg.ChatID)
	if err != nil {
		return nil, err
	}

	s.summary.Invalidate(ctx, chat.MemberIDs()...)

	connID := ws.ConnIDFromContext(ctx)
	s.hub.Publish(ws.ChatChannel(msg.ChatID), ws.EventMessageSent, ws.MessageSentPayload{Message: msg}, connID)

	update := ws.ChatUpdatedPayload{Chat: chatRef(chat), LastMessage: msg}
	for _, member := range chat.Users {
		if member.ID == msg.UserID {
			continue
		}
		s.hub.Publish(ws.UserChannel(member.ID), ws.EventChatUpdated, update, connID)
	}

	return msg, nil
}

func (s *messageService) HideForUser(ctx context.Context, messageID, userID int64) error {
	var chatID int64

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		messages := repository.NewSQLiteMessageRepo(tx, s.codec)
		chats := repository.NewSQLiteChatRepo(tx)

		msg, err := messages.GetByID(ctx, messageID)
		if err != nil {
			return err
		}
		if err := assertMember(ctx, chats, msg.ChatID, userID); err != nil {
			return err
		}

		chatID = msg.ChatID
		return messages.HideForUser(ctx, messageID, userID, s.now().UTC())
	})
	if err != nil {
		return err
	}

	s.invalidateChat(ctx, chatID)
	return nil
}

func (s *messageService) DeleteForAll(ctx context.Context, messageID, userID int64) error {
	var chatID int64
	var changed bool

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		messages := repository.NewSQLiteMessageRepo(tx, s.codec)
		chats := repository.NewSQLiteChatRepo(tx)

		msg, err := messages.GetByID(ctx, messageID)
		if err != nil {
			return err
		}
		if err := assertMember(ctx, chats, msg.ChatID, userID); err != nil {
			return err
		}
		if msg.UserID != userID {
			return fmt.Errorf("%w: only the author can delete this message for everyone", pkg.ErrForbidden)
		}

		chatID = msg.ChatID
		changed, err = messages.MarkDeletedForAll(ctx, messageID, s.now().UTC())
		return err
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.invalidateChat(ctx, chatID)
	s.hub.Publish(ws.ChatChannel(chatID), ws.EventMessageDeleted, ws.MessageDeletedPayload{
		ChatID:    chatID,
		MessageID: messageID,
		Scope:     ws.DeleteScopeAll,
	}, ws.ConnIDFromContext(ctx))

	return nil
}

func (s *messageService) invalidateChat(ctx context.Context, chatID int64) {
	memberIDs, err := s.chatRepo.MemberIDs(ctx, chatID)
	if err != nil {
		s.logger.Warn("failed to list members for invalidation", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	s.summary.Invalidate(ctx, memberIDs...)
}

func (s *messageService) List(ctx context.Context, chatID, userID int64, page, perPage int) (*models.MessagePage, error) {
	if err := assertMember(ctx, s.chatRepo, chatID, userID); err != nil {
		return nil, err
	}

	perPage = clamp(perPage, DefaultPerPage, 1, MaxPerPage)
	page = max(page, 1)

	total, err := s.messageRepo.CountVisible(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	result := &models.MessagePage{
		Data:        []models.Message{},
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    max(1, (total+perPage-1)/perPage),
	}
	// Son sayfanın ötesi boş döner; offset de bu sayede taşmaz.
	if page > result.LastPage {
		return result, nil
	}

	messages, err := s.messageRepo.ListVisible(ctx, chatID, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}

	members, err := s.chatRepo.ListMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}
	annotateRead(messages, userID, members)

	result.Data = messages
	return result, nil
}

func (s *messageService) Search(ctx context.Context, chatID, userID int64, query string, limit int) ([]models.Message, error) {
	term := strings.TrimSpace(query)
	if utf8.RuneCountInString(term) < MinSearchLength {
		return nil, pkg.NewValidationError("query", fmt.Sprintf("query must be at least %d characters", MinSearchLength))
	}
	if err := assertMember(ctx, s.chatRepo, chatID, userID); err != nil {
		return nil, err
	}

	limit = clamp(limit, DefaultSearchLimit, 1, MaxSearchLimit)

	messages, err := s.messageRepo.SearchVisible(ctx, chatID, userID, term, limit)
	if err != nil {
		return nil, err
	}

	members, err := s.chatRepo.ListMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}
	annotateRead(messages, userID, members)

	return messages, nil
}

// annotateRead, okundu bayrağını hesaplar. Sadece viewer'ın kendi mesajları
// true olabilir: diğer her üyenin imleci mesaj ID'sine ulaşmış VE o üyenin
// sohbetteki last_seen_at'i mesajın oluşturulma zamanından sonra olmalıdır.
func annotateRead(messages []models.Message, viewerID int64, members []models.ChatMember) {
	for i := range messages {
		m := &messages[i]
		m.Read = false
		if m.UserID != viewerID {
			continue
		}

		others := 0
		read := true
		for _, p := range members {
			if p.ID == viewerID {
				continue
			}
			others++
			if p.LastReadMessageID == nil || *p.LastReadMessageID < m.ID ||
				p.ChatLastSeenAt == nil || p.ChatLastSeenAt.Before(m.CreatedAt) {
				read = false
				break
			}
		}
		m.Read = read && others > 0
	}
}
