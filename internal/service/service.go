package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-sync/internal/db"
	"chat-sync/internal/fanout"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

var tracer = otel.Tracer("chat-sync/service")

// UnreadCounter derives a dialog's unread count.
type UnreadCounter interface {
	Count(ctx context.Context, q db.Queryer, chatID int64, readInboxMaxID int64) (int, error)
}

// Publisher hands updates to live sessions and buckets.
type Publisher interface {
	Begin(skipSession string) *fanout.Outbox
	PublishTransient(ctx context.Context, userID int64, update models.Update, skipSession string) error
}

// Deps are the collaborators of Service.
type Deps struct {
	Tx        db.TxRunner
	Chats     repositories.ChatRepository
	Spaces    repositories.SpaceRepository
	Messages  repositories.MessageRepository
	Dialogs   repositories.DialogRepository
	Updates   repositories.UpdateRepository
	Unread    UnreadCounter
	Fanout    Publisher
	PageLimit int
	Logger    *zap.Logger
}

// Service implements the dialog and message operations. Every state change
// and its bucket entries commit in one transaction; live pushes follow the
// commit and never fail the call.
type Service struct {
	tx        db.TxRunner
	chats     repositories.ChatRepository
	spaces    repositories.SpaceRepository
	messages  repositories.MessageRepository
	dialogs   repositories.DialogRepository
	updates   repositories.UpdateRepository
	unread    UnreadCounter
	fanout    Publisher
	pageLimit int
	logger    *zap.Logger
}

func New(deps Deps) *Service {
	limit := deps.PageLimit
	if limit <= 0 {
		limit = 500
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tx:        deps.Tx,
		chats:     deps.Chats,
		spaces:    deps.Spaces,
		messages:  deps.Messages,
		dialogs:   deps.Dialogs,
		updates:   deps.Updates,
		unread:    deps.Unread,
		fanout:    deps.Fanout,
		pageLimit: limit,
		logger:    logger.Named("service"),
	}
}

// resolveChat turns a viewer's peer into the chat it addresses. A user peer
// creates the direct chat on first contact.
func (s *Service) resolveChat(ctx context.Context, q db.Queryer, userID int64, peer models.Peer) (models.Chat, error) {
	return s.resolve(ctx, q, userID, peer, true)
}

// findChat is resolveChat without creating a missing direct chat.
func (s *Service) findChat(ctx context.Context, q db.Queryer, userID int64, peer models.Peer) (models.Chat, error) {
	return s.resolve(ctx, q, userID, peer, false)
}

func (s *Service) resolve(ctx context.Context, q db.Queryer, userID int64, peer models.Peer, create bool) (models.Chat, error) {
	if err := peer.Validate(); err != nil {
		return models.Chat{}, ErrInvalidPeer
	}

	if peer.IsUser() {
		if peer.UserID == userID {
			return models.Chat{}, ErrInvalidPeer
		}
		if create {
			return s.chats.CreateOrGetDirect(ctx, q, userID, peer.UserID)
		}
		return s.chats.GetDirect(ctx, q, userID, peer.UserID)
	}

	chat, err := s.chats.GetChat(ctx, q, peer.ThreadID)
	if err != nil {
		return models.Chat{}, err
	}
	if chat.Type != models.ChatTypeThread {
		return models.Chat{}, ErrInvalidPeer
	}
	visible, err := s.chats.CanViewThread(ctx, q, chat.ID, userID)
	if err != nil {
		return models.Chat{}, err
	}
	if !visible {
		return models.Chat{}, ErrNotFound
	}
	return chat, nil
}

func startSpan(ctx context.Context, name string, userID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("user_id", userID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
