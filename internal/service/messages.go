package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"chat-sync/internal/db"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

// SendMessage stores a message with the chat's next sequence id. Dialogs of
// the sender and, for direct chats, the recipient are created on first message.
func (s *Service) SendMessage(ctx context.Context, userID int64, peer models.Peer, content string) (msg models.Message, err error) {
	ctx, span := startSpan(ctx, "service.SendMessage", userID)
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrInvalidArgument
	}

	err = s.tx.WithTx(ctx, func(q db.Queryer) error {
		chat, err := s.resolveChat(ctx, q, userID, peer)
		if err != nil {
			return err
		}
		msg, err = s.messages.AssignAndInsert(ctx, q, chat.ID, userID, content)
		if err != nil {
			return err
		}
		if err := s.dialogs.Ensure(ctx, q, userID, chat); err != nil {
			return err
		}
		if chat.Type == models.ChatTypeDirect {
			recipient := chat.PeerFor(userID).UserID
			if err := s.dialogs.Ensure(ctx, q, recipient, chat); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Message{}, classify(err)
	}
	return msg, nil
}

// DeleteMessages hard-deletes messages and records messagesDeleted in the
// bucket of every user who has the chat in their dialog list.
func (s *Service) DeleteMessages(ctx context.Context, userID int64, peer models.Peer, messageIDs []int64, originSession string) (result models.DeleteResult, err error) {
	ctx, span := startSpan(ctx, "service.DeleteMessages", userID)
	defer func() { endSpan(span, err) }()

	if len(messageIDs) == 0 {
		return models.DeleteResult{}, ErrInvalidArgument
	}

	out := s.fanout.Begin(originSession)
	err = s.tx.WithTx(ctx, func(q db.Queryer) error {
		out.Reset()
		chat, err := s.resolveChat(ctx, q, userID, peer)
		if err != nil {
			return err
		}
		result, err = s.messages.Delete(ctx, q, chat.ID, messageIDs)
		if err != nil {
			return err
		}
		users, err := s.chats.AffectedUsers(ctx, q, chat)
		if err != nil {
			return err
		}
		for _, affected := range users {
			update := models.MessagesDeleted{Peer: chat.PeerFor(affected), MessageIDs: result.Deleted}
			if err := out.Append(ctx, q, affected, update); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.DeleteResult{}, classify(err)
	}

	s.logger.Debug("messages deleted", zap.Int64("user_id", userID), zap.Int("count", len(result.Deleted)))
	out.Flush(ctx)
	return result, nil
}

// GetChatHistory pages backwards through the chat addressed by peer, newest
// first. offsetID = 0 starts at the newest message; otherwise only messages
// older than offsetID are returned. A direct chat that was never started has
// no history and is not created.
func (s *Service) GetChatHistory(ctx context.Context, userID int64, peer models.Peer, offsetID int64, limit int) (messages []models.Message, err error) {
	ctx, span := startSpan(ctx, "service.GetChatHistory", userID)
	defer func() { endSpan(span, err) }()

	if offsetID < 0 {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > s.pageLimit {
		limit = s.pageLimit
	}

	q := s.tx.Queryer()
	chat, err := s.findChat(ctx, q, userID, peer)
	if peer.IsUser() && errors.Is(err, repositories.ErrChatNotFound) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, classify(err)
	}

	messages, err = s.messages.History(ctx, q, chat.ID, offsetID, limit)
	if err != nil {
		return nil, classify(err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}
