package service

import (
	"context"

	"go.uber.org/zap"

	"chat-sync/internal/models"
)

// SendComposeAction tells the other members of the chat what userID is doing.
// Each recipient gets the event addressed by their own peer view of the chat.
// Compose actions are never stored.
func (s *Service) SendComposeAction(ctx context.Context, userID int64, peer models.Peer, action models.ComposeActionType) (err error) {
	ctx, span := startSpan(ctx, "service.SendComposeAction", userID)
	defer func() { endSpan(span, err) }()

	if !action.Valid() {
		return ErrInvalidArgument
	}

	q := s.tx.Queryer()
	chat, err := s.findChat(ctx, q, userID, peer)
	if err != nil {
		return classify(err)
	}
	recipients, err := s.chats.AffectedUsers(ctx, q, chat)
	if err != nil {
		return classify(err)
	}

	senderView := chat.PeerFor(userID)
	for _, recipient := range recipients {
		if recipient == userID {
			continue
		}
		update := models.ComposeAction{
			Peer:   models.PeerForRecipient(userID, senderView, recipient),
			UserID: userID,
			Action: action,
		}
		if err := s.fanout.PublishTransient(ctx, recipient, update, ""); err != nil {
			s.logger.Warn("compose action push failed", zap.Int64("recipient", recipient), zap.Error(err))
		}
	}
	return nil
}

// GetUpdates returns the user's bucket entries after afterSeq, at most limit
// of them. limit <= 0 or above the configured page size uses the page size.
func (s *Service) GetUpdates(ctx context.Context, userID, afterSeq int64, limit int) (page models.UpdatesPage, err error) {
	ctx, span := startSpan(ctx, "service.GetUpdates", userID)
	defer func() { endSpan(span, err) }()

	if afterSeq < 0 {
		afterSeq = 0
	}
	if limit <= 0 || limit > s.pageLimit {
		limit = s.pageLimit
	}

	entries, err := s.updates.ReadSince(ctx, s.tx.Queryer(), userID, afterSeq, limit+1)
	if err != nil {
		return models.UpdatesPage{}, classify(err)
	}

	page = models.UpdatesPage{Updates: entries, Cursor: afterSeq}
	if len(entries) > limit {
		page.Updates = entries[:limit]
		page.HasMore = true
	}
	if n := len(page.Updates); n > 0 {
		page.Cursor = page.Updates[n-1].Seq
	}
	if page.Updates == nil {
		page.Updates = []models.UpdateEntry{}
	}
	return page, nil
}

// GetUpdatesState returns the newest cursor of the user's bucket.
func (s *Service) GetUpdatesState(ctx context.Context, userID int64) (seq int64, err error) {
	ctx, span := startSpan(ctx, "service.GetUpdatesState", userID)
	defer func() { endSpan(span, err) }()

	seq, err = s.updates.CurrentSeq(ctx, s.tx.Queryer(), userID)
	if err != nil {
		return 0, classify(err)
	}
	return seq, nil
}
