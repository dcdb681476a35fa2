package service

import (
	"context"

	"chat-sync/internal/db"
	"chat-sync/internal/models"
)

// ReadMessages moves the viewer's read position forward. A nil maxID means
// "everything so far" and resolves to the chat's last message. Stale values
// never move the position back.
func (s *Service) ReadMessages(ctx context.Context, userID int64, peer models.Peer, maxID *int64, originSession string) (outcome models.ReadOutcome, err error) {
	ctx, span := startSpan(ctx, "service.ReadMessages", userID)
	defer func() { endSpan(span, err) }()

	out := s.fanout.Begin(originSession)
	err = s.tx.WithTx(ctx, func(q db.Queryer) error {
		out.Reset()
		chat, err := s.resolveChat(ctx, q, userID, peer)
		if err != nil {
			return err
		}

		requested := maxID
		if requested == nil {
			requested, err = s.messages.LastMessageID(ctx, q, chat.ID)
			if err != nil {
				return err
			}
		}

		result, err := s.dialogs.AdvanceRead(ctx, q, userID, chat, requested)
		if err != nil {
			return err
		}
		unread, err := s.unread.Count(ctx, q, chat.ID, result.EffectiveMaxID)
		if err != nil {
			return err
		}
		outcome = models.ReadOutcome{
			ReadMaxID:   result.EffectiveMaxID,
			UnreadCount: unread,
			Advanced:    result.Advanced,
			MarkCleared: result.MarkCleared,
		}

		viewerPeer := chat.PeerFor(userID)
		switch {
		case result.Advanced:
			return out.Append(ctx, q, userID, models.ReadMaxAdvanced{
				Peer:        viewerPeer,
				ReadMaxID:   result.EffectiveMaxID,
				UnreadCount: unread,
			})
		case result.MarkCleared:
			return out.Append(ctx, q, userID, models.UnreadMarkCleared{Peer: viewerPeer})
		default:
			return nil
		}
	})
	if err != nil {
		return models.ReadOutcome{}, classify(err)
	}

	out.Flush(ctx)
	return outcome, nil
}

// UpdateDialog applies pin, archive and draft changes. Only an actual archive
// flip is recorded and pushed; pin and draft stay local to the dialog row.
func (s *Service) UpdateDialog(ctx context.Context, userID int64, peer models.Peer, patch models.DialogPatch, originSession string) (dialog models.Dialog, err error) {
	ctx, span := startSpan(ctx, "service.UpdateDialog", userID)
	defer func() { endSpan(span, err) }()

	out := s.fanout.Begin(originSession)
	err = s.tx.WithTx(ctx, func(q db.Queryer) error {
		out.Reset()
		chat, err := s.resolveChat(ctx, q, userID, peer)
		if err != nil {
			return err
		}
		var flipped bool
		dialog, flipped, err = s.dialogs.Upsert(ctx, q, userID, chat, patch)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}
		return out.Append(ctx, q, userID, models.DialogArchived{
			Peer:     chat.PeerFor(userID),
			Archived: dialog.Archived,
		})
	})
	if err != nil {
		return models.Dialog{}, classify(err)
	}

	out.Flush(ctx)
	return dialog, nil
}

// MarkAsUnread flags the dialog as unread for the viewer. Only an actual flip
// is recorded and pushed. The next read clears the flag.
func (s *Service) MarkAsUnread(ctx context.Context, userID int64, peer models.Peer, originSession string) (flipped bool, err error) {
	ctx, span := startSpan(ctx, "service.MarkAsUnread", userID)
	defer func() { endSpan(span, err) }()

	out := s.fanout.Begin(originSession)
	err = s.tx.WithTx(ctx, func(q db.Queryer) error {
		out.Reset()
		chat, err := s.resolveChat(ctx, q, userID, peer)
		if err != nil {
			return err
		}
		flipped, err = s.dialogs.SetUnreadMark(ctx, q, userID, chat)
		if err != nil || !flipped {
			return err
		}
		return out.Append(ctx, q, userID, models.UnreadMarkSet{Peer: chat.PeerFor(userID)})
	})
	if err != nil {
		return false, classify(err)
	}

	out.Flush(ctx)
	return flipped, nil
}

// ListDialogs returns the viewer's dialogs. Public threads the viewer can see
// get a default dialog the first time they are listed; this is bootstrap and
// emits nothing.
func (s *Service) ListDialogs(ctx context.Context, userID int64, spaceID *int64) (views []models.DialogView, err error) {
	ctx, span := startSpan(ctx, "service.ListDialogs", userID)
	defer func() { endSpan(span, err) }()

	err = s.tx.WithTx(ctx, func(q db.Queryer) error {
		if spaceID != nil {
			member, err := s.spaces.IsMember(ctx, q, *spaceID, userID)
			if err != nil {
				return err
			}
			if !member {
				return ErrNotFound
			}
		}

		threads, err := s.chats.ListVisibleThreads(ctx, q, userID, spaceID)
		if err != nil {
			return err
		}
		for _, thread := range threads {
			if err := s.dialogs.Ensure(ctx, q, userID, thread); err != nil {
				return err
			}
		}

		rows, err := s.dialogs.ListForUser(ctx, q, userID, spaceID)
		if err != nil {
			return err
		}

		seen := make(map[int64]struct{}, len(rows))
		views = make([]models.DialogView, 0, len(rows))
		for _, row := range rows {
			if _, dup := seen[row.ChatID]; dup {
				continue
			}
			seen[row.ChatID] = struct{}{}

			chat := row.ChatOf()
			unread, err := s.unread.Count(ctx, q, chat.ID, row.ReadInboxMaxID)
			if err != nil {
				return err
			}
			views = append(views, models.DialogView{
				Dialog:      row.Dialog,
				Peer:        chat.PeerFor(userID),
				Chat:        chat,
				LastMessage: row.LastMessageOf(),
				UnreadCount: unread,
			})
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return views, nil
}
