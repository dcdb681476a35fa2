package repositories

import (
	"context"
	"database/sql"
	"errors"

	"chat-sync/internal/db"
	"chat-sync/internal/models"
)

var ErrDialogNotFound = errors.New("dialog not found")

const dialogColumns = `user_id, chat_id, peer_user_id, pinned, archived, draft, read_inbox_max_id, unread_mark, created_at`

// DialogRepository owns per-user dialog state.
type DialogRepository interface {
	Ensure(ctx context.Context, q db.Queryer, userID int64, chat models.Chat) error
	Upsert(ctx context.Context, q db.Queryer, userID int64, chat models.Chat, patch models.DialogPatch) (models.Dialog, bool, error)
	AdvanceRead(ctx context.Context, q db.Queryer, userID int64, chat models.Chat, requestedMaxID *int64) (models.ReadResult, error)
	SetUnreadMark(ctx context.Context, q db.Queryer, userID int64, chat models.Chat) (bool, error)
	ListForUser(ctx context.Context, q db.Queryer, userID int64, spaceID *int64) ([]models.DialogRow, error)
}

// DialogRepo is a sqlx implementation of DialogRepository.
type DialogRepo struct{}

// NewDialogRepo constructs a DialogRepo.
func NewDialogRepo() *DialogRepo {
	return &DialogRepo{}
}

// Ensure creates the dialog with defaults if it does not exist yet. Re-running is a no-op.
func (r *DialogRepo) Ensure(ctx context.Context, q db.Queryer, userID int64, chat models.Chat) error {
	var peerUserID *int64
	if peer := chat.PeerFor(userID); peer.IsUser() {
		peerUserID = &peer.UserID
	}
	_, err := q.ExecContext(ctx, `INSERT INTO dialogs (user_id, chat_id, peer_user_id) VALUES ($1, $2, $3)
        ON CONFLICT (user_id, chat_id) DO NOTHING`, userID, chat.ID, peerUserID)
	return err
}

// Upsert applies the provided fields and reports whether archived changed value.
func (r *DialogRepo) Upsert(ctx context.Context, q db.Queryer, userID int64, chat models.Chat, patch models.DialogPatch) (models.Dialog, bool, error) {
	dialog, err := r.lockDialog(ctx, q, userID, chat)
	if err != nil {
		return models.Dialog{}, false, err
	}

	flipped := patch.Apply(&dialog)
	if patch.Empty() {
		return dialog, false, nil
	}

	_, err = q.ExecContext(ctx, `UPDATE dialogs SET pinned=$3, archived=$4, draft=$5 WHERE user_id=$1 AND chat_id=$2`,
		userID, chat.ID, dialog.Pinned, dialog.Archived, dialog.Draft)
	if err != nil {
		return models.Dialog{}, false, err
	}
	return dialog, flipped, nil
}

// AdvanceRead moves read_inbox_max_id forward only and always clears the unread mark.
// A nil requestedMaxID leaves the read position untouched.
func (r *DialogRepo) AdvanceRead(ctx context.Context, q db.Queryer, userID int64, chat models.Chat, requestedMaxID *int64) (models.ReadResult, error) {
	dialog, err := r.lockDialog(ctx, q, userID, chat)
	if err != nil {
		return models.ReadResult{}, err
	}

	result := models.ReadResult{EffectiveMaxID: dialog.ReadInboxMaxID, MarkCleared: dialog.UnreadMark}
	if requestedMaxID != nil && *requestedMaxID > dialog.ReadInboxMaxID {
		result.EffectiveMaxID = *requestedMaxID
		result.Advanced = true
	}
	if !result.Advanced && !result.MarkCleared {
		return result, nil
	}

	_, err = q.ExecContext(ctx, `UPDATE dialogs SET read_inbox_max_id = GREATEST(read_inbox_max_id, $3), unread_mark = FALSE
        WHERE user_id=$1 AND chat_id=$2`, userID, chat.ID, result.EffectiveMaxID)
	if err != nil {
		return models.ReadResult{}, err
	}
	return result, nil
}

// SetUnreadMark flags the dialog as unread and reports whether the flag was off before.
func (r *DialogRepo) SetUnreadMark(ctx context.Context, q db.Queryer, userID int64, chat models.Chat) (bool, error) {
	dialog, err := r.lockDialog(ctx, q, userID, chat)
	if err != nil {
		return false, err
	}
	if dialog.UnreadMark {
		return false, nil
	}
	if _, err := q.ExecContext(ctx, `UPDATE dialogs SET unread_mark = TRUE WHERE user_id=$1 AND chat_id=$2`, userID, chat.ID); err != nil {
		return false, err
	}
	return true, nil
}

// ListForUser returns the user's dialogs joined with their chat and last message,
// pinned first then most recent activity.
func (r *DialogRepo) ListForUser(ctx context.Context, q db.Queryer, userID int64, spaceID *int64) ([]models.DialogRow, error) {
	query := `SELECT d.user_id, d.chat_id, d.peer_user_id, d.pinned, d.archived, d.draft, d.read_inbox_max_id, d.unread_mark, d.created_at,
            c.type AS chat_type, c.user1_id, c.user2_id, c.space_id, c.title, c.public, c.last_message_id,
            c.created_at AS chat_created_at,
            m.sender_id AS msg_sender_id, m.content AS msg_content, m.created_at AS msg_created_at
        FROM dialogs d
        INNER JOIN chats c ON c.id = d.chat_id
        LEFT JOIN messages m ON m.chat_id = c.id AND m.message_id = c.last_message_id
        WHERE d.user_id=$1 AND ($2::BIGINT IS NULL OR c.space_id = $2)
        ORDER BY d.pinned DESC, COALESCE(m.created_at, c.created_at) DESC, d.chat_id`
	var rows []models.DialogRow
	err := q.SelectContext(ctx, &rows, query, userID, spaceID)
	return rows, err
}

func (r *DialogRepo) lockDialog(ctx context.Context, q db.Queryer, userID int64, chat models.Chat) (models.Dialog, error) {
	if err := r.Ensure(ctx, q, userID, chat); err != nil {
		return models.Dialog{}, err
	}
	var dialog models.Dialog
	err := q.GetContext(ctx, &dialog, `SELECT `+dialogColumns+` FROM dialogs WHERE user_id=$1 AND chat_id=$2 FOR UPDATE`, userID, chat.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Dialog{}, ErrDialogNotFound
	}
	return dialog, err
}
