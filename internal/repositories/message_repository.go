package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/lib/pq"

	"chat-sync/internal/db"
	"chat-sync/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository owns message rows and the per-chat sequence counter.
type MessageRepository interface {
	AssignAndInsert(ctx context.Context, q db.Queryer, chatID int64, senderID int64, content string) (models.Message, error)
	Delete(ctx context.Context, q db.Queryer, chatID int64, messageIDs []int64) (models.DeleteResult, error)
	LastMessageID(ctx context.Context, q db.Queryer, chatID int64) (*int64, error)
	CountAfter(ctx context.Context, q db.Queryer, chatID int64, afterID int64) (int, error)
	History(ctx context.Context, q db.Queryer, chatID int64, beforeID int64, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct{}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo() *MessageRepo {
	return &MessageRepo{}
}

// AssignAndInsert numbers and stores a message. The UPDATE takes the chat row
// lock, so concurrent senders on the same chat queue behind each other until
// the surrounding transaction ends; max_seq never moves backwards, so an id is
// never handed out twice even after deletes.
func (r *MessageRepo) AssignAndInsert(ctx context.Context, q db.Queryer, chatID int64, senderID int64, content string) (models.Message, error) {
	var seq int64
	err := q.GetContext(ctx, &seq, `UPDATE chats SET max_seq = max_seq + 1, last_message_id = max_seq + 1
        WHERE id=$1 RETURNING max_seq`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrChatNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	err = q.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, message_id, sender_id, content) VALUES ($1, $2, $3, $4)
        RETURNING chat_id, message_id, sender_id, content, created_at`, chatID, seq, senderID, content).
		Scan(&msg.ChatID, &msg.ID, &msg.SenderID, &msg.Content, &msg.CreatedAt)
	return msg, err
}

// Delete hard-deletes messages and recomputes last_message_id when the last one goes.
func (r *MessageRepo) Delete(ctx context.Context, q db.Queryer, chatID int64, messageIDs []int64) (models.DeleteResult, error) {
	var last sql.NullInt64
	err := q.GetContext(ctx, &last, `SELECT last_message_id FROM chats WHERE id=$1 FOR UPDATE`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DeleteResult{}, ErrChatNotFound
	}
	if err != nil {
		return models.DeleteResult{}, err
	}

	var deleted []int64
	if err := q.SelectContext(ctx, &deleted, `DELETE FROM messages WHERE chat_id=$1 AND message_id = ANY($2)
        RETURNING message_id`, chatID, pq.Array(messageIDs)); err != nil {
		return models.DeleteResult{}, err
	}
	if len(deleted) == 0 {
		return models.DeleteResult{}, ErrMessageNotFound
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i] < deleted[j] })

	result := models.DeleteResult{Deleted: deleted}
	if last.Valid {
		current := last.Int64
		result.LastMessageID = &current
	}
	if !last.Valid || !containsID(deleted, last.Int64) {
		return result, nil
	}

	var recomputed sql.NullInt64
	if err := q.GetContext(ctx, &recomputed, `UPDATE chats
        SET last_message_id = (SELECT MAX(message_id) FROM messages WHERE chat_id=$1)
        WHERE id=$1 RETURNING last_message_id`, chatID); err != nil {
		return models.DeleteResult{}, err
	}
	result.LastMessageID = nil
	if recomputed.Valid {
		id := recomputed.Int64
		result.LastMessageID = &id
	}
	return result, nil
}

// LastMessageID returns the newest surviving message id, nil for an empty chat.
func (r *MessageRepo) LastMessageID(ctx context.Context, q db.Queryer, chatID int64) (*int64, error) {
	var last sql.NullInt64
	err := q.GetContext(ctx, &last, `SELECT last_message_id FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil || !last.Valid {
		return nil, err
	}
	id := last.Int64
	return &id, nil
}

// CountAfter counts messages with an id above afterID. Served by the (chat_id, message_id) primary key.
func (r *MessageRepo) CountAfter(ctx context.Context, q db.Queryer, chatID int64, afterID int64) (int, error) {
	var count int
	err := q.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE chat_id=$1 AND message_id > $2`, chatID, afterID)
	return count, err
}

// History pages backwards through a chat, newest first. beforeID = 0 starts at
// the newest message; otherwise only ids below beforeID are returned.
func (r *MessageRepo) History(ctx context.Context, q db.Queryer, chatID int64, beforeID int64, limit int) ([]models.Message, error) {
	messages := []models.Message{}
	err := q.SelectContext(ctx, &messages, `SELECT chat_id, message_id, sender_id, content, created_at FROM messages
        WHERE chat_id=$1 AND ($2 = 0 OR message_id < $2)
        ORDER BY message_id DESC LIMIT $3`, chatID, beforeID, limit)
	return messages, err
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
