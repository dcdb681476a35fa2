package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"chat-sync/internal/db"
	"chat-sync/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrSelfChat     = errors.New("cannot create chat with self")
)

const chatColumns = `id, type, user1_id, user2_id, space_id, title, public, last_message_id, max_seq, created_at`

// ChatRepository abstracts conversation lookups.
type ChatRepository interface {
	CreateOrGetDirect(ctx context.Context, q db.Queryer, userID int64, peerID int64) (models.Chat, error)
	GetDirect(ctx context.Context, q db.Queryer, userID int64, peerID int64) (models.Chat, error)
	GetChat(ctx context.Context, q db.Queryer, chatID int64) (models.Chat, error)
	CanViewThread(ctx context.Context, q db.Queryer, chatID int64, userID int64) (bool, error)
	ListVisibleThreads(ctx context.Context, q db.Queryer, userID int64, spaceID *int64) ([]models.Chat, error)
	AffectedUsers(ctx context.Context, q db.Queryer, chat models.Chat) ([]int64, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct{}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo() *ChatRepo {
	return &ChatRepo{}
}

// CreateOrGetDirect returns the direct chat between two users, creating it on first contact.
func (r *ChatRepo) CreateOrGetDirect(ctx context.Context, q db.Queryer, userID int64, peerID int64) (models.Chat, error) {
	if userID == peerID {
		return models.Chat{}, ErrSelfChat
	}
	user1, user2 := directPair(userID, peerID)

	if _, err := q.ExecContext(ctx, `INSERT INTO chats (type, user1_id, user2_id) VALUES ('direct', $1, $2)
        ON CONFLICT (user1_id, user2_id) DO NOTHING`, user1, user2); err != nil {
		return models.Chat{}, err
	}

	var chat models.Chat
	err := q.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	return chat, err
}

// GetDirect returns the existing direct chat between two users without creating it.
func (r *ChatRepo) GetDirect(ctx context.Context, q db.Queryer, userID int64, peerID int64) (models.Chat, error) {
	if userID == peerID {
		return models.Chat{}, ErrSelfChat
	}
	user1, user2 := directPair(userID, peerID)

	var chat models.Chat
	err := q.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// directPair orders a user pair the way direct chats are keyed.
func directPair(a, b int64) (int64, int64) {
	participants := []int64{a, b}
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })
	return participants[0], participants[1]
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, q db.Queryer, chatID int64) (models.Chat, error) {
	var chat models.Chat
	err := q.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// CanViewThread checks explicit participation or public visibility through space membership.
func (r *ChatRepo) CanViewThread(ctx context.Context, q db.Queryer, chatID int64, userID int64) (bool, error) {
	var visible bool
	err := q.GetContext(ctx, &visible, `SELECT
        EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)
        OR EXISTS(SELECT 1 FROM chats c INNER JOIN space_members sm ON sm.space_id = c.space_id
            WHERE c.id=$1 AND c.public = TRUE AND sm.user_id=$2)`, chatID, userID)
	return visible, err
}

// ListVisibleThreads returns public threads of the user's spaces and private threads they take part in.
func (r *ChatRepo) ListVisibleThreads(ctx context.Context, q db.Queryer, userID int64, spaceID *int64) ([]models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats c
        WHERE c.type = 'thread'
        AND (
            (c.public = TRUE AND c.space_id IN (SELECT space_id FROM space_members WHERE user_id=$1))
            OR c.id IN (SELECT chat_id FROM chat_participants WHERE user_id=$1)
        )
        AND ($2::BIGINT IS NULL OR c.space_id = $2)
        ORDER BY c.id`
	var chats []models.Chat
	err := q.SelectContext(ctx, &chats, query, userID, spaceID)
	return chats, err
}

// AffectedUsers lists everyone whose dialog list contains the chat.
func (r *ChatRepo) AffectedUsers(ctx context.Context, q db.Queryer, chat models.Chat) ([]int64, error) {
	if chat.Type == models.ChatTypeDirect {
		users := make([]int64, 0, 2)
		if chat.User1ID != nil {
			users = append(users, *chat.User1ID)
		}
		if chat.User2ID != nil {
			users = append(users, *chat.User2ID)
		}
		return users, nil
	}

	var users []int64
	err := q.SelectContext(ctx, &users, `SELECT user_id FROM chat_participants WHERE chat_id=$1
        UNION
        SELECT user_id FROM dialogs WHERE chat_id=$1
        ORDER BY user_id`, chat.ID)
	return users, err
}
