package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chat-sync/internal/db"
	"chat-sync/internal/models"
)

var ErrTransientUpdate = errors.New("transient updates are not stored")

// UpdateRepository is the per-user append-only update bucket.
type UpdateRepository interface {
	Append(ctx context.Context, q db.Queryer, userID int64, update models.Update) (models.UpdateEntry, error)
	ReadSince(ctx context.Context, q db.Queryer, userID int64, afterSeq int64, limit int) ([]models.UpdateEntry, error)
	CurrentSeq(ctx context.Context, q db.Queryer, userID int64) (int64, error)
}

// UpdateRepo is a sqlx-backed bucket.
type UpdateRepo struct{}

// NewUpdateRepo constructs an UpdateRepo.
func NewUpdateRepo() *UpdateRepo {
	return &UpdateRepo{}
}

type updateRow struct {
	UserID    int64     `db:"user_id"`
	Seq       int64     `db:"seq"`
	Kind      string    `db:"kind"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// Append stores one durable update. The cursor row is locked until the
// caller's transaction ends, so one user's appends commit in cursor order and
// a reader never sees seq N+1 before seq N.
func (r *UpdateRepo) Append(ctx context.Context, q db.Queryer, userID int64, update models.Update) (models.UpdateEntry, error) {
	if !models.IsDurable(update) {
		return models.UpdateEntry{}, ErrTransientUpdate
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return models.UpdateEntry{}, fmt.Errorf("encode %s: %w", update.Kind(), err)
	}

	var seq int64
	if err := q.GetContext(ctx, &seq, `INSERT INTO user_update_cursors (user_id, last_seq) VALUES ($1, 1)
        ON CONFLICT (user_id) DO UPDATE SET last_seq = user_update_cursors.last_seq + 1
        RETURNING last_seq`, userID); err != nil {
		return models.UpdateEntry{}, err
	}

	entry := models.UpdateEntry{UserID: userID, Seq: seq, Update: update}
	if err := q.GetContext(ctx, &entry.CreatedAt, `INSERT INTO user_updates (user_id, seq, kind, payload) VALUES ($1, $2, $3, $4)
        RETURNING created_at`, userID, seq, string(update.Kind()), payload); err != nil {
		return models.UpdateEntry{}, err
	}
	return entry, nil
}

// ReadSince returns entries with seq > afterSeq in seq order. limit <= 0 means unbounded.
func (r *UpdateRepo) ReadSince(ctx context.Context, q db.Queryer, userID int64, afterSeq int64, limit int) ([]models.UpdateEntry, error) {
	query := `SELECT user_id, seq, kind, payload, created_at FROM user_updates WHERE user_id=$1 AND seq > $2 ORDER BY seq ASC`
	args := []interface{}{userID, afterSeq}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	var rows []updateRow
	if err := q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	entries := make([]models.UpdateEntry, 0, len(rows))
	for _, row := range rows {
		update, err := models.DecodeUpdate(models.UpdateKind(row.Kind), row.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode update %d/%d: %w", row.UserID, row.Seq, err)
		}
		entries = append(entries, models.UpdateEntry{UserID: row.UserID, Seq: row.Seq, Update: update, CreatedAt: row.CreatedAt})
	}
	return entries, nil
}

// CurrentSeq returns the user's newest cursor, 0 when nothing was appended yet.
func (r *UpdateRepo) CurrentSeq(ctx context.Context, q db.Queryer, userID int64) (int64, error) {
	var seq int64
	err := q.GetContext(ctx, &seq, `SELECT COALESCE((SELECT last_seq FROM user_update_cursors WHERE user_id=$1), 0)`, userID)
	return seq, err
}
