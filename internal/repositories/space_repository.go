package repositories

import (
	"context"

	"chat-sync/internal/db"
)

// SpaceRepository answers space membership questions.
type SpaceRepository interface {
	IsMember(ctx context.Context, q db.Queryer, spaceID int64, userID int64) (bool, error)
}

// SpaceRepo is a sqlx implementation of SpaceRepository.
type SpaceRepo struct{}

// NewSpaceRepo constructs a SpaceRepo.
func NewSpaceRepo() *SpaceRepo {
	return &SpaceRepo{}
}

// IsMember checks membership.
func (r *SpaceRepo) IsMember(ctx context.Context, q db.Queryer, spaceID int64, userID int64) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM space_members WHERE space_id=$1 AND user_id=$2)`, spaceID, userID)
	return exists, err
}
