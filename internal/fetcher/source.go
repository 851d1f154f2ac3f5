package fetcher

import (
	"context"

	"github.com/spacesedan/sentiharvest/internal/models"
)

// Source is the upstream content API for one site.
type Source interface {
	// CheckUnit verifies the unit exists and credentials work.
	CheckUnit(ctx context.Context, unit string) error
	ListByRecency(ctx context.Context, unit string, limit int) ([]models.RawItem, error)
	ListByRank(ctx context.Context, unit string, limit int) ([]models.RawItem, error)
	ListTopInRange(ctx context.Context, unit, rangeFilter string, limit int) ([]models.RawItem, error)
}

// ReplySource is implemented by sources that can return the reply tree of an item.
type ReplySource interface {
	FetchReplies(ctx context.Context, itemID, sortOrder string) ([]models.RawReply, error)
}
