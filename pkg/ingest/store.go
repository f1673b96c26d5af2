package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/thistle/pkg/models"
)

// Store is the transactional store the ingestion engine writes through.
// WithinTx must join an enclosing transaction carried by ctx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	LoadCursor(ctx context.Context, key models.SyncKey) (*models.SyncCursor, error)
	SaveCursor(ctx context.Context, cursor *models.SyncCursor) error

	GetInteraction(ctx context.Context, id uuid.UUID) (*models.Interaction, error)
	GetInteractionByIdentity(ctx context.Context, key models.IdentityKey) (*models.Interaction, error)
	CreateInteraction(ctx context.Context, i *models.Interaction) error
	UpdateInteraction(ctx context.Context, i *models.Interaction) error
	ListSellerInteractions(ctx context.Context, sellerID int64, offset, limit int) ([]models.Interaction, error)
	ListEvents(ctx context.Context, interactionID uuid.UUID) ([]models.InteractionEvent, error)
	AppendEvents(ctx context.Context, events ...models.InteractionEvent) error

	ListActiveSLARules(ctx context.Context, sellerID int64) ([]models.SLARule, error)

	RecordRun(ctx context.Context, run *models.SyncRun) error
}

// ChangePublisher receives committed interaction changes.
type ChangePublisher interface {
	PublishInteractionChange(ctx context.Context, change models.InteractionChange) error
}
