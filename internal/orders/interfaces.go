package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/internal/inventory"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockVariants(ctx context.Context, ids []uuid.UUID) ([]models.Variant, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListOrders(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	FindExpiredReservationOrders(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// InventoryLedger is the slice of the inventory service the orchestrator drives inside its transactions.
type InventoryLedger interface {
	ReserveTx(ctx context.Context, tx *gorm.DB, input inventory.ReserveInput) (*inventory.Movement, error)
	CommitTx(ctx context.Context, tx *gorm.DB, input inventory.MovementInput) (*inventory.Movement, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, input inventory.MovementInput) (*inventory.Movement, error)
	Outstanding(ctx context.Context, tx *gorm.DB, variantID, orderID uuid.UUID) (int, error)
}
