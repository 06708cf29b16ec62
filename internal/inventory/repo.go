package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/internal/repo"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/pagination"
)

// Repository defines persistence operations for variants and the stock ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	LockVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ReservedQuantity(ctx context.Context, variantID uuid.UUID) (int, error)
	Outstanding(ctx context.Context, variantID, orderID uuid.UUID) (int, error)
	InsertRecord(ctx context.Context, record *models.InventoryRecord) error
	UpdateStock(ctx context.Context, variantID uuid.UUID, quantity int) error
	ListHistory(ctx context.Context, variantID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.InventoryRecord, error)
}

type repository struct {
	base repo.Base
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	return repo.First[models.Variant](r.base.DB(ctx), id)
}

// LockVariant reads the variant with SELECT ... FOR UPDATE.
func (r *repository) LockVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	return repo.First[models.Variant](r.base.ForUpdate(ctx), id)
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return repo.First[models.Order](r.base.DB(ctx), id)
}

// netReservedCase is the signed contribution of a ledger row to an order's outstanding reservation.
const netReservedCase = "CASE WHEN inv.type = ? THEN ABS(inv.quantity_change) WHEN inv.type IN (?, ?) THEN -ABS(inv.quantity_change) ELSE 0 END"

func netReservedArgs() []any {
	return []any{
		string(enums.InventoryRecordReserve),
		string(enums.InventoryRecordSale),
		string(enums.InventoryRecordReturn),
	}
}

// ReservedQuantity sums outstanding reservations of orders that still hold stock.
func (r *repository) ReservedQuantity(ctx context.Context, variantID uuid.UUID) (int, error) {
	query := `SELECT COALESCE(SUM(per_order.net), 0) FROM (
	SELECT inv.order_id, SUM(` + netReservedCase + `) AS net
	FROM inventory inv
	JOIN orders o ON o.id = inv.order_id
	WHERE inv.variant_id = ? AND o.status IN ? AND o.payment_status = ?
	GROUP BY inv.order_id
) per_order WHERE per_order.net > 0`

	holding := make([]string, 0, len(enums.HoldingOrderStatuses))
	for _, s := range enums.HoldingOrderStatuses {
		holding = append(holding, string(s))
	}
	args := append(netReservedArgs(), variantID, holding, string(enums.PaymentStatusPending))

	var total int64
	if err := r.base.DB(ctx).Raw(query, args...).Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

// Outstanding is reserve minus sale minus return for one (variant, order) pair, floored at zero.
func (r *repository) Outstanding(ctx context.Context, variantID, orderID uuid.UUID) (int, error) {
	query := `SELECT COALESCE(SUM(` + netReservedCase + `), 0)
FROM inventory inv
WHERE inv.variant_id = ? AND inv.order_id = ?`

	args := append(netReservedArgs(), variantID, orderID)
	var total int64
	if err := r.base.DB(ctx).Raw(query, args...).Scan(&total).Error; err != nil {
		return 0, err
	}
	if total < 0 {
		return 0, nil
	}
	return int(total), nil
}

func (r *repository) InsertRecord(ctx context.Context, record *models.InventoryRecord) error {
	if record == nil {
		return errors.New("inventory record required")
	}
	return r.base.DB(ctx).Create(record).Error
}

func (r *repository) UpdateStock(ctx context.Context, variantID uuid.UUID, quantity int) error {
	res := r.base.DB(ctx).
		Model(&models.Variant{}).
		Where("id = ?", variantID).
		Updates(map[string]any{"stock_quantity": quantity})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListHistory returns ledger rows newest first, starting after cursor.
func (r *repository) ListHistory(ctx context.Context, variantID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.InventoryRecord, error) {
	var rows []models.InventoryRecord
	err := r.base.DB(ctx).
		Where("variant_id = ?", variantID).
		Scopes(pagination.Keyset(cursor, limit)).
		Find(&rows).Error
	return rows, err
}
