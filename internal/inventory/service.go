package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/internal/audit"
	"github.com/angelmondragon/sareehub-backend/pkg/auth"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sareehub-backend/pkg/errors"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/metrics"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/sareehub-backend/pkg/pagination"
)

const (
	opReserve = "reserve"
	opCommit  = "commit"
	opRelease = "release"
	opAdjust  = "adjust"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the stock ledger. The *Tx variants join a caller's transaction.
type Service interface {
	Availability(ctx context.Context, variantID uuid.UUID) (*Availability, error)
	Reserve(ctx context.Context, input ReserveInput) (*Movement, error)
	Commit(ctx context.Context, input MovementInput) (*Movement, error)
	Release(ctx context.Context, input MovementInput) (*Movement, error)
	Adjust(ctx context.Context, actor auth.Actor, input AdjustInput) (*Movement, error)
	History(ctx context.Context, variantID uuid.UUID, params pagination.Params) (*pagination.Page[LedgerEntry], error)

	ReserveTx(ctx context.Context, tx *gorm.DB, input ReserveInput) (*Movement, error)
	CommitTx(ctx context.Context, tx *gorm.DB, input MovementInput) (*Movement, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, input MovementInput) (*Movement, error)
	Outstanding(ctx context.Context, tx *gorm.DB, variantID, orderID uuid.UUID) (int, error)
}

// ServiceParams bundles the inventory service dependencies.
type ServiceParams struct {
	Repo              Repository
	DB                txRunner
	Outbox            outbox.Emitter
	Audit             audit.Recorder
	Metrics           *metrics.InventoryMetrics
	Logger            *logger.Logger
	ReservationTTL    time.Duration
	LowStockThreshold int
	Now               func() time.Time
}

type service struct {
	repo      Repository
	db        txRunner
	outbox    outbox.Emitter
	audit     audit.Recorder
	metrics   *metrics.InventoryMetrics
	logg      *logger.Logger
	ttl       time.Duration
	threshold int
	now       func() time.Time
}

// NewService builds the inventory service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.ReservationTTL <= 0 {
		return nil, fmt.Errorf("reservation ttl must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		db:        params.DB,
		outbox:    params.Outbox,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		ttl:       params.ReservationTTL,
		threshold: params.LowStockThreshold,
		now:       now,
	}, nil
}

func (s *service) Availability(ctx context.Context, variantID uuid.UUID) (*Availability, error) {
	v, err := s.repo.FindVariant(ctx, variantID)
	if err != nil {
		return nil, variantLookupError(err)
	}
	if !v.TrackInventory {
		return &Availability{
			VariantID:      v.ID,
			TotalStock:     v.StockQuantity,
			AvailableStock: UnlimitedStock,
		}, nil
	}
	reserved, err := s.repo.ReservedQuantity(ctx, v.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute reserved stock")
	}
	return &Availability{
		VariantID:      v.ID,
		TotalStock:     v.StockQuantity,
		ReservedStock:  reserved,
		AvailableStock: available(v.StockQuantity, reserved),
		TrackInventory: true,
	}, nil
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (*Movement, error) {
	var out *Movement
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		m, err := s.ReserveTx(ctx, tx, input)
		out = m
		return err
	})
	return out, err
}

func (s *service) Commit(ctx context.Context, input MovementInput) (*Movement, error) {
	var out *Movement
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		m, err := s.CommitTx(ctx, tx, input)
		out = m
		return err
	})
	return out, err
}

func (s *service) Release(ctx context.Context, input MovementInput) (*Movement, error) {
	var out *Movement
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		m, err := s.ReleaseTx(ctx, tx, input)
		out = m
		return err
	})
	return out, err
}

func (s *service) ReserveTx(ctx context.Context, tx *gorm.DB, input ReserveInput) (m *Movement, err error) {
	defer func() { s.observe(opReserve, err) }()

	if err := validateMovement(input.VariantID, input.OrderID, input.Quantity); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	if input.ExpiresAt != nil {
		if !input.ExpiresAt.After(now) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be in the future")
		}
		expiresAt = input.ExpiresAt.UTC()
	}

	repo := s.repo.WithTx(tx)
	v, err := repo.LockVariant(ctx, input.VariantID)
	if err != nil {
		return nil, variantLookupError(err)
	}
	order, err := repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, orderLookupError(err)
	}
	if !order.HoldsStock() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order no longer holds stock").
			WithDetails(map[string]any{"status": order.Status, "payment_status": order.PaymentStatus})
	}
	if !v.TrackInventory {
		return untrackedMovement(v, input.OrderID, enums.InventoryRecordReserve, input.Quantity), nil
	}

	reserved, err := repo.ReservedQuantity(ctx, v.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute reserved stock")
	}
	avail := available(v.StockQuantity, reserved)
	if input.Quantity > avail {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"requested": input.Quantity, "available": avail})
	}

	orderID := input.OrderID
	record := models.InventoryRecord{
		VariantID:      v.ID,
		OrderID:        &orderID,
		Type:           enums.InventoryRecordReserve,
		QuantityChange: -input.Quantity,
		QuantityBefore: v.StockQuantity,
		QuantityAfter:  v.StockQuantity,
		ExpiresAt:      &expiresAt,
	}
	if err := repo.InsertRecord(ctx, &record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert reservation")
	}
	if err := s.emitMovement(ctx, tx, enums.EventInventoryReserved, record, nil); err != nil {
		return nil, err
	}
	if err := s.maybeEmitLowStock(ctx, tx, v, avail, avail-input.Quantity); err != nil {
		return nil, err
	}
	return movementFromRecord(record, input.Quantity), nil
}

func (s *service) CommitTx(ctx context.Context, tx *gorm.DB, input MovementInput) (m *Movement, err error) {
	defer func() { s.observe(opCommit, err) }()

	if err := validateMovement(input.VariantID, input.OrderID, input.Quantity); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	v, err := repo.LockVariant(ctx, input.VariantID)
	if err != nil {
		return nil, variantLookupError(err)
	}
	if !v.TrackInventory {
		return untrackedMovement(v, input.OrderID, enums.InventoryRecordSale, input.Quantity), nil
	}
	if err := s.requireOutstanding(ctx, repo, input); err != nil {
		return nil, err
	}
	if v.StockQuantity < input.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "stock below reserved quantity").
			WithDetails(map[string]any{"requested": input.Quantity, "available": v.StockQuantity})
	}

	orderID := input.OrderID
	record := models.InventoryRecord{
		VariantID:      v.ID,
		OrderID:        &orderID,
		Type:           enums.InventoryRecordSale,
		QuantityChange: -input.Quantity,
		QuantityBefore: v.StockQuantity,
		QuantityAfter:  v.StockQuantity - input.Quantity,
	}
	if err := repo.InsertRecord(ctx, &record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert sale")
	}
	if err := repo.UpdateStock(ctx, v.ID, record.QuantityAfter); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock")
	}
	if err := s.emitMovement(ctx, tx, enums.EventInventoryCommitted, record, nil); err != nil {
		return nil, err
	}
	return movementFromRecord(record, input.Quantity), nil
}

func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, input MovementInput) (m *Movement, err error) {
	defer func() { s.observe(opRelease, err) }()

	if err := validateMovement(input.VariantID, input.OrderID, input.Quantity); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	v, err := repo.LockVariant(ctx, input.VariantID)
	if err != nil {
		return nil, variantLookupError(err)
	}
	if !v.TrackInventory {
		return untrackedMovement(v, input.OrderID, enums.InventoryRecordReturn, input.Quantity), nil
	}
	if err := s.requireOutstanding(ctx, repo, input); err != nil {
		return nil, err
	}

	orderID := input.OrderID
	record := models.InventoryRecord{
		VariantID:      v.ID,
		OrderID:        &orderID,
		Type:           enums.InventoryRecordReturn,
		QuantityChange: input.Quantity,
		QuantityBefore: v.StockQuantity,
		QuantityAfter:  v.StockQuantity,
	}
	if err := repo.InsertRecord(ctx, &record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert release")
	}
	if err := s.emitMovement(ctx, tx, enums.EventInventoryReleased, record, nil); err != nil {
		return nil, err
	}
	return movementFromRecord(record, input.Quantity), nil
}

func (s *service) Outstanding(ctx context.Context, tx *gorm.DB, variantID, orderID uuid.UUID) (int, error) {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	n, err := repo.Outstanding(ctx, variantID, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute outstanding reservation")
	}
	return n, nil
}

// Adjust applies an admin correction to stock_quantity. Return adjustments carry no order.
func (s *service) Adjust(ctx context.Context, actor auth.Actor, input AdjustInput) (out *Movement, err error) {
	defer func() { s.observe(opAdjust, err) }()

	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if input.VariantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant_id is required")
	}
	if input.QuantityChange == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity_change must be non-zero")
	}
	kind := input.Type
	if kind == "" {
		kind = enums.InventoryRecordAdjustment
	}
	if kind != enums.InventoryRecordAdjustment && kind != enums.InventoryRecordReturn {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "type must be adjustment or return")
	}
	if kind == enums.InventoryRecordReturn && input.QuantityChange < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return adjustments must add stock")
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		v, err := repo.LockVariant(ctx, input.VariantID)
		if err != nil {
			return variantLookupError(err)
		}
		next := v.StockQuantity + input.QuantityChange
		if next < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "adjustment would make stock negative").
				WithDetails(map[string]any{"stock_quantity": v.StockQuantity, "quantity_change": input.QuantityChange})
		}

		record := models.InventoryRecord{
			VariantID:       v.ID,
			Type:            kind,
			QuantityChange:  input.QuantityChange,
			QuantityBefore:  v.StockQuantity,
			QuantityAfter:   next,
			Notes:           input.Notes,
			ReferenceNumber: input.ReferenceNumber,
			CreatedBy:       actor.UserIDPtr(),
		}
		if err := repo.InsertRecord(ctx, &record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert adjustment")
		}
		if err := repo.UpdateStock(ctx, v.ID, next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock")
		}

		adj := &models.StockAdjustment{
			VariantID:         v.ID,
			InventoryRecordID: record.ID,
			AdjustedBy:        actor.UserID,
			Type:              kind,
			QuantityChange:    input.QuantityChange,
			PreviousQuantity:  v.StockQuantity,
			NewQuantity:       next,
			Notes:             input.Notes,
			ReferenceNumber:   input.ReferenceNumber,
		}
		if err := s.audit.RecordAdjustment(ctx, tx, adj); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock adjustment")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     enums.AuditActionStockAdjusted,
			EntityType: enums.AuditEntityVariant,
			EntityID:   v.ID,
			Metadata: map[string]any{
				"type":              kind,
				"quantity_change":   input.QuantityChange,
				"previous_quantity": v.StockQuantity,
				"new_quantity":      next,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		if err := s.emitMovement(ctx, tx, enums.EventInventoryAdjusted, record, &actor); err != nil {
			return err
		}

		if v.TrackInventory {
			reserved, err := repo.ReservedQuantity(ctx, v.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute reserved stock")
			}
			if err := s.maybeEmitLowStock(ctx, tx, v, available(v.StockQuantity, reserved), available(next, reserved)); err != nil {
				return err
			}
		}
		out = movementFromRecord(record, abs(input.QuantityChange))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"variant_id":      out.VariantID.String(),
			"quantity_change": out.QuantityChange,
			"stock_after":     out.StockAfter,
			"actor_id":        actor.UserID.String(),
		})
		s.logg.Info(logCtx, "inventory adjusted")
	}
	return out, nil
}

func (s *service) History(ctx context.Context, variantID uuid.UUID, params pagination.Params) (*pagination.Page[LedgerEntry], error) {
	if _, err := s.repo.FindVariant(ctx, variantID); err != nil {
		return nil, variantLookupError(err)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListHistory(ctx, variantID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory history")
	}
	entries := make([]LedgerEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, toLedgerEntry(r))
	}
	page := pagination.BuildPage(entries, params.Limit, func(e LedgerEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return &page, nil
}

func (s *service) requireOutstanding(ctx context.Context, repo Repository, input MovementInput) error {
	outstanding, err := repo.Outstanding(ctx, input.VariantID, input.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute outstanding reservation")
	}
	if input.Quantity > outstanding {
		return pkgerrors.New(pkgerrors.CodeReservationMismatch, "quantity exceeds outstanding reservation").
			WithDetails(map[string]any{"requested": input.Quantity, "reserved": outstanding})
	}
	return nil
}

func (s *service) emitMovement(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, record models.InventoryRecord, actor *auth.Actor) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateVariant,
		AggregateID:   record.VariantID,
		Data: payloads.InventoryMovementEvent{
			RecordID:       record.ID,
			VariantID:      record.VariantID,
			OrderID:        record.OrderID,
			Type:           record.Type,
			QuantityChange: record.QuantityChange,
			QuantityBefore: record.QuantityBefore,
			QuantityAfter:  record.QuantityAfter,
			CreatedBy:      record.CreatedBy,
			OccurredAt:     record.CreatedAt,
		},
	}
	if actor != nil && actor.UserID != uuid.Nil {
		event.Actor = &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit inventory event")
	}
	return nil
}

// maybeEmitLowStock fires only when availability crosses the threshold downward.
func (s *service) maybeEmitLowStock(ctx context.Context, tx *gorm.DB, v *models.Variant, before, after int) error {
	if s.threshold <= 0 || before <= s.threshold || after > s.threshold {
		return nil
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryLowStock,
		AggregateType: enums.AggregateVariant,
		AggregateID:   v.ID,
		Data: payloads.LowStockEvent{
			VariantID: v.ID,
			SKU:       v.SKU,
			Available: after,
			Threshold: s.threshold,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit low stock event")
	}
	return nil
}

func (s *service) observe(op string, err error) {
	result := metrics.ResultSuccess
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		result = metrics.ResultInsufficientStock
	case pkgerrors.IsCode(err, pkgerrors.CodeReservationMismatch):
		result = metrics.ResultMismatch
	default:
		result = metrics.ResultError
	}
	s.metrics.ObserveOperation(op, result)
}

func validateMovement(variantID, orderID uuid.UUID, quantity int) error {
	if variantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant_id is required")
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}

func variantLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
}

func orderLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func available(stock, reserved int) int {
	if n := stock - reserved; n > 0 {
		return n
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
