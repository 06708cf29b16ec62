package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/internal/audit"
	"github.com/angelmondragon/sareehub-backend/internal/inventory"
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
	defaultCurrency    = "INR"
	defaultExpiryLimit = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service sequences order state transitions with their stock movements.
type Service interface {
	Create(ctx context.Context, customerID uuid.UUID, input CreateInput) (*OrderView, error)
	HandlePaymentWebhook(ctx context.Context, input PaymentWebhookInput) (*PaymentResult, error)
	Cancel(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input CancelInput) (*OrderView, error)
	Ship(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input ShipInput) (*OrderView, error)
	Deliver(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*OrderView, error)
	Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*OrderView, error)
	List(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*pagination.Page[OrderView], error)
	ExpireReservations(ctx context.Context, now time.Time, limit int) (ExpiryResult, error)
}

type ServiceParams struct {
	Repo           Repository
	DB             txRunner
	Inventory      InventoryLedger
	Outbox         outbox.Emitter
	Audit          audit.Recorder
	Metrics        *metrics.InventoryMetrics
	Logger         *logger.Logger
	ReservationTTL time.Duration
	Currency       string
	Now            func() time.Time
}

type service struct {
	repo      Repository
	db        txRunner
	inventory InventoryLedger
	outbox    outbox.Emitter
	audit     audit.Recorder
	metrics   *metrics.InventoryMetrics
	logg      *logger.Logger
	ttl       time.Duration
	currency  string
	now       func() time.Time
}

// NewService builds the order orchestrator with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory ledger required")
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
	currency := params.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		db:        params.DB,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		ttl:       params.ReservationTTL,
		currency:  currency,
		now:       now,
	}, nil
}

// Create persists the order, its items and one reservation per item in a single transaction.
func (s *service) Create(ctx context.Context, customerID uuid.UUID, input CreateInput) (*OrderView, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	lines, err := mergeItems(input.Items)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	var created *models.Order

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ids := make([]uuid.UUID, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.VariantID)
		}
		variants, err := repo.LockVariants(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock variants")
		}
		byID := make(map[uuid.UUID]models.Variant, len(variants))
		for _, v := range variants {
			byID[v.ID] = v
		}

		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(lines))
		for _, l := range lines {
			v, ok := byID[l.VariantID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
					WithDetails(map[string]any{"variant_id": l.VariantID})
			}
			if !v.IsActive {
				return pkgerrors.New(pkgerrors.CodeValidation, "variant is not available for sale").
					WithDetails(map[string]any{"variant_id": l.VariantID})
			}
			item := models.OrderItem{VariantID: v.ID, Quantity: l.Quantity, UnitPrice: v.Price}
			total = total.Add(item.LineTotal())
			items = append(items, item)
		}

		order := &models.Order{
			OrderNumber:     newOrderNumber(now),
			CustomerID:      customerID,
			Status:          enums.OrderStatusPending,
			PaymentStatus:   enums.PaymentStatusPending,
			TotalAmount:     total,
			Currency:        s.currency,
			ShippingAddress: input.ShippingAddress,
			Notes:           input.Notes,
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		for _, item := range items {
			if _, err := s.inventory.ReserveTx(ctx, tx, inventory.ReserveInput{
				VariantID: item.VariantID,
				OrderID:   order.ID,
				Quantity:  item.Quantity,
				ExpiresAt: &expiresAt,
			}); err != nil {
				return err
			}
		}
		order.Items = items

		lineEvents := make([]payloads.OrderItemLine, 0, len(items))
		for _, item := range items {
			lineEvents = append(lineEvents, payloads.OrderItemLine{
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice.StringFixed(2),
			})
		}
		if err := s.emit(ctx, tx, enums.EventOrderCreated, order.ID, auth.Actor{UserID: customerID, Role: enums.MemberRoleCustomer}, payloads.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			TotalAmount: order.TotalAmount.StringFixed(2),
			Currency:    order.Currency,
			Items:       lineEvents,
			ExpiresAt:   expiresAt,
		}); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logInfo(ctx, created, "order created", map[string]any{"items": len(created.Items), "total_amount": created.TotalAmount.StringFixed(2)})
	return toView(created), nil
}

// HandlePaymentWebhook applies a gateway notification. The order row is locked for the whole delivery.
func (s *service) HandlePaymentWebhook(ctx context.Context, input PaymentWebhookInput) (*PaymentResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	input.PaymentTransactionID = strings.TrimSpace(input.PaymentTransactionID)
	if !input.PaymentStatus.IsValid() || !input.PaymentStatus.Settled() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_status must be paid or failed")
	}
	if input.PaymentStatus == enums.PaymentStatusPaid && input.PaymentTransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_transaction_id is required for paid notifications")
	}

	var result *PaymentResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, input.OrderID)
		if err != nil {
			return orderLookupError(err)
		}
		if input.PaymentStatus == enums.PaymentStatusPaid {
			result, err = s.markPaid(ctx, tx, repo, order, input)
		} else {
			result, err = s.markFailed(ctx, tx, repo, order, input)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	msg := "payment webhook applied"
	if result.Replayed {
		msg = "payment webhook replay ignored"
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"payment_status":    input.PaymentStatus,
			"transaction_id":    input.PaymentTransactionID,
			"commit_mismatches": len(result.CommitMismatches),
		})
		s.logg.Info(logCtx, msg)
	}
	return result, nil
}

func (s *service) markPaid(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, input PaymentWebhookInput) (*PaymentResult, error) {
	if order.PaymentStatus == enums.PaymentStatusPaid {
		if order.PaymentTransactionID != nil && *order.PaymentTransactionID == input.PaymentTransactionID {
			return &PaymentResult{Order: toView(order), Replayed: true}, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid with a different transaction")
	}
	if !order.HoldsStock() {
		return nil, stateConflict(order, "order cannot accept payment in its current state")
	}

	var mismatches []uuid.UUID
	for _, item := range order.Items {
		_, err := s.inventory.CommitTx(ctx, tx, inventory.MovementInput{
			VariantID: item.VariantID,
			OrderID:   order.ID,
			Quantity:  item.Quantity,
		})
		if err == nil {
			continue
		}
		if !skippableCommitFailure(err) {
			return nil, err
		}
		mismatches = append(mismatches, item.VariantID)
		s.metrics.IncCommitMismatch()
		if s.logg != nil {
			logCtx := s.logg.WithOrderID(ctx, order.ID.String())
			logCtx = s.logg.WithVariantID(logCtx, item.VariantID.String())
			s.logg.Warn(logCtx, "paid order item could not be committed")
		}
		meta := map[string]any{"variant_id": item.VariantID, "quantity": item.Quantity}
		if typed := pkgerrors.As(err); typed != nil {
			meta["code"] = typed.Code()
			if typed.Details() != nil {
				meta["details"] = typed.Details()
			}
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      auth.SystemActor,
			Action:     enums.AuditActionCommitMismatch,
			EntityType: enums.AuditEntityOrder,
			EntityID:   order.ID,
			Metadata:   meta,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
	}

	paidAt := s.now().UTC()
	txnID := input.PaymentTransactionID
	updates := map[string]any{
		"status":                 enums.OrderStatusConfirmed,
		"payment_status":         enums.PaymentStatusPaid,
		"paid_at":                paidAt,
		"payment_transaction_id": txnID,
	}
	order.Status = enums.OrderStatusConfirmed
	order.PaymentStatus = enums.PaymentStatusPaid
	order.PaidAt = &paidAt
	order.PaymentTransactionID = &txnID
	if method := strings.TrimSpace(input.PaymentMethod); method != "" {
		updates["payment_method"] = method
		order.PaymentMethod = &method
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment")
	}

	if err := s.emit(ctx, tx, enums.EventOrderPaid, order.ID, auth.SystemActor, payloads.OrderPaidEvent{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		CustomerID:       order.CustomerID,
		TransactionID:    txnID,
		PaymentMethod:    valueOrEmpty(order.PaymentMethod),
		TotalAmount:      order.TotalAmount.StringFixed(2),
		Currency:         order.Currency,
		PaidAt:           paidAt,
		CommitMismatches: mismatches,
	}); err != nil {
		return nil, err
	}
	return &PaymentResult{Order: toView(order), CommitMismatches: mismatches}, nil
}

func (s *service) markFailed(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, input PaymentWebhookInput) (*PaymentResult, error) {
	if order.PaymentStatus == enums.PaymentStatusFailed {
		return &PaymentResult{Order: toView(order), Replayed: true}, nil
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	if !order.HoldsStock() {
		return nil, stateConflict(order, "order cannot record a payment failure in its current state")
	}

	if _, err := s.releaseOutstanding(ctx, tx, order); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	reason := CancelReasonPaymentFailed
	updates := map[string]any{
		"status":         enums.OrderStatusCancelled,
		"payment_status": enums.PaymentStatusFailed,
		"cancelled_at":   now,
		"cancel_reason":  reason,
	}
	order.Status = enums.OrderStatusCancelled
	order.PaymentStatus = enums.PaymentStatusFailed
	order.CancelledAt = &now
	order.CancelReason = &reason
	if txnID := input.PaymentTransactionID; txnID != "" {
		updates["payment_transaction_id"] = txnID
		order.PaymentTransactionID = &txnID
	}
	if method := strings.TrimSpace(input.PaymentMethod); method != "" {
		updates["payment_method"] = method
		order.PaymentMethod = &method
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment")
	}

	if err := s.emit(ctx, tx, enums.EventOrderPaymentFailed, order.ID, auth.SystemActor, payloads.OrderPaymentFailedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		TransactionID: input.PaymentTransactionID,
		Reason:        reason,
	}); err != nil {
		return nil, err
	}
	return &PaymentResult{Order: toView(order)}, nil
}

// Cancel releases whatever is still reserved. Committed stock of a paid order is not returned.
func (s *service) Cancel(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input CancelInput) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var out *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return orderLookupError(err)
		}
		if !actor.CanAccess(order.CustomerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusConfirmed {
			return stateConflict(order, "order can only be cancelled while pending or confirmed")
		}

		restocked, err := s.releaseOutstanding(ctx, tx, order)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		updates := map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		reason := ""
		if input.Reason != nil {
			reason = strings.TrimSpace(*input.Reason)
		}
		if reason != "" {
			updates["cancel_reason"] = reason
			order.CancelReason = &reason
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     enums.AuditActionOrderCancelled,
			EntityType: enums.AuditEntityOrder,
			EntityID:   order.ID,
			Metadata:   map[string]any{"reason": reason, "restocked": restocked},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		if err := s.emit(ctx, tx, enums.EventOrderCancelled, order.ID, actor, payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			CancelledBy: actor.UserIDPtr(),
			Reason:      reason,
			CancelledAt: now,
			Restocked:   restocked,
		}); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, out, "order cancelled", map[string]any{"actor_id": actor.UserID.String()})
	return toView(out), nil
}

func (s *service) Ship(ctx context.Context, actor auth.Actor, orderID uuid.UUID, input ShipInput) (*OrderView, error) {
	tracking := strings.TrimSpace(input.TrackingNumber)
	if tracking == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking_number is required")
	}
	return s.transition(ctx, actor, orderID, enums.OrderStatusConfirmed, enums.OrderStatusShipped, func(order *models.Order, now time.Time) (map[string]any, enums.OutboxEventType, any) {
		order.ShippedAt = &now
		order.TrackingNumber = &tracking
		updates := map[string]any{
			"status":          enums.OrderStatusShipped,
			"shipped_at":      now,
			"tracking_number": tracking,
		}
		if input.Carrier != nil && strings.TrimSpace(*input.Carrier) != "" {
			carrier := strings.TrimSpace(*input.Carrier)
			order.Carrier = &carrier
			updates["carrier"] = carrier
		}
		return updates, enums.EventOrderShipped, payloads.OrderShippedEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			CustomerID:     order.CustomerID,
			TrackingNumber: tracking,
			Carrier:        valueOrEmpty(order.Carrier),
			ShippedAt:      now,
		}
	})
}

func (s *service) Deliver(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*OrderView, error) {
	return s.transition(ctx, actor, orderID, enums.OrderStatusShipped, enums.OrderStatusDelivered, func(order *models.Order, now time.Time) (map[string]any, enums.OutboxEventType, any) {
		order.DeliveredAt = &now
		return map[string]any{
				"status":       enums.OrderStatusDelivered,
				"delivered_at": now,
			}, enums.EventOrderDelivered, payloads.OrderDeliveredEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				DeliveredAt: now,
			}
	})
}

type transitionFunc func(order *models.Order, now time.Time) (map[string]any, enums.OutboxEventType, any)

// transition runs an admin-only fulfilment step that touches order metadata but never stock.
func (s *service) transition(ctx context.Context, actor auth.Actor, orderID uuid.UUID, from, to enums.OrderStatus, apply transitionFunc) (*OrderView, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var out *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return orderLookupError(err)
		}
		if order.Status != from {
			return stateConflict(order, "order must be %s to become %s", from, to)
		}
		now := s.now().UTC()
		updates, eventType, payload := apply(order, now)
		order.Status = to
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     auditActionFor(to),
			EntityType: enums.AuditEntityOrder,
			EntityID:   order.ID,
			Metadata:   map[string]any{"from": from, "to": to},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		if err := s.emit(ctx, tx, eventType, order.ID, actor, payload); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, out, "order status changed", map[string]any{"from": from, "to": to})
	return toView(out), nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*OrderView, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, orderLookupError(err)
	}
	if !actor.CanAccess(order.CustomerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return toView(order), nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*pagination.Page[OrderView], error) {
	if !actor.IsAdmin() {
		if actor.UserID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
		}
		id := actor.UserID
		filters.CustomerID = &id
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListOrders(ctx, filters, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	views := make([]OrderView, 0, len(rows))
	for i := range rows {
		views = append(views, *toView(&rows[i]))
	}
	page := pagination.BuildPage(views, params.Limit, func(v OrderView) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return &page, nil
}

// ExpireReservations cancels unpaid pending orders whose reservations lapsed. Each order runs in its own transaction.
func (s *service) ExpireReservations(ctx context.Context, now time.Time, limit int) (ExpiryResult, error) {
	if limit <= 0 {
		limit = defaultExpiryLimit
	}
	now = now.UTC()
	ids, err := s.repo.FindExpiredReservationOrders(ctx, now, limit)
	if err != nil {
		return ExpiryResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expired reservations")
	}

	result := ExpiryResult{Scanned: len(ids)}
	var errs error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		expired, err := s.expireOne(ctx, id, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", id, err))
			continue
		}
		if expired {
			result.Expired++
		} else {
			result.Skipped++
		}
	}
	s.metrics.AddExpired(result.Expired)
	return result, errs
}

func (s *service) expireOne(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error) {
	expired := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return orderLookupError(err)
		}
		if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusPending {
			return nil
		}
		if _, err := s.releaseOutstanding(ctx, tx, order); err != nil {
			return err
		}
		reason := CancelReasonReservationExpired
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":        enums.OrderStatusCancelled,
			"cancelled_at":  now,
			"cancel_reason": reason,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire order")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:      auth.SystemActor,
			Action:     enums.AuditActionReservationExpiry,
			EntityType: enums.AuditEntityOrder,
			EntityID:   order.ID,
			Metadata:   map[string]any{"expired_at": now},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		if err := s.emit(ctx, tx, enums.EventOrderExpired, order.ID, auth.SystemActor, payloads.OrderExpiredEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			ExpiredAt:   now,
		}); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}

// releaseOutstanding returns every item's outstanding reservation. It reports whether anything was released.
func (s *service) releaseOutstanding(ctx context.Context, tx *gorm.DB, order *models.Order) (bool, error) {
	released := false
	for _, item := range order.Items {
		outstanding, err := s.inventory.Outstanding(ctx, tx, item.VariantID, order.ID)
		if err != nil {
			return false, err
		}
		if outstanding == 0 {
			continue
		}
		if _, err := s.inventory.ReleaseTx(ctx, tx, inventory.MovementInput{
			VariantID: item.VariantID,
			OrderID:   order.ID,
			Quantity:  outstanding,
		}); err != nil {
			return false, err
		}
		released = true
	}
	return released, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, orderID uuid.UUID, actor auth.Actor, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          data,
	}
	if actor.UserID != uuid.Nil {
		event.Actor = &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
	}
	return nil
}

func (s *service) logInfo(ctx context.Context, order *models.Order, msg string, fields map[string]any) {
	if s.logg == nil || order == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	fields["order_number"] = order.OrderNumber
	fields["status"] = order.Status
	fields["payment_status"] = order.PaymentStatus
	s.logg.Info(s.logg.WithFields(logCtx, fields), msg)
}

// mergeItems folds duplicate variants and sorts lines by variant id.
func mergeItems(items []CreateItemInput) ([]CreateItemInput, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	totals := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if it.VariantID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant_id is required")
		}
		if it.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"variant_id": it.VariantID})
		}
		totals[it.VariantID] += it.Quantity
	}
	merged := make([]CreateItemInput, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, CreateItemInput{VariantID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].VariantID.String() < merged[j].VariantID.String()
	})
	return merged, nil
}

// newOrderNumber renders SH-YYYYMMDD-XXXXXXXX.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return "SH-" + now.Format("20060102") + "-" + suffix
}

func auditActionFor(status enums.OrderStatus) enums.AuditAction {
	switch status {
	case enums.OrderStatusShipped:
		return enums.AuditActionOrderShipped
	case enums.OrderStatusDelivered:
		return enums.AuditActionOrderDelivered
	default:
		return enums.AuditActionOrderCancelled
	}
}

// skippableCommitFailure reports whether a paid item may be left uncommitted
// for an admin to reconcile. Storage failures still abort the webhook.
func skippableCommitFailure(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeReservationMismatch) ||
		pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock)
}

func stateConflict(order *models.Order, format string, args ...any) error {
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, format, args...).
		WithDetails(map[string]any{"status": order.Status, "payment_status": order.PaymentStatus})
}

func orderLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func valueOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
