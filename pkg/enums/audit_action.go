package enums

// AuditAction names the admin or system action recorded in audit_logs.
type AuditAction string

const (
	AuditActionStockAdjusted     AuditAction = "inventory.adjusted"
	AuditActionOrderCancelled    AuditAction = "order.cancelled"
	AuditActionOrderShipped      AuditAction = "order.shipped"
	AuditActionOrderDelivered    AuditAction = "order.delivered"
	AuditActionCommitMismatch    AuditAction = "order.commit_mismatch"
	AuditActionReservationExpiry AuditAction = "order.reservation_expired"
)

// AuditEntityType names the kind of row an audit entry points at.
type AuditEntityType string

const (
	AuditEntityVariant AuditEntityType = "variant"
	AuditEntityOrder   AuditEntityType = "order"
)
