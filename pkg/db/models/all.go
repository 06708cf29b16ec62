package models

// All lists every persisted model, used by AutoMigrate in SQLite dev mode and tests.
func All() []any {
	return []any{
		&Variant{},
		&InventoryRecord{},
		&Order{},
		&OrderItem{},
		&StockAdjustment{},
		&AuditLog{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
