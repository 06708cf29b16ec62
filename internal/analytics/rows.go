package analytics

import (
	"fmt"
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	bqclient "github.com/angelmondragon/sareehub-backend/pkg/bigquery"
)

// MovementRow mirrors the inventory_movements BigQuery schema. One row per ledger entry.
type MovementRow struct {
	EventID        string               `bigquery:"event_id"`
	EventType      string               `bigquery:"event_type"`
	OccurredAt     time.Time            `bigquery:"occurred_at"`
	RecordID       string               `bigquery:"record_id"`
	VariantID      string               `bigquery:"variant_id"`
	OrderID        cbigquery.NullString `bigquery:"order_id"`
	RecordType     string               `bigquery:"record_type"`
	Quantity       int64                `bigquery:"quantity"`
	QuantityChange int64                `bigquery:"quantity_change"`
	StockBefore    int64                `bigquery:"stock_before"`
	StockAfter     int64                `bigquery:"stock_after"`
	ActorID        cbigquery.NullString `bigquery:"actor_id"`
}

// OrderFactRow mirrors the order_facts BigQuery schema. One row per order lifecycle event.
type OrderFactRow struct {
	EventID     string               `bigquery:"event_id"`
	EventType   string               `bigquery:"event_type"`
	OccurredAt  time.Time            `bigquery:"occurred_at"`
	OrderID     string               `bigquery:"order_id"`
	OrderNumber string               `bigquery:"order_number"`
	CustomerID  string               `bigquery:"customer_id"`
	TotalAmount *big.Rat             `bigquery:"total_amount"`
	Currency    cbigquery.NullString `bigquery:"currency"`
	ItemCount   int64                `bigquery:"item_count"`
	Reason      cbigquery.NullString `bigquery:"reason"`
	Payload     cbigquery.NullJSON   `bigquery:"payload"`
}

// TableSpecs returns the destination tables with schemas inferred from the row types,
// partitioned by day on occurred_at.
func TableSpecs(cfg WriterConfig) ([]bqclient.TableSpec, error) {
	movements, err := cbigquery.InferSchema(MovementRow{})
	if err != nil {
		return nil, fmt.Errorf("infer movements schema: %w", err)
	}
	facts, err := cbigquery.InferSchema(OrderFactRow{})
	if err != nil {
		return nil, fmt.Errorf("infer order facts schema: %w", err)
	}
	return []bqclient.TableSpec{
		{Name: cfg.MovementsTable, Schema: movements, PartitionField: "occurred_at"},
		{Name: cfg.OrderFactsTable, Schema: facts, PartitionField: "occurred_at"},
	}, nil
}
