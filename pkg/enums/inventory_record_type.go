package enums

// InventoryRecordType tags each row of the stock ledger.
type InventoryRecordType string

const (
	InventoryRecordReserve    InventoryRecordType = "reserve"
	InventoryRecordSale       InventoryRecordType = "sale"
	InventoryRecordReturn     InventoryRecordType = "return"
	InventoryRecordAdjustment InventoryRecordType = "adjustment"
)

var inventoryRecordTypes = []InventoryRecordType{
	InventoryRecordReserve,
	InventoryRecordSale,
	InventoryRecordReturn,
	InventoryRecordAdjustment,
}

func (t InventoryRecordType) String() string { return string(t) }

func (t InventoryRecordType) IsValid() bool { return known(inventoryRecordTypes, t) }

// TouchesStock reports whether rows of this type move variants.stock_quantity.
func (t InventoryRecordType) TouchesStock() bool {
	return t == InventoryRecordSale || t == InventoryRecordAdjustment
}

func ParseInventoryRecordType(value string) (InventoryRecordType, error) {
	return parse(inventoryRecordTypes, "inventory record type", value)
}
