package models

import "gorm.io/gorm"

// AllModels lists every table owned by the stock ledger.
func AllModels() []any {
	return []any{
		&StockBalance{}, &StockLedgerEntry{},
		&ValuationEntry{}, &ValuationHead{},
		&InventoryLot{}, &ReorderRule{}, &ProductProfile{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
