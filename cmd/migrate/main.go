// migrate creates or updates the stock ledger tables.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/migrate
package main

import (
	"fmt"
	"os"

	"github.com/mmdatafocus/stockledger/config"
	"github.com/mmdatafocus/stockledger/models"
)

func main() {
	db := config.ConnectDatabaseWithRetry()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("migrated %d tables\n", len(models.AllModels()))
}
