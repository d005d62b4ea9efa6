package entity

import "gorm.io/gorm"

// openTimerIndex allows a single open labor interval per subject and phase.
// Both PostgreSQL and SQLite support partial unique indexes.
const openTimerIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_mes_time_logs_open
	ON mes_time_logs (subject_type, subject_id, phase) WHERE ended_at IS NULL`

// AutoMigrate migrates every MES table.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		// master data
		&WorkCenter{},
		&Product{},
		&Material{},
		&BillingRate{},

		// orders and design
		&SalesOrder{},
		&SOItem{},
		&DesignRevision{},

		// production
		&ProductionTask{},
		&SubstrateBatch{},
		&BatchAllocation{},
		&TimeLog{},

		// ledgers
		&InventoryTransaction{},
		&StatusChange{},
	)
	if err != nil {
		return err
	}
	return db.Exec(openTimerIndex).Error
}
