package models

import (
	"log"

	"bitbucket.org/mmdatafocus/fleetsync_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&ServiceOrderHeader{}, &ServiceOrderItem{},
		&SyncState{}, &SyncQueueEntry{}, &RateLimitRecord{},
		&Vehicle{}, &VehicleExpenseAggregate{},
		&AuditLogEntry{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
