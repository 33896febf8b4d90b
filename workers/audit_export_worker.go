// workers/audit_export_worker.go
package workers

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"easyearn-backend/models"
	"easyearn-backend/utils"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// StartAuditExporter uploads the previous UTC day's transaction log to R2
// once a day, shortly after the UTC day rolls over. The job is pinned to a
// wall-clock time rather than an interval, so frequent restarts cannot keep
// pushing the next run out of reach. The ledger is append-only, so
// re-exporting the same window is idempotent: the object key is the day and
// the content is identical. External reconciliation (balance deltas vs.
// transaction sums) runs against these archives.
func StartAuditExporter(db *gorm.DB) {
	sched, _ := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	sched.Start()

	exportYesterday := func() {
		now := time.Now().UTC()
		dayStart := now.Truncate(24 * time.Hour).AddDate(0, 0, -1)
		dayEnd := dayStart.AddDate(0, 0, 1)
		day := dayStart.Format("2006-01-02")

		var txns []models.Transaction
		if err := db.
			Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
			Order("created_at ASC").
			Find(&txns).Error; err != nil {
			log.Printf("[AuditExport] DB error: %v", err)
			return
		}
		if len(txns) == 0 {
			return
		}

		payload, err := json.Marshal(txns)
		if err != nil {
			log.Printf("[AuditExport] marshal error: %v", err)
			return
		}

		key := fmt.Sprintf("audit/transactions-%s.json", day)
		url, err := utils.UploadBytesToR2(key, payload, "application/json")
		if err != nil {
			log.Printf("[AuditExport] upload failed for %s: %v", day, err)
			return
		}
		log.Printf("✅ [AuditExport] archived %d transactions for %s → %s", len(txns), day, url)
	}

	_, _ = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 15, 0))),
		gocron.NewTask(exportYesterday),
	)
}
