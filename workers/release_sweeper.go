// workers/release_sweeper.go
package workers

import (
	"log"
	"time"

	"easyearn-backend/services"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// StartReleaseSweeper periodically releases expired pending holds for every
// user that has one due. The dashboard triggers the same sweep on load; the
// per-claim conditional update in the release path makes the overlap safe.
func StartReleaseSweeper(db *gorm.DB, rewards *services.RewardService, interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			var userIDs []string
			err := db.Table("task_claims").
				Where("credited_at IS NULL AND pending_until IS NOT NULL AND pending_until <= ?", time.Now().UTC()).
				Distinct().
				Pluck("user_id", &userIDs).Error
			if err != nil {
				log.Printf("[ReleaseSweeper] DB error: %v", err)
				return
			}

			total := 0
			for _, id := range userIDs {
				released, err := rewards.ReleaseDuePending(id)
				if err != nil {
					log.Printf("[ReleaseSweeper] failed to release for user %s: %v", id, err)
					continue
				}
				total += released
			}
			if total > 0 {
				log.Printf("✅ [ReleaseSweeper] released %d held claims across %d users", total, len(userIDs))
			}
		}),
	)
}
