// services/scheduler.go
package services

import (
	"log"
	"os"
	"strconv"
	"time"

	"pack-battle-system/models"

	"github.com/go-co-op/gocron/v2"
)

const defaultRoundDeadlineMin = 60

// StartDeadlineSweeper watches for battles stuck on a non-pulling
// participant. A battle IN_PROGRESS longer than BATTLE_ROUND_DEADLINE_MIN
// has its stragglers' remaining rounds forfeited and is settled with the
// totals drawn so far, so a stalled participant cannot block settlement
// indefinitely.
func (s *SettlementService) StartDeadlineSweeper() {
	deadline := defaultRoundDeadlineMin
	if v := os.Getenv("BATTLE_ROUND_DEADLINE_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			deadline = n
		}
	}

	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			cutoff := time.Now().Add(-time.Duration(deadline) * time.Minute)
			var battles []models.Battle
			err := s.DB.Where("status = ? AND started_at <= ?", models.BattleStatusInProgress, cutoff).
				Find(&battles).Error
			if err != nil {
				log.Printf("[Sweeper] DB error: %v", err)
				return
			}

			for _, b := range battles {
				if _, err := s.ForfeitAndSettle(b.ID); err != nil {
					if err == ErrAlreadySettled {
						continue
					}
					log.Printf("[Sweeper] Failed to settle overdue battle %s: %v", b.ID, err)
				} else {
					log.Printf("[Sweeper] Settled overdue battle %s", b.ID)
				}
			}
		}),
	)
}
