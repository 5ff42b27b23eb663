package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/cardscan-intake/gateway/internal/models"
)

// RestoreLatest adopts the most recently saved batch: its id, its persisted
// records and its form context (so later saves do not prompt again). Any
// failure along the way leaves the manager empty and only logs; a missing
// history is a normal cold start, not an error.
func (m *Manager) RestoreLatest(ctx context.Context) bool {
	batches, err := m.client.RecentBatches(ctx)
	if err != nil {
		fmt.Printf("[Restore] recent batches unavailable: %v\n", err)
		return false
	}
	if len(batches) == 0 {
		return false
	}
	latest := batches[0]

	saved, err := m.client.SavedData(ctx, latest.BatchID)
	if err != nil {
		fmt.Printf("[Restore] saved data for %s unavailable: %v\n", latest.BatchID, err)
		return false
	}
	if saved == nil || len(saved.Records) == 0 {
		return false
	}

	records := make([]models.ExtractedRecord, len(saved.Records))
	copy(records, saved.Records)

	m.mu.Lock()
	if m.pipeline != nil {
		// An upload raced the restore; the live batch wins.
		m.mu.Unlock()
		return false
	}
	m.batch = &models.Batch{ID: latest.BatchID, CreatedAt: time.Now(), Restored: true}
	m.records = records
	m.form = &models.FormContext{Name: latest.Name, Team: latest.Team, Event: latest.Event}
	m.submissions = 1
	m.mu.Unlock()

	m.publishBatch()
	m.publishRecords()
	fmt.Printf("[Restore] restored batch %s with %d records\n", latest.BatchID, len(records))
	return true
}
