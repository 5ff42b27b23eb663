package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/cardscan-intake/gateway/internal/backend"
	"github.com/cardscan-intake/gateway/internal/models"
)

// runPipeline drives one batch from validation through processing to the
// final record flatten. It runs in its own goroutine and exits on context
// cancellation or when every file reached a terminal status.
func (m *Manager) runPipeline(ctx context.Context, runID, batchID string) {
	tag := runID[:8]
	fmt.Printf("[Batch %s] validating batch %s\n", tag, batchID)

	m.setStatusWhere(models.FileStatusPending, models.FileStatusValidating)

	summary, err := m.client.ValidateFiles(ctx, batchID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		fmt.Printf("[Batch %s] validation call failed: %v\n", tag, err)
		m.failNonTerminal()
		m.notify(NoticeError, "Validation failed",
			"Could not validate the uploaded files. Please try again.")
		return
	}
	fmt.Printf("[Batch %s] validation summary: %d valid, %d invalid\n",
		tag, summary.ValidCount, summary.InvalidCount)

	detail, err := m.client.ValidationStatus(ctx, batchID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		fmt.Printf("[Batch %s] validation status failed: %v\n", tag, err)
		m.failNonTerminal()
		m.notify(NoticeError, "Validation failed",
			"Could not retrieve validation results. Please try again.")
		return
	}

	m.applyValidation(detail)

	valid := m.countStatus(models.FileStatusValid)
	invalid := m.countStatus(models.FileStatusInvalid)
	if valid == 0 {
		fmt.Printf("[Batch %s] no valid documents, stopping\n", tag)
		m.notify(NoticeError, "No business cards found",
			"None of the uploaded files look like business cards. Nothing to process.")
		return
	}
	desc := fmt.Sprintf("%d business cards found. Starting processing...", valid)
	if invalid > 0 {
		desc = fmt.Sprintf("%d business cards found, %d invalid files. Starting processing...", valid, invalid)
	}
	m.notify(NoticeSuccess, "Validation completed!", desc)

	if err := m.client.StartProcessing(ctx, batchID); err != nil {
		if ctx.Err() != nil {
			return
		}
		fmt.Printf("[Batch %s] process start failed: %v\n", tag, err)
		m.failNonTerminal()
		m.notify(NoticeError, "Processing failed to start",
			"The extraction service rejected the batch. Please try again.")
		return
	}
	m.setStatusWhere(models.FileStatusValid, models.FileStatusProcessing)

	m.pollUntilDone(ctx, tag, batchID)
}

// applyValidation reconciles backend verdicts into the file list. Files the
// backend mentions in neither list are rejected rather than left hanging.
func (m *Manager) applyValidation(detail *backend.ValidationDetail) {
	type verdict struct {
		status models.FileStatus
		result *models.ValidationResult
	}
	verdicts := make(map[string]verdict, len(detail.Valid)+len(detail.Invalid))
	for _, e := range detail.Valid {
		verdicts[e.FileID] = verdict{models.FileStatusValid, e.Validation}
	}
	for _, e := range detail.Invalid {
		verdicts[e.FileID] = verdict{models.FileStatusInvalid, e.Validation}
	}

	m.updateFiles(func(f models.FileRecord) models.FileRecord {
		if f.Status.Terminal() {
			return f
		}
		v, ok := verdicts[f.FileID]
		if !ok {
			f.Status = models.FileStatusInvalid
			return f
		}
		f.Status = v.status
		f.Validation = v.result
		return f
	})
}

// pollUntilDone polls the per-file status map until every file is terminal.
// Poll failures are tolerated up to maxPollFailures in a row; then the
// coarse batch status gets one last look before the batch is abandoned.
func (m *Manager) pollUntilDone(ctx context.Context, tag, batchID string) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		statuses, err := m.client.FileStatuses(ctx, batchID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			fmt.Printf("[Batch %s] status poll failed (%d/%d): %v\n",
				tag, failures, m.maxPollFailures, err)
			if failures < m.maxPollFailures {
				continue
			}
			if bs, berr := m.client.BatchStatus(ctx, batchID); berr == nil && bs.Status == "completed" {
				m.finish(ctx, tag, batchID)
				return
			}
			m.failNonTerminal()
			m.notify(NoticeError, "Processing status unavailable",
				"Lost contact with the extraction service. Please upload the batch again.")
			return
		}
		failures = 0

		m.applyFileStatuses(statuses)
		if m.allTerminal() {
			m.finish(ctx, tag, batchID)
			return
		}
	}
}

// applyFileStatuses folds one poll response into the file list. Applying
// the same response twice is a no-op: statuses are set, never accumulated.
func (m *Manager) applyFileStatuses(statuses map[string]backend.FileStatusInfo) {
	m.updateFiles(func(f models.FileRecord) models.FileRecord {
		info, ok := statuses[f.FileID]
		if !ok {
			return f
		}
		if f.Validation == nil && info.Validation != nil {
			f.Validation = info.Validation
		}
		if n := len(info.Records); n > 0 {
			f.RecordCount = n
		}
		next := fileStatusFromWire(info.Status)
		if next != "" && f.Status.CanAdvanceTo(next) {
			f.Status = next
		}
		return f
	})
}

func fileStatusFromWire(s string) models.FileStatus {
	switch s {
	case "pending", "uploaded":
		return models.FileStatusPending
	case "validating":
		return models.FileStatusValidating
	case "valid":
		return models.FileStatusValid
	case "invalid":
		return models.FileStatusInvalid
	case "processing", "extracting":
		return models.FileStatusProcessing
	case "completed":
		return models.FileStatusCompleted
	case "error", "failed":
		return models.FileStatusError
	}
	return ""
}

// finish fetches the extracted records once, flattens them in file order and
// replaces the aggregated record list. When the fetch fails the files keep
// their terminal statuses and the record list stays as it was.
func (m *Manager) finish(ctx context.Context, tag, batchID string) {
	extractions, err := m.client.ExtractedData(ctx, batchID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		fmt.Printf("[Batch %s] extracted-data fetch failed: %v\n", tag, err)
		m.notify(NoticeError, "Could not fetch extracted data",
			"Processing finished but the results could not be retrieved.")
		return
	}

	byFile := make(map[string][]models.ExtractedRecord, len(extractions))
	for _, ex := range extractions {
		byFile[ex.FileID] = ex.Records
	}

	m.mu.Lock()
	var flat []models.ExtractedRecord
	if m.batch != nil {
		nb := m.batch.Clone()
		for i := range nb.Files {
			f := &nb.Files[i]
			recs := byFile[f.FileID]
			for _, r := range recs {
				r.FileID = f.FileID
				r.SourceFile = f.Name
				flat = append(flat, r)
			}
			if len(recs) > 0 {
				f.RecordCount = len(recs)
			}
		}
		m.batch = nb
	}
	m.records = flat
	total := len(flat)
	m.mu.Unlock()

	m.publishBatch()
	m.publishRecords()
	fmt.Printf("[Batch %s] processing complete, %d records\n", tag, total)
	m.notify(NoticeSuccess, "Processing completed!",
		fmt.Sprintf("Extracted %d records from your documents.", total))
}
