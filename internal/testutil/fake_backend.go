// fake_backend.go - Scripted in-memory backend client for testing
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/cardscan-intake/gateway/internal/backend"
	"github.com/cardscan-intake/gateway/internal/models"
)

// SaveCall records one save-data or save-email-data submission.
type SaveCall struct {
	Form    models.FormContext
	BatchID string
	Records []models.ExtractedRecord
	Email   bool
}

// FakeBackend implements backend.Client in memory. Verdicts and poll
// responses are scripted through the exported fields; every call is
// counted so tests can assert on traffic.
type FakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	// BatchID is handed out by UploadFiles. Defaults to "batch-test".
	BatchID string

	// Error injection, one per operation.
	UploadErr           error
	ValidateErr         error
	ValidationStatusErr error
	ProcessErr          error
	ExtractedErr        error
	RecentErr           error
	SavedErr            error
	SaveErr             error

	// InvalidNames judges the named files as not business cards;
	// OmittedNames leaves them out of both verdict lists entirely.
	InvalidNames map[string]bool
	OmittedNames map[string]bool

	// StatusScript holds successive FileStatuses responses keyed by
	// filename; the last entry repeats. Empty means every valid file
	// reports completed right away. FileStatusErrs are consumed first,
	// one per call.
	StatusScript   []map[string]backend.FileStatusInfo
	FileStatusErrs []error

	// RecordsPerFile supplies extraction output keyed by filename.
	// Files without an entry yield no records.
	RecordsPerFile map[string][]models.ExtractedRecord

	// Batch-level status returned by BatchStatus.
	BatchState string

	// Session restore fixtures.
	Recent []backend.BatchSummary
	Saved  map[string]*backend.SavedData

	uploads     []backend.Upload
	idsByName   map[string]string
	nameByID    map[string]string
	statusCalls int
	nextID      int

	SaveCalls []SaveCall
}

// NewFakeBackend creates a fake where every file validates as a business
// card and completes immediately with no extracted records.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		calls:          make(map[string]int),
		BatchID:        "batch-test",
		InvalidNames:   make(map[string]bool),
		OmittedNames:   make(map[string]bool),
		RecordsPerFile: make(map[string][]models.ExtractedRecord),
		BatchState:     "processing",
		Saved:          make(map[string]*backend.SavedData),
		idsByName:      make(map[string]string),
		nameByID:       make(map[string]string),
	}
}

var _ backend.Client = (*FakeBackend)(nil)

func (f *FakeBackend) record(op string) {
	f.calls[op]++
}

// Calls returns how often the named operation was invoked.
func (f *FakeBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of backend invocations of any kind.
func (f *FakeBackend) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// FileID returns the id assigned to an uploaded filename.
func (f *FakeBackend) FileID(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idsByName[name]
}

func (f *FakeBackend) UploadFiles(_ context.Context, files []backend.Upload) (*backend.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UploadFiles")
	if f.UploadErr != nil {
		return nil, f.UploadErr
	}

	f.uploads = append([]backend.Upload(nil), files...)
	res := &backend.UploadResult{BatchID: f.BatchID}
	for _, u := range files {
		f.nextID++
		id := fmt.Sprintf("file-%d", f.nextID)
		f.idsByName[u.Name] = id
		f.nameByID[id] = u.Name
		res.Files = append(res.Files, backend.UploadedFile{
			FileID:      id,
			Filename:    u.Name,
			Size:        u.Size,
			StoragePath: "/uploads/" + f.BatchID + "/" + u.Name,
		})
	}
	return res, nil
}

func (f *FakeBackend) ValidateFiles(_ context.Context, _ string) (*backend.ValidationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ValidateFiles")
	if f.ValidateErr != nil {
		return nil, f.ValidateErr
	}

	summary := &backend.ValidationSummary{}
	for _, u := range f.uploads {
		if f.OmittedNames[u.Name] {
			continue
		}
		if f.InvalidNames[u.Name] {
			summary.InvalidCount++
		} else {
			summary.ValidCount++
		}
	}
	return summary, nil
}

func (f *FakeBackend) ValidationStatus(_ context.Context, _ string) (*backend.ValidationDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ValidationStatus")
	if f.ValidationStatusErr != nil {
		return nil, f.ValidationStatusErr
	}

	detail := &backend.ValidationDetail{}
	for _, u := range f.uploads {
		if f.OmittedNames[u.Name] {
			continue
		}
		entry := backend.ValidationEntry{FileID: f.idsByName[u.Name], Filename: u.Name}
		if f.InvalidNames[u.Name] {
			entry.Validation = &models.ValidationResult{
				IsBusinessCard: false, Confidence: "high", Reasoning: "not a business card",
			}
			detail.Invalid = append(detail.Invalid, entry)
		} else {
			entry.Validation = &models.ValidationResult{
				IsBusinessCard: true, Confidence: "high", Reasoning: "business card detected",
			}
			detail.Valid = append(detail.Valid, entry)
		}
	}
	return detail, nil
}

func (f *FakeBackend) StartProcessing(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StartProcessing")
	return f.ProcessErr
}

func (f *FakeBackend) BatchStatus(_ context.Context, _ string) (*backend.BatchStatusInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("BatchStatus")
	total := len(f.uploads)
	return &backend.BatchStatusInfo{
		Status:   f.BatchState,
		Progress: backend.Progress{TotalFiles: total, Processed: total, Percentage: 100},
	}, nil
}

func (f *FakeBackend) FileStatuses(_ context.Context, _ string) (map[string]backend.FileStatusInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FileStatuses")

	if len(f.FileStatusErrs) > 0 {
		err := f.FileStatusErrs[0]
		f.FileStatusErrs = f.FileStatusErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	if len(f.StatusScript) > 0 {
		idx := f.statusCalls
		if idx >= len(f.StatusScript) {
			idx = len(f.StatusScript) - 1
		}
		f.statusCalls++
		out := make(map[string]backend.FileStatusInfo, len(f.StatusScript[idx]))
		for name, info := range f.StatusScript[idx] {
			info.Filename = name
			out[f.idsByName[name]] = info
		}
		return out, nil
	}

	out := make(map[string]backend.FileStatusInfo, len(f.uploads))
	for _, u := range f.uploads {
		status := "completed"
		if f.InvalidNames[u.Name] || f.OmittedNames[u.Name] {
			status = "invalid"
		}
		out[f.idsByName[u.Name]] = backend.FileStatusInfo{
			Filename: u.Name,
			Status:   status,
			Records:  f.RecordsPerFile[u.Name],
		}
	}
	return out, nil
}

func (f *FakeBackend) ExtractedData(_ context.Context, _ string) ([]backend.FileExtraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ExtractedData")
	if f.ExtractedErr != nil {
		return nil, f.ExtractedErr
	}

	var out []backend.FileExtraction
	for _, u := range f.uploads {
		recs, ok := f.RecordsPerFile[u.Name]
		if !ok {
			continue
		}
		out = append(out, backend.FileExtraction{
			FileID:   f.idsByName[u.Name],
			Filename: u.Name,
			Records:  append([]models.ExtractedRecord(nil), recs...),
		})
	}
	return out, nil
}

func (f *FakeBackend) RecentBatches(_ context.Context) ([]backend.BatchSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RecentBatches")
	if f.RecentErr != nil {
		return nil, f.RecentErr
	}
	return append([]backend.BatchSummary(nil), f.Recent...), nil
}

func (f *FakeBackend) SavedData(_ context.Context, batchID string) (*backend.SavedData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SavedData")
	if f.SavedErr != nil {
		return nil, f.SavedErr
	}
	saved, ok := f.Saved[batchID]
	if !ok {
		return &backend.SavedData{}, nil
	}
	return saved, nil
}

func (f *FakeBackend) SaveBatch(_ context.Context, form models.FormContext, batchID string, records []models.ExtractedRecord) error {
	return f.save(form, batchID, records, false)
}

func (f *FakeBackend) SaveEmailData(_ context.Context, form models.FormContext, batchID string, records []models.ExtractedRecord) error {
	return f.save(form, batchID, records, true)
}

func (f *FakeBackend) save(form models.FormContext, batchID string, records []models.ExtractedRecord, email bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if email {
		f.record("SaveEmailData")
	} else {
		f.record("SaveBatch")
	}
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.SaveCalls = append(f.SaveCalls, SaveCall{
		Form:    form,
		BatchID: batchID,
		Records: append([]models.ExtractedRecord(nil), records...),
		Email:   email,
	})
	return nil
}

func (f *FakeBackend) DownloadURL(batchID, format string) string {
	if format == "vcf" {
		return "http://backend.test/api/v1/export-vcf/" + batchID
	}
	return "http://backend.test/api/v1/download/" + batchID
}
