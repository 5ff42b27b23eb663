// Package batch owns the single active upload batch: admission, the
// validate/process/poll pipeline, the aggregated record set and its edits,
// and save/export/email submission.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cardscan-intake/gateway/internal/backend"
	"github.com/cardscan-intake/gateway/internal/models"
)

var (
	// ErrNoActiveBatch is returned by record and save operations before any
	// upload or restore happened.
	ErrNoActiveBatch = errors.New("no active batch")
	// ErrFormContextRequired signals that name/team/event must be captured
	// before the first save, export or email action.
	ErrFormContextRequired = errors.New("form context required")
	// ErrRecordNotFound is returned for an out-of-range record index.
	ErrRecordNotFound = errors.New("record index out of range")
	// ErrUnknownField is returned for edits to a field that does not exist.
	ErrUnknownField = errors.New("unknown record field")
)

// pipelineTask is a handle on the background pipeline goroutine. Stop
// cancels its context and waits for the goroutine to exit, so at most one
// pipeline ever touches manager state.
type pipelineTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *pipelineTask) Stop() {
	t.cancel()
	<-t.done
}

// Manager orchestrates the active batch. All state behind mu; the batch and
// record list are replaced wholesale on change so snapshots stay consistent.
type Manager struct {
	client          backend.Client
	pollInterval    time.Duration
	maxPollFailures int

	// startMu serializes Start and Close. Without it two concurrent starts
	// could both pass stopPipeline before either registers its task, leaving
	// two live pipelines mutating the same batch.
	startMu sync.Mutex

	mu          sync.RWMutex
	batch       *models.Batch
	records     []models.ExtractedRecord
	form        *models.FormContext
	submissions int
	pipeline    *pipelineTask
	subs        map[int]chan Event
	nextSub     int
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval sets the processing-status poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithMaxPollFailures sets how many consecutive poll failures are tolerated
// before the batch is abandoned.
func WithMaxPollFailures(n int) Option {
	return func(m *Manager) { m.maxPollFailures = n }
}

// NewManager creates a Manager on top of the given backend client.
func NewManager(client backend.Client, opts ...Option) *Manager {
	m := &Manager{
		client:          client,
		pollInterval:    time.Second,
		maxPollFailures: 5,
		subs:            make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start admits and uploads a new batch, replacing any previous one, and
// kicks off the background pipeline. Admission failures reject the batch
// before any network call; upload failures leave the previous batch alone.
func (m *Manager) Start(ctx context.Context, uploads []backend.Upload) (*models.Batch, error) {
	if err := CheckAdmission(uploads); err != nil {
		return nil, err
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.stopPipeline()

	res, err := m.client.UploadFiles(ctx, uploads)
	if err != nil {
		return nil, fmt.Errorf("upload batch: %w", err)
	}

	now := time.Now()
	files := make([]models.FileRecord, 0, len(uploads))
	for i, u := range uploads {
		fr := models.FileRecord{
			Name:         u.Name,
			Size:         u.Size,
			MimeType:     u.ContentType,
			Status:       models.FileStatusPending,
			UploadedAt:   now,
			ParentFolder: parentFolder(u.RelativePath),
		}
		if i < len(res.Files) {
			fr.FileID = res.Files[i].FileID
			fr.StoragePath = res.Files[i].StoragePath
			if res.Files[i].Filename != "" {
				fr.Name = res.Files[i].Filename
			}
		}
		files = append(files, fr)
	}
	b := &models.Batch{ID: res.BatchID, Files: files, CreatedAt: now}

	runID := uuid.New().String()
	pctx, cancel := context.WithCancel(context.Background())
	task := &pipelineTask{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.batch = b
	m.records = nil
	m.pipeline = task
	m.mu.Unlock()

	m.publishBatch()
	m.notify(NoticeSuccess,
		fmt.Sprintf("%d files uploaded successfully", len(files)), "Starting validation...")

	go func() {
		defer close(task.done)
		m.runPipeline(pctx, runID, b.ID)
	}()

	return b.Clone(), nil
}

// Close stops any running pipeline and waits for it to exit.
func (m *Manager) Close() {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.stopPipeline()
}

// WaitIdle blocks until the background pipeline of the current batch has
// finished. It returns immediately when none is running.
func (m *Manager) WaitIdle() {
	m.mu.RLock()
	task := m.pipeline
	m.mu.RUnlock()
	if task != nil {
		<-task.done
	}
}

func (m *Manager) stopPipeline() {
	m.mu.Lock()
	task := m.pipeline
	m.pipeline = nil
	m.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

// Snapshot returns a deep copy of the active batch, or nil.
func (m *Manager) Snapshot() *models.Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batch.Clone()
}

// Records returns a copy of the aggregated record list.
func (m *Manager) Records() []models.ExtractedRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ExtractedRecord, len(m.records))
	copy(out, m.records)
	return out
}

// FormContext returns the cached name/team/event, if captured.
func (m *Manager) FormContext() (models.FormContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.form == nil {
		return models.FormContext{}, false
	}
	return *m.form, true
}

// Submissions counts successful save/email submissions of this session.
func (m *Manager) Submissions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.submissions
}

// UpdateRecord edits one field of one record. The edit is local only; it
// reaches the backend on the next save. The updated list is returned.
func (m *Manager) UpdateRecord(index int, field, value string) ([]models.ExtractedRecord, error) {
	m.mu.Lock()
	if m.batch == nil {
		m.mu.Unlock()
		return nil, ErrNoActiveBatch
	}
	if index < 0 || index >= len(m.records) {
		m.mu.Unlock()
		return nil, ErrRecordNotFound
	}
	next := make([]models.ExtractedRecord, len(m.records))
	copy(next, m.records)
	if !next[index].SetField(field, value) {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	m.records = next
	out := make([]models.ExtractedRecord, len(next))
	copy(out, next)
	m.mu.Unlock()

	m.publishRecords()
	return out, nil
}

// Save persists the record set. On the first submission of the session a
// non-empty form context must be supplied; afterwards the cached one is
// reused and the argument is ignored.
func (m *Manager) Save(ctx context.Context, form *models.FormContext) error {
	return m.submit(ctx, form, false)
}

// SaveForEmail persists the record set against the email-campaign intent.
// Same form-context contract as Save.
func (m *Manager) SaveForEmail(ctx context.Context, form *models.FormContext) error {
	return m.submit(ctx, form, true)
}

// ExportURL saves the current records and returns the backend download link.
// Format "vcf" selects the vCard export, anything else CSV.
func (m *Manager) ExportURL(ctx context.Context, exportFormat string, form *models.FormContext) (string, error) {
	if exportFormat != "vcf" {
		exportFormat = "csv"
	}
	if err := m.submit(ctx, form, false); err != nil {
		return "", err
	}
	m.mu.RLock()
	batchID := m.batch.ID
	m.mu.RUnlock()
	return m.client.DownloadURL(batchID, exportFormat), nil
}

func (m *Manager) submit(ctx context.Context, form *models.FormContext, email bool) error {
	m.mu.RLock()
	if m.batch == nil {
		m.mu.RUnlock()
		return ErrNoActiveBatch
	}
	cached := m.form
	batchID := m.batch.ID
	records := make([]models.ExtractedRecord, len(m.records))
	copy(records, m.records)
	m.mu.RUnlock()

	effective := cached
	if effective == nil {
		if form == nil || form.Empty() {
			return ErrFormContextRequired
		}
		fc := *form
		effective = &fc
	}

	var err error
	if email {
		err = m.client.SaveEmailData(ctx, *effective, batchID, records)
	} else {
		err = m.client.SaveBatch(ctx, *effective, batchID, records)
	}
	if err != nil {
		return fmt.Errorf("save batch: %w", err)
	}

	m.mu.Lock()
	if m.form == nil {
		m.form = effective
	}
	m.submissions++
	m.mu.Unlock()
	return nil
}

// updateFiles replaces the file list with a transformed copy and publishes
// the new batch snapshot.
func (m *Manager) updateFiles(fn func(f models.FileRecord) models.FileRecord) {
	m.mu.Lock()
	if m.batch == nil {
		m.mu.Unlock()
		return
	}
	nb := m.batch.Clone()
	for i := range nb.Files {
		nb.Files[i] = fn(nb.Files[i])
	}
	m.batch = nb
	m.mu.Unlock()

	m.publishBatch()
}

func (m *Manager) setStatusWhere(from, to models.FileStatus) {
	m.updateFiles(func(f models.FileRecord) models.FileRecord {
		if f.Status == from && f.Status.CanAdvanceTo(to) {
			f.Status = to
		}
		return f
	})
}

func (m *Manager) failNonTerminal() {
	m.updateFiles(func(f models.FileRecord) models.FileRecord {
		if !f.Status.Terminal() {
			f.Status = models.FileStatusError
		}
		return f
	})
}

func (m *Manager) countStatus(s models.FileStatus) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.batch == nil {
		return 0
	}
	n := 0
	for _, f := range m.batch.Files {
		if f.Status == s {
			n++
		}
	}
	return n
}

func (m *Manager) allTerminal() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.batch == nil || len(m.batch.Files) == 0 {
		return false
	}
	for _, f := range m.batch.Files {
		if !f.Status.Terminal() {
			return false
		}
	}
	return true
}

func parentFolder(relPath string) string {
	if i := strings.IndexByte(relPath, '/'); i > 0 {
		return relPath[:i]
	}
	return "Direct Upload"
}
