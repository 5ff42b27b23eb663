package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardscan-intake/gateway/internal/backend"
	"github.com/cardscan-intake/gateway/internal/models"
	"github.com/cardscan-intake/gateway/internal/testutil"
)

func newTestManager(f *testutil.FakeBackend) *Manager {
	return NewManager(f,
		WithPollInterval(2*time.Millisecond),
		WithMaxPollFailures(3))
}

func twoCards() []backend.Upload {
	return []backend.Upload{
		{Name: "alice.png", ContentType: "image/png", Size: 100, Data: []byte("a")},
		{Name: "bob.jpg", ContentType: "image/jpeg", Size: 200, Data: []byte("b")},
	}
}

func TestRejectedBatchMakesNoNetworkCalls(t *testing.T) {
	fake := testutil.NewFakeBackend()
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), []backend.Upload{{Name: "run.exe", Size: 1}})

	var admission *AdmissionError
	require.ErrorAs(t, err, &admission)
	assert.Equal(t, "Invalid file types detected", admission.Title)
	assert.Equal(t, 0, fake.TotalCalls(), "rejected batch must not touch the backend")
	assert.Nil(t, m.Snapshot())
}

func TestHappyPathTwoFiles(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.RecordsPerFile["alice.png"] = []models.ExtractedRecord{
		{Name: "Alice Chen", Phone: "111", Company: "Acme"},
	}
	fake.RecordsPerFile["bob.jpg"] = []models.ExtractedRecord{
		{Name: "Bob Singh", Phone: "222", Company: "Globex"},
	}
	m := newTestManager(fake)
	defer m.Close()

	b, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	require.Len(t, b.Files, 2)
	assert.Equal(t, "batch-test", b.ID)
	assert.Equal(t, models.FileStatusPending, b.Files[0].Status)
	assert.Equal(t, "Direct Upload", b.Files[0].ParentFolder)

	m.WaitIdle()

	snap := m.Snapshot()
	require.NotNil(t, snap)
	for _, f := range snap.Files {
		assert.Equal(t, models.FileStatusCompleted, f.Status, f.Name)
		assert.Equal(t, 1, f.RecordCount, f.Name)
		require.NotNil(t, f.Validation, f.Name)
		assert.True(t, f.Validation.IsBusinessCard)
	}

	records := m.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "Alice Chen", records[0].Name)
	assert.Equal(t, "alice.png", records[0].SourceFile)
	assert.Equal(t, "Bob Singh", records[1].Name)

	assert.Equal(t, 1, fake.Calls("UploadFiles"))
	assert.Equal(t, 1, fake.Calls("StartProcessing"))
	assert.Equal(t, 1, fake.Calls("ExtractedData"))
}

func TestNoValidDocumentsSkipsProcessing(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.InvalidNames["alice.png"] = true
	fake.InvalidNames["bob.jpg"] = true
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	snap := m.Snapshot()
	for _, f := range snap.Files {
		assert.Equal(t, models.FileStatusInvalid, f.Status, f.Name)
	}
	assert.Equal(t, 0, fake.Calls("StartProcessing"),
		"processing must not start when no document validated")
	assert.Empty(t, m.Records())
}

func TestFileMissingFromBothListsBecomesInvalid(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.OmittedNames["bob.jpg"] = true
	fake.RecordsPerFile["alice.png"] = []models.ExtractedRecord{{Name: "Alice Chen"}}
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	snap := m.Snapshot()
	byName := map[string]models.FileRecord{}
	for _, f := range snap.Files {
		byName[f.Name] = f
	}
	assert.Equal(t, models.FileStatusCompleted, byName["alice.png"].Status)
	assert.Equal(t, models.FileStatusInvalid, byName["bob.jpg"].Status)
	require.Len(t, m.Records(), 1)
}

func TestUploadFailureLeavesNoBatch(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.UploadErr = errors.New("connection refused")
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.Error(t, err)
	assert.Nil(t, m.Snapshot())
	assert.Empty(t, m.Records())
}

func TestValidationFailureMarksAllFilesError(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.ValidateErr = errors.New("boom")
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	for _, f := range m.Snapshot().Files {
		assert.Equal(t, models.FileStatusError, f.Status, f.Name)
	}
	assert.Equal(t, 0, fake.Calls("StartProcessing"))
}

func TestUpdateRecord(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.RecordsPerFile["alice.png"] = []models.ExtractedRecord{{Name: "Alice Chen", Phone: "111"}}
	fake.RecordsPerFile["bob.jpg"] = []models.ExtractedRecord{{Name: "Bob Singh"}}
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	before := m.Records()
	updated, err := m.UpdateRecord(0, "phone", "999")
	require.NoError(t, err)
	assert.Equal(t, "999", updated[0].Phone)
	assert.Equal(t, "111", before[0].Phone, "earlier snapshot must not change")
	assert.Equal(t, "999", m.Records()[0].Phone)

	_, err = m.UpdateRecord(5, "phone", "x")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = m.UpdateRecord(0, "fax", "x")
	assert.ErrorIs(t, err, ErrUnknownField)

	// The edit travels with the next save.
	require.NoError(t, m.Save(context.Background(), &models.FormContext{Name: "n", Team: "t", Event: "e"}))
	require.Len(t, fake.SaveCalls, 1)
	assert.Equal(t, "999", fake.SaveCalls[0].Records[0].Phone)
}

func TestFormContextPromptOnceThenReused(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.RecordsPerFile["alice.png"] = []models.ExtractedRecord{{Name: "Alice Chen"}}
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	// First action without context is refused.
	err = m.Save(context.Background(), nil)
	assert.ErrorIs(t, err, ErrFormContextRequired)
	_, err = m.ExportURL(context.Background(), "csv", nil)
	assert.ErrorIs(t, err, ErrFormContextRequired)
	assert.Empty(t, fake.SaveCalls)

	form := &models.FormContext{Name: "Dana", Team: "Sales", Event: "Expo 2026"}
	require.NoError(t, m.Save(context.Background(), form))

	// From now on the cached context is reused silently.
	require.NoError(t, m.SaveForEmail(context.Background(), nil))
	url, err := m.ExportURL(context.Background(), "vcf", nil)
	require.NoError(t, err)
	assert.Contains(t, url, "/export-vcf/batch-test")

	require.Len(t, fake.SaveCalls, 3)
	for _, call := range fake.SaveCalls {
		assert.Equal(t, *form, call.Form)
		assert.Equal(t, "batch-test", call.BatchID)
	}
	assert.True(t, fake.SaveCalls[1].Email)
	assert.False(t, fake.SaveCalls[2].Email, "export saves through the regular channel")
	assert.Equal(t, 3, m.Submissions())

	got, ok := m.FormContext()
	require.True(t, ok)
	assert.Equal(t, *form, got)
}

func TestExportPerformsSaveFirst(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.RecordsPerFile["alice.png"] = []models.ExtractedRecord{{Name: "Alice Chen"}}
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	url, err := m.ExportURL(context.Background(), "csv",
		&models.FormContext{Name: "Dana", Team: "Sales", Event: "Expo"})
	require.NoError(t, err)
	assert.Contains(t, url, "/download/batch-test")
	require.Len(t, fake.SaveCalls, 1, "export must persist before handing out the link")
}

func TestSaveWithoutBatch(t *testing.T) {
	m := newTestManager(testutil.NewFakeBackend())
	defer m.Close()

	err := m.Save(context.Background(), &models.FormContext{Name: "n"})
	assert.ErrorIs(t, err, ErrNoActiveBatch)
	_, err = m.UpdateRecord(0, "name", "x")
	assert.ErrorIs(t, err, ErrNoActiveBatch)
}

// overlapBackend flags any two uploads in flight at the same time. The sleep
// widens the window in which a racing second Start would have to wait.
type overlapBackend struct {
	*testutil.FakeBackend
	mu       sync.Mutex
	inFlight int
	overlap  bool
}

func (b *overlapBackend) UploadFiles(ctx context.Context, files []backend.Upload) (*backend.UploadResult, error) {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight > 1 {
		b.overlap = true
	}
	b.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	res, err := b.FakeBackend.UploadFiles(ctx, files)

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
	return res, err
}

func TestConcurrentStartsKeepOnePipeline(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.RecordsPerFile["alice.png"] = []models.ExtractedRecord{{Name: "Alice Chen"}}
	slow := &overlapBackend{FakeBackend: fake}
	m := NewManager(slow,
		WithPollInterval(2*time.Millisecond),
		WithMaxPollFailures(3))
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Start(context.Background(), twoCards())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	m.WaitIdle()

	assert.False(t, slow.overlap,
		"a second start must stop the previous pipeline before it uploads")
	assert.Equal(t, 2, fake.Calls("UploadFiles"))

	snap := m.Snapshot()
	require.NotNil(t, snap)
	for _, f := range snap.Files {
		assert.True(t, f.Status.Terminal(), f.Name)
	}
}

func TestParentFolderFromRelativePath(t *testing.T) {
	fake := testutil.NewFakeBackend()
	m := newTestManager(fake)
	defer m.Close()

	uploads := []backend.Upload{
		{Name: "a.png", Size: 1, RelativePath: "Berlin Expo/day1/a.png"},
		{Name: "b.png", Size: 1},
	}
	b, err := m.Start(context.Background(), uploads)
	require.NoError(t, err)
	m.WaitIdle()

	assert.Equal(t, "Berlin Expo", b.Files[0].ParentFolder)
	assert.Equal(t, "Direct Upload", b.Files[1].ParentFolder)
}
