package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardscan-intake/gateway/internal/backend"
	"github.com/cardscan-intake/gateway/internal/models"
	"github.com/cardscan-intake/gateway/internal/testutil"
)

func TestApplyFileStatusesIsIdempotent(t *testing.T) {
	m := newTestManager(testutil.NewFakeBackend())
	defer m.Close()

	m.batch = &models.Batch{ID: "b1", Files: []models.FileRecord{
		{FileID: "f1", Name: "a.png", Status: models.FileStatusProcessing},
		{FileID: "f2", Name: "b.png", Status: models.FileStatusProcessing},
	}}

	poll := map[string]backend.FileStatusInfo{
		"f1": {Status: "completed", Records: []models.ExtractedRecord{{Name: "Alice Chen"}}},
		"f2": {Status: "extracting"},
	}

	m.applyFileStatuses(poll)
	first := m.Snapshot()
	m.applyFileStatuses(poll)
	second := m.Snapshot()

	assert.Equal(t, first, second, "re-applying the same poll response must change nothing")
	assert.Equal(t, models.FileStatusCompleted, second.Files[0].Status)
	assert.Equal(t, 1, second.Files[0].RecordCount)
	assert.Equal(t, models.FileStatusProcessing, second.Files[1].Status)
}

func TestApplyFileStatusesNeverRegresses(t *testing.T) {
	m := newTestManager(testutil.NewFakeBackend())
	defer m.Close()

	m.batch = &models.Batch{ID: "b1", Files: []models.FileRecord{
		{FileID: "f1", Status: models.FileStatusCompleted},
		{FileID: "f2", Status: models.FileStatusProcessing},
	}}

	m.applyFileStatuses(map[string]backend.FileStatusInfo{
		"f1": {Status: "processing"},
		"f2": {Status: "validating"},
	})

	snap := m.Snapshot()
	assert.Equal(t, models.FileStatusCompleted, snap.Files[0].Status)
	assert.Equal(t, models.FileStatusProcessing, snap.Files[1].Status)
}

func TestPollGivesUpAfterConsecutiveFailures(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.FileStatusErrs = []error{
		errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
	}
	fake.BatchState = "processing"
	m := newTestManager(fake) // tolerates 3 consecutive failures
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	for _, f := range m.Snapshot().Files {
		assert.Equal(t, models.FileStatusError, f.Status, f.Name)
	}
	assert.Equal(t, 3, fake.Calls("FileStatuses"))
	assert.Equal(t, 1, fake.Calls("BatchStatus"), "coarse status gets one last look")
}

func TestPollRecoversFromTransientFailures(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.FileStatusErrs = []error{errors.New("timeout"), errors.New("timeout")}
	fake.RecordsPerFile["alice.png"] = []models.ExtractedRecord{{Name: "Alice Chen"}}
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	for _, f := range m.Snapshot().Files {
		assert.Equal(t, models.FileStatusCompleted, f.Status, f.Name)
	}
}

func TestPollFallsBackToCompletedBatchStatus(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.FileStatusErrs = []error{
		errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
	}
	fake.BatchState = "completed"
	fake.RecordsPerFile["alice.png"] = []models.ExtractedRecord{{Name: "Alice Chen"}}
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	require.Len(t, m.Records(), 1)
	assert.Equal(t, 1, fake.Calls("ExtractedData"))
}

func TestCloseStopsThePollLoop(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.StatusScript = []map[string]backend.FileStatusInfo{
		{"alice.png": {Status: "processing"}, "bob.jpg": {Status: "processing"}},
	}
	m := newTestManager(fake)

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return fake.Calls("FileStatuses") >= 2
	}, time.Second, time.Millisecond, "poll loop should be ticking")

	m.Close()
	after := fake.Calls("FileStatuses")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, fake.Calls("FileStatuses"), "no polls after Close")
	assert.Equal(t, 0, fake.Calls("ExtractedData"))
}

func TestExtractedDataFailureKeepsTerminalStatuses(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.ExtractedErr = errors.New("boom")
	m := newTestManager(fake)
	defer m.Close()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	for _, f := range m.Snapshot().Files {
		assert.Equal(t, models.FileStatusCompleted, f.Status, f.Name)
	}
	assert.Empty(t, m.Records())
}

func TestRestoreLatest(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.Recent = []backend.BatchSummary{
		{BatchID: "batch-old", Name: "Dana", Team: "Sales", Event: "Expo 2026"},
		{BatchID: "batch-older", Name: "Eli", Team: "Ops", Event: "Fair"},
	}
	fake.Saved["batch-old"] = &backend.SavedData{
		Records: []models.ExtractedRecord{
			{Name: "Alice Chen", Phone: "111"},
			{Name: "Bob Singh", Phone: "222"},
		},
		TotalRecords: 2,
	}
	m := newTestManager(fake)
	defer m.Close()

	require.True(t, m.RestoreLatest(context.Background()))

	snap := m.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "batch-old", snap.ID)
	assert.True(t, snap.Restored)
	assert.Empty(t, snap.Files)
	require.Len(t, m.Records(), 2)

	form, ok := m.FormContext()
	require.True(t, ok)
	assert.Equal(t, models.FormContext{Name: "Dana", Team: "Sales", Event: "Expo 2026"}, form)
	assert.Equal(t, 1, m.Submissions())

	// The restored context satisfies the prompt-once rule.
	require.NoError(t, m.Save(context.Background(), nil))
	require.Len(t, fake.SaveCalls, 1)
	assert.Equal(t, "Dana", fake.SaveCalls[0].Form.Name)
}

func TestRestoreWithEmptyHistoryStaysEmpty(t *testing.T) {
	fake := testutil.NewFakeBackend()
	m := newTestManager(fake)
	defer m.Close()

	assert.False(t, m.RestoreLatest(context.Background()))
	assert.Nil(t, m.Snapshot())

	fake.RecentErr = errors.New("connection refused")
	assert.False(t, m.RestoreLatest(context.Background()))
	assert.Nil(t, m.Snapshot())
}

func TestRestoreWithoutSavedRecordsStaysEmpty(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.Recent = []backend.BatchSummary{{BatchID: "batch-old"}}
	m := newTestManager(fake)
	defer m.Close()

	assert.False(t, m.RestoreLatest(context.Background()))
	assert.Nil(t, m.Snapshot())
}

func TestEventStream(t *testing.T) {
	fake := testutil.NewFakeBackend()
	fake.RecordsPerFile["alice.png"] = []models.ExtractedRecord{{Name: "Alice Chen"}}
	m := newTestManager(fake)
	defer m.Close()

	events, cancel := m.Subscribe()
	defer cancel()

	_, err := m.Start(context.Background(), twoCards())
	require.NoError(t, err)
	m.WaitIdle()

	var sawBatch, sawRecords, sawNotice bool
	for done := false; !done; {
		select {
		case ev := <-events:
			switch ev.Type {
			case EventBatchUpdated:
				sawBatch = true
			case EventRecordsUpdated:
				sawRecords = true
			case EventNotice:
				require.NotNil(t, ev.Notice)
				assert.NotEmpty(t, ev.Notice.Title)
				sawNotice = true
			}
		default:
			done = true
		}
	}
	assert.True(t, sawBatch, "expected batch snapshots on the stream")
	assert.True(t, sawRecords, "expected a records event on the stream")
	assert.True(t, sawNotice, "expected notices on the stream")
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	m := newTestManager(testutil.NewFakeBackend())
	defer m.Close()

	events, cancel := m.Subscribe()
	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open, "cancel must close the subscription channel")
}
