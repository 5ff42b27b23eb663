package batch

import (
	"time"

	"github.com/cardscan-intake/gateway/internal/models"
)

// EventType discriminates the frames pushed to subscribers.
type EventType string

const (
	// EventBatchUpdated carries a fresh batch snapshot after file statuses
	// changed.
	EventBatchUpdated EventType = "batch_updated"
	// EventRecordsUpdated carries the replaced aggregated record list.
	EventRecordsUpdated EventType = "records_updated"
	// EventNotice carries a one-shot user-facing notification.
	EventNotice EventType = "notice"
)

// NoticeLevel mirrors the toast levels of the UI.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a human-readable notification with a title and a description.
type Notice struct {
	Level       NoticeLevel `json:"level"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
}

// Event is one frame of the orchestrator's event stream.
type Event struct {
	Type      EventType                `json:"type"`
	Timestamp time.Time                `json:"timestamp"`
	Batch     *models.Batch            `json:"batch,omitempty"`
	Records   []models.ExtractedRecord `json:"records,omitempty"`
	Notice    *Notice                  `json:"notice,omitempty"`
}

// Subscribe registers an event channel. The returned cancel func removes the
// subscription and closes the channel, so range loops over it terminate;
// events are dropped rather than blocking a slow subscriber. Cancelling more
// than once is fine.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) publish(ev Event) {
	ev.Timestamp = time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Manager) notify(level NoticeLevel, title, description string) {
	m.publish(Event{Type: EventNotice, Notice: &Notice{
		Level: level, Title: title, Description: description,
	}})
}

func (m *Manager) publishBatch() {
	m.publish(Event{Type: EventBatchUpdated, Batch: m.Snapshot()})
}

func (m *Manager) publishRecords() {
	m.publish(Event{Type: EventRecordsUpdated, Records: m.Records()})
}
