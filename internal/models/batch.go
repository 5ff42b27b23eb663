package models

import "time"

// FileStatus represents the lifecycle state of a single uploaded document.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusValidating FileStatus = "validating"
	FileStatusValid      FileStatus = "valid"
	FileStatusInvalid    FileStatus = "invalid"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusError      FileStatus = "error"
)

// statusOrder encodes the forward direction of the lifecycle. Invalid shares
// a rank with valid because both come out of the same validation step.
var statusOrder = map[FileStatus]int{
	FileStatusPending:    0,
	FileStatusValidating: 1,
	FileStatusValid:      2,
	FileStatusInvalid:    2,
	FileStatusProcessing: 3,
	FileStatusCompleted:  4,
	FileStatusError:      4,
}

// Terminal reports whether no further transitions are allowed from s.
func (s FileStatus) Terminal() bool {
	return s == FileStatusCompleted || s == FileStatusInvalid || s == FileStatusError
}

// CanAdvanceTo reports whether a transition from s to next is a legal forward
// move. Error is reachable from any non-terminal state; everything else must
// strictly advance.
func (s FileStatus) CanAdvanceTo(next FileStatus) bool {
	if s == next || s.Terminal() {
		return false
	}
	if next == FileStatusError {
		return true
	}
	return statusOrder[next] > statusOrder[s]
}

// ValidationResult carries the backend's verdict for one document.
type ValidationResult struct {
	IsBusinessCard bool   `json:"isBusinessCard"`
	Confidence     string `json:"confidence,omitempty"`
	Reasoning      string `json:"reasoning,omitempty"`
}

// FileRecord represents one uploaded document and its progress through the
// validation/extraction pipeline.
type FileRecord struct {
	FileID       string            `json:"fileId"`
	Name         string            `json:"name"`
	Size         int64             `json:"size"`
	MimeType     string            `json:"mimeType,omitempty"`
	StoragePath  string            `json:"storagePath,omitempty"`
	Status       FileStatus        `json:"status"`
	UploadedAt   time.Time         `json:"uploadedAt"`
	ParentFolder string            `json:"parentFolder"`
	Validation   *ValidationResult `json:"validation,omitempty"`
	RecordCount  int               `json:"recordCount"`
}

// Batch is the single active upload batch. Restored batches carry no files,
// only the aggregated records recovered from the backend.
type Batch struct {
	ID        string       `json:"batchId"`
	Files     []FileRecord `json:"files"`
	CreatedAt time.Time    `json:"createdAt"`
	Restored  bool         `json:"restored,omitempty"`
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing internal state to mutation.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	nb := *b
	nb.Files = make([]FileRecord, len(b.Files))
	copy(nb.Files, b.Files)
	for i := range nb.Files {
		if v := nb.Files[i].Validation; v != nil {
			vc := *v
			nb.Files[i].Validation = &vc
		}
	}
	return &nb
}
