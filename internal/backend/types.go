package backend

import "github.com/cardscan-intake/gateway/internal/models"

// Upload is one file handed to UploadFiles. RelativePath is set when the
// file came in through a folder upload and keeps its original path.
type Upload struct {
	Name         string
	ContentType  string
	RelativePath string
	Size         int64
	Data         []byte
}

// UploadedFile echoes the backend's registration of a single file.
type UploadedFile struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	StoragePath string `json:"file_path"`
}

// UploadResult is the response of the multipart upload call.
type UploadResult struct {
	BatchID string         `json:"batch_id"`
	Files   []UploadedFile `json:"uploaded_files"`
}

// ValidationSummary is the aggregate outcome of the validation call.
type ValidationSummary struct {
	ValidCount   int `json:"valid_business_cards"`
	InvalidCount int `json:"invalid_files"`
}

// ValidationEntry is one file's verdict in the detailed validation listing.
type ValidationEntry struct {
	FileID     string                   `json:"file_id"`
	Filename   string                   `json:"filename"`
	Validation *models.ValidationResult `json:"-"`
}

// ValidationDetail splits the batch into accepted and rejected documents.
// Files appearing in neither list are treated as rejected by the caller.
type ValidationDetail struct {
	Valid   []ValidationEntry
	Invalid []ValidationEntry
}

// FileStatusInfo is the per-file slice of the file-status poll response.
type FileStatusInfo struct {
	Filename   string                   `json:"filename"`
	Status     string                   `json:"status"`
	Validation *models.ValidationResult `json:"-"`
	Records    []models.ExtractedRecord `json:"-"`
}

// Progress is the coarse counter block of the batch status response.
type Progress struct {
	TotalFiles int `json:"total_files"`
	Processed  int `json:"processed"`
	Percentage int `json:"percentage"`
}

// BatchStatusInfo is the coarse batch-level status response.
type BatchStatusInfo struct {
	Status   string   `json:"status"`
	Progress Progress `json:"progress"`
}

// FileExtraction groups the extracted records of one source document.
type FileExtraction struct {
	FileID   string                   `json:"file_id"`
	Filename string                   `json:"filename"`
	Records  []models.ExtractedRecord `json:"extracted_data"`
}

// BatchSummary is one entry of the recent-batches listing, newest first.
type BatchSummary struct {
	BatchID string `json:"batch_id"`
	Name    string `json:"name"`
	Team    string `json:"team"`
	Event   string `json:"event"`
}

// SavedData is a previously persisted record set for one batch.
type SavedData struct {
	Records      []models.ExtractedRecord `json:"extracted_data"`
	TotalRecords int                      `json:"total_records"`
}
