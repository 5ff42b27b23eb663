// Package backend implements the typed client for the remote extraction API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/cardscan-intake/gateway/internal/models"
)

// Client is the outbound surface the orchestrator depends on. The production
// implementation is HTTPClient; tests use the fake in internal/testutil.
type Client interface {
	UploadFiles(ctx context.Context, files []Upload) (*UploadResult, error)
	ValidateFiles(ctx context.Context, batchID string) (*ValidationSummary, error)
	ValidationStatus(ctx context.Context, batchID string) (*ValidationDetail, error)
	StartProcessing(ctx context.Context, batchID string) error
	BatchStatus(ctx context.Context, batchID string) (*BatchStatusInfo, error)
	FileStatuses(ctx context.Context, batchID string) (map[string]FileStatusInfo, error)
	ExtractedData(ctx context.Context, batchID string) ([]FileExtraction, error)
	RecentBatches(ctx context.Context) ([]BatchSummary, error)
	SavedData(ctx context.Context, batchID string) (*SavedData, error)
	SaveBatch(ctx context.Context, form models.FormContext, batchID string, records []models.ExtractedRecord) error
	SaveEmailData(ctx context.Context, form models.FormContext, batchID string, records []models.ExtractedRecord) error
	DownloadURL(batchID, format string) string
}

// HTTPClient talks to the extraction backend over HTTP. The base URL points
// at the versioned API root, e.g. "http://localhost:8000/api/v1".
type HTTPClient struct {
	base string
	http *http.Client
}

// NewHTTPClient creates a client with the given base URL and request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// wireValidation is the backend's snake_case verdict shape.
type wireValidation struct {
	IsBusinessCard bool   `json:"is_business_card"`
	Confidence     string `json:"confidence"`
	Reasoning      string `json:"reasoning"`
}

func (w *wireValidation) toModel() *models.ValidationResult {
	if w == nil {
		return nil
	}
	return &models.ValidationResult{
		IsBusinessCard: w.IsBusinessCard,
		Confidence:     w.Confidence,
		Reasoning:      w.Reasoning,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response of %s %s: %w", method, path, err)
	}
	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(b), "application/json", out)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadFiles sends the batch as one multipart request. Each part carries
// the browser-reported content type so the backend can route PDFs.
func (c *HTTPClient) UploadFiles(ctx context.Context, files []Upload) (*UploadResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(f.Name)))
		if f.ContentType != "" {
			h.Set("Content-Type", f.ContentType)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	var res UploadResult
	if err := c.do(ctx, http.MethodPost, "/upload", &buf, w.FormDataContentType(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ValidateFiles asks the backend to classify every file of the batch.
func (c *HTTPClient) ValidateFiles(ctx context.Context, batchID string) (*ValidationSummary, error) {
	var res ValidationSummary
	if err := c.do(ctx, http.MethodPost, "/validate/"+batchID, nil, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ValidationStatus fetches the per-file verdicts after validation ran.
func (c *HTTPClient) ValidationStatus(ctx context.Context, batchID string) (*ValidationDetail, error) {
	type wireEntry struct {
		FileID     string          `json:"file_id"`
		Filename   string          `json:"filename"`
		Validation *wireValidation `json:"validation"`
	}
	var res struct {
		Valid   []wireEntry `json:"valid_business_cards"`
		Invalid []wireEntry `json:"invalid_files"`
	}
	if err := c.do(ctx, http.MethodGet, "/validation-status/"+batchID, nil, "", &res); err != nil {
		return nil, err
	}

	detail := &ValidationDetail{}
	for _, e := range res.Valid {
		detail.Valid = append(detail.Valid, ValidationEntry{
			FileID: e.FileID, Filename: e.Filename, Validation: e.Validation.toModel(),
		})
	}
	for _, e := range res.Invalid {
		detail.Invalid = append(detail.Invalid, ValidationEntry{
			FileID: e.FileID, Filename: e.Filename, Validation: e.Validation.toModel(),
		})
	}
	return detail, nil
}

// StartProcessing kicks off extraction for the validated files.
func (c *HTTPClient) StartProcessing(ctx context.Context, batchID string) error {
	payload := map[string]string{"batch_id": batchID}
	return c.postJSON(ctx, "/process", payload, nil)
}

// BatchStatus returns the coarse batch-level state and progress counters.
func (c *HTTPClient) BatchStatus(ctx context.Context, batchID string) (*BatchStatusInfo, error) {
	var res BatchStatusInfo
	if err := c.do(ctx, http.MethodGet, "/status/"+batchID, nil, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FileStatuses returns the authoritative per-file state map keyed by file id.
func (c *HTTPClient) FileStatuses(ctx context.Context, batchID string) (map[string]FileStatusInfo, error) {
	type wireFile struct {
		Filename   string                   `json:"filename"`
		Status     string                   `json:"status"`
		Validation *wireValidation          `json:"validation"`
		Records    []models.ExtractedRecord `json:"extracted_data"`
	}
	var res struct {
		BatchID string              `json:"batch_id"`
		Files   map[string]wireFile `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, "/file-status/"+batchID, nil, "", &res); err != nil {
		return nil, err
	}

	statuses := make(map[string]FileStatusInfo, len(res.Files))
	for id, f := range res.Files {
		statuses[id] = FileStatusInfo{
			Filename:   f.Filename,
			Status:     f.Status,
			Validation: f.Validation.toModel(),
			Records:    f.Records,
		}
	}
	return statuses, nil
}

// ExtractedData fetches the final records grouped per source file.
func (c *HTTPClient) ExtractedData(ctx context.Context, batchID string) ([]FileExtraction, error) {
	var res []FileExtraction
	if err := c.do(ctx, http.MethodGet, "/extracted-data/"+batchID, nil, "", &res); err != nil {
		return nil, err
	}
	return res, nil
}

// RecentBatches lists previously saved batches, newest first.
func (c *HTTPClient) RecentBatches(ctx context.Context) ([]BatchSummary, error) {
	var res struct {
		Batches []BatchSummary `json:"batches"`
	}
	if err := c.do(ctx, http.MethodGet, "/recent-batches", nil, "", &res); err != nil {
		return nil, err
	}
	return res.Batches, nil
}

// SavedData fetches the persisted record set of one batch.
func (c *HTTPClient) SavedData(ctx context.Context, batchID string) (*SavedData, error) {
	var res SavedData
	if err := c.do(ctx, http.MethodGet, "/saved-data/"+batchID, nil, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type saveRequest struct {
	Name    string                   `json:"name"`
	Team    string                   `json:"team"`
	Event   string                   `json:"event"`
	BatchID string                   `json:"batch_id"`
	Records []models.ExtractedRecord `json:"extracted_data"`
}

// SaveBatch persists the record set together with the form context.
func (c *HTTPClient) SaveBatch(ctx context.Context, form models.FormContext, batchID string, records []models.ExtractedRecord) error {
	return c.postJSON(ctx, "/save-data", saveRequest{
		Name: form.Name, Team: form.Team, Event: form.Event,
		BatchID: batchID, Records: records,
	}, nil)
}

// SaveEmailData persists the record set for an email campaign. The backend
// treats it like a regular save against a separate intent.
func (c *HTTPClient) SaveEmailData(ctx context.Context, form models.FormContext, batchID string, records []models.ExtractedRecord) error {
	return c.postJSON(ctx, "/save-email-data", saveRequest{
		Name: form.Name, Team: form.Team, Event: form.Event,
		BatchID: batchID, Records: records,
	}, nil)
}

// DownloadURL builds the export link for a batch. Format "vcf" maps to the
// vCard endpoint, everything else to the CSV download.
func (c *HTTPClient) DownloadURL(batchID, format string) string {
	if format == "vcf" {
		return c.base + "/export-vcf/" + batchID
	}
	return c.base + "/download/" + batchID
}
