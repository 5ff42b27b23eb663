// handlers_records.go - Aggregated record set handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cardscan-intake/gateway/internal/batch"
	"github.com/cardscan-intake/gateway/internal/models"
)

// RecordsHandlerImpl implements the RecordsHandler interface
type RecordsHandlerImpl struct {
	manager *batch.Manager
}

// NewRecordsHandler creates a new records handler
func NewRecordsHandler(m *batch.Manager) RecordsHandler {
	return &RecordsHandlerImpl{manager: m}
}

type recordsResponse struct {
	Records    []models.ExtractedRecord `json:"records" msgpack:"records"`
	TotalCount int                      `json:"totalCount" msgpack:"totalCount"`
}

func (h *RecordsHandlerImpl) records() (*recordsResponse, *APIError) {
	if h.manager.Snapshot() == nil {
		return nil, NewNotFoundError("batch", "active")
	}
	records := h.manager.Records()
	return &recordsResponse{Records: records, TotalCount: len(records)}, nil
}

// HandleListRecords returns the editable aggregated records as JSON.
func (h *RecordsHandlerImpl) HandleListRecords(c echo.Context) error {
	res, apiErr := h.records()
	if apiErr != nil {
		return apiErr
	}
	return c.JSON(http.StatusOK, res)
}

// HandleListRecordsMsgpack returns the same payload msgpack-encoded, for
// clients pulling large record sets.
func (h *RecordsHandlerImpl) HandleListRecordsMsgpack(c echo.Context) error {
	res, apiErr := h.records()
	if apiErr != nil {
		return apiErr
	}
	data, err := msgpack.Marshal(res)
	if err != nil {
		return NewInternalError("failed to encode records", err)
	}
	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

// updateRecordRequest edits one field of one record.
type updateRecordRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (r *updateRecordRequest) validate() *APIError {
	if r.Field == "" {
		return NewValidationError("field")
	}
	return nil
}

// HandleUpdateRecord applies a local edit and returns the updated list.
func (h *RecordsHandlerImpl) HandleUpdateRecord(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return NewValidationError("index")
	}

	var req updateRecordRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if apiErr := req.validate(); apiErr != nil {
		return apiErr
	}

	records, err := h.manager.UpdateRecord(index, req.Field, req.Value)
	if err != nil {
		return mapBatchError(err)
	}
	return c.JSON(http.StatusOK, &recordsResponse{Records: records, TotalCount: len(records)})
}
