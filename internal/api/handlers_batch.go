// handlers_batch.go - Batch lifecycle handlers
package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cardscan-intake/gateway/internal/backend"
	"github.com/cardscan-intake/gateway/internal/batch"
	"github.com/cardscan-intake/gateway/internal/models"
)

// BatchHandlerImpl implements the BatchHandler interface
type BatchHandlerImpl struct {
	manager *batch.Manager
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(m *batch.Manager) BatchHandler {
	return &BatchHandlerImpl{manager: m}
}

// saveBatchRequest carries the optional form context of a save/email/export
// action. All three fields empty means "use whatever was captured before".
type saveBatchRequest struct {
	Name  string `json:"name"`
	Team  string `json:"team"`
	Event string `json:"event"`
}

func (r *saveBatchRequest) formContext() *models.FormContext {
	if r.Name == "" && r.Team == "" && r.Event == "" {
		return nil
	}
	return &models.FormContext{Name: r.Name, Team: r.Team, Event: r.Event}
}

// HandleStartBatch admits a multipart batch and starts the pipeline.
// Optional "paths" form values carry per-file relative paths for folder
// uploads, in the same order as the file parts.
func (h *BatchHandlerImpl) HandleStartBatch(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		return NewBadRequestError("no files provided", nil)
	}
	paths := form.Value["paths"]

	uploads := make([]backend.Upload, 0, len(fileHeaders))
	for i, fh := range fileHeaders {
		src, err := fh.Open()
		if err != nil {
			return NewBadRequestError(fmt.Sprintf("cannot read file %s", fh.Filename), err)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return NewBadRequestError(fmt.Sprintf("cannot read file %s", fh.Filename), err)
		}

		u := backend.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Data:        data,
		}
		if i < len(paths) {
			u.RelativePath = paths[i]
		}
		uploads = append(uploads, u)
	}

	b, err := h.manager.Start(c.Request().Context(), uploads)
	if err != nil {
		return mapBatchError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

// HandleGetBatch returns the current batch snapshot.
func (h *BatchHandlerImpl) HandleGetBatch(c echo.Context) error {
	snap := h.manager.Snapshot()
	if snap == nil {
		return NewNotFoundError("batch", "active")
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleSaveBatch persists the record set. The first call of a session must
// carry name/team/event; later calls may send an empty body.
func (h *BatchHandlerImpl) HandleSaveBatch(c echo.Context) error {
	var req saveBatchRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := h.manager.Save(c.Request().Context(), req.formContext()); err != nil {
		return mapBatchError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Data saved successfully",
		"submissions": h.manager.Submissions(),
	})
}

// HandleSaveEmail persists the record set for an email campaign.
func (h *BatchHandlerImpl) HandleSaveEmail(c echo.Context) error {
	var req saveBatchRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := h.manager.SaveForEmail(c.Request().Context(), req.formContext()); err != nil {
		return mapBatchError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Email data saved successfully",
		"submissions": h.manager.Submissions(),
	})
}

// HandleExport saves the records and returns the backend download link.
// Query parameters: format=csv|vcf (default csv), plus the optional form
// context fields for the first action of a session.
func (h *BatchHandlerImpl) HandleExport(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "vcf" {
		return NewValidationError("format")
	}

	form := (&saveBatchRequest{
		Name:  c.QueryParam("name"),
		Team:  c.QueryParam("team"),
		Event: c.QueryParam("event"),
	}).formContext()

	url, err := h.manager.ExportURL(c.Request().Context(), format, form)
	if err != nil {
		return mapBatchError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"url":    url,
		"format": format,
	})
}
