// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/cardscan-intake/gateway/internal/batch"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Manager    *batch.Manager
	Version    string
	BackendURL string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Batch   BatchHandler
	Records RecordsHandler
	Events  *EventsHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Manager, deps.Version, deps.BackendURL),
		Batch:   NewBatchHandler(deps.Manager),
		Records: NewRecordsHandler(deps.Manager),
		Events:  NewEventsHandler(deps.Manager),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Batch lifecycle
	batchGroup := e.Group("/api/batch")
	batchGroup.POST("", handlers.Batch.HandleStartBatch)
	batchGroup.GET("", handlers.Batch.HandleGetBatch)
	batchGroup.POST("/save", handlers.Batch.HandleSaveBatch)
	batchGroup.POST("/email", handlers.Batch.HandleSaveEmail)
	batchGroup.GET("/export", handlers.Batch.HandleExport)

	// Aggregated records
	batchGroup.GET("/records", handlers.Records.HandleListRecords)
	batchGroup.GET("/records/msgpack", handlers.Records.HandleListRecordsMsgpack)
	batchGroup.PUT("/records/:index", handlers.Records.HandleUpdateRecord)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/events", handlers.Events.HandleEvents)
}
