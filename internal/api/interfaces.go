// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// BatchHandler handles batch lifecycle operations
type BatchHandler interface {
	HandleStartBatch(c echo.Context) error
	HandleGetBatch(c echo.Context) error
	HandleSaveBatch(c echo.Context) error
	HandleSaveEmail(c echo.Context) error
	HandleExport(c echo.Context) error
}

// RecordsHandler handles the aggregated record set
type RecordsHandler interface {
	HandleListRecords(c echo.Context) error
	HandleListRecordsMsgpack(c echo.Context) error
	HandleUpdateRecord(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
