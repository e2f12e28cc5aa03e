package handler

import "github.com/gin-gonic/gin"

// Handlers groups every API handler mounted under the API prefix.
type Handlers struct {
	Departments *DepartmentHandler
	Rooms       *RoomHandler
	Schedules   *ScheduleHandler
	// Exports is nil when exports are disabled.
	Exports *ExportHandler
}

// Register mounts the API routes on group. writeGuard, when non-nil, runs before every mutating route.
func Register(group *gin.RouterGroup, h Handlers, writeGuard gin.HandlerFunc) {
	write := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		if writeGuard == nil {
			return []gin.HandlerFunc{handler}
		}
		return []gin.HandlerFunc{writeGuard, handler}
	}

	departments := group.Group("/departments")
	departments.GET("", h.Departments.List)
	departments.POST("", write(h.Departments.Create)...)
	departments.GET("/:id", h.Departments.Get)
	departments.PUT("/:id", write(h.Departments.Update)...)
	departments.DELETE("/:id", write(h.Departments.Delete)...)

	rooms := group.Group("/rooms")
	rooms.GET("", h.Rooms.List)
	rooms.POST("", write(h.Rooms.Create)...)
	rooms.GET("/:id", h.Rooms.Get)
	rooms.PUT("/:id", write(h.Rooms.Update)...)
	rooms.DELETE("/:id", write(h.Rooms.Delete)...)
	rooms.GET("/:id/availability", h.Rooms.Availability)
	rooms.GET("/:id/schedule", h.Rooms.Schedule)
	rooms.GET("/:id/qr-code", h.Rooms.QRCode)

	schedules := group.Group("/schedules")
	schedules.GET("", h.Schedules.List)
	schedules.POST("", write(h.Schedules.Create)...)
	schedules.GET("/today", h.Schedules.Today)
	schedules.POST("/status", write(h.Schedules.BulkUpdateStatus)...)
	schedules.GET("/:id", h.Schedules.Get)
	schedules.PUT("/:id", write(h.Schedules.Update)...)
	schedules.PATCH("/:id", write(h.Schedules.Patch)...)
	schedules.DELETE("/:id", write(h.Schedules.Delete)...)
	schedules.POST("/:id/status", write(h.Schedules.UpdateStatus)...)

	if h.Exports != nil {
		rooms.POST("/:id/schedule/exports", write(h.Exports.Request)...)
		group.GET("/exports/download/:token", h.Exports.Download)
		group.GET("/exports/:id", h.Exports.Status)
	}
}
