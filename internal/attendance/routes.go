package attendance

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the public submission endpoint and the admin-guarded
// listing endpoint on r.
func RegisterRoutes(r gin.IRouter, h *Handler, adminAuth gin.HandlerFunc) {
	r.POST("/api/presence", h.Submit)
	r.GET("/api/presences", adminAuth, h.List)
}
