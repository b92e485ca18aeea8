package tally

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves GET /api/courses/:course/tally.
func Handler(counter Counter) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := counter.Get(c.Request.Context(), c.Param("course"))
		if err != nil {
			zap.L().Named("tally").Error("read tally", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
			return
		}
		c.JSON(http.StatusOK, t)
	}
}
