// internal/api/info_handlers.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
)

// Version is set at build time with -ldflags "-X .../internal/api.Version=..."
var Version = "dev"

var startTime = time.Now()

// @Summary Health Check
// @Description Reports that the server is up, with uptime and version
// @Tags Info
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health [get]
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		StartTime: startTime,
		Version:   Version,
	})
}
