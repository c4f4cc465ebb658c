// internal/api/tools_handlers.go
package api

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
)

// @Summary Free Ports
// @Description Lists TCP ports in 1024-65535 that nothing is bound to on the lab host
// @Tags Tools
// @Produce json
// @Param host query string true "Lab host IPv4 address (serverIp is accepted too)"
// @Success 200 {object} models.FreePortsResponse
// @Failure 400 {object} models.FreePortsResponse "Malformed host"
// @Failure 500 {object} models.FreePortsResponse "Scan failed"
// @Router /api/containerlab/free-ports [get]
func FreePortsHandler(c *gin.Context) {
	username := getUsername(c)
	host := strings.TrimSpace(c.Query("host"))
	if host == "" {
		host = strings.TrimSpace(c.Query("serverIp"))
	}
	if !isValidIPv4(host) {
		log.Warnf("FreePorts failed for user '%s': malformed host '%s'", username, host)
		c.JSON(http.StatusBadRequest, models.FreePortsResponse{Success: false, Error: "A valid IPv4 host is required"})
		return
	}

	free, err := svc.Ports.FindFreePorts(c.Request.Context(), svc.Labs.Target(host))
	if err != nil {
		log.Errorf("FreePorts failed for user '%s' on host '%s': %v", username, host, err)
		c.JSON(http.StatusInternalServerError, models.FreePortsResponse{Success: false, Error: err.Error()})
		return
	}

	log.Debugf("FreePorts user '%s': %d free ports on host '%s'", username, len(free), host)
	c.JSON(http.StatusOK, models.FreePortsResponse{Success: true, FreePorts: free, Count: len(free)})
}
