// internal/api/lab_handlers.go
package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/clab"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/config"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/lab"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
)

// @Summary Inspect Labs
// @Description Lists deployed labs grouped by topology file. Without a host the API server itself is inspected.
// @Tags Labs
// @Produce json
// @Param host query string false "Lab host to inspect over SSH"
// @Success 200 {array} models.LabDescriptor
// @Failure 400 {object} models.ErrorResponse "Invalid host"
// @Failure 500 {object} models.InspectErrorResponse "clab failed or produced unparseable output"
// @Router /api/containerlab/inspect [get]
func InspectHandler(c *gin.Context) {
	username := getUsername(c)
	host := strings.TrimSpace(c.Query("host"))
	if host != "" && !isValidHost(host) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid host"})
		return
	}

	labs, err := svc.Labs.Inspect(c.Request.Context(), host, username)
	if err != nil {
		var parseErr *clab.ParseError
		if errors.As(err, &parseErr) {
			log.Errorf("Inspect failed for user '%s': %v", username, err)
			c.JSON(http.StatusInternalServerError, models.InspectErrorResponse{
				Error:     "Failed to parse JSON output",
				Details:   parseErr.Err.Error(),
				RawOutput: parseErr.Raw,
			})
			return
		}
		log.Errorf("Inspect failed for user '%s': %v", username, err)
		c.JSON(http.StatusInternalServerError, models.InspectErrorResponse{Error: err.Error()})
		return
	}

	log.Debugf("Inspect user '%s': found %d labs", username, len(labs))
	c.JSON(http.StatusOK, labs)
}

// @Summary Deploy Lab
// @Description Uploads a topology file to the lab host and deploys it, streaming progress as NDJSON
// @Tags Labs
// @Accept multipart/form-data
// @Produce application/x-ndjson
// @Param file formData file true "Topology file"
// @Param serverIp formData string true "Lab host"
// @Success 200 {object} models.StreamEvent "Stream of log events ending with one result event"
// @Failure 400 {object} models.ErrorResponse "Missing file or server, invalid topology"
// @Router /api/containerlab/deploy [post]
func DeployHandler(c *gin.Context) {
	username := getUsername(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.AppConfig.MaxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.Warnf("Deploy failed for user '%s': no file uploaded: %v", username, err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "No file uploaded"})
		return
	}
	serverIP := strings.TrimSpace(c.PostForm("serverIp"))
	if serverIP == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Server IP is required"})
		return
	}
	filename, err := clab.SanitizeFilename(fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	localPath := filepath.Join(config.AppConfig.UploadDir, uuid.NewString()+"-"+filename)
	if err := c.SaveUploadedFile(fileHeader, localPath); err != nil {
		_ = os.Remove(localPath)
		log.Errorf("Deploy failed for user '%s': cannot store upload: %v", username, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to store uploaded file"})
		return
	}

	log.Infof("Deploy user '%s': deploying '%s' on host '%s'", username, filename, serverIP)
	stream := lab.NewStreamWriter(c.Writer)
	err = svc.Labs.Deploy(c.Request.Context(), lab.DeployRequest{
		Host:      serverIP,
		LocalPath: localPath,
		Filename:  filename,
		Username:  username,
	}, stream)
	finishStream(c, stream, "Deploy", username, err)
}

// @Summary Destroy Lab
// @Description Destroys the lab deployed from a topology file on the lab host, streaming progress as NDJSON
// @Tags Labs
// @Accept json
// @Produce application/x-ndjson
// @Param request body models.TopologyRequest true "Lab host and topology path"
// @Success 200 {object} models.StreamEvent "Stream of log events ending with one result event"
// @Failure 400 {object} models.ErrorResponse "Missing server or topology"
// @Router /api/containerlab/destroy [post]
func DestroyHandler(c *gin.Context) {
	runTopologyOperation(c, "Destroy", func(c *gin.Context, req lab.TopologyRequest, stream *lab.StreamWriter) error {
		return svc.Labs.Destroy(c.Request.Context(), req, stream)
	})
}

// @Summary Reconfigure Lab
// @Description Redeploys a lab with --reconfigure on the lab host, streaming progress as NDJSON
// @Tags Labs
// @Accept json
// @Produce application/x-ndjson
// @Param request body models.TopologyRequest true "Lab host and topology path"
// @Success 200 {object} models.StreamEvent "Stream of log events ending with one result event"
// @Failure 400 {object} models.ErrorResponse "Missing server or topology"
// @Router /api/containerlab/reconfigure [post]
func ReconfigureHandler(c *gin.Context) {
	runTopologyOperation(c, "Reconfigure", func(c *gin.Context, req lab.TopologyRequest, stream *lab.StreamWriter) error {
		return svc.Labs.Reconfigure(c.Request.Context(), req, stream)
	})
}

func runTopologyOperation(c *gin.Context, op string, run func(*gin.Context, lab.TopologyRequest, *lab.StreamWriter) error) {
	username := getUsername(c)

	var body models.TopologyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Warnf("%s failed for user '%s': Invalid request body: %v", op, username, err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	log.Infof("%s user '%s': topology '%s' on host '%s'", op, username, body.TopoFile, body.ServerIP)
	stream := lab.NewStreamWriter(c.Writer)
	err := run(c, lab.TopologyRequest{
		Host:     strings.TrimSpace(body.ServerIP),
		TopoFile: strings.TrimSpace(body.TopoFile),
		Cleanup:  body.Cleanup,
		Username: username,
	}, stream)
	finishStream(c, stream, op, username, err)
}
