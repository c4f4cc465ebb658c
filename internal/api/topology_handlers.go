// internal/api/topology_handlers.go
package api

import (
	"errors"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/jpillora/sizestr"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/config"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
)

// @Summary List Remote Files
// @Description Lists a directory on the lab host, directories first
// @Tags Files
// @Produce json
// @Param serverIp query string true "Lab host"
// @Param path query string false "Directory, absolute or relative to the lab base directory"
// @Success 200 {object} models.FileListResponse
// @Failure 400 {object} models.ErrorResponse "Invalid host"
// @Failure 403 {object} models.ErrorResponse "Path outside the lab base directory"
// @Failure 404 {object} models.ErrorResponse "No such directory"
// @Failure 500 {object} models.ErrorResponse "Connection or listing failed"
// @Router /api/files/list [get]
func ListFilesHandler(c *gin.Context) {
	username := getUsername(c)
	host, ok := fileHost(c)
	if !ok {
		return
	}
	dir, ok := remotePath(c, "ListFiles", username)
	if !ok {
		return
	}

	sess, err := svc.Files.Dial(c.Request.Context(), svc.Labs.Target(host))
	if err != nil {
		log.Errorf("ListFiles failed for user '%s' on host '%s': %v", username, host, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	defer sess.Close()

	infos, err := sess.ReadDir(c.Request.Context(), dir)
	if err != nil {
		writeFileError(c, "ListFiles", username, dir, err)
		return
	}

	contents := make([]models.FileEntry, 0, len(infos))
	for _, fi := range infos {
		entryType := "file"
		if fi.IsDir() {
			entryType = "directory"
		}
		contents = append(contents, models.FileEntry{
			Name: fi.Name(),
			Path: path.Join(dir, fi.Name()),
			Type: entryType,
			Size: fi.Size(),
		})
	}
	sort.SliceStable(contents, func(i, j int) bool {
		if contents[i].Type != contents[j].Type {
			return contents[i].Type == "directory"
		}
		return strings.ToLower(contents[i].Name) < strings.ToLower(contents[j].Name)
	})

	log.Debugf("ListFiles user '%s': %d entries in '%s' on host '%s'", username, len(contents), dir, host)
	c.JSON(http.StatusOK, models.FileListResponse{Success: true, Path: dir, Contents: contents})
}

// @Summary Read Remote File
// @Description Returns the content of a file on the lab host, up to MAX_FILE_READ_BYTES
// @Tags Files
// @Produce json
// @Param serverIp query string true "Lab host"
// @Param path query string true "File, absolute or relative to the lab base directory"
// @Success 200 {object} models.FileReadResponse
// @Failure 400 {object} models.ErrorResponse "Invalid host or missing path"
// @Failure 403 {object} models.ErrorResponse "Path outside the lab base directory"
// @Failure 404 {object} models.ErrorResponse "No such file"
// @Failure 413 {object} models.ErrorResponse "File too large"
// @Failure 500 {object} models.ErrorResponse "Connection or read failed"
// @Router /api/files/read [get]
func ReadFileHandler(c *gin.Context) {
	username := getUsername(c)
	host, ok := fileHost(c)
	if !ok {
		return
	}
	if strings.TrimSpace(c.Query("path")) == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "path is required"})
		return
	}
	file, ok := remotePath(c, "ReadFile", username)
	if !ok {
		return
	}

	sess, err := svc.Files.Dial(c.Request.Context(), svc.Labs.Target(host))
	if err != nil {
		log.Errorf("ReadFile failed for user '%s' on host '%s': %v", username, host, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	defer sess.Close()

	content, err := sess.ReadFile(c.Request.Context(), file, config.AppConfig.MaxFileReadBytes)
	if err != nil {
		writeFileError(c, "ReadFile", username, file, err)
		return
	}

	log.Debugf("ReadFile user '%s': read '%s' (%s) from host '%s'", username, file, sizestr.ToString(int64(len(content))), host)
	c.JSON(http.StatusOK, models.FileReadResponse{Success: true, Path: file, Content: string(content)})
}

func fileHost(c *gin.Context) (string, bool) {
	host := strings.TrimSpace(c.Query("serverIp"))
	if !isValidHost(host) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "A valid serverIp is required"})
		return "", false
	}
	return host, true
}

func remotePath(c *gin.Context, op, username string) (string, bool) {
	p, err := resolveRemotePath(c.Query("path"))
	if err != nil {
		log.Warnf("%s refused for user '%s': '%s' %v", op, username, c.Query("path"), err)
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "Access denied: " + err.Error()})
		return "", false
	}
	return p, true
}

func writeFileError(c *gin.Context, op, username, p string, err error) {
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "No such file or directory: " + p})
	case errors.Is(err, remote.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Error: "File exceeds " + sizestr.ToString(config.AppConfig.MaxFileReadBytes) + ": " + p,
		})
	default:
		log.Errorf("%s failed for user '%s' on '%s': %v", op, username, p, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
	}
}
