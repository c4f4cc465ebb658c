// internal/api/helpers.go
package api

import (
	"errors"
	"net"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/clab"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/config"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/lab"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
)

const anonymousUser = "anonymous"

// hostnameRegex accepts RFC 1123 host names
var hostnameRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// getUsername returns the authenticated user, or "anonymous" when auth is off.
func getUsername(c *gin.Context) string {
	if u := c.GetString("username"); u != "" {
		return u
	}
	return anonymousUser
}

// canSeeAllSessions is true when auth is disabled and every caller is the same anonymous user.
func canSeeAllSessions() bool {
	return !config.AppConfig.AuthEnable
}

// isValidIPv4 accepts dotted-quad IPv4 addresses only.
func isValidIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil && strings.Count(s, ".") == 3
}

// isValidHost accepts an IP address or a host name.
func isValidHost(s string) bool {
	if s == "" || len(s) > 253 {
		return false
	}
	return net.ParseIP(s) != nil || hostnameRegex.MatchString(s)
}

var errOutsideBase = errors.New("path is outside the lab base directory")

// resolveRemotePath makes a browse path absolute against the lab base
// directory. An empty path is the base directory itself. Paths leaving the
// base directory are refused unless FILES_ALLOW_OUTSIDE_BASE is set.
// Symlinks are not resolved; the check is lexical.
func resolveRemotePath(p string) (string, error) {
	base := path.Clean(config.AppConfig.LabBaseDir)
	p = strings.TrimSpace(p)
	if p == "" {
		return base, nil
	}
	resolved := path.Clean(clab.ResolveTopoPath(base, p))
	if config.AppConfig.FilesAllowOutsideBase || isWithinDir(base, resolved) {
		return resolved, nil
	}
	return "", errOutsideBase
}

func isWithinDir(base, p string) bool {
	if base == "/" {
		return true
	}
	return p == base || strings.HasPrefix(p, base+"/")
}

// finishStream reports an operation error that happened before any event
// was streamed. Once streaming has started the result event carries it.
func finishStream(c *gin.Context, stream *lab.StreamWriter, op, username string, err error) {
	if err == nil || stream.Started() {
		return
	}
	var vErr *lab.ValidationError
	if errors.As(err, &vErr) {
		log.Warnf("%s failed for user '%s': %v", op, username, err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: vErr.Error()})
		return
	}
	log.Errorf("%s failed for user '%s': %v", op, username, err)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
}
