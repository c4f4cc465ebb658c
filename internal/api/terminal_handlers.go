// internal/api/terminal_handlers.go
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/config"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/ssh"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin applies the CORS origin list to WebSocket upgrades.
func checkOrigin(r *http.Request) bool {
	origins := allowedOrigins()
	if origins == nil {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range origins {
		if o == origin {
			return true
		}
	}
	return false
}

// @Summary Node Terminal
// @Description Upgrades to a WebSocket and bridges it to an interactive SSH shell on a lab node.
// @Description The first text message must be {"nodeName","nodeIp","username"}; everything after it is terminal input.
// @Tags Terminal
// @Param token query string false "JWT token, for clients that cannot set headers"
// @Success 101 "Switching Protocols"
// @Router /ws/ssh [get]
func TerminalWebSocketHandler(c *gin.Context) {
	username := getUsername(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Warnf("Terminal upgrade failed for user '%s': %v", username, err)
		return
	}
	conn.SetReadLimit(ssh.MaxClientMessage)

	cfg := config.AppConfig
	bridge := ssh.NewBridge(conn, svc.Shells, ssh.BridgeOptions{
		Username:   cfg.NodeSSHUsername,
		Password:   cfg.NodeSSHPassword,
		Port:       cfg.NodeSSHPort,
		Timeout:    cfg.NodeSSHTimeout,
		InitWait:   cfg.NodeSSHTimeout,
		RemoteAddr: c.ClientIP(),
		Owner:      username,
	})
	svc.Terminals.Register(bridge)
	log.Infof("Terminal session '%s' opened by user '%s' from %s", bridge.ID(), username, c.ClientIP())

	// The bridge outlives the HTTP request context once the connection is hijacked.
	bridge.Serve(context.Background())
	log.Infof("Terminal session '%s' of user '%s' closed", bridge.ID(), username)
}

// @Summary List Terminal Sessions
// @Description Lists live terminal bridges. With auth enabled users see only their own.
// @Tags Terminal
// @Produce json
// @Success 200 {array} models.TerminalSessionInfo
// @Router /api/terminal/sessions [get]
func ListTerminalSessionsHandler(c *gin.Context) {
	sessions := svc.Terminals.List(getUsername(c), canSeeAllSessions())
	c.JSON(http.StatusOK, sessions)
}

// @Summary Terminate Terminal Session
// @Description Closes a live terminal bridge and its SSH shell
// @Tags Terminal
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.GenericSuccessResponse
// @Failure 404 {object} models.ErrorResponse "Session not found"
// @Router /api/terminal/sessions/{id} [delete]
func TerminateTerminalSessionHandler(c *gin.Context) {
	username := getUsername(c)
	id := c.Param("id")

	b, ok := svc.Terminals.Get(id)
	if !ok || (!canSeeAllSessions() && b.Info().Owner != username) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Session not found"})
		return
	}
	if err := svc.Terminals.Terminate(id); err != nil {
		if errors.Is(err, ssh.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Session not found"})
			return
		}
		log.Errorf("Terminate terminal session '%s' failed for user '%s': %v", id, username, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	log.Infof("User '%s' terminated terminal session '%s'", username, id)
	c.JSON(http.StatusOK, models.GenericSuccessResponse{Message: "Session terminated"})
}
