package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/config"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/lab"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/ports"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/ssh"
)

// Services are the components the handlers call into.
type Services struct {
	Labs      *lab.Orchestrator
	Ports     *ports.Scout
	Files     remote.Dialer
	Terminals *ssh.Manager
	Shells    ssh.ShellDialer
}

var svc Services

func SetupRoutes(router *gin.Engine, services Services) {
	svc = services

	router.Use(CORSMiddleware())

	// --- Public Routes ---
	router.GET("/health", HealthHandler)
	if config.AppConfig.AuthEnable {
		router.POST("/login", LoginHandler)
	}

	// --- Routes requiring a token when auth is enabled ---
	protected := router.Group("")
	if config.AppConfig.AuthEnable {
		protected.Use(AuthMiddleware())
	}

	clab := protected.Group("/api/containerlab")
	{
		clab.GET("/inspect", InspectHandler)
		clab.POST("/deploy", DeployHandler)
		clab.POST("/destroy", DestroyHandler)
		clab.POST("/reconfigure", ReconfigureHandler)
		clab.GET("/free-ports", FreePortsHandler)
	}
	// Path used by the designer's port forwarding dialog
	protected.GET("/api/ports/free", FreePortsHandler)

	files := protected.Group("/api/files")
	{
		files.GET("/list", ListFilesHandler)
		files.GET("/read", ReadFileHandler)
	}

	terminals := protected.Group("/api/terminal")
	{
		terminals.GET("/sessions", ListTerminalSessionsHandler)
		terminals.DELETE("/sessions/:id", TerminateTerminalSessionHandler)
	}

	protected.GET("/ws/ssh", TerminalWebSocketHandler)
}
