// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/api"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/auth"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/clab"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/config"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/lab"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/ports"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/ssh"
)

const shutdownTimeout = 10 * time.Second

// @title Containerlab Designer API
// @version 1.0
// @description Deploys, destroys and inspects containerlab topologies on remote lab hosts over SSH, and bridges browser terminals to lab nodes.

// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Only enforced when AUTH_ENABLE is true.
func main() {
	// --- Load configuration First ---
	if err := config.LoadConfig(); err != nil {
		// Use a basic logger here as the configured one isn't ready yet
		log.New(os.Stderr).Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	// --- Initialize Logger Based on Config ---
	log.SetOutput(os.Stderr)
	log.SetTimeFormat("2006-01-02 15:04:05")
	level, err := log.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		log.Warnf("Invalid LOG_LEVEL '%s' specified in config, defaulting to 'info'", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.Infof("Configuration loaded successfully. Log level set to '%s'.", level)

	log.Debugf("API Port: %s", cfg.APIPort)
	log.Infof("Auth Enabled: %t", cfg.AuthEnable)
	log.Infof("Containerlab Runtime: %s", cfg.ClabRuntime)
	log.Infof("Lab Base Directory: %s", cfg.LabBaseDir)
	log.Debugf("Lab host SSH user: %s (key file set: %t)", cfg.SSHUsername, cfg.SSHKeyFile != "")
	log.Debugf("Node SSH user: %s, port %d, timeout %s", cfg.NodeSSHUsername, cfg.NodeSSHPort, cfg.NodeSSHTimeout)
	if cfg.SSHKnownHosts == "" {
		log.Warn("SSH_KNOWN_HOSTS is not set, lab host keys are not verified")
	}

	if cfg.AuthEnable {
		if cfg.JWTSecret == "default_secret_change_me" {
			log.Warn("Using default JWT secret. Change JWT_SECRET environment variable for production!")
		}
		auth.InitAuth()
		log.Debugf("JWT Expiration: %s", cfg.JWTExpiration)
	}

	// --- Check dependencies ---
	// clab is only needed locally for host-less inspect; lab hosts run their own.
	if _, err := exec.LookPath(clab.Executable); err != nil {
		log.Warnf("'%s' command not found in PATH. Inspecting the API host itself will fail.", clab.Executable)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		log.Fatalf("Failed to create upload directory '%s': %v", cfg.UploadDir, err)
	}

	// --- Wire services ---
	dialer := remote.NewSSHDialer(cfg.SSHKnownHosts)
	labs := lab.NewOrchestrator(dialer, lab.Options{
		BaseDir: cfg.LabBaseDir,
		Runtime: cfg.ClabRuntime,
		Credentials: remote.Target{
			Port:     cfg.SSHPort,
			Username: cfg.SSHUsername,
			Password: cfg.SSHPassword,
			KeyFile:  cfg.SSHKeyFile,
			Timeout:  cfg.SSHConnectTimeout,
		},
	})
	terminals := ssh.NewManager(ssh.DefaultCleanupTick, cfg.TerminalMaxDuration)
	defer terminals.Shutdown()

	// --- Initialize Gin router ---
	switch strings.ToLower(cfg.GinMode) {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	log.Infof("Gin running in '%s' mode", gin.Mode())

	router := gin.Default()
	configureTrustedProxies(router, cfg.TrustedProxies)

	api.SetupRoutes(router, api.Services{
		Labs:      labs,
		Ports:     ports.NewScout(dialer, cfg.FreePortScanTimeout),
		Files:     dialer,
		Terminals: terminals,
		Shells:    ssh.NewSSHShellDialer(""),
	})

	// --- Start the server ---
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.APIPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- serve(srv, cfg)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received, closing terminal sessions and draining requests")
		// Hijacked WebSockets are not tracked by http.Server.
		terminals.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Graceful shutdown failed: %v", err)
		}
	}
	log.Info("Server stopped")
}

func serve(srv *http.Server, cfg config.Config) error {
	if !cfg.TLSEnable {
		log.Infof("Starting HTTP server, accessible locally at http://localhost:%s", cfg.APIPort)
		return srv.ListenAndServe()
	}

	if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
		return errors.New("TLS is enabled but TLS_CERT_FILE or TLS_KEY_FILE is not set in config")
	}
	for _, f := range []string{cfg.TLSCertFile, cfg.TLSKeyFile} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("TLS file not usable: %w", err)
		}
	}
	log.Infof("Starting HTTPS server, accessible locally at https://localhost:%s", cfg.APIPort)
	return srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
}

func configureTrustedProxies(router *gin.Engine, setting string) {
	switch setting {
	case "nil":
		log.Info("Proxy trust disabled (TRUSTED_PROXIES=nil)")
		_ = router.SetTrustedProxies(nil)
	case "":
		log.Warn("All proxies are trusted (default). Set TRUSTED_PROXIES=nil to disable proxy trust or provide a comma-separated list of trusted proxy IPs.")
	default:
		proxyList := strings.Split(setting, ",")
		for i, proxy := range proxyList {
			proxyList[i] = strings.TrimSpace(proxy)
		}
		log.Infof("Setting trusted proxies: %v", proxyList)
		if err := router.SetTrustedProxies(proxyList); err != nil {
			log.Fatalf("Invalid TRUSTED_PROXIES: %v", err)
		}
	}
}
