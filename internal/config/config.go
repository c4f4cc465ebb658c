// internal/config/config.go
package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIPort        string `mapstructure:"API_PORT"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	GinMode        string `mapstructure:"GIN_MODE"`
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
	// Comma-separated list, "*" allows any origin (the designer UI is served elsewhere)
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	TLSEnable   bool   `mapstructure:"TLS_ENABLE"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`

	// --- Auth (optional) ---
	AuthEnable           bool          `mapstructure:"AUTH_ENABLE"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	JWTExpirationMinutes int           `mapstructure:"JWT_EXPIRATION_MINUTES"`
	JWTExpiration        time.Duration `mapstructure:"-"`
	AdminGroup           string        `mapstructure:"ADMIN_GROUP"`

	// --- Containerlab ---
	ClabRuntime string `mapstructure:"CLAB_RUNTIME"`
	LabBaseDir  string `mapstructure:"LAB_BASE_DIR"` // Remote directory topologies are uploaded to and resolved against
	UploadDir   string `mapstructure:"UPLOAD_DIR"`   // Local scratch directory for multipart uploads

	// --- Lab host SSH (executor) ---
	SSHUsername       string        `mapstructure:"SSH_USERNAME"`
	SSHPassword       string        `mapstructure:"SSH_PASSWORD"`
	SSHKeyFile        string        `mapstructure:"SSH_KEY_FILE"`
	SSHPort           int           `mapstructure:"SSH_PORT"`
	SSHConnectTimeout time.Duration `mapstructure:"SSH_CONNECT_TIMEOUT"`
	SSHKnownHosts     string        `mapstructure:"SSH_KNOWN_HOSTS"`

	// --- Lab node SSH (terminal bridge) ---
	NodeSSHUsername     string        `mapstructure:"NODE_SSH_USERNAME"`
	NodeSSHPassword     string        `mapstructure:"NODE_SSH_PASSWORD"`
	NodeSSHPort         int           `mapstructure:"NODE_SSH_PORT"`
	NodeSSHTimeout      time.Duration `mapstructure:"NODE_SSH_TIMEOUT"`
	TerminalMaxDuration time.Duration `mapstructure:"TERMINAL_MAX_DURATION"`

	FreePortScanTimeout time.Duration `mapstructure:"FREE_PORT_SCAN_TIMEOUT"`
	MaxUploadBytes      int64         `mapstructure:"MAX_UPLOAD_BYTES"`
	MaxFileReadBytes    int64         `mapstructure:"MAX_FILE_READ_BYTES"`
	// File browsing is confined to LAB_BASE_DIR unless this is set
	FilesAllowOutsideBase bool `mapstructure:"FILES_ALLOW_OUTSIDE_BASE"`
}

var AppConfig Config

// SetDefaults registers every default on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("API_PORT", "3001")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("TRUSTED_PROXIES", "nil")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("TLS_ENABLE", false)
	v.SetDefault("TLS_CERT_FILE", "")
	v.SetDefault("TLS_KEY_FILE", "")

	v.SetDefault("AUTH_ENABLE", false)
	v.SetDefault("JWT_SECRET", "default_secret_change_me")
	v.SetDefault("JWT_EXPIRATION_MINUTES", 60)
	v.SetDefault("ADMIN_GROUP", "clab_admins")

	v.SetDefault("CLAB_RUNTIME", "docker")
	v.SetDefault("LAB_BASE_DIR", "/opt")
	v.SetDefault("UPLOAD_DIR", "uploads")

	v.SetDefault("SSH_USERNAME", "root")
	v.SetDefault("SSH_PASSWORD", "")
	v.SetDefault("SSH_KEY_FILE", "")
	v.SetDefault("SSH_PORT", 22)
	v.SetDefault("SSH_CONNECT_TIMEOUT", "5s")
	v.SetDefault("SSH_KNOWN_HOSTS", "")

	v.SetDefault("NODE_SSH_USERNAME", "admin")
	v.SetDefault("NODE_SSH_PASSWORD", "admin")
	v.SetDefault("NODE_SSH_PORT", 22)
	v.SetDefault("NODE_SSH_TIMEOUT", "10s")
	v.SetDefault("TERMINAL_MAX_DURATION", "24h")

	v.SetDefault("FREE_PORT_SCAN_TIMEOUT", "10s")
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("MAX_FILE_READ_BYTES", 1<<20)
	v.SetDefault("FILES_ALLOW_OUTSIDE_BASE", false)
}

func LoadConfig() error {
	v := viper.New()
	v.SetConfigFile(".env") // Look for .env file
	v.SetConfigType("env")
	v.AutomaticEnv() // Read from environment variables as fallback/override

	SetDefaults(v)

	err := v.ReadInConfig()
	// Ignore if .env file not found, rely on defaults/env vars
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
			return err
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	cfg.JWTExpiration = time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	return cfg, nil
}

// SetConfigFile with a missing .env yields a PathError rather than ConfigFileNotFoundError
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
