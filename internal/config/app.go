package config

import (
	"log"
	"os"
	"sync"
	"time"
)

type AppConfig struct {
	Name        string
	Env         string
	Port        string
	BaseURL     string
	CORSOrigins string
	// MaxUploadMB bounds request bodies, so it also caps media uploads.
	MaxUploadMB        int
	SessionIdleTimeout time.Duration
	SSEHeartbeat       time.Duration
}

var (
	appConfig *AppConfig
	appOnce   sync.Once
)

func LoadAppConfig() *AppConfig {
	appOnce.Do(func() {
		env := os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
			log.Printf("Warning: APP_ENV not set, defaulting to %s", env)
		}
		appConfig = &AppConfig{
			Name:               getEnv("APP_NAME", "introeval-web"),
			Env:                env,
			Port:               getEnv("APP_PORT", ":8080"),
			BaseURL:            os.Getenv("APP_URL"),
			CORSOrigins:        getEnv("CORS_ALLOW_ORIGINS", "*"),
			MaxUploadMB:        getEnvInt("MAX_UPLOAD_MB", 200),
			SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour),
			SSEHeartbeat:       getEnvDuration("SSE_HEARTBEAT", 15*time.Second),
		}
	})
	return appConfig
}

func (c *AppConfig) Production() bool {
	return c.Env == "production"
}
