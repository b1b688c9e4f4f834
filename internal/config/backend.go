package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	TransportPoll = "poll"
	TransportSSE  = "sse"
)

// BackendConfig describes the remote processing backend and the client-side
// timings used against it.
type BackendConfig struct {
	BaseURL              string        `validate:"required,url"`
	RequestTimeout       time.Duration `validate:"gt=0"`
	PollInterval         time.Duration `validate:"gt=0"`
	PollTimeout          time.Duration `validate:"gt=0"`
	StatsInterval        time.Duration `validate:"gt=0"`
	RecoveryInterval     time.Duration `validate:"gt=0"`
	RecoveryInitialDelay time.Duration `validate:"gte=0"`
	AuthRedirectDelay    time.Duration `validate:"gte=0"`
	LoginPath            string        `validate:"required"`
	StatusTransport      string        `validate:"oneof=poll sse"`
	StatusStreamPath     string        `validate:"required_if=StatusTransport sse"`
}

var (
	backendConfig *BackendConfig
	backendOnce   sync.Once
)

func LoadBackendConfig() *BackendConfig {
	backendOnce.Do(func() {
		backendConfig = &BackendConfig{
			BaseURL:              getEnv("BACKEND_URL", "http://localhost:8000"),
			RequestTimeout:       getEnvDuration("BACKEND_REQUEST_TIMEOUT", 30*time.Second),
			PollInterval:         getEnvDuration("STATUS_POLL_INTERVAL", 2*time.Second),
			PollTimeout:          getEnvDuration("STATUS_POLL_TIMEOUT", 80*time.Minute),
			StatsInterval:        getEnvDuration("QUEUE_STATS_INTERVAL", 3*time.Second),
			RecoveryInterval:     getEnvDuration("RECOVERY_INTERVAL", 30*time.Second),
			RecoveryInitialDelay: getEnvDuration("RECOVERY_INITIAL_DELAY", 3*time.Second),
			AuthRedirectDelay:    getEnvDuration("AUTH_REDIRECT_DELAY", 2*time.Second),
			LoginPath:            getEnv("LOGIN_PATH", "/login"),
			StatusTransport:      getEnv("STATUS_TRANSPORT", TransportPoll),
			StatusStreamPath:     getEnv("STATUS_STREAM_PATH", ""),
		}
	})
	return backendConfig
}

func (c *BackendConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid backend config: %w", err)
	}
	return nil
}
