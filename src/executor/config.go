package executor

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Mode             string        `envconfig:"EXECUTION_MODE" default:"simulate"`
	AdmissionPeriod  time.Duration `envconfig:"ADMISSION_PERIOD" default:"1m"`
	ReconcilePeriod  time.Duration `envconfig:"RECONCILE_PERIOD" default:"1m"`
	StrategyPeriod   time.Duration `envconfig:"STRATEGY_PERIOD" default:"1m"`
	BrokerTimeout    time.Duration `envconfig:"BROKER_TIMEOUT" default:"15s"`
	FillPollAttempts int           `envconfig:"FILL_POLL_ATTEMPTS" default:"5"`
	FillPollDelay    time.Duration `envconfig:"FILL_POLL_DELAY" default:"2s"`
	BrokerBaseURL    string        `envconfig:"BROKER_BASE_URL" default:"https://sandbox-gateway.example.com"`
	BrokerAPIKey     string        `envconfig:"BROKER_API_KEY"`
	BrokerAPISecret  string        `envconfig:"BROKER_API_SECRET"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
