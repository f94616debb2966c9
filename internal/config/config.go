package config

import "github.com/kelseyhightower/envconfig"

type APIConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"8"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`

	// Gateway
	GatewayInstanceID string  `envconfig:"GATEWAY_INSTANCE_ID"`
	GatewayToken      string  `envconfig:"GATEWAY_TOKEN"`
	GatewayBaseURL    string  `envconfig:"GATEWAY_BASE_URL" default:"https://api.gateway.local"`
	GatewayTimeout    string  `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
	GatewayRPS        float64 `envconfig:"GATEWAY_RPS" default:"2"`
	GatewayBurst      int     `envconfig:"GATEWAY_BURST" default:"3"`

	// Dispatch
	DefaultCountryCode string `envconfig:"DEFAULT_COUNTRY_CODE" default:"55"`
	NameFallback       string `envconfig:"NAME_FALLBACK" default:"amigo(a)"`
	StaleRunAfter      string `envconfig:"STALE_RUN_AFTER" default:"5m"`
}

type WorkerConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8081"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"8"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`

	// AWS / SQS control channel
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	ControlQueueURL    string `envconfig:"CONTROL_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"120"`

	// Gateway
	GatewayInstanceID string  `envconfig:"GATEWAY_INSTANCE_ID"`
	GatewayToken      string  `envconfig:"GATEWAY_TOKEN"`
	GatewayBaseURL    string  `envconfig:"GATEWAY_BASE_URL" default:"https://api.gateway.local"`
	GatewayTimeout    string  `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
	GatewayRPS        float64 `envconfig:"GATEWAY_RPS" default:"2"`
	GatewayBurst      int     `envconfig:"GATEWAY_BURST" default:"3"`

	// Dispatch
	DefaultCountryCode string `envconfig:"DEFAULT_COUNTRY_CODE" default:"55"`
	NameFallback       string `envconfig:"NAME_FALLBACK" default:"amigo(a)"`
	StaleRunAfter      string `envconfig:"STALE_RUN_AFTER" default:"5m"`

	// Scheduler
	SweepSchedule     string `envconfig:"SWEEP_SCHEDULE" default:"* * * * *"`
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE" default:"*/15 * * * *"`
	SweepBatch        int    `envconfig:"SWEEP_BATCH" default:"50"`
	ReconcileLookback string `envconfig:"RECONCILE_LOOKBACK" default:"24h"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
