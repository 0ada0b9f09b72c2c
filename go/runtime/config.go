package runtime

import "time"

// Config is the top-level configuration object of the market-data service:
// one go-flags group per subsystem, each field defaulted to spec.md §6's
// configuration table.
type Config struct {
	Upstream struct {
		Host    string `long:"host" env:"HOST" required:"true" description:"Upstream feed host"`
		Port    int    `long:"port" env:"PORT" default:"14002" description:"Upstream feed port"`
		Service string `long:"service" env:"SERVICE" description:"Upstream feed service name"`
		User    string `long:"user" env:"USER" description:"Upstream feed application user"`
	} `group:"Upstream" namespace:"upstream" env-namespace:"UPSTREAM"`

	Ingest struct {
		QueueCapacity   int `long:"queue-capacity" env:"QUEUE_CAPACITY" default:"1000" description:"Ingest queue bound"`
		WorkerCount     int `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Ingest worker pool size"`
		TaskStalenessMs int `long:"task-staleness-ms" env:"TASK_STALENESS_MS" default:"5000" description:"Drop tasks older than this"`
		PollTimeoutMs   int `long:"poll-timeout-ms" env:"POLL_TIMEOUT_MS" default:"500" description:"Worker block bound"`
	} `group:"Ingest" namespace:"ingest" env-namespace:"INGEST"`

	Fanout struct {
		SubscriberQueueCapacity int `long:"subscriber-queue-capacity" env:"SUBSCRIBER_QUEUE_CAPACITY" default:"256" description:"Per-stream outbound bound"`
		SlowConsumerTimeoutMs   int `long:"slow-consumer-timeout-ms" env:"SLOW_CONSUMER_TIMEOUT_MS" default:"5000" description:"Eviction threshold"`
	} `group:"Fanout" namespace:"fanout" env-namespace:"FANOUT"`

	Resilience struct {
		PermitsPerSecond  int     `long:"permits-per-sec" env:"PERMITS_PER_SEC" default:"200" description:"Rate limit"`
		AcquireTimeoutMs  int     `long:"acquire-timeout-ms" env:"ACQUIRE_TIMEOUT_MS" default:"500" description:"Permit wait"`
		BreakerWindowSize int     `long:"cb-window-size" env:"CB_WINDOW_SIZE" default:"20" description:"Circuit breaker request window"`
		FailureRatePct    float64 `long:"cb-failure-rate-pct" env:"CB_FAILURE_RATE_PCT" default:"50" description:"Circuit breaker trip threshold"`
		CooldownSec       int     `long:"cb-cooldown-sec" env:"CB_COOLDOWN_SEC" default:"30" description:"Circuit breaker open-state duration"`
		RetryMaxAttempts  int     `long:"retry-max-attempts" env:"RETRY_MAX_ATTEMPTS" default:"3" description:"Retry policy attempt count"`
		RetryBaseBackoffMs int    `long:"retry-base-backoff-ms" env:"RETRY_BASE_BACKOFF_MS" default:"100" description:"Retry policy base backoff"`
	} `group:"Resilience" namespace:"resilience" env-namespace:"RESILIENCE"`

	Quality struct {
		Enabled           bool    `long:"enabled" env:"ENABLED" description:"Enable the data-quality core"`
		AlertingEnabled   bool    `long:"alerting-enabled" env:"ALERTING_ENABLED" description:"Enable throttled alerting"`
		MinPrice          float64 `long:"min-price" env:"MIN_PRICE" default:"0.01" description:"Validity range floor"`
		MaxPrice          float64 `long:"max-price" env:"MAX_PRICE" default:"1000000" description:"Validity range ceiling"`
		MaxSpreadPct      float64 `long:"max-spread-pct" env:"MAX_SPREAD_PCT" default:"10" description:"Consistency spread threshold"`
		MaxAgeSec         int     `long:"max-age-sec" env:"MAX_AGE_SEC" default:"60" description:"Timeliness threshold"`
		MaxDecimalPlaces  int     `long:"max-decimal-places" env:"MAX_DECIMAL_PLACES" default:"6" description:"Accuracy threshold"`
		MinQualityScore   float64 `long:"min-quality-score" env:"MIN_QUALITY_SCORE" default:"95" description:"Health threshold"`
		AlertThrottleSec  int     `long:"alert-throttle-sec" env:"ALERT_THROTTLE_SEC" default:"60" description:"Alert rate limit"`
		IssuesPerRIC      int     `long:"issues-per-ric" env:"ISSUES_PER_RIC" default:"100" description:"Per-RIC issue ring size"`
		IssuesGlobal      int     `long:"issues-global" env:"ISSUES_GLOBAL" default:"10000" description:"Global issue ring size"`
	} `group:"Quality" namespace:"quality" env-namespace:"QUALITY"`

	Shutdown struct {
		DrainTimeoutMs int `long:"drain-timeout-ms" env:"DRAIN_TIMEOUT_MS" default:"5000" description:"Ingest queue drain bound"`
		TotalBudgetSec int `long:"total-budget-sec" env:"TOTAL_BUDGET_SEC" default:"30" description:"Overall shutdown watchdog"`
	} `group:"Shutdown" namespace:"shutdown" env-namespace:"SHUTDOWN"`

	Log struct {
		Level string `long:"level" env:"LEVEL" default:"info" description:"logrus level name"`
	} `group:"Logging" namespace:"log" env-namespace:"LOG"`

	API struct {
		Addr       string `long:"addr" env:"ADDR" default:":8080" description:"REST API listen address"`
		MetricsAddr string `long:"metrics-addr" env:"METRICS_ADDR" default:":9090" description:"Prometheus /metrics listen address"`
	} `group:"API" namespace:"api" env-namespace:"API"`
}

func (c Config) taskStaleness() time.Duration   { return time.Duration(c.Ingest.TaskStalenessMs) * time.Millisecond }
func (c Config) pollTimeout() time.Duration     { return time.Duration(c.Ingest.PollTimeoutMs) * time.Millisecond }
func (c Config) slowConsumerTimeout() time.Duration {
	return time.Duration(c.Fanout.SlowConsumerTimeoutMs) * time.Millisecond
}
func (c Config) acquireTimeout() time.Duration { return time.Duration(c.Resilience.AcquireTimeoutMs) * time.Millisecond }
func (c Config) cooldown() time.Duration       { return time.Duration(c.Resilience.CooldownSec) * time.Second }
func (c Config) retryBaseBackoff() time.Duration {
	return time.Duration(c.Resilience.RetryBaseBackoffMs) * time.Millisecond
}
func (c Config) maxAge() time.Duration      { return time.Duration(c.Quality.MaxAgeSec) * time.Second }
func (c Config) alertThrottle() time.Duration {
	return time.Duration(c.Quality.AlertThrottleSec) * time.Second
}
func (c Config) drainTimeout() time.Duration { return time.Duration(c.Shutdown.DrainTimeoutMs) * time.Millisecond }
func (c Config) totalBudget() time.Duration  { return time.Duration(c.Shutdown.TotalBudgetSec) * time.Second }
