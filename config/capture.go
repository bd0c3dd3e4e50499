package config

import "time"

// CaptureConfig contains configuration for the capture worker and the
// Scoop capture process it launches.
type CaptureConfig struct {
	// Enabled controls whether claimed jobs are actually executed.
	// When false, the runner logs and leaves jobs pending.
	Enabled bool `env:"LAUNCH_CAPTURE_JOBS" envDefault:"true"`

	// Command is the executable used to launch Scoop.
	Command string `env:"SCOOP_COMMAND" envDefault:"npx"`
	// Args are the leading arguments before the target URL.
	Args []string `env:"SCOOP_ARGS" envDefault:"scoop"`

	// WorkDir is the directory where per-job capture output directories are created.
	WorkDir string `env:"SCOOP_WORK_DIR" envDefault:"/tmp/scoopd"`

	// FatalTimeout is the hard limit on a single capture process. When it
	// fires the process is forcibly terminated and its output salvaged.
	FatalTimeout time.Duration `env:"SCOOP_FATAL_TIMEOUT" envDefault:"5m"`
	// SoftTimeout is logged when exceeded but takes no action. It must fall
	// below FatalTimeout or the warning could never fire.
	SoftTimeout time.Duration `env:"SCOOP_SOFT_TIMEOUT" envDefault:"4m"`

	// MaxRecording bounds total recording time passed to the capture tool.
	MaxRecording time.Duration `env:"SCOOP_MAX_RECORDING" envDefault:"4m"`
	// MaxPageLoad bounds page load time. Zero means tool default.
	MaxPageLoad time.Duration `env:"SCOOP_MAX_PAGE_LOAD" envDefault:"0"`
	// MaxNetworkIdle bounds the network idle wait. Zero means tool default.
	MaxNetworkIdle time.Duration `env:"SCOOP_MAX_NETWORK_IDLE" envDefault:"0"`
	// MaxBrowserBehaviors bounds browser behavior scripts. Zero means tool default.
	MaxBrowserBehaviors time.Duration `env:"SCOOP_MAX_BROWSER_BEHAVIORS" envDefault:"0"`
	// MaxVideoAsAttachment bounds video attachment extraction. Zero means tool default.
	MaxVideoAsAttachment time.Duration `env:"SCOOP_MAX_VIDEO_AS_ATTACHMENT" envDefault:"0"`
	// MaxCertsAsAttachment bounds certificate attachment extraction. Zero means tool default.
	MaxCertsAsAttachment time.Duration `env:"SCOOP_MAX_CERTS_AS_ATTACHMENT" envDefault:"0"`

	// MaxCaptureSize bounds the capture size in bytes. Zero means tool default.
	MaxCaptureSize int64 `env:"SCOOP_MAX_CAPTURE_SIZE" envDefault:"0"`
	// WindowSize is passed as the browser window size when set (e.g. "1600x900").
	WindowSize string `env:"SCOOP_WINDOW_SIZE" envDefault:""`

	// AllowHeadful permits per-job headful browser requests. When false the
	// browser always runs headless regardless of the job's options.
	AllowHeadful bool `env:"SCOOP_ALLOW_HEADFUL" envDefault:"false"`
	// AllowVideoAsAttachment permits per-job video extraction requests.
	AllowVideoAsAttachment bool `env:"SCOOP_ALLOW_VIDEO_AS_ATTACHMENT" envDefault:"true"`

	// ProxyPort is the intercepting proxy port used by the capture tool.
	ProxyPort int `env:"SCOOP_PROXY_PORT" envDefault:"9999"`
	// UserAgentSuffix is appended to the browser user agent when set.
	UserAgentSuffix string `env:"SCOOP_USER_AGENT_SUFFIX" envDefault:""`
	// Blocklist is a custom request blocklist passed to the capture tool when set.
	Blocklist string `env:"SCOOP_BLOCKLIST" envDefault:""`
	// LogLevel is the capture tool's log level.
	LogLevel string `env:"SCOOP_LOG_LEVEL" envDefault:"trace"`

	// PollInterval is how long the runner sleeps when no jobs are pending.
	PollInterval time.Duration `env:"CAPTURE_POLL_INTERVAL" envDefault:"2s"`
	// Concurrency is the number of jobs a single runner executes at once.
	Concurrency int `env:"CAPTURE_CONCURRENCY" envDefault:"1"`
}

// Sanitize applies guardrails to capture configuration values.
func (c *CaptureConfig) Sanitize() {
	if c.FatalTimeout <= 0 {
		c.FatalTimeout = 5 * time.Minute
	}
	if c.SoftTimeout <= 0 || c.SoftTimeout >= c.FatalTimeout {
		c.SoftTimeout = c.FatalTimeout * 4 / 5
	}
	if c.MaxRecording <= 0 {
		c.MaxRecording = 4 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
}
