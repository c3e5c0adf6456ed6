// Package config loads stepform server settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/gabrielmiguelok/stepform/pkg/forms"
	"github.com/gabrielmiguelok/stepform/pkg/logging"
	"github.com/gabrielmiguelok/stepform/pkg/protocol"
	"github.com/gabrielmiguelok/stepform/pkg/stepper"
	"github.com/gabrielmiguelok/stepform/pkg/transport"
)

// Prefix is prepended to every environment key.
const Prefix = "STEPFORM_"

// Config combines all configuration settings.
type Config struct {
	// Server settings
	Addr            string        `env:"ADDR" envDefault:":3000"`
	Debug           bool          `env:"DEBUG"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON"`

	// Live connections
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	InsecureDevMode bool          `env:"INSECURE_DEV_MODE"`
	Codec           string        `env:"CODEC" envDefault:"json"`
	FrameInterval   time.Duration `env:"FRAME_INTERVAL" envDefault:"16ms"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE" envDefault:"65536"`
	MaxConnections  int           `env:"MAX_CONNECTIONS" envDefault:"1000"`

	// Abuse limits
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" envDefault:"20"`
	TrustProxy          bool    `env:"TRUST_PROXY"`
	EventRate           float64 `env:"EVENT_RATE" envDefault:"20"`
	EventBurst          int     `env:"EVENT_BURST" envDefault:"40"`
	SubmitRate          float64 `env:"SUBMIT_RATE" envDefault:"0.1"`
	SubmitBurst         int     `env:"SUBMIT_BURST" envDefault:"5"`

	// Form behavior
	ValidationDelay      time.Duration `env:"VALIDATION_DELAY" envDefault:"300ms"`
	FocusDelay           time.Duration `env:"FOCUS_DELAY" envDefault:"100ms"`
	ProgressDuration     time.Duration `env:"PROGRESS_DURATION" envDefault:"300ms"`
	FocusOnTransitionEnd bool          `env:"FOCUS_ON_TRANSITION_END"`
	SubmitMode           string        `env:"SUBMIT_MODE" envDefault:"native"`
	FormAction           string        `env:"FORM_ACTION"`
	FormDefinition       string        `env:"FORM_DEFINITION"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return load(env.Options{Prefix: Prefix})
}

// LoadFrom parses vars instead of the process environment. Keys carry the
// prefix.
func LoadFrom(vars map[string]string) (Config, error) {
	return load(env.Options{Prefix: Prefix, Environment: vars})
}

func load(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Addr == "" {
		return ErrAddrRequired
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	if _, err := stepper.ParseSubmitMode(c.SubmitMode); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSubmitMode, c.SubmitMode)
	}
	if c.Codec != "json" && c.Codec != "msgpack" {
		return fmt.Errorf("%w: %q", ErrInvalidCodec, c.Codec)
	}
	if c.FrameInterval <= 0 || c.ValidationDelay < 0 || c.FocusDelay < 0 ||
		c.ProgressDuration <= 0 || c.ShutdownTimeout <= 0 {
		return ErrInvalidDuration
	}
	if c.MaxMessageSize <= 0 {
		return ErrInvalidMaxMessageSize
	}
	if c.MaxConnections <= 0 || c.MaxConnectionsPerIP <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.EventRate < 0 || c.SubmitRate < 0 || c.EventBurst < 0 || c.SubmitBurst < 0 {
		return ErrInvalidRate
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	if c.Debug {
		return slog.LevelDebug
	}
	return level
}

// Logger builds the process logger.
func (c Config) Logger() *logging.SlogLogger {
	opts := []logging.Option{logging.WithLevel(c.Level())}
	if c.LogJSON {
		opts = append(opts, logging.WithJSON())
	}
	if c.Debug {
		opts = append(opts, logging.WithSource())
	}
	return logging.NewSlogLogger(opts...)
}

// Definition loads the form definition from FormDefinition, or the
// built-in contact form when unset. FormAction overrides its action.
func (c Config) Definition() (*forms.Definition, error) {
	d := forms.DefaultDefinition()
	if c.FormDefinition != "" {
		var err error
		if d, err = forms.LoadDefinition(c.FormDefinition); err != nil {
			return nil, err
		}
	}
	if c.FormAction != "" {
		d.Action = c.FormAction
	}
	return d, nil
}

// StepperOptions returns the controller options for d.
func (c Config) StepperOptions(d *forms.Definition) (stepper.Options, error) {
	opts, err := stepper.OptionsFromDefinition(d)
	if err != nil {
		return stepper.Options{}, err
	}
	mode, err := stepper.ParseSubmitMode(c.SubmitMode)
	if err != nil {
		return stepper.Options{}, err
	}
	opts.ValidationDelay = c.ValidationDelay
	opts.FocusDelay = c.FocusDelay
	opts.ProgressDuration = c.ProgressDuration
	opts.FocusOnTransitionEnd = c.FocusOnTransitionEnd
	opts.SubmitMode = mode
	return opts, nil
}

// Transport returns the WebSocket transport settings.
func (c Config) Transport() *transport.Config {
	t := transport.DefaultConfig()
	t.MaxMessageSize = c.MaxMessageSize
	return t
}

// WebSocket returns the WebSocket origin policy.
func (c Config) WebSocket() *transport.WebSocketConfig {
	return &transport.WebSocketConfig{
		AllowedOrigins:  c.AllowedOrigins,
		InsecureDevMode: c.InsecureDevMode,
	}
}

// Codecs returns a codec registry whose default is Codec.
func (c Config) Codecs() (*protocol.CodecRegistry, error) {
	r := protocol.NewCodecRegistry()
	if err := r.SetDefault(c.Codec); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCodec, c.Codec)
	}
	return r, nil
}

// Configuration errors.
var (
	ErrAddrRequired          = configError("listen address is required")
	ErrInvalidLogLevel       = configError("invalid log level")
	ErrInvalidSubmitMode     = configError("invalid submit mode")
	ErrInvalidCodec          = configError("codec must be json or msgpack")
	ErrInvalidDuration       = configError("durations must be positive")
	ErrInvalidMaxMessageSize = configError("max message size must be positive")
	ErrInvalidMaxConnections = configError("max connections must be positive")
	ErrInvalidRate           = configError("rates and bursts must not be negative")
)

type configError string

func (e configError) Error() string { return string(e) }
