package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Extractor   ExtractorConfig   `mapstructure:"extractor" yaml:"extractor"`
	Layout      LayoutConfig      `mapstructure:"layout" yaml:"layout"`
	Classifier  ClassifierConfig  `mapstructure:"classifier" yaml:"classifier"`
	Executor    ExecutorConfig    `mapstructure:"executor" yaml:"executor"`
	Verify      VerifyConfig      `mapstructure:"verify" yaml:"verify"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
}

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser sessions.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// ProfileDir is the base directory for per-session browser profiles.
	// Each session gets its own subdirectory; sessions never share one.
	ProfileDir string `mapstructure:"profile_dir" yaml:"profile_dir"`
}

// ExtractorConfig tunes the text/element extraction pass.
type ExtractorConfig struct {
	// OCREnabled toggles the screenshot OCR pass. DOM extraction always runs.
	OCREnabled bool `mapstructure:"ocr_enabled" yaml:"ocr_enabled"`
	// RequireOCR makes an unreachable OCR backend a hard ExtractionError
	// instead of degrading to DOM-only results.
	RequireOCR bool `mapstructure:"require_ocr" yaml:"require_ocr"`
	// TesseractPath is the OCR binary to invoke. Resolved via $PATH when
	// left as the bare name.
	TesseractPath string `mapstructure:"tesseract_path" yaml:"tesseract_path"`
	// Languages is the OCR language hint. Target text may be bilingual, so
	// the default stacks the primary UI language with English.
	Languages string `mapstructure:"languages" yaml:"languages"`
	// ConfidenceFloor drops OCR tokens below this normalized confidence.
	ConfidenceFloor float64 `mapstructure:"confidence_floor" yaml:"confidence_floor"`
	// ClassSubstrings selects generic DOM containers worth observing
	// (modal, post, chat, sidebar and friends).
	ClassSubstrings []string      `mapstructure:"class_substrings" yaml:"class_substrings"`
	OCRTimeout      time.Duration `mapstructure:"ocr_timeout" yaml:"ocr_timeout"`
}

// LayoutConfig holds the fractional partition thresholds.
type LayoutConfig struct {
	TopFraction   float64 `mapstructure:"top_fraction" yaml:"top_fraction"`
	LeftFraction  float64 `mapstructure:"left_fraction" yaml:"left_fraction"`
	RightFraction float64 `mapstructure:"right_fraction" yaml:"right_fraction"`
}

// ClassifierConfig tunes state classification.
type ClassifierConfig struct {
	// ConfidenceFloor gates the secondary heuristic pass: when the primary
	// keyword-overlap score stays below it, compound rules may override.
	ConfidenceFloor float64 `mapstructure:"confidence_floor" yaml:"confidence_floor"`
	// HistoryCap bounds the in-memory classification history. Zero keeps
	// no history.
	HistoryCap int `mapstructure:"history_cap" yaml:"history_cap"`
	// CatalogFile optionally points at a YAML state catalog; empty uses
	// the built-in default catalog.
	CatalogFile string `mapstructure:"catalog_file" yaml:"catalog_file"`
}

// ExecutorConfig tunes action resolution and dispatch.
type ExecutorConfig struct {
	// SettleDelay is the fixed pause after every successful click, since UI
	// transitions in the target application are asynchronous.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// OCRConfidenceFloor gates the coordinate-fallback candidates.
	OCRConfidenceFloor float64 `mapstructure:"ocr_confidence_floor" yaml:"ocr_confidence_floor"`
}

// VerifyConfig tunes the verification/retry loop.
type VerifyConfig struct {
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// WaitForStateTimeout bounds the dedicated wait-for-state operation,
	// the only wall-clock-bounded wait in the system.
	WaitForStateTimeout time.Duration `mapstructure:"wait_for_state_timeout" yaml:"wait_for_state_timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// DiagnosticsConfig controls failure artifact persistence.
type DiagnosticsConfig struct {
	// Dir receives screenshots and structured failure records.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SetDefaults registers every default value on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "ocular")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.profile_dir", "")

	v.SetDefault("extractor.ocr_enabled", true)
	v.SetDefault("extractor.require_ocr", false)
	v.SetDefault("extractor.tesseract_path", "tesseract")
	v.SetDefault("extractor.languages", "jpn+eng")
	v.SetDefault("extractor.confidence_floor", 0.30)
	v.SetDefault("extractor.class_substrings", []string{"modal", "post", "chat", "sidebar"})
	v.SetDefault("extractor.ocr_timeout", 30*time.Second)

	v.SetDefault("layout.top_fraction", 0.2)
	v.SetDefault("layout.left_fraction", 0.3)
	v.SetDefault("layout.right_fraction", 0.6)

	v.SetDefault("classifier.confidence_floor", 0.7)
	v.SetDefault("classifier.history_cap", 100)

	v.SetDefault("executor.settle_delay", 2*time.Second)
	v.SetDefault("executor.ocr_confidence_floor", 0.30)

	v.SetDefault("verify.max_retries", 3)
	v.SetDefault("verify.retry_delay", 3*time.Second)
	v.SetDefault("verify.wait_for_state_timeout", 10*time.Second)
	v.SetDefault("verify.poll_interval", 1*time.Second)

	v.SetDefault("diagnostics.dir", "diagnostics")
}

// Validate checks cross-field invariants that viper cannot express.
func (c *Config) Validate() error {
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d",
			c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	if c.Extractor.ConfidenceFloor < 0 || c.Extractor.ConfidenceFloor > 1 {
		return fmt.Errorf("extractor confidence floor %v outside [0,1]", c.Extractor.ConfidenceFloor)
	}
	if c.Classifier.ConfidenceFloor < 0 || c.Classifier.ConfidenceFloor > 1 {
		return fmt.Errorf("classifier confidence floor %v outside [0,1]", c.Classifier.ConfidenceFloor)
	}
	if f := c.Layout; f.TopFraction <= 0 || f.TopFraction >= 1 ||
		f.LeftFraction <= 0 || f.RightFraction >= 1 || f.LeftFraction >= f.RightFraction {
		return fmt.Errorf("layout fractions invalid: top=%v left=%v right=%v",
			f.TopFraction, f.LeftFraction, f.RightFraction)
	}
	if c.Verify.MaxRetries < 1 {
		return fmt.Errorf("verify max_retries must be at least 1, got %d", c.Verify.MaxRetries)
	}
	if c.Verify.PollInterval <= 0 {
		return fmt.Errorf("verify poll_interval must be positive, got %v", c.Verify.PollInterval)
	}
	return nil
}

// Load reads configuration from the given file (or the default search
// path when empty), layering environment variables on top.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("OCULAR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully-defaulted configuration without touching the
// filesystem or environment. Used by tests and as a construction baseline.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}
