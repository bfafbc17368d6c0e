// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Engine drivers.
const (
	DriverPlaywright = "playwright"
	DriverCDP        = "cdp"
)

// Screenshot storage modes.
const (
	ScreenshotInline = "inline"
	ScreenshotFile   = "file"
)

var knownFormats = map[string]bool{"html": true, "json": true, "text": true}

// Interface defines read-only access to the resolved run configuration.
// There are deliberately no setters: a Config is resolved once per process.
type Interface interface {
	Browser() BrowserConfig
	Run() RunConfig
	Report() ReportConfig
	Logger() LoggerConfig
	Checkout() CheckoutFixture
	Login() Credentials
	Lookup(key string) (string, bool)
}

// Config holds the resolved run configuration. Fields are private so the value
// cannot drift after Load returns.
type Config struct {
	browser  BrowserConfig
	run      RunConfig
	report   ReportConfig
	logger   LoggerConfig
	checkout CheckoutFixture
	login    Credentials
	// settings is a flat snapshot of every resolved key, for raw lookups.
	settings map[string]string
}

var _ Interface = (*Config)(nil)

func (c *Config) Browser() BrowserConfig    { return c.browser }
func (c *Config) Run() RunConfig            { return c.run }
func (c *Config) Report() ReportConfig      { return c.report }
func (c *Config) Logger() LoggerConfig      { return c.logger }
func (c *Config) Checkout() CheckoutFixture { return c.checkout }
func (c *Config) Login() Credentials        { return c.login }

// Lookup returns the resolved string form of any key, including keys the
// harness does not interpret itself.
func (c *Config) Lookup(key string) (string, bool) {
	v, ok := c.settings[strings.ToLower(key)]
	return v, ok
}

// BrowserConfig holds the engine launch settings.
type BrowserConfig struct {
	Kind          string
	Driver        string
	Headless      bool
	Maximize      bool
	Args          []string
	LaunchTimeout time.Duration
	Install       bool
	ActionTimeout time.Duration
}

// RunConfig holds the execution settings.
type RunConfig struct {
	RetryCount int
	Workers    int
	Env        string
	BaseURL    string
	DataFile   string
	DataSheet  string
}

// ReportConfig holds the report sink settings.
type ReportConfig struct {
	Dir              string
	Formats          []string
	ScreenshotOnPass bool
	ScreenshotMode   string
	Author           string
	DatabaseURL      string
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string
	Format      string
	ServiceName string
	LogFile     string
	MaxSize     int
	MaxBackups  int
	MaxAge      int
	Compress    bool
}

// CheckoutFixture is the data typed into the checkout form.
type CheckoutFixture struct {
	FullName   string
	Address    string
	CardNumber string
	Expiry     string
	CVC        string
}

// Credentials is the fallback login row used when no data file is configured.
type Credentials struct {
	Username string
	Password string
}

// LoadOptions describes the override layers applied on top of the config file.
type LoadOptions struct {
	// File is an explicit config path. When set, it must exist.
	File string
	// SearchPaths are scanned for config.{properties,yaml,yml} when File is empty.
	SearchPaths []string
	// Flags and FlagKeys bind changed command-line flags to configuration keys.
	Flags    *pflag.FlagSet
	FlagKeys map[string]string
	// Overrides are explicit key=value pairs and take precedence over everything.
	Overrides map[string]string
}

// Load resolves the configuration once. Precedence, highest first: Overrides,
// changed flags, E2E_* environment variables, the config file, defaults.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.NewWithOptions(viper.WithCodecRegistry(codecRegistry()))
	SetDefaults(v)

	if opts.File != "" {
		path, err := homedir.Expand(opts.File)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path %q: %w", opts.File, err)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file unavailable: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		paths := opts.SearchPaths
		if len(paths) == 0 {
			paths = []string{".", "configs"}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found; proceed with defaults and overrides.
	}

	if opts.Flags != nil {
		for name, key := range opts.FlagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	return NewConfigFromViper(v)
}

// NewConfigFromViper builds an immutable Config from a populated viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	dir, err := homedir.Expand(v.GetString(KeyReportDir))
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s: %w", KeyReportDir, err)
	}
	dataFile, err := homedir.Expand(v.GetString(KeyDataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s: %w", KeyDataFile, err)
	}

	cfg := &Config{
		browser: BrowserConfig{
			Kind:          strings.TrimSpace(v.GetString(KeyBrowser)),
			Driver:        strings.ToLower(strings.TrimSpace(v.GetString(KeyDriver))),
			Headless:      v.GetBool(KeyHeadless),
			Maximize:      v.GetBool(KeyMaximizeWindow),
			Args:          argList(v.Get(KeyLaunchArgs)),
			LaunchTimeout: v.GetDuration(KeyLaunchTimeout),
			Install:       v.GetBool(KeyLaunchInstall),
			ActionTimeout: v.GetDuration(KeyActionTimeout),
		},
		run: RunConfig{
			RetryCount: v.GetInt(KeyRetryCount),
			Workers:    v.GetInt(KeyWorkers),
			Env:        v.GetString(KeyEnv),
			BaseURL:    strings.TrimSpace(v.GetString(KeyBaseURL)),
			DataFile:   dataFile,
			DataSheet:  v.GetString(KeyDataSheet),
		},
		report: ReportConfig{
			Dir:              dir,
			Formats:          formatList(v.Get(KeyReportFormats)),
			ScreenshotOnPass: v.GetBool(KeyScreenshotOnPass),
			ScreenshotMode:   strings.ToLower(strings.TrimSpace(v.GetString(KeyScreenshotMode))),
			Author:           v.GetString(KeyAuthor),
			DatabaseURL:      v.GetString(KeyReportDatabase),
		},
		logger: LoggerConfig{
			Level:       v.GetString(KeyLoggerLevel),
			Format:      v.GetString(KeyLoggerFormat),
			ServiceName: v.GetString(KeyLoggerService),
			LogFile:     v.GetString(KeyLoggerFile),
			MaxSize:     v.GetInt(KeyLoggerMaxSize),
			MaxBackups:  v.GetInt(KeyLoggerMaxBackups),
			MaxAge:      v.GetInt(KeyLoggerMaxAge),
			Compress:    v.GetBool(KeyLoggerCompress),
		},
		checkout: CheckoutFixture{
			FullName:   v.GetString(KeyCheckoutFullName),
			Address:    v.GetString(KeyCheckoutAddress),
			CardNumber: v.GetString(KeyCheckoutCard),
			Expiry:     v.GetString(KeyCheckoutExpiry),
			CVC:        v.GetString(KeyCheckoutCVC),
		},
		login: Credentials{
			Username: v.GetString(KeyLoginUsername),
			Password: v.GetString(KeyLoginPassword),
		},
		settings: make(map[string]string),
	}

	for _, key := range v.AllKeys() {
		cfg.settings[key] = stringify(v.Get(key))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewDefaultConfig returns the configuration built from defaults alone.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults are static; failing here is a programming error.
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.run.RetryCount < 0 {
		return fmt.Errorf("%s must not be negative", KeyRetryCount)
	}
	if c.run.Workers <= 0 {
		return fmt.Errorf("%s must be a positive integer", KeyWorkers)
	}
	switch c.browser.Driver {
	case DriverPlaywright, DriverCDP:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", KeyDriver, DriverPlaywright, DriverCDP, c.browser.Driver)
	}
	if c.browser.ActionTimeout <= 0 {
		return fmt.Errorf("%s must be a positive duration", KeyActionTimeout)
	}
	if c.browser.LaunchTimeout <= 0 {
		return fmt.Errorf("%s must be a positive duration", KeyLaunchTimeout)
	}
	switch c.report.ScreenshotMode {
	case ScreenshotInline, ScreenshotFile:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", KeyScreenshotMode, ScreenshotInline, ScreenshotFile, c.report.ScreenshotMode)
	}
	if c.report.Dir == "" {
		return fmt.Errorf("%s must not be empty", KeyReportDir)
	}
	for _, f := range c.report.Formats {
		if !knownFormats[f] {
			return fmt.Errorf("%s contains unsupported format %q", KeyReportFormats, f)
		}
	}
	return nil
}

// stringList accepts either a real list or a separated string, which is how
// lists arrive from properties files and environment variables. Items are
// trimmed and empty ones dropped; case is preserved.
func stringList(raw interface{}, split func(string) []string) []string {
	var parts []string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		parts = split(val)
	case []string:
		parts = val
	case []interface{}:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	default:
		parts = []string{fmt.Sprint(val)}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// formatList reads report.formats: comma separated, case-insensitive.
func formatList(raw interface{}) []string {
	formats := stringList(raw, func(s string) []string { return strings.Split(s, ",") })
	for i, f := range formats {
		formats[i] = strings.ToLower(f)
	}
	return formats
}

// argList reads launch.args. A comma only separates arguments when the next
// one starts with "-", so values such as --window-size=1920,1080 stay whole.
func argList(raw interface{}) []string {
	return stringList(raw, splitArgs)
}

func splitArgs(s string) []string {
	var args []string
	for _, field := range strings.Split(s, ",") {
		if len(args) == 0 || strings.HasPrefix(strings.TrimSpace(field), "-") {
			args = append(args, field)
			continue
		}
		args[len(args)-1] += "," + field
	}
	return args
}

func stringify(raw interface{}) string {
	switch val := raw.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(val, ",")
	case []interface{}:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ",")
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return strings.Join(keys, ",")
	default:
		return fmt.Sprint(val)
	}
}
