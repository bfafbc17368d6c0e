// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "chrome", cfg.Browser().Kind)
	assert.Equal(t, DriverPlaywright, cfg.Browser().Driver)
	assert.True(t, cfg.Browser().Headless)
	assert.False(t, cfg.Browser().Maximize)
	assert.Equal(t, 30*time.Second, cfg.Browser().ActionTimeout)
	assert.Equal(t, 1, cfg.Run().RetryCount)
	assert.Equal(t, 1, cfg.Run().Workers)
	assert.Equal(t, "QA", cfg.Run().Env)
	assert.Equal(t, ScreenshotInline, cfg.Report().ScreenshotMode)
	assert.Equal(t, []string{"html", "json", "text"}, cfg.Report().Formats)
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "Ramesh", cfg.Checkout().FullName)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	base := NewDefaultConfig()
	require.NoError(t, base.Validate())

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"negative retry", func(c *Config) { c.run.RetryCount = -1 }, "retry.count must not be negative"},
		{"zero workers", func(c *Config) { c.run.Workers = 0 }, "workers must be a positive integer"},
		{"unknown driver", func(c *Config) { c.browser.Driver = "selenium" }, "driver must be"},
		{"zero action timeout", func(c *Config) { c.browser.ActionTimeout = 0 }, "action.timeout must be a positive duration"},
		{"zero launch timeout", func(c *Config) { c.browser.LaunchTimeout = 0 }, "launch.timeout must be a positive duration"},
		{"unknown screenshot mode", func(c *Config) { c.report.ScreenshotMode = "s3" }, "screenshot.mode must be"},
		{"empty report dir", func(c *Config) { c.report.Dir = "" }, "report.dir must not be empty"},
		{"unknown format", func(c *Config) { c.report.Formats = []string{"html", "pdf"} }, `unsupported format "pdf"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// -- Loading Tests --

func TestLoad_PropertiesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.properties", `
browser=firefox
headless=false
maximize.window=true
retry.count=2
base.url=https://shop.example.test
report.formats=html, json
launch.args=--disable-gpu,--no-sandbox
name=QA Team
`)

	cfg, err := Load(LoadOptions{File: path})
	require.NoError(t, err)

	assert.Equal(t, "firefox", cfg.Browser().Kind)
	assert.False(t, cfg.Browser().Headless)
	assert.True(t, cfg.Browser().Maximize)
	assert.Equal(t, 2, cfg.Run().RetryCount)
	assert.Equal(t, "https://shop.example.test", cfg.Run().BaseURL)
	assert.Equal(t, []string{"html", "json"}, cfg.Report().Formats)
	assert.Equal(t, []string{"--disable-gpu", "--no-sandbox"}, cfg.Browser().Args)
	assert.Equal(t, "QA Team", cfg.Report().Author)

	raw, ok := cfg.Lookup("base.url")
	assert.True(t, ok)
	assert.Equal(t, "https://shop.example.test", raw)
}

func TestLoad_YAMLFileFromSearchPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "workers: 4\nscreenshot:\n  mode: file\n")

	cfg, err := Load(LoadOptions{SearchPaths: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Run().Workers)
	assert.Equal(t, ScreenshotFile, cfg.Report().ScreenshotMode)
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{SearchPaths: []string{t.TempDir()}})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Run().RetryCount)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "nope.properties")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file unavailable")
}

func TestLoad_InvalidValueFails(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.properties", "workers=0\n")
	_, err := Load(LoadOptions{File: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

// TestLoad_Precedence verifies override > flag > env > file > default.
func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.properties", "retry.count=2\nenv=STAGE\nbrowser=edge\n")

	t.Run("file beats default", func(t *testing.T) {
		cfg, err := Load(LoadOptions{File: path})
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Run().RetryCount)
	})

	t.Run("env beats file", func(t *testing.T) {
		t.Setenv("E2E_RETRY_COUNT", "5")
		cfg, err := Load(LoadOptions{File: path})
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Run().RetryCount)
		assert.Equal(t, "STAGE", cfg.Run().Env)
	})

	t.Run("changed flag beats env", func(t *testing.T) {
		t.Setenv("E2E_BROWSER", "firefox")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("browser", "chrome", "")
		flags.Int("retry", 1, "")
		require.NoError(t, flags.Parse([]string{"--browser=webkit"}))

		cfg, err := Load(LoadOptions{
			File:     path,
			Flags:    flags,
			FlagKeys: map[string]string{"browser": KeyBrowser, "retry": KeyRetryCount},
		})
		require.NoError(t, err)
		assert.Equal(t, "webkit", cfg.Browser().Kind)
		// Unchanged flags do not shadow the file value.
		assert.Equal(t, 2, cfg.Run().RetryCount)
	})

	t.Run("override beats everything", func(t *testing.T) {
		t.Setenv("E2E_RETRY_COUNT", "5")
		cfg, err := Load(LoadOptions{
			File:      path,
			Overrides: map[string]string{KeyRetryCount: "0", KeyEnv: "PROD"},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Run().RetryCount)
		assert.Equal(t, "PROD", cfg.Run().Env)
	})
}

func TestNewConfigFromViper_ListFromEnvString(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set(KeyReportFormats, "JSON,text")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"json", "text"}, cfg.Report().Formats)
}

func TestLookup_IsCaseInsensitive(t *testing.T) {
	cfg := NewDefaultConfig()
	v, ok := cfg.Lookup("RETRY.COUNT")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = cfg.Lookup("no.such.key")
	assert.False(t, ok)
}

func TestLoad_ShippedConfigFile(t *testing.T) {
	cfg, err := Load(LoadOptions{SearchPaths: []string{filepath.Join("..", "..", "configs")}})
	require.NoError(t, err)
	assert.Equal(t, "https://www.saucedemo.com/", cfg.Run().BaseURL)
	assert.Equal(t, 2, cfg.Run().Workers)
	assert.Equal(t, "QA Team", cfg.Report().Author)
	assert.Equal(t, []string{"html", "json", "text"}, cfg.Report().Formats)
	assert.Equal(t, "3rd Cross Street, Chennai", cfg.Checkout().Address)
}

func TestLaunchArgs_KeepCaseAndCommaValues(t *testing.T) {
	cfg, err := Load(LoadOptions{
		SearchPaths: []string{t.TempDir()},
		Overrides: map[string]string{
			KeyLaunchArgs: "--user-data-dir=/Home/QA/Profile,--window-size=1920,1080, --lang=en-GB",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--user-data-dir=/Home/QA/Profile",
		"--window-size=1920,1080",
		"--lang=en-GB",
	}, cfg.Browser().Args)

	v := viper.New()
	SetDefaults(v)
	v.Set(KeyLaunchArgs, []interface{}{"--Proxy-Server=http://A:1", " "})
	cfg, err = NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"--Proxy-Server=http://A:1"}, cfg.Browser().Args)
}

func TestPropertiesCodec(t *testing.T) {
	t.Run("dotted keys nest", func(t *testing.T) {
		out := map[string]any{}
		require.NoError(t, propertiesCodec{}.Decode([]byte("Base.URL=https://x.test\nbase.path=${HOME}/shop\nworkers=3\n"), out))
		assert.Equal(t, map[string]any{
			"base":    map[string]any{"url": "https://x.test", "path": "${HOME}/shop"},
			"workers": "3",
		}, out)
	})

	t.Run("leaf and branch clash", func(t *testing.T) {
		err := propertiesCodec{}.Decode([]byte("retry=1\nretry.count=2\n"), map[string]any{})
		assert.Error(t, err)
	})

	t.Run("encode flattens", func(t *testing.T) {
		raw, err := propertiesCodec{}.Encode(map[string]any{
			"retry": map[string]any{"count": 2},
			"env":   "QA",
		})
		require.NoError(t, err)
		assert.Equal(t, "env = QA\nretry.count = 2\n", string(raw))
	})
}
