package config

import (
	"time"

	"github.com/spf13/viper"
)

// Recognized configuration keys. The flat, dotted names match the keys used in
// config.properties so that an existing properties file loads unchanged.
const (
	KeyBrowser          = "browser"
	KeyDriver           = "driver"
	KeyHeadless         = "headless"
	KeyMaximizeWindow   = "maximize.window"
	KeyLaunchArgs       = "launch.args"
	KeyLaunchTimeout    = "launch.timeout"
	KeyLaunchInstall    = "launch.install"
	KeyActionTimeout    = "action.timeout"
	KeyRetryCount       = "retry.count"
	KeyWorkers          = "workers"
	KeyScreenshotOnPass = "screenshot.on.pass"
	KeyScreenshotMode   = "screenshot.mode"
	KeyReportDir        = "report.dir"
	KeyReportFormats    = "report.formats"
	KeyReportDatabase   = "report.database_url"
	KeyEnv              = "env"
	KeyAuthor           = "name"
	KeyBaseURL          = "base.url"
	KeyDataFile         = "data.file"
	KeyDataSheet        = "data.sheet"
	KeyLoginUsername    = "login.username"
	KeyLoginPassword    = "login.password"
	KeyCheckoutFullName = "checkout.full_name"
	KeyCheckoutAddress  = "checkout.address"
	KeyCheckoutCard     = "checkout.card_number"
	KeyCheckoutExpiry   = "checkout.expiry"
	KeyCheckoutCVC      = "checkout.cvc"
	KeyLoggerLevel      = "logger.level"
	KeyLoggerFormat     = "logger.format"
	KeyLoggerService    = "logger.service_name"
	KeyLoggerFile       = "logger.log_file"
	KeyLoggerMaxSize    = "logger.max_size"
	KeyLoggerMaxBackups = "logger.max_backups"
	KeyLoggerMaxAge     = "logger.max_age"
	KeyLoggerCompress   = "logger.compress"
)

// EnvPrefix is prepended to every environment override, e.g. E2E_RETRY_COUNT.
const EnvPrefix = "E2E"

// SetDefaults registers the hard-coded defaults, the lowest precedence layer.
func SetDefaults(v *viper.Viper) {
	// -- Browser --
	v.SetDefault(KeyBrowser, "chrome")
	v.SetDefault(KeyDriver, DriverPlaywright)
	v.SetDefault(KeyHeadless, true)
	v.SetDefault(KeyMaximizeWindow, false)
	v.SetDefault(KeyLaunchArgs, []string{})
	v.SetDefault(KeyLaunchTimeout, 60*time.Second)
	v.SetDefault(KeyLaunchInstall, false)
	v.SetDefault(KeyActionTimeout, 30*time.Second)

	// -- Run --
	v.SetDefault(KeyRetryCount, 1)
	v.SetDefault(KeyWorkers, 1)
	v.SetDefault(KeyEnv, "QA")
	v.SetDefault(KeyAuthor, "")
	v.SetDefault(KeyBaseURL, "")
	v.SetDefault(KeyDataFile, "")
	v.SetDefault(KeyDataSheet, "Sheet1")
	v.SetDefault(KeyLoginUsername, "standard_user")
	v.SetDefault(KeyLoginPassword, "secret_sauce")

	// -- Report --
	v.SetDefault(KeyScreenshotOnPass, false)
	v.SetDefault(KeyScreenshotMode, ScreenshotInline)
	v.SetDefault(KeyReportDir, "reports")
	v.SetDefault(KeyReportFormats, []string{"html", "json", "text"})
	v.SetDefault(KeyReportDatabase, "")

	// -- Checkout fixture --
	v.SetDefault(KeyCheckoutFullName, "Ramesh")
	v.SetDefault(KeyCheckoutAddress, "3rd Cross Street, Chennai")
	v.SetDefault(KeyCheckoutCard, "1234 5647 4856 4656")
	v.SetDefault(KeyCheckoutExpiry, "12/12")
	v.SetDefault(KeyCheckoutCVC, "123")

	// -- Logger --
	v.SetDefault(KeyLoggerLevel, "info")
	v.SetDefault(KeyLoggerFormat, "console")
	v.SetDefault(KeyLoggerService, "scalpel-e2e")
	v.SetDefault(KeyLoggerFile, "")
	v.SetDefault(KeyLoggerMaxSize, 50)
	v.SetDefault(KeyLoggerMaxBackups, 3)
	v.SetDefault(KeyLoggerMaxAge, 14)
	v.SetDefault(KeyLoggerCompress, false)
}
