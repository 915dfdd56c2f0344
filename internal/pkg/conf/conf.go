// Package conf loads process configuration from the environment.
package conf

import (
	"github.com/mstoykov/envconfig"

	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
)

// Config holds every environment-driven knob the process reads at
// startup. Fields are exported only so envconfig can populate them;
// callers use the accessor methods below.
type Config struct {
	ListenAddress string `envconfig:"LISTEN_ADDRESS" default:":3000"`

	CDPHost        string `envconfig:"CDP_HOST" default:"http://localhost:9222"`
	PDFConcurrency int64  `envconfig:"PDF_CONCURRENCY" default:"10"`

	ServerLogLevel string `envconfig:"SERVER_LOG_LEVEL" default:"INFO"`
	PDFLogLevel    string `envconfig:"PDF_LOG_LEVEL" default:"DEBUG"`
	CDPLogLevel    string `envconfig:"CDP_LOG_LEVEL" default:"DEBUG"`

	DefaultOuterTimeout  float64 `envconfig:"DEFAULT_TIMEOUT" default:"120"`
	DefaultMaxSize       int64   `envconfig:"DEFAULT_MAX_SIZE" default:"20971520"`
	DefaultLoadTimeout   float64 `envconfig:"DEFAULT_LOAD_TIMEOUT" default:"30"`
	DefaultStatusTimeout float64 `envconfig:"DEFAULT_STATUS_TIMEOUT" default:"5"`
	DefaultPrintTimeout  float64 `envconfig:"DEFAULT_PRINT_TIMEOUT" default:"10"`
	DefaultLoadedEvent   string  `envconfig:"DEFAULT_LOADED_EVENT" default:"Page.loadEventFired"`

	CommandResponseTimeout float64 `envconfig:"CDP_COMMAND_TIMEOUT" default:"10"`
	TransportCloseTimeout  float64 `envconfig:"CDP_CLOSE_TIMEOUT" default:"5"`
}

// FromEnv reads Config from the process environment, applying the
// defaults above for anything unset.
func FromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) ListenOn() string { return c.ListenAddress }

func (c Config) CDPHostURL() string { return c.CDPHost }

func (c Config) ConcurrencyLimit() int64 { return c.PDFConcurrency }

func (c Config) ServerLoggerLevel() xlog.Level { return xlog.MustParseLevel(c.ServerLogLevel) }

func (c Config) PDFLoggerLevel() xlog.Level { return xlog.MustParseLevel(c.PDFLogLevel) }

func (c Config) CDPLoggerLevel() xlog.Level { return xlog.MustParseLevel(c.CDPLogLevel) }

func (c Config) OuterTimeout() float64 { return c.DefaultOuterTimeout }

func (c Config) MaxFrameSize() int64 { return c.DefaultMaxSize }

func (c Config) LoadTimeout() float64 { return c.DefaultLoadTimeout }

func (c Config) StatusTimeout() float64 { return c.DefaultStatusTimeout }

func (c Config) PrintTimeout() float64 { return c.DefaultPrintTimeout }

func (c Config) LoadedEvent() string { return c.DefaultLoadedEvent }

func (c Config) CommandTimeout() float64 { return c.CommandResponseTimeout }

func (c Config) CloseTimeout() float64 { return c.TransportCloseTimeout }
