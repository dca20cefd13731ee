// Package logger provides logger configuration options.
package logger

import (
	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/kart-io/logger/option"
	"github.com/spf13/pflag"
)

// Options holds logging settings. Keys mirror the --log.* flags.
type Options struct {
	Engine            string   `json:"engine" mapstructure:"engine"`
	Level             string   `json:"level" mapstructure:"level"`
	Format            string   `json:"format" mapstructure:"format"`
	OutputPaths       []string `json:"output-paths" mapstructure:"output-paths"`
	Development       bool     `json:"development" mapstructure:"development"`
	DisableCaller     bool     `json:"disable-caller" mapstructure:"disable-caller"`
	DisableStacktrace bool     `json:"disable-stacktrace" mapstructure:"disable-stacktrace"`
	OTLPEndpoint      string   `json:"otlp-endpoint" mapstructure:"otlp-endpoint"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	def := option.DefaultLogOption()
	return &Options{
		Engine:            def.Engine,
		Level:             def.Level,
		Format:            def.Format,
		OutputPaths:       def.OutputPaths,
		Development:       def.Development,
		DisableCaller:     def.DisableCaller,
		DisableStacktrace: def.DisableStacktrace,
	}
}

// AddFlags adds flags for logger options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Engine, "log.engine", o.Engine, "Logging engine (zap|slog)")
	fs.StringVar(&o.Level, "log.level", o.Level, "Log level (DEBUG|INFO|WARN|ERROR|FATAL)")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log format (json|console)")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Output paths for logs")
	fs.BoolVar(&o.Development, "log.development", o.Development, "Enable development mode")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Disable caller detection")
	fs.BoolVar(&o.DisableStacktrace, "log.disable-stacktrace", o.DisableStacktrace, "Disable stacktrace capture")
	fs.StringVar(&o.OTLPEndpoint, "log.otlp-endpoint", o.OTLPEndpoint, "OTLP endpoint URL")
}

// Complete completes the logger options with defaults.
func (o *Options) Complete() error {
	if len(o.OutputPaths) == 0 {
		o.OutputPaths = []string{"stdout"}
	}
	return nil
}

// Validate validates the logger options.
func (o *Options) Validate() error {
	return o.LogOption().Validate()
}

// LogOption converts the options into the logger library's option type.
func (o *Options) LogOption() *option.LogOption {
	opt := option.DefaultLogOption()
	opt.Engine = o.Engine
	opt.Level = o.Level
	opt.Format = o.Format
	opt.OutputPaths = append([]string(nil), o.OutputPaths...)
	opt.Development = o.Development
	opt.DisableCaller = o.DisableCaller
	opt.DisableStacktrace = o.DisableStacktrace
	opt.OTLPEndpoint = o.OTLPEndpoint
	return opt
}

// CreateLogger creates a new logger instance carrying the given initial fields.
func (o *Options) CreateLogger(fields map[string]interface{}) (core.Logger, error) {
	opt := o.LogOption()
	for k, v := range fields {
		opt.AddInitialField(k, v)
	}
	return logger.New(opt)
}

// Init initializes the global logger with the options.
func (o *Options) Init(serviceName, serviceVersion string) error {
	log, err := o.CreateLogger(map[string]interface{}{
		"service.name":    serviceName,
		"service.version": serviceVersion,
	})
	if err != nil {
		return err
	}
	logger.SetGlobal(log)
	return nil
}
