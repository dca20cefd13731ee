// Package app provides application bootstrapping with Cobra, Viper, and Pflag.
//
// An App owns a root command whose persistent flags come from a CliOptions
// value. Before any subcommand runs, the App loads a .env file (if present),
// reads the YAML config file, applies DOCQA_-style environment overrides,
// re-applies explicitly set flags, then completes and validates the options.
//
//	a := app.NewApp(
//	    app.WithName("docqa"),
//	    app.WithOptions(opts),
//	    app.WithCommands(provisionCmd, queryCmd),
//	)
//	a.Run()
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RunFunc is a subcommand body. ctx is cancelled on SIGINT/SIGTERM.
type RunFunc func(ctx context.Context, args []string) error

// InitFunc runs once after options are loaded and validated, before the
// subcommand body. Typically used to initialise logging.
type InitFunc func() error

// Command describes one subcommand.
type Command struct {
	Use   string
	Short string
	Long  string
	Args  cobra.PositionalArgs
	// Flags registers flags local to this subcommand.
	Flags func(fs *pflag.FlagSet)
	Run   RunFunc
}

// App is the main application structure.
type App struct {
	name        string
	shortDesc   string
	description string
	envPrefix   string
	options     CliOptions
	initFunc    InitFunc
	commands    []*Command
	noVersion   bool
	noConfig    bool
	noDotEnv    bool

	v   *viper.Viper
	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithName sets the application name.
func WithName(name string) Option {
	return func(a *App) { a.name = name }
}

// WithShortDescription sets the short description.
func WithShortDescription(desc string) Option {
	return func(a *App) { a.shortDesc = desc }
}

// WithDescription sets the long description.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithEnvPrefix overrides the environment variable prefix (defaults to the
// upper-cased app name).
func WithEnvPrefix(prefix string) Option {
	return func(a *App) { a.envPrefix = prefix }
}

// WithOptions sets the CLI options.
func WithOptions(opts CliOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithInitFunc sets the hook run after options are validated.
func WithInitFunc(fn InitFunc) Option {
	return func(a *App) { a.initFunc = fn }
}

// WithCommands registers subcommands.
func WithCommands(cmds ...*Command) Option {
	return func(a *App) { a.commands = append(a.commands, cmds...) }
}

// WithNoVersion disables version flag.
func WithNoVersion() Option {
	return func(a *App) { a.noVersion = true }
}

// WithNoConfig disables config file loading.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithNoDotEnv disables .env loading.
func WithNoDotEnv() Option {
	return func(a *App) { a.noDotEnv = true }
}

// NewApp creates a new application instance.
func NewApp(opts ...Option) *App {
	a := &App{
		name: filepath.Base(os.Args[0]),
		v:    viper.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.envPrefix == "" {
		a.envPrefix = strings.ToUpper(strings.ReplaceAll(a.name, "-", "_"))
	}

	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	root := &cobra.Command{
		Use:               a.name,
		Short:             a.shortDesc,
		Long:              a.description,
		SilenceUsage:      true,
		PersistentPreRunE: a.prepare,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	pfs := root.PersistentFlags()
	if !a.noConfig {
		pfs.StringP("config", "c", "", "Path to config file")
	}
	if !a.noVersion {
		version.AddFlags(pfs)
	}
	if a.options != nil {
		a.options.AddFlags(pfs)
	}

	for _, c := range a.commands {
		root.AddCommand(a.subcommand(c))
	}
	a.cmd = root
}

func (a *App) subcommand(c *Command) *cobra.Command {
	run := c.Run
	cmd := &cobra.Command{
		Use:          c.Use,
		Short:        c.Short,
		Long:         c.Long,
		Args:         c.Args,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if run == nil {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, args)
		},
	}
	if c.Flags != nil {
		c.Flags(cmd.Flags())
	}
	return cmd
}

// prepare loads configuration into the options before any subcommand runs.
func (a *App) prepare(cmd *cobra.Command, _ []string) error {
	if !a.noVersion {
		version.PrintAndExitIfRequested()
	}

	if !a.noDotEnv {
		// .env 不存在时忽略，已存在的环境变量不会被覆盖
		_ = godotenv.Load()
	}

	if !a.noConfig {
		if err := a.loadConfig(cmd); err != nil {
			return err
		}
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.initFunc != nil {
		return a.initFunc()
	}
	return nil
}

// loadConfig loads configuration from file, environment, and flags.
func (a *App) loadConfig(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")

	if configFile != "" {
		a.v.SetConfigFile(configFile)
	} else {
		a.v.SetConfigName(a.name)
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		a.v.AddConfigPath("./configs")
		a.v.AddConfigPath(filepath.Join(os.Getenv("HOME"), "."+a.name))
		a.v.AddConfigPath("/etc/" + a.name)
	}

	if err := a.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	expandEnvVars(a.v)

	a.v.SetEnvPrefix(a.envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if a.options == nil {
		return nil
	}

	// 记录显式设置的 flag，反序列化后重新应用以保证 flag 优先级最高
	changed := make(map[string]string)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = f.Value.String()
		}
	})

	// 让环境变量可以覆盖未出现在配置文件中的键
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if err := a.v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for name, val := range changed {
		if err := reapplyFlag(cmd.Flags(), name, val); err != nil {
			return fmt.Errorf("failed to re-apply flag %s: %w", name, err)
		}
	}
	return nil
}

// reapplyFlag sets a flag back to its command-line value. Slice flags are
// reset first because Set appends.
func reapplyFlag(fs *pflag.FlagSet, name, val string) error {
	f := fs.Lookup(name)
	if f == nil {
		return nil
	}
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		return sv.Replace(splitSliceValue(val))
	}
	return fs.Set(name, val)
}

func splitSliceValue(val string) []string {
	val = strings.TrimSuffix(strings.TrimPrefix(val, "["), "]")
	if val == "" {
		return nil
	}
	return strings.Split(val, ",")
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands ${VAR} and $VAR style environment variables in config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envPattern.ReplaceAllStringFunc(strVal, func(match string) string {
			var name string
			if strings.HasPrefix(match, "${") {
				name = match[2 : len(match)-1]
			} else {
				name = match[1:]
			}
			if envVal, ok := os.LookupEnv(name); ok {
				return envVal
			}
			return match // 保留原样
		})
		if expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// Run executes the application.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// GetVersion returns the build version string.
func GetVersion() string {
	return version.Get().GitVersion
}
