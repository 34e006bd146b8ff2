// Package cli wires the cobra root command, viper config load and zap
// logger setup the teacher's cmd/gate/gate.go does directly in Run(),
// split out so flags can bind onto the same *config.Config before
// Validate runs.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleetgate/fleetgate/pkg/component"
	"github.com/fleetgate/fleetgate/pkg/config"
	"github.com/fleetgate/fleetgate/pkg/proxy"
	"github.com/fleetgate/fleetgate/pkg/util/errs"
)

var (
	cfgFile             string
	flagPort            int
	flagHaproxy         bool
	flagIgnoreCfgServer bool
	flagServers         []string
)

var rootCmd = &cobra.Command{
	Use:   "fleetgate",
	Short: "FleetGate is a high-performance, fleet-aware Minecraft proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "velocity.toml", "path to the config file")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "override the bind port (host is taken from the config)")
	rootCmd.Flags().BoolVar(&flagHaproxy, "haproxy", false, "accept the HAProxy PROXY protocol header on every inbound connection")
	rootCmd.Flags().BoolVar(&flagIgnoreCfgServer, "ignore-config-servers", false, "ignore the [servers] table in the config file, using only --server flags")
	rootCmd.Flags().StringArrayVar(&flagServers, "server", nil, "register a backend as name=host:port (repeatable)")
}

// Execute runs the root command; callers should pass its error to
// ExitCodeFor to pick the right process exit code (spec §6 CLI).
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func run(ctx context.Context) error {
	v := viper.New()
	v.SetConfigFile(cfgFile)
	config.SetDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return configErr("read config", err)
		}
		zap.S().Warnf("no config file at %s, starting from defaults", cfgFile)
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return configErr("unmarshal config", err)
	}
	if flagIgnoreCfgServer {
		cfg.Servers.Entries = map[string]string{}
	} else {
		cfg.Servers.Entries = config.LoadServerAddresses(v)
	}
	for _, s := range flagServers {
		name, addr, ok := strings.Cut(s, "=")
		if !ok {
			return configErr("parse --server", fmt.Errorf("expected name=host:port, got %q", s))
		}
		cfg.Servers.Entries[name] = addr
	}
	if flagHaproxy {
		cfg.ProxyProtocol = true
	}
	if flagPort != 0 {
		cfg.Bind = rebindPort(cfg.Bind, flagPort)
	}

	if err := initLogger(cfg.Debug); err != nil {
		return errs.New(errs.KindFatalStartup, "init logger", err)
	}
	if err := config.Validate(&cfg); err != nil {
		return configErr("validate config", err)
	}

	p := proxy.New(&cfg)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer func() { signal.Stop(sig); close(sig) }()
	go func() {
		s, ok := <-sig
		if !ok {
			return
		}
		zap.S().Infof("received %s signal, shutting down", s)
		p.Shutdown(&component.Text{
			Content: "FleetGate proxy is shutting down...\nPlease reconnect in a moment!",
			S:       component.Style{Color: "red"},
		})
		stop()
	}()

	return p.Run(runCtx)
}

// rebindPort replaces the port half of a "host:port" bind address.
func rebindPort(bind string, port int) string {
	host := bind
	if i := strings.LastIndex(bind, ":"); i >= 0 {
		host = bind[:i]
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func initLogger(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)
	return nil
}

// configErrMarker tags an error coming from config load/validate
// specifically, so ExitCodeFor can tell it apart from a fatal startup
// failure that happens once config is already known-good (e.g. the
// listener failing to bind): spec §6 gives those two cases different
// exit codes.
type configErrMarker struct{ err error }

func (c *configErrMarker) Error() string { return c.err.Error() }
func (c *configErrMarker) Unwrap() error { return c.err }

func configErr(op string, err error) error {
	return &configErrMarker{errs.New(errs.KindFatalStartup, op, err)}
}

// ExitCodeFor maps a run error to the process exit code spec §6
// names: 0 clean, 1 invalid configuration, 2 fatal startup error.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *configErrMarker
	if errors.As(err, &cfgErr) {
		return 1
	}
	return 2
}
