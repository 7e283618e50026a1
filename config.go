package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/secretsanta/exchange"
)

type Config struct {
	bind            string
	dataDir         string
	fallback        bool
	maxAttempts     int
	minParticipants int
	port            int
	prefix          string
	profile         bool
	sessionTimeout  time.Duration
	tlsCert         string
	tlsKey          string
	verbose         bool
	version         bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minParticipants < 2 {
		return fmt.Errorf("invalid minimum participant count (must be at least 2): %d", c.minParticipants)
	}
	if c.maxAttempts < 1 {
		return fmt.Errorf("invalid maximum attempts (must be at least 1 when serving): %d", c.maxAttempts)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) engine(opts ...exchange.Option) *exchange.Engine {
	return exchange.NewEngine(append([]exchange.Option{
		exchange.WithMaxAttempts(c.maxAttempts),
		exchange.WithFallback(c.fallback),
	}, opts...)...)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SECRETSANTA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "secretsanta",
		Short:         "A self-hosted gift exchange organizer.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.BoolVar(&cfg.fallback, "fallback", true, "fall back to an exhaustive search when random draws run out (env: SECRETSANTA_FALLBACK)")
	pfs.IntVar(&cfg.maxAttempts, "max-attempts", exchange.DefaultMaxAttempts, "random draws to try before giving up, 0 for unlimited (draw only) (env: SECRETSANTA_MAX_ATTEMPTS)")
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SECRETSANTA_VERBOSE)")

	fs := cmd.Flags()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SECRETSANTA_BIND)")
	fs.StringVar(&cfg.dataDir, "data-dir", "", "directory to persist exchanges in, in-memory if empty (env: SECRETSANTA_DATA_DIR)")
	fs.IntVar(&cfg.minParticipants, "min-participants", 3, "participants required before drawing (env: SECRETSANTA_MIN_PARTICIPANTS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SECRETSANTA_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SECRETSANTA_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SECRETSANTA_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle exchanges are unloaded (env: SECRETSANTA_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SECRETSANTA_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SECRETSANTA_TLS_KEY)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SECRETSANTA_VERSION)")

	bindFlags(v, pfs)
	bindFlags(v, fs)

	cmd.AddCommand(newDrawCmd(cfg, v))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("secretsanta v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
