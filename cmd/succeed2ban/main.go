package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xoelrdgz/succeed2ban/internal/adapters/fail2ban"
	"github.com/xoelrdgz/succeed2ban/internal/adapters/geo"
	"github.com/xoelrdgz/succeed2ban/internal/adapters/input"
	"github.com/xoelrdgz/succeed2ban/internal/adapters/output"
	"github.com/xoelrdgz/succeed2ban/internal/adapters/storage"
	"github.com/xoelrdgz/succeed2ban/internal/app"
	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
	"github.com/xoelrdgz/succeed2ban/internal/tui"
	"github.com/xoelrdgz/succeed2ban/pkg/sanitize"
)

const (
	shutdownTimeout = 5 * time.Second

	// actionTrailSize is how many recent actions are logged when a session fails.
	actionTrailSize = 64
)

var (
	cfgFile string
	noTUI   bool
	dbPath  string

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "succeed2ban",
	Short: "Terminal dashboard for SSH and fail2ban activity",
	Long: `succeed2ban follows the SSH journal and the fail2ban log, geolocates
every IPv4 address it sees, keeps per address, ISP, country, region and
city counters in SQLite, and lets you ban or unban addresses through
fail2ban-client from an interactive terminal interface.`,
	RunE: runApp,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the dashboard (default)",
	Long: `Start watching the logs and show the dashboard.

Examples:
  succeed2ban run
  succeed2ban run --config /etc/succeed2ban/config.yaml
  succeed2ban run --no-tui --db ./iplogs.db`,
	RunE: runApp,
}

var statsCmd = &cobra.Command{
	Use:       "stats <country|region|city|isp>",
	Short:     "Print the aggregated counters of one dimension",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"country", "region", "city", "isp"},
	RunE:      runStats,
}

var decodeCmd = &cobra.Command{
	Use:   "decode <json>",
	Short: "Validate an action envelope",
	Long: `Decode one action envelope, as written by the action recorder, and
print its kind. Use "-" to read lines from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("succeed2ban %s\n", Version)
		fmt.Printf("Commit:  %s\n", Commit)
		fmt.Printf("Built:   %s\n", BuildTime)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path")
	rootCmd.PersistentFlags().BoolVar(&noTUI, "no-tui", false, "disable TUI, log to stderr")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/succeed2ban")
	}

	app.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}

	viper.SetEnvPrefix("SUCCEED2BAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// setupLogging configures the global logger. With the TUI on, logs go to a
// file so they do not tear the alternate screen.
func setupLogging(cfg app.LoggingConfig, console bool) (io.Closer, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
		return io.NopCloser(nil), nil
	}

	if cfg.File == "" {
		log.Logger = zerolog.New(io.Discard)
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return f, nil
}

func loadConfig() (app.Config, error) {
	return app.LoadConfig(viper.GetViper())
}

func buildGeolocator(cfg app.GeoConfig) (ports.Geolocator, func(), error) {
	var (
		inner   ports.Geolocator
		closers []func() error
	)

	switch cfg.Provider {
	case "mmdb":
		m, err := geo.OpenMMDB(cfg.CityDB, cfg.ASNDB)
		if err != nil {
			return nil, nil, err
		}
		inner = m
		closers = append(closers, m.Close)
	default:
		inner = geo.NewIPAPIClient(geo.IPAPIConfig{URL: cfg.URL, Timeout: cfg.Timeout})
	}

	locator := inner
	if cfg.CacheEnabled {
		cached, err := geo.NewCachedLocator(inner, geo.CacheConfig{
			DBPath:       cfg.CachePath,
			TTL:          cfg.CacheTTL,
			HotCacheSize: cfg.CacheSize,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Geolocation cache unavailable, querying the provider directly")
		} else {
			locator = cached
			closers = append(closers, cached.Close)
		}
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Debug().Err(err).Msg("Geolocation close failed")
			}
		}
	}
	log.Debug().Str("provider", locator.Name()).Msg("Geolocation ready")
	return locator, closeAll, nil
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCloser, err := setupLogging(cfg.Logging, noTUI)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	locator, closeGeo, err := buildGeolocator(cfg.Geo)
	if err != nil {
		return err
	}
	defer closeGeo()

	bans := fail2ban.NewClient(fail2ban.Config{
		Binary:  cfg.Fail2ban.Binary,
		Jail:    cfg.Fail2ban.Jail,
		Timeout: cfg.Fail2ban.Timeout,
	}, nil)

	opts := app.Options{
		Store:      store,
		Geolocator: locator,
		Bans:       bans,
		Config:     cfg,
		Fail2ban: func() ports.LineSource {
			t := input.NewFileTailer(cfg.Fail2ban.LogPath, cfg.Enrichment.QueueSize)
			t.SetPoll(cfg.Fail2ban.Poll)
			return t
		},
		Journal: func() ports.LineSource {
			return input.NewCommandFollower(cfg.Journal.Command, input.JournalArgs(cfg.Journal.Units), cfg.Enrichment.QueueSize)
		},
	}

	var promMetrics *output.PrometheusMetrics
	if cfg.Metrics.Enabled {
		promMetrics = output.NewPrometheusMetrics("succeed2ban", nil)
		opts.Observer = promMetrics
	}

	trail := output.NewMemoryRecorder(actionTrailSize, domain.Tick.Kind(), domain.Render.Kind())
	opts.Recorders = append(opts.Recorders, trail)

	if cfg.Recorder.Enabled {
		recorder, err := output.NewJSONRecorder(output.JSONRecorderConfig{
			FilePath: cfg.Recorder.Path,
			Skip:     []domain.Kind{domain.Tick.Kind(), domain.Render.Kind()},
		})
		if err != nil {
			return fmt.Errorf("failed to create action recorder: %w", err)
		}
		defer recorder.Close()
		opts.Recorders = append(opts.Recorders, recorder)
	}

	a := app.New(opts)

	if promMetrics != nil {
		promMetrics.Handle("/health", output.NewHealthChecker(a, output.DefaultHealthCheckerConfig()))
		if err := promMetrics.StartServer(output.MetricsConfig{Port: cfg.Metrics.Port, Path: cfg.Metrics.Path}); err != nil {
			log.Warn().Err(err).Msg("Failed to start metrics server")
		}
		defer promMetrics.StopServer()
	}

	if viper.ConfigFileUsed() != "" {
		reloader := app.NewConfigReloader(viper.GetViper(), a.Sender(), cfg)
		reloader.StartWatching(ctx)
		defer reloader.Stop()
	}

	log.Info().
		Str("store", cfg.Store.Path).
		Str("geo", locator.Name()).
		Str("jail", cfg.Fail2ban.Jail).
		Bool("tui", !noTUI).
		Msg("succeed2ban starting")

	if noTUI {
		log.Info().Msg("Running in console mode")
		if err := a.Run(ctx); err != nil {
			log.Error().Err(err).Strs("actions", trail.Trail()).Msg("Session ended with an error")
			return err
		}
		return nil
	}

	ui := tui.NewApp(a.Sender(), a.Done())
	a.AddView(ui)
	if err := a.Start(ctx); err != nil {
		return err
	}

	var tuiErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("TUI panic recovered")
				tuiErr = fmt.Errorf("TUI panic: %v", r)
			}
		}()
		tuiErr = ui.Run()
	}()

	a.Stop(shutdownTimeout)
	err = a.Wait()
	if err == nil {
		err = tuiErr
	}
	if err != nil {
		log.Error().Err(err).Strs("actions", trail.Trail()).Msg("Session ended with an error")
	}
	if tuiErr != nil {
		return tuiErr
	}
	return err
}

func runStats(cmd *cobra.Command, args []string) error {
	dim, ok := domain.ParseDimension(args[0])
	if !ok {
		return fmt.Errorf("unknown dimension %q: want country, region, city or isp", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg.Logging, true); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	entries, err := store.ListDistinct(ctx, dim)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		last := "-"
		if len(e.Messages) > 0 {
			last = humanize.Time(lastSeen(e))
		}
		rows = append(rows, []string{
			sanitize.ForTerminal(e.Record.Key.String()),
			sanitize.Line(e.Record.Code, 4),
			humanize.Comma(int64(e.Record.Warnings)),
			humanize.Comma(int64(e.Record.Banned)),
			humanize.Comma(int64(len(e.Messages))),
			last,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "CODE", "WARNINGS", "BANNED", "LINES", "LAST").
		Rows(rows...)
	fmt.Println(t.Render())
	fmt.Printf("%s %s rows\n", humanize.Comma(int64(len(entries))), dim)
	return nil
}

func lastSeen(e domain.DimensionStats) time.Time {
	var newest time.Time
	for _, m := range e.Messages {
		if m.Timestamp.After(newest) {
			newest = m.Timestamp
		}
	}
	return newest
}

func runDecode(cmd *cobra.Command, args []string) error {
	if args[0] != "-" {
		return decodeOne(cmd.OutOrStdout(), []byte(args[0]))
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := decodeOne(cmd.OutOrStdout(), []byte(line)); err != nil {
			return err
		}
	}
	return nil
}

func decodeOne(w io.Writer, b []byte) error {
	a, err := domain.DecodeAction(b)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\t%+v\n", a.Kind(), a)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
