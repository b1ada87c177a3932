package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"asa-mx-migrate/internal/config"
	"asa-mx-migrate/internal/dashboard"
	"asa-mx-migrate/internal/metrics"
	"asa-mx-migrate/internal/migrate"
	"asa-mx-migrate/internal/model"
	"asa-mx-migrate/internal/parser"
	"asa-mx-migrate/internal/store"
)

var (
	configFile      string
	runningConfig   string
	accessLists     string
	vlanFile        string
	staticRouteFile string
	unprocessedFile string
	planFile        string
	metricsFile     string
	provider        string
	orgName         string
	networkName     string
	anyTranslation  bool
	dbDSN           string
	logLevel        string
	logFile         string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "asa2mx",
		Short: "Migrate Cisco ASA access lists to a Meraki MX appliance",
		Long: `asa2mx reads an ASA running configuration and its "show access-list" output,
	creates the referenced network objects and groups, and replaces the MX outbound,
	1:1 NAT and L7 deny rule sets of the target network.`,
		RunE:         run,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "YAML configuration file")
	rootCmd.Flags().StringVar(&runningConfig, "running-config", "", "ASA 'show running-config' dump (required)")
	rootCmd.Flags().StringVar(&accessLists, "access-lists", "", "ASA 'show access-list' dump (required)")
	rootCmd.Flags().StringVar(&vlanFile, "vlans", "", "JSON file of VLANs to create")
	rootCmd.Flags().StringVar(&staticRouteFile, "static-routes", "", "JSON file of static routes to create")
	rootCmd.Flags().StringVar(&unprocessedFile, "unprocessed", "unprocessed_rules.txt", "Output file for ACL lines that could not be translated")
	rootCmd.Flags().StringVar(&provider, "provider", config.ProviderMeraki, "Target platform: 'meraki', 'mariadb' or 'dry-run'")
	rootCmd.Flags().StringVar(&planFile, "plan", "-", "Output file for the dry-run plan ('-' for stdout)")
	rootCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	rootCmd.Flags().StringVar(&orgName, "org", "", "Dashboard organization name (overrides config)")
	rootCmd.Flags().StringVar(&networkName, "network", "", "Dashboard network name (overrides config)")
	rootCmd.Flags().BoolVar(&anyTranslation, "any-translation", false, "Replace 'any' sources with the networks behind the ACL's interface")
	rootCmd.Flags().StringVar(&dbDSN, "db", "", "Database connection string (for 'mariadb' provider, overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")

	rootCmd.MarkFlagRequired("running-config")
	rootCmd.MarkFlagRequired("access-lists")

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// --- 1. Setup Logging ---
	logger := setupLogger(logLevel, logFile)
	slog.SetDefault(logger)

	slog.Info("Starting ASA to MX migration", "provider", provider)
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Load Configuration ---
	cfg, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load configuration", "path", configFile, "error", err)
		return err
	}

	// --- 3. Open Input Files ---
	cfgF, err := os.Open(runningConfig)
	if err != nil {
		slog.Error("Failed to open running configuration", "path", runningConfig, "error", err)
		return err
	}
	defer cfgF.Close()

	aclF, err := os.Open(accessLists)
	if err != nil {
		slog.Error("Failed to open access-list file", "path", accessLists, "error", err)
		return err
	}
	defer aclF.Close()

	vlans, routes, err := loadSupplements(vlanFile, staticRouteFile)
	if err != nil {
		slog.Error("Failed to load VLAN or static route file", "error", err)
		return err
	}

	unprocessedF, err := os.Create(unprocessedFile)
	if err != nil {
		slog.Error("Failed to create unprocessed rules file", "path", unprocessedFile, "error", err)
		return err
	}
	defer unprocessedF.Close()

	// --- 4. Connect to the target platform ---
	platform, finish, err := openPlatform(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open target platform", "provider", provider, "error", err)
		return err
	}

	// --- 5. Run the migration ---
	recorder := metrics.NewRecorder()
	settings := migrate.Settings{
		OrgName:        cfg.Dashboard.OrgName,
		NetworkName:    cfg.Dashboard.NetworkName,
		NATSet:         cfg.ACLTypes.NATSet,
		OutboundSet:    cfg.ACLTypes.OutboundSet,
		AnyTranslation: cfg.AnyTranslation,
		NATUplink:      cfg.NATUplink,
	}
	summary, runErr := migrate.New(platform, settings, recorder).Run(ctx, migrate.Input{
		RunningConfig: cfgF,
		AccessLists:   aclF,
		VLANs:         vlans,
		StaticRoutes:  routes,
		Unprocessed:   unprocessedF,
	})
	if err := finish(); err != nil {
		slog.Error("Failed to finalize target platform", "provider", provider, "error", err)
		runErr = errors.Join(runErr, err)
	}

	// --- 6. Write Metrics ---
	if metricsFile != "" {
		if err := recorder.WriteTextfile(metricsFile); err != nil {
			slog.Error("Failed to write metrics", "path", metricsFile, "error", err)
			runErr = errors.Join(runErr, err)
		}
	}

	if summary != nil {
		slog.Info("Migration summary",
			"outbound_rules", summary.OutboundRules,
			"nat_rules", summary.NATRules,
			"deny_rules", summary.DenyRules,
			"unprocessed_lines", summary.ACL.Unprocessed,
			"unprocessed_file", unprocessedFile)
	}
	if runErr != nil {
		slog.Error("Migration finished with errors", "error", runErr, "duration", time.Since(startTime))
		return runErr
	}
	slog.Info("Finished", "duration", time.Since(startTime))
	return nil
}

func setupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
		}
		// We don't log an error here because the logger isn't set up yet.
		// It will just fall back to stderr.
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "INFO":
		lvl = slog.LevelInfo
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig reads the YAML file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("org") {
		cfg.Dashboard.OrgName = orgName
	}
	if flags.Changed("network") {
		cfg.Dashboard.NetworkName = networkName
	}
	if flags.Changed("any-translation") {
		cfg.AnyTranslation = anyTranslation
	}
	if flags.Changed("db") {
		cfg.Database.DSN = dbDSN
	}
	if err := cfg.Validate(provider); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSupplements(vlanPath, routePath string) ([]model.VLAN, []model.StaticRoute, error) {
	var (
		vlans  []model.VLAN
		routes []model.StaticRoute
	)
	if vlanPath != "" {
		f, err := os.Open(vlanPath)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		if vlans, err = parser.ParseVLANs(f); err != nil {
			return nil, nil, err
		}
	}
	if routePath != "" {
		f, err := os.Open(routePath)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		if routes, err = parser.ParseStaticRoutes(f); err != nil {
			return nil, nil, err
		}
	}
	return vlans, routes, nil
}

// openPlatform returns the selected platform and a function to call once the
// run is over.
func openPlatform(ctx context.Context, cfg *config.Config) (migrate.Platform, func() error, error) {
	switch provider {
	case config.ProviderMeraki:
		client := dashboard.NewClient(dashboard.Options{
			APIKey:            cfg.Dashboard.APIKey,
			BaseURL:           cfg.Dashboard.BaseURL,
			RequestsPerSecond: cfg.Dashboard.RequestsPerSecond,
			Timeout:           cfg.Dashboard.Timeout,
		})
		return client, func() error { return nil }, nil
	case config.ProviderMariaDB:
		db, err := store.NewMariaDB(cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := db.EnsureNetwork(ctx, cfg.Dashboard.OrgName, cfg.Dashboard.NetworkName); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, db.Close, nil
	case config.ProviderDryRun:
		mem := store.NewMemory()
		mem.AddNetwork(cfg.Dashboard.OrgName, cfg.Dashboard.NetworkName)
		return mem, func() error { return writePlan(mem, planFile) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

func writePlan(mem *store.Memory, path string) error {
	if path == "" || path == "-" {
		return mem.WritePlan(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := mem.WritePlan(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
