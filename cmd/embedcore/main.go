package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/embedcore/ai/observability/logging"
	"github.com/hrygo/embedcore/internal/profile"
	"github.com/hrygo/embedcore/internal/version"
	"github.com/hrygo/embedcore/server"
	"github.com/hrygo/embedcore/store"
	"github.com/hrygo/embedcore/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "embedcore",
		Short: `Deterministic text embeddings with per-user key obfuscation and similarity search.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Systemd units provide their own environment.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			return nil
		},
		SilenceUsage: true,
		RunE:         runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("vector-backend", "", `vector index backend, can be "none", "hnsw" or "pgvector"`)
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "vector-backend", "log-level"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("embedcore")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, embedCmd, searchCmd, rotateKeyCmd, reindexCmd, tokenCmd, versionCmd)
}

// loadProfile builds the profile from flags and EMBEDCORE_* variables and
// installs the logger it describes.
func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if backend := viper.GetString("vector-backend"); backend != "" {
		instanceProfile.VectorBackend = strings.ToLower(backend)
	}
	if level := viper.GetString("log-level"); level != "" {
		instanceProfile.LogLevel = level
	}

	logging.Setup(instanceProfile.LogLevel, instanceProfile.LogFormat)
	// Version may be overridden with -ldflags at build time.
	if !version.IsValid(instanceProfile.Version) {
		return nil, fmt.Errorf("invalid build version %q", instanceProfile.Version)
	}
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	storeInstance := store.New(dbDriver, p)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, err
	}
	return storeInstance, nil
}

// withComponents runs fn against freshly wired components and releases them afterwards.
func withComponents(ctx context.Context, fn func(*profile.Profile, *store.Store, *server.Components) error) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	storeInstance, err := openStore(ctx, p)
	if err != nil {
		return err
	}
	defer storeInstance.Close()

	components, err := server.NewComponents(ctx, p, storeInstance)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(p, storeInstance, components)
}

func runServe(cmd *cobra.Command, _ []string) error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	storeInstance, err := openStore(ctx, instanceProfile)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return err
	}

	s, err := server.NewServer(ctx, instanceProfile, storeInstance)
	if err != nil {
		_ = storeInstance.Close()
		slog.Error("failed to create server", "error", err)
		return err
	}

	c := make(chan os.Signal, 1)
	// SIGTERM is the graceful shutdown signal for most process managers.
	signal.Notify(c, terminationSignals...)

	if err := s.Start(ctx); err != nil {
		s.Shutdown(ctx)
		return err
	}
	printGreetings(instanceProfile)

	go func() {
		<-c
		cancel()
	}()

	<-ctx.Done()
	s.Shutdown(context.Background())
	return nil
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("embedcore %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Vector backend: %s\n", profile.VectorBackend)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
	if !profile.IsAPIEnabled() {
		fmt.Println("API disabled: set EMBEDCORE_JWT_SECRET to enable /api/v1")
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
