// AgriSense backend
// Entry point for the HTTP API, the background sweeps and maintenance tasks.
//
// @title                      AgriSense API
// @version                    1.0
// @description                Farm monitoring backend: sensor aggregation, AI analysis, SMS and voice alerts.
// @BasePath                   /api
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/agrisense-backend/internal/config"
	httpapi "github.com/tbourn/agrisense-backend/internal/http"
	"github.com/tbourn/agrisense-backend/internal/repo"
	"github.com/tbourn/agrisense-backend/internal/scheduler"
	"github.com/tbourn/agrisense-backend/internal/sysutil"
)

var version = "dev"

var (
	envFile  string
	addr     string
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "agrisense",
		Short: "AgriSense farm monitoring backend",
		Long:  "AgriSense aggregates probe readings and weather per farm, runs AI analysis and delivers SMS and voice alerts to farmers.",
		// config and logging are set up before any subcommand
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("load %s: %w", envFile, err)
				}
			}
			return nil
		},
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduler",
		RunE:  runServe,
	}

	sweepCmd = &cobra.Command{
		Use:       "sweep daily|moisture",
		Short:     "Run one sweep in the foreground and print its result",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{scheduler.KindDaily, scheduler.KindMoisture},
		RunE:      runSweep,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE:  runMigrate,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("AgriSense backend " + version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default \":$PORT\")")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and installs the global logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	sysutil.SetupLogger(sysutil.FirstNonEmpty(logLevel, cfg.LogLevel), cfg.LogPretty, os.Stderr)
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Scheduler.Enabled {
		a.Scheduler.Start(ctx)
	} else {
		log.Info().Msg("scheduler disabled; sweeps run only on demand")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, a.DB, a.Deps(), cfg)

	srv := &http.Server{
		Addr:              sysutil.FirstNonEmpty(addr, ":"+cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Str("provider", a.Analyzer.Name()).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	a.Scheduler.Stop()
	log.Info().Msg("server stopped")
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var res *scheduler.RunResult
	switch args[0] {
	case scheduler.KindDaily:
		res, err = a.Scheduler.RunDaily(ctx)
	case scheduler.KindMoisture:
		res, err = a.Scheduler.RunMoisture(ctx)
	}
	if res != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
	}
	return err
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := repo.Open(cfg.DB, cfg.LogLevel == "debug")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("driver", cfg.DB.Driver).Msg("schema up to date")
	return nil
}
