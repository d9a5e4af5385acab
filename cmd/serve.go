package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/fiddle/internal/config"
	"github.com/conneroisu/fiddle/internal/errors"
	"github.com/conneroisu/fiddle/internal/logging"
	"github.com/conneroisu/fiddle/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the playground server",
	Long: `Start the playground server with live preview over WebSocket.
Opens the browser automatically unless told otherwise and watches the
template directory for changes.

Examples:
  fiddle serve                     # Serve on the configured host and port
  fiddle serve --port 3000         # Serve on a different port
  fiddle serve --no-open           # Don't open the browser
  fiddle serve --templates-dir ./t # Load templates from a custom directory`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("no-open", false, "Don't open browser automatically")
	serveCmd.Flags().String("templates-dir", "", "Directory with template definitions")
	serveCmd.Flags().String("static-dir", "", "Directory served under /static/")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.no-open", serveCmd.Flags().Lookup("no-open"))
	viper.BindPFlag("templates.dir", serveCmd.Flags().Lookup("templates-dir"))
	viper.BindPFlag("server.static_dir", serveCmd.Flags().Lookup("static-dir"))

	AddFlagValidation(serveCmd, "port", ValidatePort)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		ctx := &errors.SuggestionContext{
			ConfigPath: ".fiddle.yml",
		}
		suggestions := errors.ConfigurationError(err.Error(), ".fiddle.yml", ctx)
		return errors.NewEnhancedError(
			"Failed to load configuration",
			err,
			suggestions,
		)
	}

	logger := logging.NewLogger(loggerConfigFrom(cfg))

	srv, err := server.New(cfg, logger)
	if err != nil {
		if strings.Contains(err.Error(), "address already in use") || strings.Contains(err.Error(), "bind") {
			ctx := &errors.SuggestionContext{}
			suggestions := errors.ServerStartError(err, cfg.Server.Port, ctx)
			return errors.NewEnhancedError(
				fmt.Sprintf("Failed to start server on port %d", cfg.Server.Port),
				err,
				suggestions,
			)
		}
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down server...")

		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			fmt.Fprintf(os.Stderr, "Error during server shutdown: %v\n", shutdownErr)
		}

		cancel()
	}()

	fmt.Printf("Starting fiddle at http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)

	if err := srv.Start(ctx); err != nil {
		// Bind failures surface here, after New succeeded
		ctxSuggestion := &errors.SuggestionContext{}
		if strings.Contains(err.Error(), "address already in use") {
			suggestions := errors.ServerStartError(err, cfg.Server.Port, ctxSuggestion)
			return errors.NewEnhancedError(
				fmt.Sprintf("Failed to start server on port %d", cfg.Server.Port),
				err,
				suggestions,
			)
		}
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// loggerConfigFrom maps the application config onto logger settings,
// letting the persistent --log-level flag win over the file.
func loggerConfigFrom(cfg *config.Config) *logging.LoggerConfig {
	lc := logging.DefaultConfig()

	level := cfg.Logging.Level
	if flagLevel := viper.GetString("log-level"); flagLevel != "" && viper.IsSet("log-level") {
		level = flagLevel
	}
	lc.Level = logging.ParseLevel(level)

	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}

	return lc
}
