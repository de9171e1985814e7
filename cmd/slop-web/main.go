package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/slop-meme-generator/internal/app"
	"github.com/fpang/slop-meme-generator/internal/cli"
	"github.com/fpang/slop-meme-generator/internal/config"
	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/logging"
	"github.com/fpang/slop-meme-generator/internal/notify"
	"github.com/fpang/slop-meme-generator/internal/session"
	"github.com/fpang/slop-meme-generator/internal/web"
)

// CLI flags
var (
	portFlag       int
	sourceFlag     string
	modelFlag      string
	outputFlag     string
	saveDialogFlag bool
)

var rootCmd = &cobra.Command{
	Use:     "slop-web",
	Short:   "Web UI for the slop meme generator",
	Version: app.Version,
	Long: `Slop Web starts a local web server with the meme editor: type a prompt or
pick a template, watch the progress bar, tweak the caption and download the
finished 1024x1024 PNG.

Examples:
  slop-web
  slop-web --port 9090
  slop-web --source gemini --model imagen-4.0-generate-001
  slop-web --save-dialog`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVar(&sourceFlag, "source", config.SourcePollinations, "Image source: pollinations or gemini")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", config.DefaultGeminiModel, "Imagen model for the gemini source")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", config.DefaultOutputDir, "Directory POST /api/export saves to")
	rootCmd.Flags().BoolVar(&saveDialogFlag, "save-dialog", false, "POST /api/export opens a native save dialog instead")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cmd.Flags().Changed("source") {
		cfg.Source = sourceFlag
	}
	if cmd.Flags().Changed("model") {
		cfg.GeminiModel = modelFlag
	}
	if cmd.Flags().Changed("output") {
		cfg.OutputDir = outputFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	acq, err := app.NewAcquirer(context.Background(), cfg)
	if err != nil {
		cli.HandleSourceError(err)
	}

	var sink export.Sink = export.NewDirSink(cfg.OutputDir)
	if saveDialogFlag {
		sink = export.NewDialogSink(cfg.OutputDir)
	}

	notices := notify.NewRecorder(notify.DefaultRecorderLimit)
	hub := web.NewHub()
	sess := session.New(acq, nil, web.Notifier(notices, hub), app.SessionOptions(cfg))
	srv := web.New(sess, notices, hub, web.Options{
		RateInterval: cfg.RateInterval,
		Sink:         sink,
		Metrics:      cfg.Metrics,
	})

	addr := fmt.Sprintf(":%d", portFlag)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
		srv.Close()
		sess.Close()
	}()

	log.Info().Int("port", portFlag).Str("source", cfg.Source).Msg("Starting web server")
	fmt.Printf("\n  Slop Meme Generator: http://localhost:%d\n\n", portFlag)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
