package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/slop-meme-generator/internal/app"
	"github.com/fpang/slop-meme-generator/internal/cli"
	"github.com/fpang/slop-meme-generator/internal/config"
	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/lambdaboot"
	"github.com/fpang/slop-meme-generator/internal/logging"
	"github.com/fpang/slop-meme-generator/internal/session"
)

var (
	promptFlag      string
	templateFlag    int
	topFlag         string
	bottomFlag      string
	sizeFlag        int
	autoCaptionFlag bool
	saveDialogFlag  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate one meme",
	Long: `Generate fetches an image for the prompt (or a quick-select template),
picks a caption from the prompt's keywords and saves the meme.

Without --prompt, --template or a positional prompt, the prompt is read
interactively.`,
	Run: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&promptFlag, "prompt", "p", "", "Image prompt")
	f.IntVarP(&templateFlag, "template", "t", -1, "Quick-select template index (see 'slop-cli templates')")
	f.StringVar(&topFlag, "top", "", "Override the top caption")
	f.StringVar(&bottomFlag, "bottom", "", "Override the bottom caption")
	f.IntVar(&sizeFlag, "size", session.DefaultTextScale, fmt.Sprintf("Caption size in pixels (%d-%d)", session.MinTextScale, session.MaxTextScale))
	f.BoolVar(&autoCaptionFlag, "auto-caption", false, "Re-roll the caption from the prompt after the image arrives")
	f.BoolVar(&saveDialogFlag, "save-dialog", false, "Choose the save location in a native file dialog")
}

func runGenerate(cmd *cobra.Command, args []string) {
	logging.Init()
	cfg := loadConfig(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sizeFlag < session.MinTextScale || sizeFlag > session.MaxTextScale {
		log.Fatal().Int("size", sizeFlag).Msg(session.ErrTextScale.Error())
	}

	prompt := promptFlag
	if prompt == "" && len(args) > 0 {
		prompt = strings.Join(args, " ")
	}
	if prompt == "" && templateFlag < 0 {
		prompt = cli.PromptForPrompt()
	}

	acq, err := app.NewAcquirer(ctx, cfg)
	if err != nil {
		cli.HandleSourceError(err)
	}

	progress := cli.NewProgress(os.Stderr)
	sess := session.New(acq, nil, progress, app.SessionOptions(cfg))
	defer sess.Close()
	unwatch := sess.Watch(progress.Update)
	defer unwatch()

	if templateFlag >= 0 {
		err = sess.SelectTemplate(templateFlag)
	} else {
		err = sess.Submit(prompt)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot start generation")
	}

	if !waitSession(ctx, sess) {
		log.Warn().Msg("Interrupted")
		return
	}

	if autoCaptionFlag {
		if err := sess.AutoCaption(ctx); err != nil {
			log.Warn().Err(err).Msg("Auto caption skipped")
		}
	}
	applyCaptionFlags(cmd, sess)
	if err := sess.SetTextScale(sizeFlag); err != nil {
		log.Fatal().Err(err).Msg("Invalid caption size")
	}

	st := sess.Snapshot()
	if st.Error != "" {
		log.Warn().Str("cause", st.Error).Msg("Image did not load cleanly")
	}

	saved := 0
	for _, sink := range sinksFor(cfg) {
		loc, err := sess.Export(ctx, sink)
		if err != nil {
			if errors.Is(err, export.ErrCanceled) {
				log.Info().Msg("Save dialog dismissed")
				continue
			}
			log.Error().Err(err).Str("sink", sink.Name()).Msg("Failed to save meme")
			continue
		}
		saved++
		fmt.Println(loc)
	}
	if saved == 0 {
		os.Exit(1)
	}
}

func applyCaptionFlags(cmd *cobra.Command, sess *session.Session) {
	flags := cmd.Flags()
	if !flags.Changed("top") && !flags.Changed("bottom") {
		return
	}
	cur := sess.Snapshot().Caption
	if flags.Changed("top") {
		cur.Top = topFlag
	}
	if flags.Changed("bottom") {
		cur.Bottom = bottomFlag
	}
	sess.SetCaption(cur.Top, cur.Bottom)
}

// waitSession waits for the acquisition and reports false if ctx ended first.
func waitSession(ctx context.Context, sess *session.Session) bool {
	done := make(chan struct{})
	go func() {
		sess.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return true
	}
}

func sinksFor(cfg config.Config) []export.Sink {
	var s3 *export.S3Sink
	if cfg.S3Bucket != "" {
		clients := lambdaboot.InitAWS()
		s3 = lambdaboot.InitS3Sink(clients.Config, cfg.S3Bucket, cfg.S3Prefix)
	}
	if !saveDialogFlag {
		if _, err := cli.ResolveOutputDir(cfg.OutputDir); err != nil {
			log.Fatal().Err(err).Msg("Invalid output directory")
		}
	}
	return app.Sinks(cfg, saveDialogFlag, s3)
}
