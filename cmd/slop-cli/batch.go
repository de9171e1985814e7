package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fpang/slop-meme-generator/internal/app"
	"github.com/fpang/slop-meme-generator/internal/cli"
	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/logging"
	"github.com/fpang/slop-meme-generator/internal/metrics"
	"github.com/fpang/slop-meme-generator/internal/notify"
	"github.com/fpang/slop-meme-generator/internal/session"
)

var (
	fileFlag        string
	concurrencyFlag int
)

var batchCmd = &cobra.Command{
	Use:   "batch [prompt...]",
	Short: "Generate one meme per prompt",
	Long: `Batch generates a meme for every prompt given as an argument or listed in
--file (one per line, '#' starts a comment). Requests to the image source are
spaced by SLOP_RATE_INTERVAL and at most --concurrency run at once.`,
	Run: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "File with one prompt per line ('-' for stdin)")
	batchCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 3, "Maximum memes generated at once")
}

type batchResult struct {
	Prompt   string
	Location string
	Err      error
}

func runBatch(cmd *cobra.Command, args []string) {
	logging.Init()
	cfg := loadConfig(cmd)

	prompts := append([]string(nil), args...)
	if fileFlag != "" {
		fromFile, err := readPromptFile(fileFlag)
		if err != nil {
			log.Fatal().Err(err).Str("file", fileFlag).Msg("Failed to read prompts")
		}
		prompts = append(prompts, fromFile...)
	}
	if len(prompts) == 0 {
		log.Fatal().Msg("No prompts given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	acq, err := app.NewAcquirer(ctx, cfg)
	if err != nil {
		cli.HandleSourceError(err)
	}
	if _, err := cli.ResolveOutputDir(cfg.OutputDir); err != nil {
		log.Fatal().Err(err).Msg("Invalid output directory")
	}

	start := time.Now()
	results := generateBatch(ctx, acq, export.NewDirSink(cfg.OutputDir), prompts, batchOptions{
		Concurrency:  concurrencyFlag,
		RateInterval: cfg.RateInterval,
		Session:      app.SessionOptions(cfg),
	})

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "  FAIL  %s: %v\n", r.Prompt, r.Err)
			continue
		}
		fmt.Printf("%s\t%s\n", r.Location, r.Prompt)
	}
	log.Info().
		Int("total", len(results)).
		Int("failed", failed).
		Str("elapsed", cli.FormatDurationShort(time.Since(start))).
		Msg("Batch complete")

	metrics.New(metrics.Namespace).
		Metric("BatchSize", float64(len(results)), metrics.UnitCount).
		Metric("BatchFailures", float64(failed), metrics.UnitCount).
		Metric("BatchLatencyMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).
		Flush()

	if failed > 0 {
		os.Exit(1)
	}
}

func readPromptFile(path string) ([]string, error) {
	if path == "-" {
		return cli.ReadPrompts(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return cli.ReadPrompts(f)
}

type batchOptions struct {
	Concurrency  int
	RateInterval time.Duration
	Session      session.Options
}

// generateBatch runs one session per prompt. Results keep the input order.
func generateBatch(ctx context.Context, acq session.Acquirer, sink export.Sink, prompts []string, opts batchOptions) []batchResult {
	results := make([]batchResult, len(prompts))

	eg, egCtx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		eg.SetLimit(opts.Concurrency)
	}
	limit := rate.Inf
	if opts.RateInterval > 0 {
		limit = rate.Every(opts.RateInterval)
	}
	limiter := rate.NewLimiter(limit, 2)

	for i, prompt := range prompts {
		eg.Go(func() error {
			results[i].Prompt = prompt
			if err := limiter.Wait(egCtx); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Location, results[i].Err = generateOne(egCtx, acq, numberedSink{Sink: sink, n: i + 1}, prompt, opts.Session)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func generateOne(ctx context.Context, acq session.Acquirer, sink export.Sink, prompt string, opts session.Options) (string, error) {
	logger := log.With().Str("prompt", prompt).Logger()
	sess := session.New(acq, nil, notify.Func(func(n notify.Notice) {
		logger.Debug().Str("id", n.ID).Msg(n.Message)
	}), opts)
	defer sess.Close()

	if err := sess.Submit(prompt); err != nil {
		return "", err
	}
	if !waitSession(ctx, sess) {
		return "", ctx.Err()
	}

	st := sess.Snapshot()
	if !st.HasImage {
		if st.Error != "" {
			return "", fmt.Errorf("image failed to load: %s", st.Error)
		}
		return "", session.ErrNoImage
	}
	return sess.Export(ctx, sink)
}

// numberedSink suffixes filenames with the prompt's position so memes
// exported in the same millisecond do not overwrite each other.
type numberedSink struct {
	export.Sink
	n int
}

func (s numberedSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	name = strings.TrimSuffix(name, ".png") + fmt.Sprintf("-%02d.png", s.n)
	return s.Sink.Save(ctx, name, data)
}
