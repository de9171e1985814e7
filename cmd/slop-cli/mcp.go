package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/slop-meme-generator/internal/app"
	"github.com/fpang/slop-meme-generator/internal/cli"
	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/logging"
	"github.com/fpang/slop-meme-generator/internal/mcpserver"
)

var saveFlag bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve meme tools to MCP clients over stdio",
	Long: `MCP starts a Model Context Protocol server on stdin/stdout exposing the
list_templates, resolve_caption and generate_meme tools. Logs go to stderr.

With --save, generated memes are also written to --output.`,
	Args: cobra.NoArgs,
	Run:  runMCP,
}

func init() {
	mcpCmd.Flags().BoolVar(&saveFlag, "save", false, "Also save generated memes to the output directory")
}

func runMCP(cmd *cobra.Command, args []string) {
	logging.Init()
	cfg := loadConfig(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	acq, err := app.NewAcquirer(ctx, cfg)
	if err != nil {
		cli.HandleSourceError(err)
	}

	var sink export.Sink
	if saveFlag {
		dir, err := cli.ResolveOutputDir(cfg.OutputDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid output directory")
		}
		sink = export.NewDirSink(dir)
	}

	srv := mcpserver.New(acq, sink, app.SessionOptions(cfg))
	if err := srv.Run(ctx, app.Version); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}
