package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/slop-meme-generator/internal/app"
	"github.com/fpang/slop-meme-generator/internal/config"
)

// Shared flags
var (
	sourceFlag   string
	modelFlag    string
	outputFlag   string
	s3BucketFlag string
	s3PrefixFlag string
)

var rootCmd = &cobra.Command{
	Use:     "slop-cli",
	Short:   "Generate low-quality AI memes from the terminal",
	Version: app.Version,
	Long: `Slop CLI generates an AI image for a prompt, overlays impact-style top and
bottom captions with the deep-fried slop filter, and saves the result as a
1024x1024 PNG.

Examples:
  slop-cli generate -p "weird distorted face meme"
  slop-cli generate -t 1 --top "MONDAY" -o ./memes
  slop-cli generate -p "crying cat" --save-dialog
  slop-cli batch -f prompts.txt --concurrency 4
  slop-cli templates
  slop-cli caption "gamer drake pointing"
  slop-cli mcp`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&sourceFlag, "source", config.SourcePollinations, "Image source: pollinations or gemini")
	pf.StringVarP(&modelFlag, "model", "m", config.DefaultGeminiModel, "Imagen model for the gemini source")
	pf.StringVarP(&outputFlag, "output", "o", config.DefaultOutputDir, "Directory memes are saved to")
	pf.StringVar(&s3BucketFlag, "s3-bucket", "", "Also upload memes to this S3 bucket")
	pf.StringVar(&s3PrefixFlag, "s3-prefix", config.DefaultS3Prefix, "Key prefix for S3 uploads")

	rootCmd.AddCommand(generateCmd, batchCmd, templatesCmd, captionCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies any flags set explicitly.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source = sourceFlag
	}
	if flags.Changed("model") {
		cfg.GeminiModel = modelFlag
	}
	if flags.Changed("output") {
		cfg.OutputDir = outputFlag
	}
	if flags.Changed("s3-bucket") {
		cfg.S3Bucket = s3BucketFlag
	}
	if flags.Changed("s3-prefix") {
		cfg.S3Prefix = s3PrefixFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}
