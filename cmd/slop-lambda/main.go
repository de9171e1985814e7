// Package main serves the meme editor API from AWS Lambda behind API
// Gateway. Each warm container keeps one in-memory session.
//
// Endpoints match slop-web except /api/ws, which API Gateway HTTP APIs do
// not carry; the UI falls back to polling /api/state and /api/notices.
// POST /api/export uploads to SLOP_S3_BUCKET and returns a presigned URL.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/app"
	"github.com/fpang/slop-meme-generator/internal/config"
	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/lambdaboot"
	"github.com/fpang/slop-meme-generator/internal/logging"
	"github.com/fpang/slop-meme-generator/internal/metrics"
	"github.com/fpang/slop-meme-generator/internal/notify"
	"github.com/fpang/slop-meme-generator/internal/session"
	"github.com/fpang/slop-meme-generator/internal/web"
)

var server *web.Server

func init() {
	initStart := time.Now()
	logging.InitJSON(os.Stdout)
	metrics.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	clients := lambdaboot.InitAWS()
	if cfg.Source == config.SourceGemini {
		if err := lambdaboot.LoadGeminiKey(context.Background(), clients.SSM); err != nil {
			log.Fatal().Err(err).Msg("Failed to read API key from SSM")
		}
	}

	acq, err := app.NewAcquirer(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up image source")
	}

	var sink export.Sink
	if s3 := lambdaboot.InitS3Sink(clients.Config, cfg.S3Bucket, cfg.S3Prefix); s3 != nil {
		sink = s3
	}

	originSecret := os.Getenv("ORIGIN_VERIFY_SECRET")
	if originSecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set, origin verification disabled")
	}

	notices := notify.NewRecorder(notify.DefaultRecorderLimit)
	hub := web.NewHub()
	sess := session.New(acq, nil, web.Notifier(notices, hub), app.SessionOptions(cfg))
	server = web.New(sess, notices, hub, web.Options{
		RateInterval: cfg.RateInterval,
		Sink:         sink,
		Metrics:      true,
		OriginSecret: originSecret,
	})

	lambdaboot.StartupLog("slop-lambda", initStart).
		CommitHash(os.Getenv("COMMIT_HASH")).
		Config("source", cfg.Source).
		Config("s3Bucket", cfg.S3Bucket).
		Feature("s3Export", sink != nil).
		Feature("originVerify", originSecret != "").
		Log()
}

func main() {
	adapter := httpadapter.NewV2(server.Handler())
	lambda.Start(adapter.ProxyWithContext)
}
