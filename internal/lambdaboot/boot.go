// Package lambdaboot holds the Lambda cold-start helpers: AWS config, the
// optional S3 export bucket, the Gemini key from SSM, and startup logging.
package lambdaboot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/auth"
	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/logging"
)

// DefaultAPIKeyParam is read when SSM_API_KEY_PARAM is unset.
const DefaultAPIKeyParam = "/slop-meme-generator/prod/gemini-api-key"

// AWSClients holds the core AWS SDK clients.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config. Fatals on error.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3Sink returns an S3 export sink when bucket is set, nil otherwise.
func InitS3Sink(cfg aws.Config, bucket, prefix string) *export.S3Sink {
	if bucket == "" {
		log.Warn().Msg("S3 bucket not set, export to S3 disabled")
		return nil
	}
	client := s3.NewFromConfig(cfg)
	return &export.S3Sink{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
		Prefix:    prefix,
	}
}

// ParameterAPI is the part of *ssm.Client used to read the key.
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadGeminiKey copies the Gemini API key from SSM Parameter Store into
// GEMINI_API_KEY unless it is already set.
func LoadGeminiKey(ctx context.Context, client ParameterAPI) error {
	if os.Getenv(auth.APIKeyEnvVar) != "" {
		return nil
	}
	paramName := logging.EnvOrDefault("SSM_API_KEY_PARAM", DefaultAPIKeyParam)

	ssmStart := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return err
	}
	os.Setenv(auth.APIKeyEnvVar, aws.ToString(result.Parameter.Value))
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
	return nil
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
