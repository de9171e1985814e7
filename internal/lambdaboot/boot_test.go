package lambdaboot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/fpang/slop-meme-generator/internal/auth"
)

type fakeSSM struct {
	name    string
	decrypt bool
	err     error
}

func (f *fakeSSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.name = aws.ToString(params.Name)
	f.decrypt = aws.ToBool(params.WithDecryption)
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String("from-ssm")}}, nil
}

func TestLoadGeminiKey_FromSSM(t *testing.T) {
	t.Setenv(auth.APIKeyEnvVar, "")
	t.Setenv("SSM_API_KEY_PARAM", "/custom/param")

	client := &fakeSSM{}
	if err := LoadGeminiKey(context.Background(), client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.name != "/custom/param" || !client.decrypt {
		t.Errorf("expected decrypted read of /custom/param, got %q decrypt=%v", client.name, client.decrypt)
	}
	key, err := auth.GetAPIKey()
	if err != nil || key != "from-ssm" {
		t.Errorf("expected key from SSM, got %q (%v)", key, err)
	}
}

func TestLoadGeminiKey_DefaultParam(t *testing.T) {
	t.Setenv(auth.APIKeyEnvVar, "")
	t.Setenv("SSM_API_KEY_PARAM", "")

	client := &fakeSSM{}
	if err := LoadGeminiKey(context.Background(), client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.name != DefaultAPIKeyParam {
		t.Errorf("expected %s, got %s", DefaultAPIKeyParam, client.name)
	}
}

func TestLoadGeminiKey_AlreadySet(t *testing.T) {
	t.Setenv(auth.APIKeyEnvVar, "local")

	client := &fakeSSM{err: errors.New("should not be called")}
	if err := LoadGeminiKey(context.Background(), client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.name != "" {
		t.Errorf("expected no SSM call, got %s", client.name)
	}
}

func TestLoadGeminiKey_Error(t *testing.T) {
	t.Setenv(auth.APIKeyEnvVar, "")
	cause := errors.New("access denied")
	if err := LoadGeminiKey(context.Background(), &fakeSSM{err: cause}); !errors.Is(err, cause) {
		t.Errorf("expected SSM error, got %v", err)
	}
}

func TestInitS3Sink_Disabled(t *testing.T) {
	if sink := InitS3Sink(aws.Config{}, "", "memes/"); sink != nil {
		t.Errorf("expected nil sink without bucket")
	}
}

func TestInitS3Sink(t *testing.T) {
	sink := InitS3Sink(aws.Config{Region: "us-east-1"}, "slop", "memes/")
	if sink == nil || sink.Bucket != "slop" || sink.Prefix != "memes/" {
		t.Fatalf("unexpected sink %+v", sink)
	}
	if sink.Key("meme-1.png") != "memes/meme-1.png" {
		t.Errorf("unexpected key %s", sink.Key("meme-1.png"))
	}
}

func TestStartupLog(t *testing.T) {
	if StartupLog("slop-lambda", time.Now()) == nil {
		t.Error("expected a startup logger")
	}
}
