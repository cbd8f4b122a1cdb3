package environment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/programme-lv/grader/internal/xdg"
)

type Sandbox string

const (
	SandboxLocal   Sandbox = "local"
	SandboxIsolate Sandbox = "isolate"
)

type EnvConfig struct {
	Workers         int
	WorkRoot        string
	MaxCaptureBytes int
	LogLevel        string
	Sandbox         Sandbox
	NatsUrl         string
	NatsSubject     string
	SqsQueueUrl     string
	AwsRegion       string
	CacheDir        string
}

// ReadEnvConfig loads an optional .env file and reads the GRADER_*
// variables. Unset values keep their defaults.
func ReadEnvConfig() (*EnvConfig, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	return readEnv()
}

func readEnv() (*EnvConfig, error) {
	dirs := xdg.New()
	result := &EnvConfig{
		WorkRoot:    os.Getenv("GRADER_WORK_ROOT"),
		LogLevel:    getenvOr("GRADER_LOG_LEVEL", "info"),
		Sandbox:     Sandbox(getenvOr("GRADER_SANDBOX", string(SandboxLocal))),
		NatsUrl:     os.Getenv("NATS_URL"),
		NatsSubject: getenvOr("NATS_SUBJECT", "grader.results"),
		SqsQueueUrl: os.Getenv("SQS_QUEUE_URL"),
		AwsRegion:   getenvOr("AWS_REGION", "eu-central-1"),
		CacheDir:    getenvOr("GRADER_CACHE_DIR", dirs.FileCacheDir()),
	}

	var err error
	if result.Workers, err = getenvInt("GRADER_WORKERS"); err != nil {
		return nil, err
	}
	if result.MaxCaptureBytes, err = getenvInt("GRADER_MAX_CAPTURE_BYTES"); err != nil {
		return nil, err
	}
	switch result.Sandbox {
	case SandboxLocal, SandboxIsolate:
	default:
		return nil, fmt.Errorf("GRADER_SANDBOX must be %q or %q, got %q", SandboxLocal, SandboxIsolate, result.Sandbox)
	}
	return result, nil
}

func getenvOr(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}
