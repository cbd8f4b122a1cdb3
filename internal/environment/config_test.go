package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"GRADER_WORKERS", "GRADER_WORK_ROOT", "GRADER_MAX_CAPTURE_BYTES",
		"GRADER_LOG_LEVEL", "GRADER_SANDBOX", "NATS_URL", "NATS_SUBJECT",
		"SQS_QUEUE_URL", "AWS_REGION", "GRADER_CACHE_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestReadEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CACHE_HOME", "/cache")

	cfg, err := readEnv()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, SandboxLocal, cfg.Sandbox)
	assert.Equal(t, "grader.results", cfg.NatsSubject)
	assert.Equal(t, "eu-central-1", cfg.AwsRegion)
	assert.Equal(t, "/cache/grader/files", cfg.CacheDir)
}

func TestReadEnvValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRADER_WORKERS", "6")
	t.Setenv("GRADER_MAX_CAPTURE_BYTES", "4096")
	t.Setenv("GRADER_SANDBOX", "isolate")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg, err := readEnv()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, 4096, cfg.MaxCaptureBytes)
	assert.Equal(t, SandboxIsolate, cfg.Sandbox)
	assert.Equal(t, "nats://localhost:4222", cfg.NatsUrl)
}

func TestReadEnvRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRADER_WORKERS", "many")
	_, err := readEnv()
	assert.ErrorContains(t, err, "GRADER_WORKERS")

	clearEnv(t)
	t.Setenv("GRADER_SANDBOX", "docker")
	_, err = readEnv()
	assert.ErrorContains(t, err, "GRADER_SANDBOX")
}

func TestReadEnvConfigLoadsDotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that is set, even to ""
	require.NoError(t, os.Unsetenv("GRADER_WORKERS"))
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GRADER_WORKERS=3\n"), 0644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := ReadEnvConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
}

func TestReadEnvConfigWithoutDotEnv(t *testing.T) {
	clearEnv(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = ReadEnvConfig()
	require.NoError(t, err)
}
