package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/environment"
	"github.com/programme-lv/grader/internal/spec"
)

func TestParsePrograms(t *testing.T) {
	programs, err := parsePrograms([]string{"sol=python3 'my sol.py'", "ref=/bin/cat"})
	require.NoError(t, err)
	assert.Equal(t, spec.ProgramSet{
		"sol": {Program: "python3", Args: []string{"my sol.py"}},
		"ref": {Program: "/bin/cat", Args: []string{}},
	}, programs)

	for _, bad := range [][]string{{"noequals"}, {"=cat"}, {"a="}, {"a=cat", "a=ls"}, {"a='unterminated"}} {
		_, err := parsePrograms(bad)
		assert.Error(t, err, bad)
	}
}

func sampleReport() *api.Report {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	root := &api.ResultNode{Kind: api.AssessmentNode, Name: "hw", Status: api.Passed, Score: 1}
	return api.NewReport("run-1", "hw", "staff", root, start, start.Add(time.Second))
}

func TestWriteReportPlain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, false, sampleReport()))

	var got api.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunUuid)
	assert.Equal(t, api.RunSuccess, got.Status)
}

func TestWriteReportFileCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json.zst")
	require.NoError(t, writeReportFile(path, sampleReport()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	var got api.Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "hw", got.Title)
	assert.Equal(t, int64(1000), got.TotalTimeMs)
}

const echoSpec = `
title = "echo"
programs = ["program1"]

[[sections]]
name = "output"

[[sections.unit_tests]]
[[sections.unit_tests.tests]]
[[sections.unit_tests.tests.detailed]]
name = "greets"
expect = { stdout = "hi", trim = true, status = 0 }
`

func testConfig(t *testing.T) *environment.EnvConfig {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	return &environment.EnvConfig{
		LogLevel:    "error",
		Sandbox:     environment.SandboxLocal,
		NatsSubject: "grader.results",
		AwsRegion:   "eu-central-1",
		CacheDir:    t.TempDir(),
	}
}

func TestRunCommandWritesReport(t *testing.T) {
	dir := t.TempDir()
	specPath := filepath.Join(dir, "echo.toml")
	out := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(specPath, []byte(echoSpec), 0644))

	err := newApp(testConfig(t)).Run(context.Background(), []string{
		"grader", "run", "--quiet",
		"--spec", specPath,
		"--program", "program1=/bin/sh -c 'echo hi'",
		"--out", out,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var report api.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, api.RunSuccess, report.Status)
	assert.Equal(t, 1.0, report.Root.Score)
	assert.NotNil(t, report.Root.Find("output"))
}

func TestRunCommandMissingProgram(t *testing.T) {
	specPath := filepath.Join(t.TempDir(), "echo.toml")
	require.NoError(t, os.WriteFile(specPath, []byte(echoSpec), 0644))

	err := newApp(testConfig(t)).Run(context.Background(), []string{
		"grader", "run", "--quiet", "--spec", specPath,
	})
	assert.ErrorIs(t, err, spec.ErrSpecMismatch)
}

func TestValidateCommand(t *testing.T) {
	specPath := filepath.Join(t.TempDir(), "echo.toml")
	require.NoError(t, os.WriteFile(specPath, []byte(echoSpec), 0644))

	cfg := testConfig(t)
	require.NoError(t, newApp(cfg).Run(context.Background(), []string{"grader", "validate", "--spec", specPath}))

	require.NoError(t, os.WriteFile(specPath, []byte(`title = "x"`), 0644))
	assert.Error(t, newApp(cfg).Run(context.Background(), []string{"grader", "validate", "--spec", specPath}))
}
