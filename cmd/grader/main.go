package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/kballard/go-shellquote"
	"github.com/klauspost/compress/zstd"
	"github.com/urfave/cli/v3"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal"
	"github.com/programme-lv/grader/internal/engine"
	"github.com/programme-lv/grader/internal/environment"
	"github.com/programme-lv/grader/internal/filestore"
	"github.com/programme-lv/grader/internal/gatherer/multigath"
	"github.com/programme-lv/grader/internal/gatherer/natsgath"
	"github.com/programme-lv/grader/internal/gatherer/sqsgath"
	"github.com/programme-lv/grader/internal/gatherer/termgath"
	"github.com/programme-lv/grader/internal/logging"
	"github.com/programme-lv/grader/internal/s3downl"
	"github.com/programme-lv/grader/internal/spec"
	"github.com/programme-lv/grader/internal/specfile"
	"github.com/programme-lv/grader/internal/xdg"
)

const (
	exitSuccess = 0
	exitFailure = 1
	exitPartial = 3
)

var errPartial = errors.New("grading finished with errored tests")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := environment.ReadEnvConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}

	err = newApp(cfg).Run(ctx, os.Args)
	switch {
	case err == nil:
		os.Exit(exitSuccess)
	case errors.Is(err, errPartial):
		os.Exit(exitPartial)
	default:
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(exitFailure)
	}
}

func newApp(cfg *environment.EnvConfig) *cli.Command {
	// flags keep parse state, each command gets its own
	specFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "spec",
			Aliases:  []string{"s"},
			Usage:    "assessment specification `FILE` (TOML)",
			Required: true,
		}
	}
	logLevelFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "log-level",
			Value:   cfg.LogLevel,
			Sources: cli.EnvVars("GRADER_LOG_LEVEL"),
		}
	}

	return &cli.Command{
		Name:  "grader",
		Usage: "grade student programs against an assessment specification",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run every test of the assessment and report the scores",
				Flags: []cli.Flag{
					specFlag(),
					logLevelFlag(),
					&cli.StringSliceFlag{
						Name:    "program",
						Aliases: []string{"p"},
						Usage:   "program reference as `NAME=COMMAND`, may be repeated",
					},
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"j"},
						Usage:   "processes running at once, 0 for the number of CPUs",
						Sources: cli.EnvVars("GRADER_WORKERS"),
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "write the JSON report to `FILE`, zstd compressed when it ends in .zst",
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "print only the summary",
					},
					&cli.StringFlag{
						Name:    "sandbox",
						Value:   string(cfg.Sandbox),
						Usage:   "local or isolate",
						Sources: cli.EnvVars("GRADER_SANDBOX"),
					},
					&cli.StringFlag{
						Name:    "nats-url",
						Value:   cfg.NatsUrl,
						Sources: cli.EnvVars("NATS_URL"),
					},
					&cli.StringFlag{
						Name:    "nats-subject",
						Value:   cfg.NatsSubject,
						Sources: cli.EnvVars("NATS_SUBJECT"),
					},
					&cli.StringFlag{
						Name:    "sqs-queue-url",
						Value:   cfg.SqsQueueUrl,
						Sources: cli.EnvVars("SQS_QUEUE_URL"),
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runAction(ctx, cmd, cfg)
				},
			},
			{
				Name:  "validate",
				Usage: "check that a specification loads",
				Flags: []cli.Flag{specFlag(), logLevelFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					logger, err := newLogger(cmd.String("log-level"))
					if err != nil {
						return err
					}
					a, err := loadSpec(ctx, cmd.String("spec"), cfg, logger)
					if err != nil {
						return err
					}
					fmt.Printf("%s: %d section(s), programs %s\n",
						cmd.String("spec"), len(a.Sections), strings.Join(a.Programs, ", "))
					return nil
				},
			},
		},
	}
}

func newLogger(level string) (*slog.Logger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, lvl, !color.NoColor), nil
}

func loadSpec(ctx context.Context, path string, cfg *environment.EnvConfig, logger *slog.Logger) (*spec.Assessment, error) {
	download, err := s3downl.GetDownloadFunc(ctx, cfg.AwsRegion, logger)
	if err != nil {
		return nil, err
	}
	store, err := filestore.New(cfg.CacheDir, xdg.New().DownloadTmpDir(), download, logger)
	if err != nil {
		return nil, err
	}
	return specfile.Load(ctx, path, store)
}

func runAction(ctx context.Context, cmd *cli.Command, cfg *environment.EnvConfig) error {
	logger, err := newLogger(cmd.String("log-level"))
	if err != nil {
		return err
	}
	programs, err := parsePrograms(cmd.StringSlice("program"))
	if err != nil {
		return err
	}
	a, err := loadSpec(ctx, cmd.String("spec"), cfg, logger)
	if err != nil {
		return err
	}
	launcher, err := newLauncher(environment.Sandbox(cmd.String("sandbox")))
	if err != nil {
		return err
	}

	gatherers := []internal.ResultGatherer{termgath.New(cmd.Bool("quiet"))}
	if url := cmd.String("nats-url"); url != "" {
		nc, err := natsgath.Connect(url)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer func() { _ = nc.Drain() }()
		gatherers = append(gatherers, natsgath.New(nc, cmd.String("nats-subject"), logger))
	}
	if url := cmd.String("sqs-queue-url"); url != "" {
		g, err := sqsgath.NewSqsResponseQueueGatherer(ctx, cfg.AwsRegion, url, logger)
		if err != nil {
			return err
		}
		gatherers = append(gatherers, g)
	}

	workers := int(cmd.Int("workers"))
	if workers == 0 {
		workers = cfg.Workers
	}
	eng := engine.New(launcher, engine.Options{
		Workers:    workers,
		WorkRoot:   cfg.WorkRoot,
		MaxCapture: cfg.MaxCaptureBytes,
		Gatherer:   multigath.New(gatherers...),
		Logger:     logger,
	})
	report, err := eng.Grade(ctx, a, programs)
	if err != nil {
		return err
	}

	if out := cmd.String("out"); out != "" {
		if err := writeReportFile(out, report); err != nil {
			return err
		}
	}
	if report.Status == api.RunPartial {
		return errPartial
	}
	return nil
}

// parsePrograms reads NAME=COMMAND pairs, the command is split like a
// shell would.
func parsePrograms(pairs []string) (spec.ProgramSet, error) {
	programs := make(spec.ProgramSet, len(pairs))
	for _, pair := range pairs {
		name, command, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("program %q is not NAME=COMMAND", pair)
		}
		words, err := shellquote.Split(command)
		if err != nil {
			return nil, fmt.Errorf("program %s: %w", name, err)
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("program %s has an empty command", name)
		}
		if _, dup := programs[name]; dup {
			return nil, fmt.Errorf("program %s given twice", name)
		}
		programs[name] = spec.Command{Program: words[0], Args: words[1:]}
	}
	return programs, nil
}

func writeReportFile(path string, report *api.Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return writeReport(f, strings.HasSuffix(path, ".zst"), report)
}

func writeReport(w io.Writer, compressed bool, report *api.Report) error {
	if !compressed {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(zw).Encode(report); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
