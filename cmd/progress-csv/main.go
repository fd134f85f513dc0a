// Command progress-csv writes the course progress matrix as CSV without
// starting the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/canvas-progress/internal/app"
	"github.com/Sternrassler/canvas-progress/pkg/config"
	"github.com/Sternrassler/canvas-progress/pkg/report"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type options struct {
	courseID    string
	order       string
	output      string
	concurrency int
	platformURL string
	token       string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("progress-csv", pflag.ContinueOnError)
	fs.StringVarP(&opts.courseID, "course", "c", "", "Canvas course id (required)")
	fs.StringVarP(&opts.order, "order", "o", "asc", "student order by SIS id: asc or desc")
	fs.StringVar(&opts.output, "output", "-", "output file, - for stdout")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "parallel per-student requests (default from REPORT_CONCURRENCY)")
	fs.StringVar(&opts.platformURL, "platform-url", "", "Canvas platform URL (default from PLATFORM_URL)")
	fs.StringVar(&opts.token, "token", "", "Canvas access token (default from CANVAS_TOKEN)")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.courseID == "" {
		return opts, errors.New("--course is required")
	}
	if _, err := report.ParseSortOrder(opts.order); err != nil {
		return opts, err
	}
	return opts, nil
}

// apply lets explicit flags override the environment.
func (o options) apply(cfg *config.Config) {
	if o.platformURL != "" {
		cfg.Canvas.PlatformURL = o.platformURL
	}
	if o.token != "" {
		cfg.Canvas.Token = o.token
	}
	if o.concurrency > 0 {
		cfg.Report.Concurrency = o.concurrency
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	opts.apply(cfg)
	app.SetupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Failed to write progress CSV")
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, stdout io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	order, err := report.ParseSortOrder(opts.order)
	if err != nil {
		return err
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, _, err := a.Reports.CSV(ctx, opts.courseID, order)
	if err != nil {
		return err
	}

	if err := writeOutput(opts.output, stdout, entry.Data); err != nil {
		return err
	}

	log.Info().
		Str("course_id", opts.courseID).
		Str("order", string(order)).
		Int("bytes", len(entry.Data)).
		Msg("Progress CSV written")
	return nil
}

// writeOutput writes data to path, or to stdout when path is empty or "-".
func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "" || path == "-" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
