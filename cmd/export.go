package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/apiclient"
	"github.com/JakeFAU/apilog-dashboard/internal/config"
	"github.com/JakeFAU/apilog-dashboard/internal/export"
	"github.com/JakeFAU/apilog-dashboard/internal/outcome"
	"github.com/JakeFAU/apilog-dashboard/internal/session"
	"github.com/JakeFAU/apilog-dashboard/internal/storage/local"
	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
)

type exportOptions struct {
	filters   map[string]string
	outputDir string
}

// newExportCmd creates the 'export' subcommand. It runs one export job to
// completion and cancels it on interrupt.
func newExportCmd() *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export <json|csv|cloud>",
		Short: "Exports logs matching the given filters",
		Long: `Starts an export job on the backend and polls it until it finishes.
File exports are saved to the output directory; cloud exports print the
retrieval link. Interrupting the command cancels the job on the backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportCommand(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringToStringVarP(&opts.filters, "filter", "f", nil,
		"filter as key=value (fromDate, toDate, statusCode, method, endpoint)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "directory for saved files (overrides client.output_dir)")
	return cmd
}

func runExportCommand(cmd *cobra.Command, rawKind string, opts *exportOptions) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	kind, err := export.ParseKind(rawKind)
	if err != nil {
		return err
	}
	filters, err := parseFilters(opts.filters)
	if err != nil {
		return err
	}
	dir := e.cfg.Client.OutputDir
	if opts.outputDir != "" {
		dir = opts.outputDir
	}

	stopTracing := startTracing(cmd.Context(), e)
	defer stopTracing()

	presenter := newTerminalPresenter(cmd.OutOrStdout())
	sess, err := buildSession(e.cfg, dir, presenter, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := sess.Close(closeCtx); cerr != nil {
			e.logger.Warn("session close failed", zap.Error(cerr))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, span := telemetry.Tracer().Start(ctx, "apilog.export",
		trace.WithAttributes(attribute.String("export.kind", string(kind))))
	defer span.End()

	if err := sess.Start(ctx, kind, filters); err != nil {
		return fmt.Errorf("start export: %w", err)
	}

	select {
	case res := <-presenter.done:
		if res.err != nil {
			return res.err
		}
		if res.link != "" {
			if _, err := sess.OpenLink(context.Background()); err != nil && !errors.Is(err, session.ErrNoLink) {
				return err
			}
		}
		return nil
	case <-ctx.Done():
		cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sess.CancelCurrent(cancelCtx); err != nil {
			return fmt.Errorf("cancel export: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "export canceled")
		return nil
	}
}

func buildSession(cfg config.Config, dir string, presenter export.Presenter, logger *zap.Logger) (*session.Session, error) {
	client, err := apiclient.New(
		cfg.Client.BaseURL,
		apiclient.Credentials{Token: cfg.Client.Token, UserID: cfg.Client.UserID},
		apiclient.WithTimeout(cfg.Client.RequestTimeout),
		apiclient.WithLogger(logger.Named("apiclient")),
	)
	if err != nil {
		return nil, err
	}
	saver, err := local.NewFileSaver(dir)
	if err != nil {
		return nil, err
	}
	handler := outcome.New(saver, presenter,
		outcome.WithFileBase(cfg.Client.FileBase),
		outcome.WithLogger(logger.Named("outcome")),
	)
	return session.New(apiclient.NewSet(client), handler, presenter,
		session.WithPollInterval(cfg.Client.PollInterval),
		session.WithLogger(logger.Named("session")),
	), nil
}

func parseFilters(raw map[string]string) (export.FilterSet, error) {
	known := make(map[string]bool)
	for _, k := range export.FilterKeys() {
		known[k] = true
	}
	out := export.FilterSet{}
	for k, v := range raw {
		if !known[k] {
			return nil, fmt.Errorf("unknown filter %q", k)
		}
		out[k] = v
	}
	return out.Clone(), nil
}

type exportResult struct {
	location string
	link     string
	err      error
}

// terminalPresenter prints session updates and reports the first terminal
// outcome on done.
type terminalPresenter struct {
	mu   sync.Mutex
	out  io.Writer
	last int
	done chan exportResult
	once sync.Once
}

func newTerminalPresenter(out io.Writer) *terminalPresenter {
	return &terminalPresenter{out: out, last: -1, done: make(chan exportResult, 1)}
}

func (p *terminalPresenter) Progress(job export.Job, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent == p.last {
		return
	}
	p.last = percent
	fmt.Fprintf(p.out, "%s export %s: %d%%\n", job.Kind, job.ID, percent)
}

func (p *terminalPresenter) Saved(job export.Job, location string) {
	p.print("%s export %s saved to %s\n", job.Kind, job.ID, location)
	p.finish(exportResult{location: location})
}

func (p *terminalPresenter) LinkReady(job export.Job, url string) {
	p.print("%s export %s ready: %s\n", job.Kind, job.ID, url)
	p.finish(exportResult{link: url})
}

func (p *terminalPresenter) LinkCleared() {}

func (p *terminalPresenter) Failed(job export.Job, err error) {
	p.print("%s export %s failed: %v\n", job.Kind, job.ID, err)
	p.finish(exportResult{err: err})
}

func (p *terminalPresenter) print(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *terminalPresenter) finish(res exportResult) {
	p.once.Do(func() { p.done <- res })
}
