package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sikdae/internal/amqp"
	"sikdae/internal/core"
	applog "sikdae/internal/log"
	"sikdae/internal/metrics"
	"sikdae/internal/services"
	"sikdae/internal/sheets"
	"sikdae/internal/sheets/google"
	"sikdae/internal/sheets/memory"
)

const defaultReadTimeout = 30 * time.Second

// Analyzer is the part of the analysis service the worker drives.
type Analyzer interface {
	AnalyzeSheet(ctx context.Context, reader sheets.RowReader, meta services.Meta) (*services.StoredReport, error)
	PublishFailure(ctx context.Context, source string, meta services.Meta, cause error)
}

// Consumer delivers queued analysis requests.
type Consumer interface {
	ConsumeAnalysisRequests(ctx context.Context, handler amqp.RequestHandler) error
}

// AnalysisWorker turns queued requests into sheet analyses.
type AnalysisWorker struct {
	analyzer    Analyzer
	opener      sheets.SheetOpener
	readTimeout time.Duration
	logger      *applog.Logger
	metrics     *metrics.Metrics
}

type Options struct {
	Analyzer    Analyzer
	Opener      sheets.SheetOpener
	ReadTimeout time.Duration
	Logger      *applog.Logger
	Metrics     *metrics.Metrics // optional
}

func NewAnalysisWorker(opts Options) *AnalysisWorker {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	return &AnalysisWorker{
		analyzer:    opts.Analyzer,
		opener:      opts.Opener,
		readTimeout: opts.ReadTimeout,
		logger:      opts.Logger.WithComponent(applog.ComponentWorker),
		metrics:     opts.Metrics,
	}
}

// Run consumes requests until ctx is cancelled.
func (w *AnalysisWorker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.InfoContext(ctx, "Analysis worker started", applog.FieldOperation, applog.OpStartup)
	err := consumer.ConsumeAnalysisRequests(ctx, w.HandleAnalysisRequest)
	if err != nil && ctx.Err() != nil {
		w.logger.InfoContext(ctx, "Analysis worker stopped", applog.FieldOperation, applog.OpShutdown)
		return nil
	}
	if err != nil {
		return fmt.Errorf("consume analysis requests: %w", err)
	}
	return nil
}

// HandleAnalysisRequest analyzes the sheet named by msg. Failures that a
// retry cannot fix are published as failed results and wrapped with
// amqp.ErrPermanent so the delivery is dropped; anything else is returned
// as is and the delivery is requeued.
func (w *AnalysisWorker) HandleAnalysisRequest(ctx context.Context, msg *amqp.AnalysisRequestMessage) error {
	logger := w.logger.With(applog.FieldRequestID, msg.RequestID)
	ctx = applog.NewContext(ctx, logger)
	meta := services.Meta{Label: msg.Label, RequestID: msg.RequestID}

	reader := timeoutReader{RowReader: w.opener.Open(msg.SpreadsheetID, msg.SheetName), timeout: w.readTimeout}
	rep, err := w.analyzer.AnalyzeSheet(ctx, reader, meta)
	if err != nil {
		if isPermanent(err) {
			w.observe("rejected")
			w.analyzer.PublishFailure(ctx, services.SourceSheet, meta, err)
			return fmt.Errorf("%w: %w", amqp.ErrPermanent, err)
		}
		w.observe("requeued")
		return fmt.Errorf("analyze request %s: %w", msg.RequestID, err)
	}

	w.observe("acked")
	logger.InfoContext(ctx, "Queued analysis completed", applog.NewFields().
		WithOperation(applog.OpConsume).
		WithAnalysis(rep.ID, rep.Label, rep.Source).
		WithIngest(rep.Ingest.Read, rep.Ingest.Accepted, rep.Ingest.Skipped).ToSlice()...)
	return nil
}

func (w *AnalysisWorker) observe(result string) {
	if w.metrics != nil {
		w.metrics.IncrAMQP("consume", result)
	}
}

// isPermanent reports whether err comes from the statement itself or from
// an unusable spreadsheet reference.
func isPermanent(err error) bool {
	switch {
	case errors.Is(err, sheets.ErrMissingColumn),
		errors.Is(err, sheets.ErrEmptySheet),
		errors.Is(err, memory.ErrSheetNotFound):
		return true
	default:
		return google.IsPermanent(err)
	}
}

// timeoutReader bounds a single sheet read.
type timeoutReader struct {
	sheets.RowReader
	timeout time.Duration
}

func (r timeoutReader) ReadRows(ctx context.Context) ([]core.ExpenseRecord, sheets.IngestStats, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.RowReader.ReadRows(ctx)
}
