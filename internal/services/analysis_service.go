package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"sikdae/internal/amqp"
	"sikdae/internal/cache"
	"sikdae/internal/core"
	applog "sikdae/internal/log"
	"sikdae/internal/metrics"
	"sikdae/internal/sheets"
	"sikdae/internal/sheets/upload"
)

// Statement sources recorded on every report.
const (
	SourceUpload = "upload"
	SourceSheet  = "sheet"
)

var ErrReportNotFound = errors.New("report not found")

// StoredReport is one analysis kept for later retrieval.
type StoredReport struct {
	ID        string             `json:"id"`
	Label     string             `json:"label,omitempty"`
	Source    string             `json:"source"`
	Filename  string             `json:"filename,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Ingest    sheets.IngestStats `json:"ingest"`
	Report    core.Report        `json:"-"`
}

// ReportSummary is the listing view of a StoredReport.
type ReportSummary struct {
	ID           string    `json:"id"`
	Label        string    `json:"label,omitempty"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
	LunchExcess  int64     `json:"lunch_total_excess"`
	DinnerExcess int64     `json:"dinner_total_excess"`
}

// Meta carries caller supplied attributes of one analysis.
type Meta struct {
	Label     string
	RequestID string
}

// Publisher announces finished analyses.
type Publisher interface {
	PublishAnalysisCompleted(ctx context.Context, msg *amqp.AnalysisCompletedMessage) error
}

type Options struct {
	Policy    core.Policy
	CacheSize int
	CacheTTL  time.Duration
	Publisher Publisher        // optional
	Metrics   *metrics.Metrics // optional
	Now       func() time.Time // optional, defaults to time.Now
}

// AnalysisService ingests statements, runs the excess pipeline and keeps the
// resulting reports in a bounded cache.
type AnalysisService struct {
	policy    core.Policy
	reports   *cache.LRUCache[*StoredReport]
	publisher Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewAnalysisService(opts Options) (*AnalysisService, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &AnalysisService{
		policy:    opts.Policy,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		now:       now,
	}
	s.reports = cache.NewLRUCache[*StoredReport](opts.CacheSize, opts.CacheTTL,
		cache.WithClock[*StoredReport](now),
		cache.WithEvictHook[*StoredReport](func(key string, reason cache.EvictReason) {
			if s.metrics != nil {
				s.metrics.IncrCacheEviction(string(reason))
			}
		}))
	return s, nil
}

// Policy returns a copy of the rules the service applies.
func (s *AnalysisService) Policy() core.Policy {
	p := s.policy
	p.LunchCategories = append([]string(nil), p.LunchCategories...)
	p.DinnerCategories = append([]string(nil), p.DinnerCategories...)
	return p
}

// Cache exposes the report cache for periodic cleanup.
func (s *AnalysisService) Cache() cache.Cleaner {
	return s.reports
}

// AnalyzeUpload parses an uploaded xlsx or csv statement and analyzes it.
func (s *AnalysisService) AnalyzeUpload(ctx context.Context, filename string, r io.Reader, meta Meta) (*StoredReport, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	file := &upload.File{Name: filename, Data: data}
	rep, err := s.analyze(ctx, SourceUpload, file, meta)
	if rep != nil {
		rep.Filename = filename
	}
	return rep, err
}

// AnalyzeSheet reads a statement through reader and analyzes it.
func (s *AnalysisService) AnalyzeSheet(ctx context.Context, reader sheets.RowReader, meta Meta) (*StoredReport, error) {
	return s.analyze(ctx, SourceSheet, reader, meta)
}

func (s *AnalysisService) analyze(ctx context.Context, source string, reader sheets.RowReader, meta Meta) (*StoredReport, error) {
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentAnalysis)
	start := time.Now()

	records, stats, err := reader.ReadRows(ctx)
	if err != nil {
		s.observe(source, start, err)
		logger.WarnContext(ctx, "Statement ingestion failed", applog.NewFields().
			WithOperation(applog.OpIngest).
			WithAnalysis("", meta.Label, source).
			WithError(err).ToSlice()...)
		return nil, fmt.Errorf("ingest statement: %w", err)
	}

	report := core.Analyze(records, s.policy)
	rep := &StoredReport{
		ID:        uuid.NewString(),
		Label:     strings.TrimSpace(meta.Label),
		Source:    source,
		RequestID: meta.RequestID,
		CreatedAt: s.now().UTC(),
		Ingest:    stats,
		Report:    report,
	}
	s.reports.Set(rep.ID, rep)
	s.observe(source, start, nil)
	if s.metrics != nil {
		s.metrics.ObserveIngest(stats.Accepted, stats.Skipped)
		s.metrics.ObserveClass(core.Lunch.String(), len(report.Lunch.Excess), report.Lunch.TotalExcess())
		s.metrics.ObserveClass(core.Dinner.String(), len(report.Dinner.Excess), report.Dinner.TotalExcess())
	}

	logger.InfoContext(ctx, "Analysis completed", applog.NewFields().
		WithOperation(applog.OpAnalyze).
		WithAnalysis(rep.ID, rep.Label, source).
		WithIngest(stats.Read, stats.Accepted, stats.Skipped).ToSlice()...)

	s.publish(ctx, &amqp.AnalysisCompletedMessage{
		AnalysisID: rep.ID,
		RequestID:  rep.RequestID,
		Label:      rep.Label,
		Source:     source,
		Status:     amqp.StatusCompleted,
		Lunch:      amqp.SummarizeClass(report.Lunch),
		Dinner:     amqp.SummarizeClass(report.Dinner),
		Timestamp:  rep.CreatedAt,
	})
	return rep, nil
}

func (s *AnalysisService) observe(source string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveAnalysis(source, time.Since(start), err)
	}
}

// PublishFailure announces that a queued request will not produce a report.
// Requests without a RequestID are ignored.
func (s *AnalysisService) PublishFailure(ctx context.Context, source string, meta Meta, cause error) {
	if meta.RequestID == "" {
		return
	}
	s.publish(ctx, &amqp.AnalysisCompletedMessage{
		RequestID: meta.RequestID,
		Label:     meta.Label,
		Source:    source,
		Status:    amqp.StatusFailed,
		Error:     cause.Error(),
		Timestamp: s.now().UTC(),
	})
}

func (s *AnalysisService) publish(ctx context.Context, msg *amqp.AnalysisCompletedMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAnalysisCompleted(ctx, msg); err != nil {
		if s.metrics != nil {
			s.metrics.IncrAMQP("publish", "error")
		}
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to publish analysis result",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldAnalysisID, msg.AnalysisID,
			applog.FieldError, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.IncrAMQP("publish", "success")
	}
}

// Get returns a stored report, or ErrReportNotFound when it is unknown or
// expired.
func (s *AnalysisService) Get(id string) (*StoredReport, error) {
	rep, ok := s.reports.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return rep, nil
}

// List returns the live reports, newest first.
func (s *AnalysisService) List() []ReportSummary {
	reports := s.reports.Values()
	out := make([]ReportSummary, 0, len(reports))
	for _, r := range reports {
		out = append(out, ReportSummary{
			ID:           r.ID,
			Label:        r.Label,
			Source:       r.Source,
			CreatedAt:    r.CreatedAt,
			LunchExcess:  r.Report.Lunch.TotalExcess(),
			DinnerExcess: r.Report.Dinner.TotalExcess(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
