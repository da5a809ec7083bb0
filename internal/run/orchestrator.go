// Package run drives one ingestion run for one source: select candidates,
// process them sequentially, then persist the accepted articles in one batch.
package run

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
	"github.com/JakeFAU/realtime-news-ingest/internal/progress"
	"github.com/JakeFAU/realtime-news-ingest/internal/source"
	"github.com/JakeFAU/realtime-news-ingest/internal/stealth"
	"github.com/JakeFAU/realtime-news-ingest/internal/telemetry"
)

// DefaultTarget applies when neither the caller nor the source sets a target.
const DefaultTarget = 10

// Pipeline is the per-source collaborator set.
type Pipeline struct {
	Adapter    *source.Adapter
	Fetcher    ingest.Fetcher
	Normalizer ingest.Normalizer
}

// Archiver stores the raw HTML of inserted articles.
type Archiver interface {
	Archive(ctx context.Context, sourceID string, body []byte) (string, error)
}

// Deps wires the orchestrator. Archiver, Publisher and Events are optional.
type Deps struct {
	Pipelines map[string]Pipeline
	Persister ingest.Persister
	Archiver  Archiver
	Publisher ingest.Publisher
	// Topic receives one ArticleNotice per inserted article when Publisher is set.
	Topic           string
	Events          progress.Emitter
	IDs             ingest.IDGenerator
	Clock           ingest.Clock
	Sleeper         ingest.Sleeper
	Jitter          stealth.JitterFunc
	Tracer          trace.Tracer
	MaxReportErrors int
	Logger          *zap.Logger
}

// Orchestrator runs sources. Runs of different sources may execute
// concurrently; callers serialize runs of the same source.
type Orchestrator struct {
	pipelines map[string]Pipeline
	persister ingest.Persister
	archiver  Archiver
	publisher ingest.Publisher
	topic     string
	events    progress.Emitter
	ids       ingest.IDGenerator
	clock     ingest.Clock
	sleeper   ingest.Sleeper
	jitter    stealth.JitterFunc
	tracer    trace.Tracer
	maxErrors int
	logger    *zap.Logger
}

// New validates deps and builds an Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Persister == nil:
		return nil, ingest.Configf("orchestrator requires a persister")
	case deps.IDs == nil:
		return nil, ingest.Configf("orchestrator requires an id generator")
	case deps.Clock == nil || deps.Sleeper == nil:
		return nil, ingest.Configf("orchestrator requires a clock and sleeper")
	case deps.Publisher != nil && deps.Topic == "":
		return nil, ingest.Configf("orchestrator publisher requires a topic")
	}
	for id, p := range deps.Pipelines {
		if p.Adapter == nil || p.Fetcher == nil || p.Normalizer == nil {
			return nil, ingest.Configf("pipeline %s is incomplete", id)
		}
	}
	o := &Orchestrator{
		pipelines: deps.Pipelines,
		persister: deps.Persister,
		archiver:  deps.Archiver,
		publisher: deps.Publisher,
		topic:     deps.Topic,
		events:    deps.Events,
		ids:       deps.IDs,
		clock:     deps.Clock,
		sleeper:   deps.Sleeper,
		jitter:    deps.Jitter,
		tracer:    deps.Tracer,
		maxErrors: deps.MaxReportErrors,
		logger:    deps.Logger,
	}
	if o.events == nil {
		o.events = progress.Nop{}
	}
	if o.jitter == nil {
		o.jitter = stealth.NewRandomFromRuntime().Duration
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(telemetry.TracerName)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o, nil
}

// SourceInfo describes one runnable source.
type SourceInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DefaultCategory string `json:"default_category"`
	Target          int    `json:"target"`
	MaxTarget       int    `json:"max_target"`
	Strategies      int    `json:"strategies"`
}

// Sources lists the configured sources ordered by id.
func (o *Orchestrator) Sources() []SourceInfo {
	out := make([]SourceInfo, 0, len(o.pipelines))
	for id, p := range o.pipelines {
		out = append(out, SourceInfo{
			ID:              id,
			Name:            p.Adapter.Name,
			DefaultCategory: p.Adapter.DefaultCategory,
			Target:          p.Adapter.Target,
			MaxTarget:       p.Adapter.MaxTarget,
			Strategies:      len(p.Adapter.Strategies),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasSource reports whether sourceID is configured.
func (o *Orchestrator) HasSource(sourceID string) bool {
	_, ok := o.pipelines[sourceID]
	return ok
}

// Run executes one run of sourceID with a fresh run id. A non-positive
// target uses the source default. A report is always returned.
func (o *Orchestrator) Run(ctx context.Context, sourceID string, target int) *ingest.RunReport {
	return o.Execute(ctx, ingest.RunRequest{SourceID: sourceID, Target: target})
}

// Execute runs req. An empty RunID is generated.
func (o *Orchestrator) Execute(ctx context.Context, req ingest.RunRequest) *ingest.RunReport {
	started := o.clock.Now().UTC()
	runID := req.RunID
	if runID == "" {
		id, err := o.ids.NewID()
		if err != nil {
			report := ingest.NewRunReport("", req.SourceID, req.Target, started, o.maxErrors)
			report.Fail(fmt.Errorf("generate run id: %w", err))
			return report
		}
		runID = id
	}

	pipeline, ok := o.pipelines[req.SourceID]
	if !ok {
		report := ingest.NewRunReport(runID, req.SourceID, req.Target, started, o.maxErrors)
		report.Fail(fmt.Errorf("%w: unknown source %q", ingest.ErrConfiguration, req.SourceID))
		return report
	}
	target := resolveTarget(req.Target, pipeline.Adapter)

	ctx, span := o.tracer.Start(ctx, "ingest.run", trace.WithAttributes(
		attribute.String("ingest.run_id", runID),
		attribute.String("ingest.source", req.SourceID),
		attribute.Int("ingest.target", target),
	))
	defer span.End()

	m := &machine{
		o:        o,
		pipeline: pipeline,
		report:   ingest.NewRunReport(runID, req.SourceID, target, started, o.maxErrors),
		bodies:   make(map[string][]byte),
		logger:   o.logger.With(zap.String("run_id", runID), zap.String("source", req.SourceID)),
		delay:    stealth.DelayFromConfig(pipeline.Adapter.CandidateDelay),
	}
	m.emit(progress.Event{Stage: progress.StageRunStart, Note: fmt.Sprintf("target=%d", target)})
	m.logger.Info("run started", zap.Int("target", target))

	m.drive(ctx)

	report := m.report
	report.Elapsed = o.clock.Now().Sub(started)
	span.SetAttributes(
		attribute.Int("ingest.attempted", report.Attempted),
		attribute.Int("ingest.accepted", report.Accepted),
		attribute.Int("ingest.inserted", report.Inserted),
		attribute.Int("ingest.skipped", report.Skipped),
	)
	done := progress.Event{
		Stage:    progress.StageRunDone,
		Dur:      report.Elapsed,
		Inserted: report.Inserted,
		Skipped:  report.Skipped,
	}
	if report.Failed {
		span.SetStatus(codes.Error, "run failed")
		done.Stage = progress.StageRunError
		if len(report.Errors) > 0 {
			done.Note = report.Errors[len(report.Errors)-1]
		}
	}
	m.emit(done)
	m.logger.Info("run finished",
		zap.Int("selected", report.Selected),
		zap.Int("attempted", report.Attempted),
		zap.Int("accepted", report.Accepted),
		zap.Int("rejected", report.Rejected),
		zap.Int("failed_fetch", report.FailedFetch),
		zap.Int("failed_extraction", report.FailedExtraction),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Bool("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report
}

func resolveTarget(requested int, adapter *source.Adapter) int {
	target := requested
	if target <= 0 {
		target = adapter.Target
	}
	if target <= 0 {
		target = DefaultTarget
	}
	if adapter.MaxTarget > 0 && target > adapter.MaxTarget {
		target = adapter.MaxTarget
	}
	return target
}

type state int

const (
	stateSelecting state = iota
	stateProcessing
	stateAggregating
	stateDone
)

func (s state) String() string {
	switch s {
	case stateSelecting:
		return "selecting"
	case stateProcessing:
		return "processing"
	case stateAggregating:
		return "aggregating"
	default:
		return "done"
	}
}

// machine holds the mutable state of one run.
type machine struct {
	o          *Orchestrator
	pipeline   Pipeline
	report     *ingest.RunReport
	candidates []ingest.Candidate
	next       int
	articles   []ingest.Article
	bodies     map[string][]byte
	delay      stealth.DelayRange
	logger     *zap.Logger
}

func (m *machine) drive(ctx context.Context) {
	st := stateSelecting
	for st != stateDone {
		m.logger.Debug("run state", zap.Stringer("state", st), zap.Int("candidate", m.next))
		switch st {
		case stateSelecting:
			st = m.selecting(ctx)
		case stateProcessing:
			st = m.processing(ctx)
		case stateAggregating:
			m.aggregate(ctx)
			st = stateDone
		}
	}
}

func (m *machine) selecting(ctx context.Context) state {
	candidates, errs := m.pipeline.Adapter.Select(ctx, m.report.Target)
	for _, err := range errs {
		m.report.AddError("select: %v", err)
	}
	m.candidates = candidates
	m.report.Selected = len(candidates)
	if len(candidates) == 0 {
		m.report.AddError("no candidates selected")
		return stateAggregating
	}
	return stateProcessing
}

func (m *machine) processing(ctx context.Context) state {
	if err := ctx.Err(); err != nil {
		return stateAggregating
	}
	candidate := m.candidates[m.next]
	m.next++
	m.process(ctx, candidate)

	if m.next >= len(m.candidates) || m.report.Accepted >= m.report.Target {
		return stateAggregating
	}
	wait := m.delay.Draw(m.o.jitter)
	if err := m.o.sleeper.Sleep(ctx, wait); err != nil {
		return stateAggregating
	}
	return stateProcessing
}

// process runs fetch, classify, extract and normalize for one candidate.
// Failures are counted and recorded; none of them abort the run.
func (m *machine) process(ctx context.Context, c ingest.Candidate) {
	ctx, span := m.o.tracer.Start(ctx, "ingest.candidate", trace.WithAttributes(
		attribute.String("ingest.url", c.URL),
		attribute.String("ingest.strategy", c.Strategy),
	))
	defer span.End()

	start := m.o.clock.Now()
	m.report.Attempted++
	outcome, size := m.evaluate(ctx, c)
	span.SetAttributes(attribute.String("ingest.outcome", string(outcome)))
	m.emit(progress.Event{
		Stage:   progress.StageCandidateDone,
		URL:     c.URL,
		Outcome: outcome,
		Bytes:   int64(size),
		Dur:     m.o.clock.Now().Sub(start),
	})
}

func (m *machine) evaluate(ctx context.Context, c ingest.Candidate) (progress.Outcome, int) {
	adapter := m.pipeline.Adapter
	res, err := m.pipeline.Fetcher.Fetch(ctx, c.URL)
	if err == nil && !res.OK() {
		err = res.Err
		if err == nil {
			err = fmt.Errorf("status %d", res.StatusCode)
		}
	}
	if err != nil {
		m.report.FailedFetch++
		m.record(ingest.NewCandidateError(ingest.ErrTransport, c.URL, err))
		return progress.OutcomeFailedFetch, 0
	}

	docURL := res.FinalURL
	if docURL == "" {
		docURL = c.URL
	}
	doc, err := ingest.ParseDocument(docURL, res.Body)
	if err != nil {
		m.report.FailedExtraction++
		m.record(ingest.NewCandidateError(ingest.ErrExtraction, c.URL, err))
		return progress.OutcomeFailedExtraction, len(res.Body)
	}

	verdict := adapter.Classifier.Classify(doc)
	if !verdict.Accepted {
		m.report.Rejected++
		m.logger.Info("candidate rejected",
			zap.String("url", c.URL),
			zap.String("signal", string(verdict.Signal)),
			zap.String("detail", verdict.Detail),
		)
		return progress.OutcomeRejected, len(res.Body)
	}

	fields, err := adapter.Extractor.Extract(doc)
	if err != nil {
		m.report.FailedExtraction++
		m.record(ingest.NewCandidateError(ingest.ErrExtraction, c.URL, err))
		return progress.OutcomeFailedExtraction, len(res.Body)
	}

	article := m.pipeline.Normalizer.Normalize(adapter.Name, fields, c)
	m.articles = append(m.articles, article)
	if article.URL != "" {
		m.bodies[article.URL] = res.Body
	}
	m.report.Accepted++
	m.logger.Debug("candidate accepted",
		zap.String("url", c.URL),
		zap.String("signal", string(verdict.Signal)),
		zap.Any("rules", fields.Rules),
	)
	return progress.OutcomeAccepted, len(res.Body)
}

func (m *machine) record(err *ingest.CandidateError) {
	m.logger.Warn("candidate dropped", zap.String("url", err.URL), zap.Error(err))
	m.report.AddError("%v", err)
}

func (m *machine) aggregate(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		m.report.Fail(fmt.Errorf("run canceled, persistence skipped: %w", err))
		return
	}
	if len(m.articles) == 0 {
		if m.report.Attempted > 0 {
			m.report.AddError("no articles accepted from %d attempted candidates", m.report.Attempted)
		}
		return
	}

	result, err := m.o.persister.Persist(ctx, m.articles)
	if err != nil {
		if !errors.Is(err, ingest.ErrPersistence) {
			err = fmt.Errorf("%w: %w", ingest.ErrPersistence, err)
		}
		m.logger.Error("persist failed", zap.Int("articles", len(m.articles)), zap.Error(err))
		m.report.Fail(err)
		return
	}
	m.report.Inserted = result.Inserted
	m.report.Skipped = result.Skipped
	m.report.InsertedIDs = result.InsertedIDs

	m.afterPersist(ctx, result)
}

// afterPersist archives and announces inserted articles. Both are best effort.
func (m *machine) afterPersist(ctx context.Context, result ingest.PersistResult) {
	if m.o.archiver == nil && m.o.publisher == nil {
		return
	}
	inserted := insertedArticles(m.articles, result.Rows)
	for _, a := range inserted {
		if m.o.archiver != nil {
			if body, ok := m.bodies[a.URL]; ok {
				uri, err := m.o.archiver.Archive(ctx, m.report.SourceID, body)
				if err != nil {
					m.logger.Warn("archive failed", zap.String("article_id", a.ID), zap.Error(err))
				} else {
					m.logger.Debug("archived", zap.String("article_id", a.ID), zap.String("uri", uri))
				}
			}
		}
		if m.o.publisher != nil {
			notice := ingest.ArticleNotice{
				ArticleID:  a.ID,
				URL:        a.URL,
				Source:     a.Source,
				Title:      a.Title,
				InsertedAt: a.InsertedAt,
			}
			if _, err := m.o.publisher.Publish(ctx, m.o.topic, notice); err != nil {
				m.logger.Warn("publish failed", zap.String("article_id", a.ID), zap.Error(err))
			}
		}
	}
}

// insertedArticles pairs inserted rows with the articles they came from.
// Rows without a url claim the url-less articles in order.
func insertedArticles(articles []ingest.Article, rows []ingest.InsertedRow) []ingest.Article {
	byURL := make(map[string]ingest.Article, len(articles))
	var nulls []ingest.Article
	for _, a := range articles {
		if a.URL == "" {
			nulls = append(nulls, a)
			continue
		}
		if _, ok := byURL[a.URL]; !ok {
			byURL[a.URL] = a
		}
	}
	out := make([]ingest.Article, 0, len(rows))
	for _, row := range rows {
		var (
			a  ingest.Article
			ok bool
		)
		if row.URL == "" {
			if len(nulls) > 0 {
				a, nulls, ok = nulls[0], nulls[1:], true
			}
		} else {
			a, ok = byURL[row.URL]
		}
		if !ok {
			continue
		}
		a.ID = row.ID
		out = append(out, a)
	}
	return out
}

func (m *machine) emit(evt progress.Event) {
	evt.RunID = m.report.RunID
	evt.SourceID = m.report.SourceID
	evt.TS = m.o.clock.Now().UTC()
	m.o.events.Emit(evt)
}
