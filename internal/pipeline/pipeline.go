package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
	"github.com/TobiSchelling/accidentwatch/internal/collect"
	"github.com/TobiSchelling/accidentwatch/internal/config"
	"github.com/TobiSchelling/accidentwatch/internal/database"
	"github.com/TobiSchelling/accidentwatch/internal/dateextract"
	"github.com/TobiSchelling/accidentwatch/internal/dedupe"
	"github.com/TobiSchelling/accidentwatch/internal/extract"
	"github.com/TobiSchelling/accidentwatch/internal/fetch"
	"github.com/TobiSchelling/accidentwatch/internal/llm"
	"github.com/TobiSchelling/accidentwatch/internal/merge"
	"github.com/TobiSchelling/accidentwatch/internal/metrics"
	"github.com/TobiSchelling/accidentwatch/internal/summary"
)

// ErrResourceLimit is reported when near-duplicate detection refuses a date
// bucket that is too large to compare.
var ErrResourceLimit = merge.ErrResourceLimit

// ErrStopped is reported when a run was asked to stop before it finished
// ingesting.
var ErrStopped = errors.New("stopped by user")

// Run outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomePartial     = "partial"
	OutcomeSummaryOnly = "summary_only"
	OutcomeFailed      = "failed"
)

const (
	msgSuccess      = "Success"
	msgSkipped      = "Summary calculated successfully. Note: New data scraping skipped (OpenAI API key not configured)"
	msgFailedFormat = "Summary calculated successfully. Note: New data scraping failed (%s)"
	msgPartial      = "Summary calculated successfully. Note: %d errors during data scraping"
)

// Outcome is the result of one stage: a value, or the reason it failed.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful stage value.
func Ok[T any](v T) Outcome[T] { return Outcome[T]{Value: v} }

// Failed wraps a stage failure.
func Failed[T any](err error) Outcome[T] { return Outcome[T]{Err: err} }

// Failed reports whether the stage failed.
func (o Outcome[T]) Failed() bool { return o.Err != nil }

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Err     error  `json:"-"`
}

// Result holds the results of a full pipeline run.
type Result struct {
	// Completed is true whenever the summary was recomputed, even if
	// ingestion failed.
	Completed bool `json:"completed"`
	// ScrapingCompleted is true when new data was ingested without a stage
	// failure.
	ScrapingCompleted bool                     `json:"scraping_completed"`
	Summary           []accident.YearlySummary `json:"summary"`
	// Error carries the ingestion or summary failure, "" on success.
	Error   string       `json:"error,omitempty"`
	Outcome string       `json:"outcome"`
	Message string       `json:"message"`
	Steps   []StepResult `json:"steps"`

	Articles   int      `json:"articles"`
	Records    int      `json:"records"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors,omitempty"`
}

// Hooks lets the caller observe and steer a run.
type Hooks struct {
	// Progress is called with a description of the step about to run.
	Progress func(step string)
	// Stopped is polled between articles and between stages.
	Stopped func() bool
}

func (h Hooks) progress(step string) {
	log.Println(step)
	if h.Progress != nil {
		h.Progress(step)
	}
}

func (h Hooks) stopped() bool {
	return h.Stopped != nil && h.Stopped()
}

// Pipeline orchestrates collection, merging, extraction, duplicate
// resolution, storage and summary aggregation.
type Pipeline struct {
	cfg       *config.Config
	db        *database.DB
	collector *collect.Collector
	merger    *merge.Merger
	metrics   *metrics.Metrics
	now       func() time.Time

	provider    llm.Provider
	providerSet bool // given through WithProvider, possibly as nil
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithProvider replaces the provider built from the config.
func WithProvider(p llm.Provider) Option {
	return func(pl *Pipeline) {
		pl.provider = p
		pl.providerSet = true
	}
}

// WithCollector replaces the crawlers built from the config.
func WithCollector(c *collect.Collector) Option {
	return func(pl *Pipeline) { pl.collector = c }
}

// WithMetrics records stage metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithClock sets the clock that anchors the daily summary window.
func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// New creates a new pipeline.
func New(cfg *config.Config, db *database.DB, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg: cfg,
		db:  db,
		now: time.Now,
		merger: merge.New(merge.Options{
			Keywords:  cfg.Keywords,
			Threshold: cfg.Merge.SimilarityThreshold,
			MaxBucket: cfg.Merge.MaxBucket,
		}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if !p.providerSet {
		ex := cfg.Extraction
		p.provider = llm.CreateProvider(ex.Provider, ex.Model, ex.OllamaURL, ex.OpenAIModel, ex.APIKeyEnv)
	}
	if p.collector == nil {
		p.collector = NewCollector(cfg)
	}
	return p
}

// NewCollector builds the crawlers enabled in cfg around one shared client.
func NewCollector(cfg *config.Config) *collect.Collector {
	client := fetch.NewClient(fetch.Options{
		Timeout:           cfg.FetchTimeout(),
		Retries:           cfg.Fetch.Retries,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		UserAgent:         cfg.Fetch.UserAgent,
	})
	fetcher := fetch.New(client, dateextract.Default())

	var listings []collect.Crawler
	if s := cfg.Sources.NewAge; s.Enabled {
		listings = append(listings, collect.NewAge(s.URL, s.MaxPages, client, fetcher))
	}
	if s := cfg.Sources.DailyStar; s.Enabled {
		listings = append(listings, collect.DailyStar(s.URL, s.MaxPages, client, fetcher))
	}

	var alerts collect.Crawler
	if a := cfg.Sources.Alerts; a.Enabled && a.URL != "" {
		alerts = collect.NewAlertFeed(collect.AlertOptions{
			URL:    a.URL,
			Format: a.Format,
			Slack:  cfg.AlertSlack(),
			Offset: cfg.AlertOffset(),
		}, client, fetcher)
	}
	return collect.NewCollector(listings, alerts)
}

// ingestion is what the ingest stages hand on to the result.
type ingestion struct {
	articles   int
	records    int
	duplicates int
	errors     []string
}

// Run executes the full pipeline. The summary is recomputed even when
// ingestion fails, so the result always reflects whatever is stored.
func (p *Pipeline) Run(ctx context.Context, hooks Hooks) *Result {
	r := &Result{}

	ingest := p.ingest(ctx, hooks, r)
	r.Articles = ingest.Value.articles
	r.Records = ingest.Value.records
	r.Duplicates = ingest.Value.duplicates
	r.Errors = ingest.Value.errors

	hooks.progress("Step 6/6: Calculating yearly summaries...")
	p.finish(r, ingest.Err)
	return r
}

// Summarize recomputes the yearly summaries from stored records only.
func (p *Pipeline) Summarize(ctx context.Context) *Result {
	r := &Result{}
	log.Println("Calculating yearly summaries...")
	p.finish(r, nil)
	r.ScrapingCompleted = false
	return r
}

// DryRun reports what a run would work with, without touching the network.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	r := &Result{Outcome: OutcomeSuccess, Message: msgSuccess}

	known, err := p.db.KnownURLs()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
	} else {
		r.Steps = append(r.Steps, StepResult{
			Name:    "Collect",
			Summary: fmt.Sprintf("[dry-run] %d crawlers configured, %d source URLs already stored", p.collector.Len(), len(known)),
		})
	}

	latest, err := p.db.LatestPublishTime(collect.AlertSource)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Alerts", Err: err})
	} else {
		alertSummary := "[dry-run] No stored alerts, the whole alert feed would be read"
		if latest != nil {
			alertSummary = fmt.Sprintf("[dry-run] Alert feed would be read from %s", latest.Add(-p.cfg.AlertSlack()).Format(time.DateTime))
		}
		r.Steps = append(r.Steps, StepResult{Name: "Alerts", Summary: alertSummary})
	}

	extractSummary := fmt.Sprintf("[dry-run] Would extract with %s", p.providerName())
	if p.provider == nil {
		extractSummary = "[dry-run] No LLM provider configured, scraping would be skipped"
	}
	r.Steps = append(r.Steps, StepResult{Name: "Extract", Summary: extractSummary})

	stats, err := p.db.GetStats()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Summarize", Err: err})
	} else {
		r.Steps = append(r.Steps, StepResult{
			Name: "Summarize",
			Summary: fmt.Sprintf("[dry-run] Would summarise %d stored records (%d duplicates) into %d years",
				stats.TotalRecords, stats.DuplicateRecords, stats.Years),
		})
	}
	r.Completed = true
	return r
}

func (p *Pipeline) providerName() string {
	if p.provider == nil {
		return "none"
	}
	return p.provider.Name()
}

func (p *Pipeline) ingest(ctx context.Context, hooks Hooks, r *Result) Outcome[ingestion] {
	var in ingestion

	extractor := extract.New(p.provider, extract.Options{
		MaxTokens:   p.cfg.Extraction.MaxTokens,
		Concurrency: p.cfg.Extraction.Concurrency,
	})
	if !extractor.Configured() {
		log.Println("No LLM provider configured, skipping new data")
		r.Steps = append(r.Steps, StepResult{Name: "Extract", Err: extract.ErrNotConfigured})
		return Outcome[ingestion]{Value: in, Err: extract.ErrNotConfigured}
	}

	hooks.progress("Step 1/6: Collecting articles...")
	collected := runStage(p, "collect", func() (*collectResult, error) {
		return p.collect(ctx, hooks)
	})
	if collected.Failed() {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: collected.Err})
		return Outcome[ingestion]{Value: in, Err: collected.Err}
	}
	c := collected.Value
	for _, err := range c.result.Errors {
		in.errors = append(in.errors, err.Error())
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("Found %d new articles from %d sources, %d crawler errors", c.result.TotalFound, len(c.result.Sources), len(c.result.Errors)),
	})
	if hooks.stopped() {
		return Outcome[ingestion]{Value: in, Err: ErrStopped}
	}

	hooks.progress("Step 2/6: Merging and filtering articles...")
	merged := runStage(p, "merge", func() ([]accident.RawArticle, error) {
		articles, st, err := p.merger.Process(c.known, c.result.Batches...)
		p.metrics.Merged("url_duplicate", st.URLDuplicates)
		p.metrics.Merged("irrelevant", st.Irrelevant)
		p.metrics.Merged("near_duplicate", st.NearDuplicates)
		p.metrics.Merged("kept", st.Output)
		return articles, err
	})
	if merged.Failed() {
		if errors.Is(merged.Err, ErrResourceLimit) {
			log.Printf("Merge hit a resource limit, refreshing summaries only: %v", merged.Err)
		}
		r.Steps = append(r.Steps, StepResult{Name: "Merge", Err: merged.Err})
		return Outcome[ingestion]{Value: in, Err: merged.Err}
	}
	articles := merged.Value
	in.articles = len(articles)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Merge",
		Summary: fmt.Sprintf("%d articles left for extraction", len(articles)),
	})

	hooks.progress("Step 3/6: Extracting accident records...")
	extracted := runStage(p, "extract", func() ([]accident.Record, error) {
		records, st, err := extractor.ExtractAll(ctx, articles, hooks.Stopped)
		p.metrics.Blocks("record", st.Records)
		p.metrics.Blocks("malformed", st.Malformed)
		p.metrics.Blocks("dropped", st.Dropped)
		p.metrics.ExtractionFailed(st.Failed)
		if st.Failed > 0 {
			in.errors = append(in.errors, fmt.Sprintf("extraction failed for %d of %d articles", st.Failed, st.Articles))
		}
		return records, err
	})
	if extracted.Failed() {
		r.Steps = append(r.Steps, StepResult{Name: "Extract", Err: extracted.Err})
		return Outcome[ingestion]{Value: in, Err: extracted.Err}
	}
	candidates := extracted.Value
	r.Steps = append(r.Steps, StepResult{
		Name:    "Extract",
		Summary: fmt.Sprintf("Extracted %d records from %d articles", len(candidates), len(articles)),
	})

	hooks.progress("Step 4/6: Resolving duplicate records...")
	resolved := runStage(p, "dedupe", func() ([]accident.Record, error) {
		since, ok := earliestPrior(candidates)
		if !ok {
			return dedupe.Resolve(candidates, nil), nil
		}
		existing, err := p.db.ExistingRecords(&since)
		if err != nil {
			return nil, fmt.Errorf("loading existing records: %w", err)
		}
		return dedupe.Resolve(candidates, existing), nil
	})
	if resolved.Failed() {
		r.Steps = append(r.Steps, StepResult{Name: "Dedupe", Err: resolved.Err})
		return Outcome[ingestion]{Value: in, Err: resolved.Err}
	}
	records := resolved.Value
	for _, rec := range records {
		if rec.Duplicate {
			in.duplicates++
		}
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Dedupe",
		Summary: fmt.Sprintf("Flagged %d of %d records as duplicates", in.duplicates, len(records)),
	})

	hooks.progress("Step 5/6: Storing records...")
	stored := runStage(p, "store", func() (int, error) {
		return p.db.InsertRecords(records)
	})
	if stored.Failed() {
		in.duplicates = 0
		r.Steps = append(r.Steps, StepResult{Name: "Store", Err: stored.Err})
		return Outcome[ingestion]{Value: in, Err: stored.Err}
	}
	in.records = stored.Value
	p.metrics.Stored(in.records-in.duplicates, in.duplicates)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Store",
		Summary: fmt.Sprintf("Stored %d records", in.records),
	})

	if hooks.stopped() {
		return Outcome[ingestion]{Value: in, Err: ErrStopped}
	}
	return Ok(in)
}

type collectResult struct {
	known  accident.URLSet
	result *collect.Result
}

func (p *Pipeline) collect(ctx context.Context, hooks Hooks) (*collectResult, error) {
	known, err := p.db.KnownURLs()
	if err != nil {
		return nil, fmt.Errorf("loading known URLs: %w", err)
	}
	latest, err := p.db.LatestPublishTime(collect.AlertSource)
	if err != nil {
		return nil, fmt.Errorf("loading latest alert time: %w", err)
	}
	result := p.collector.Collect(ctx, collect.Request{
		Known:       known,
		LatestAlert: latest,
		Stopped:     hooks.Stopped,
	})
	for source, n := range result.Sources {
		p.metrics.Collected(source, n)
	}
	for range result.Errors {
		p.metrics.CrawlerFailed("collect")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &collectResult{known: known, result: result}, nil
}

// earliestPrior returns the earliest publish time a stored record can have
// and still be compared with one of the candidates. ok is false when no
// candidate is dated.
func earliestPrior(candidates []accident.Record) (since time.Time, ok bool) {
	for _, c := range candidates {
		day, dated := c.AccidentDate()
		if !dated {
			continue
		}
		if !ok || day.Before(since) {
			since = day
			ok = true
		}
	}
	if !ok {
		return time.Time{}, false
	}
	return since.AddDate(0, 0, -1), true
}

// finish recomputes and stores the summaries, then classifies the run.
func (p *Pipeline) finish(r *Result, ingestErr error) {
	summaries := runStage(p, "summarize", p.summarize)
	if summaries.Failed() {
		r.Steps = append(r.Steps, StepResult{Name: "Summarize", Err: summaries.Err})
		r.Completed = false
		r.Outcome = OutcomeFailed
		r.Error = fmt.Sprintf("Summary calculation failed: %v", summaries.Err)
		r.Message = r.Error
		return
	}
	r.Summary = summaries.Value
	r.Completed = true
	r.Steps = append(r.Steps, StepResult{
		Name:    "Summarize",
		Summary: fmt.Sprintf("Updated summaries for %d years", len(r.Summary)),
	})

	switch {
	case ingestErr == nil && len(r.Errors) == 0:
		r.ScrapingCompleted = true
		r.Outcome = OutcomeSuccess
		r.Message = msgSuccess
	case ingestErr == nil:
		r.ScrapingCompleted = true
		r.Outcome = OutcomePartial
		r.Message = fmt.Sprintf(msgPartial, len(r.Errors))
	case errors.Is(ingestErr, extract.ErrNotConfigured):
		r.Outcome = OutcomeSummaryOnly
		r.Error = ingestErr.Error()
		r.Message = msgSkipped
	case errors.Is(ingestErr, ErrStopped) && r.Records > 0:
		r.Outcome = OutcomePartial
		r.Error = ingestErr.Error()
		r.Message = fmt.Sprintf(msgFailedFormat, ingestErr)
	default:
		r.Outcome = OutcomeSummaryOnly
		r.Error = ingestErr.Error()
		r.Message = fmt.Sprintf(msgFailedFormat, ingestErr)
	}
	log.Println(r.Message)
}

func (p *Pipeline) summarize() ([]accident.YearlySummary, error) {
	records, err := p.db.SummaryRecords()
	if err != nil {
		return nil, fmt.Errorf("loading summary records: %w", err)
	}
	now := p.now()
	for _, s := range summary.Aggregate(records, now) {
		if err := p.db.UpsertYearlySummary(s, now); err != nil {
			return nil, err
		}
	}
	return p.db.YearlySummaries()
}

// runStage runs fn as a named stage. Errors are wrapped with the stage name
// and a panic becomes a failed outcome.
func runStage[T any](p *Pipeline, name string, fn func() (T, error)) (out Outcome[T]) {
	defer p.metrics.StageTimer(name)()
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Stage %s panicked: %v", name, rec)
			out = Failed[T](fmt.Errorf("%s: panic: %v", name, rec))
		}
	}()
	v, err := fn()
	if err != nil {
		log.Printf("Stage %s failed: %v", name, err)
		return Outcome[T]{Value: v, Err: fmt.Errorf("%s: %w", name, err)}
	}
	return Ok(v)
}
