// Package aggregator maintains the platform's sliding window of test
// results and derives aggregated reports from it: summaries, statistical
// trends, anomaly detection, quality insights and exportable renderings.
//
// Results arrive by push (the bus's results channel, direct Ingest calls)
// and by pull (periodic collection from remote executor history endpoints).
// Both paths land in the same deduplicating window; reports are computed
// over copy-on-read snapshots so generation never blocks ingestion.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/events"
	"github.com/cruciblehq/crucible/pkg/models"
)

// maxRetainedReports caps the generated reports kept for export.
const maxRetainedReports = 100

// collectTimeout bounds one history request to a pull source.
const collectTimeout = 10 * time.Second

// maxHistoryBytes caps a pull source's history response body.
const maxHistoryBytes = 16 << 20

// Service is the results aggregation engine.
type Service struct {
	cfg       *config.AggregationConfig
	window    *resultWindow
	bus       *events.Bus
	publisher *events.Publisher
	client    *http.Client

	mu          sync.Mutex
	reports     map[string]*models.AggregatedResults
	reportOrder []string
	lastPull    time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the aggregator. The bus and publisher are optional:
// without a bus only direct and pull ingestion run, without a publisher no
// aggregate.updated events are emitted.
func NewService(cfg *config.AggregationConfig, bus *events.Bus, publisher *events.Publisher) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("aggregation configuration is required")
	}
	s := &Service{
		cfg:       cfg,
		window:    newResultWindow(cfg.MaxStoredResults, time.Duration(cfg.WindowDays)*24*time.Hour),
		bus:       bus,
		publisher: publisher,
		client:    &http.Client{Timeout: collectTimeout},
		reports:   make(map[string]*models.AggregatedResults),
	}
	slog.Info("Aggregator initialized",
		"window_days", cfg.WindowDays,
		"max_stored_results", cfg.MaxStoredResults,
		"pull_sources", len(cfg.PullSources))
	return s, nil
}

// Ingest stores one result directly, reporting whether it was new. The
// window dedupes on execution id, so replays from the pull path are safe.
func (s *Service) Ingest(r *models.TestResult) bool {
	return s.window.Add(r)
}

// WindowSize reports how many results the window currently holds.
func (s *Service) WindowSize() int {
	return s.window.Len()
}

// Start launches the background loop: bus consumption, periodic pull
// collection and expiry cleanup.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	var sub *events.Subscription
	if s.bus != nil {
		sub = s.bus.Subscribe(events.ResultsChannel)
	}
	go s.run(ctx, sub)
	slog.Info("Aggregator started")
}

// Stop signals the background loop to exit and waits for it.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Aggregator stopped")
}

func (s *Service) run(ctx context.Context, sub *events.Subscription) {
	defer close(s.done)
	if sub != nil {
		defer s.bus.Unsubscribe(sub)
	}

	var eventCh <-chan events.Message
	if sub != nil {
		eventCh = sub.Events()
	}

	var pullCh <-chan time.Time
	if len(s.cfg.PullSources) > 0 && s.cfg.PullInterval > 0 {
		ticker := time.NewTicker(s.cfg.PullInterval)
		defer ticker.Stop()
		pullCh = ticker.C
	}

	cleanupInterval := s.cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			s.consume(m)
		case <-pullCh:
			s.pull(ctx)
		case <-cleanupTicker.C:
			s.cleanup()
		}
	}
}

// consume ingests one result.completed event. Events without the full
// record are headline-only and skipped; pull collection covers them.
func (s *Service) consume(m events.Message) {
	var payload events.ResultCompletedPayload
	if err := json.Unmarshal(m.Data, &payload); err != nil {
		slog.Warn("Aggregator: dropping undecodable result event", "channel", m.Channel, "error", err)
		return
	}
	if payload.Result == nil {
		return
	}
	s.window.Add(payload.Result)
}

func (s *Service) cleanup() {
	if removed := s.window.Cleanup(time.Now().UTC()); removed > 0 {
		slog.Info("Aggregator: evicted expired results", "count", removed)
	}
}

// pull runs one scheduled collection round, carrying on from the previous
// round's start time. Overlap is harmless; the window dedupes.
func (s *Service) pull(ctx context.Context) {
	s.mu.Lock()
	since := s.lastPull
	s.mu.Unlock()

	startedAt := time.Now().UTC()
	resp, err := s.Collect(ctx, &models.CollectRequest{Since: since})
	if err != nil {
		slog.Warn("Aggregator: pull collection failed", "error", err)
		return
	}

	s.mu.Lock()
	s.lastPull = startedAt
	s.mu.Unlock()

	if resp.Collected > 0 || len(resp.Errors) > 0 {
		slog.Info("Aggregator: pull collection finished",
			"collected", resp.Collected, "errors", len(resp.Errors))
	}
}

// historyPayload is the wire shape of an executor's history endpoint.
type historyPayload struct {
	Results []*models.TestResult `json:"results"`
	Count   int                  `json:"count"`
}

// Collect fans out to every configured pull source and ingests whatever
// history they return. Per-source failures are reported in the response,
// never as an error; a partial collection is still a collection.
func (s *Service) Collect(ctx context.Context, req *models.CollectRequest) (*models.CollectResponse, error) {
	var since time.Time
	if req != nil {
		since = req.Since
	}

	resp := &models.CollectResponse{BySource: make(map[string]int, len(s.cfg.PullSources))}
	if len(s.cfg.PullSources) == 0 {
		return resp, nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, source := range s.cfg.PullSources {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			added, err := s.pullSource(ctx, source, since)
			mu.Lock()
			defer mu.Unlock()
			resp.BySource[source] = added
			resp.Collected += added
			if err != nil {
				resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", source, err))
			}
		}(source)
	}
	wg.Wait()
	sort.Strings(resp.Errors)
	return resp, nil
}

func (s *Service) pullSource(ctx context.Context, source string, since time.Time) (int, error) {
	endpoint := strings.TrimRight(source, "/") + "/history"
	if !since.IsZero() {
		endpoint += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build history request: %w", err)
	}
	httpResp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return 0, fmt.Errorf("history endpoint returned status %d", httpResp.StatusCode)
	}

	var payload historyPayload
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxHistoryBytes)).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode history response: %w", err)
	}

	added := 0
	for _, r := range payload.Results {
		if s.window.Add(r) {
			added++
		}
	}
	return added, nil
}
