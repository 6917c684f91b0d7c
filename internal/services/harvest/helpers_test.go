package harvest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/models"
	"github.com/ternarybob/harvester/internal/services/browser/browsertest"
	"github.com/ternarybob/harvester/internal/services/budget"
	"github.com/ternarybob/harvester/internal/services/extractor"
	"github.com/ternarybob/harvester/internal/services/recovery"
	"github.com/ternarybob/harvester/internal/storage/recordstore"
)

const (
	storePath    = "/data/mobile_phones.json"
	interstitial = `<html><body><button alt="Continue shopping">Continue shopping</button></body></html>`
	blank        = `<html><body></body></html>`
)

func mediaURL(name string) string {
	return "https://m.media-amazon.com/images/I/" + name + "._SX679_.jpg"
}

func sourceURL(name string) string {
	return "https://shop.test/dp/" + name
}

// productPage renders a product page with an optional main image and detail bullets
func productPage(image string, bullets ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="imgTagWrapperId" class="imgTagWrapper">`)
	if image != "" {
		fmt.Fprintf(&b, `<img id="landingImage" src="%s">`, image)
	}
	b.WriteString(`</div>`)
	if len(bullets) > 0 {
		b.WriteString(`<div id="feature-bullets"><ul>`)
		for _, text := range bullets {
			fmt.Fprintf(&b, "<li><span>%s</span></li>", text)
		}
		b.WriteString(`</ul></div>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func incomplete(name string) *models.Record {
	r := models.NewListingRecord("Phone "+name, "9,999", sourceURL(name))
	r.Set(models.FieldPublished, false)
	return r
}

func complete(name string) *models.Record {
	r := models.NewListingRecord("Phone "+name, "9,999", sourceURL(name))
	r = r.Merge("<p>done</p>", []string{mediaURL(name)}, models.DefaultMaxMedia)
	r.Set(models.FieldPublished, true)
	return r
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingObserver struct {
	attempts  []models.AttemptOutcome
	decisions []models.RecordDecision
	sessions  []*models.SessionReport
}

func (o *recordingObserver) ObserveAttempt(outcome models.AttemptOutcome) {
	o.attempts = append(o.attempts, outcome)
}

func (o *recordingObserver) ObserveRecord(decision models.RecordDecision) {
	o.decisions = append(o.decisions, decision)
}

func (o *recordingObserver) ObserveSession(report *models.SessionReport) {
	o.sessions = append(o.sessions, report)
}

// spyStore wraps a FileStore and keeps a copy of every checkpoint
type spyStore struct {
	*recordstore.FileStore
	saves [][]*models.Record
}

func (s *spyStore) Save(ctx context.Context, records []*models.Record) error {
	s.saves = append(s.saves, append([]*models.Record(nil), records...))
	return s.FileStore.Save(ctx, records)
}

type memJournal struct {
	reports map[string]*models.SessionReport
}

func (j *memJournal) SaveSession(ctx context.Context, report *models.SessionReport) error {
	j.reports[report.ID] = report
	return nil
}

func (j *memJournal) GetSession(ctx context.Context, id string) (*models.SessionReport, error) {
	return j.reports[id], nil
}

func (j *memJournal) ListSessions(ctx context.Context, limit int) ([]*models.SessionReport, error) {
	return nil, nil
}

func (j *memJournal) Close() error { return nil }

type harness struct {
	fs       afero.Fs
	store    *spyStore
	surface  *browsertest.Surface
	clock    *fakeClock
	observer *recordingObserver
	loop     *AttemptLoop
	config   *common.Config
	logger   arbor.ILogger
}

func newHarness(t *testing.T, records ...*models.Record) *harness {
	t.Helper()

	config := common.NewDefaultConfig()
	logger := arbor.NewLogger()
	fs := afero.NewMemMapFs()
	store := &spyStore{FileStore: recordstore.NewFileStore(fs, storePath, logger)}
	require.NoError(t, store.FileStore.Save(context.Background(), records))

	surface := browsertest.New().OnClick(config.Recovery.InterstitialSelector, 0, blank)
	observer := &recordingObserver{}
	ex := extractor.NewExtractor(config.Extractor, config.Harvest.MaxDetailFragments, logger)
	policy := recovery.NewPolicy(config.Recovery, logger)

	return &harness{
		fs:       fs,
		store:    store,
		surface:  surface,
		clock:    newFakeClock(),
		observer: observer,
		loop:     NewAttemptLoop(surface, ex, policy, config.Harvest, observer, logger),
		config:   config,
		logger:   logger,
	}
}

func (h *harness) controller(run, grace time.Duration) *budget.Controller {
	return budget.New(run, grace, budget.WithClock(h.clock.Now))
}

func (h *harness) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{WithObserver(h.observer)}, opts...)
	return NewOrchestrator(h.store, h.loop, h.config.Harvest.MaxMedia, h.logger, opts...)
}

func (h *harness) persisted(t *testing.T) []*models.Record {
	t.Helper()
	records, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return records
}

func (h *harness) fileBytes(t *testing.T) string {
	t.Helper()
	data, err := afero.ReadFile(h.fs, storePath)
	require.NoError(t, err)
	return string(data)
}

func sourceRefs(records []*models.Record) []string {
	refs := make([]string, len(records))
	for i, r := range records {
		refs[i] = r.SourceRef()
	}
	return refs
}
