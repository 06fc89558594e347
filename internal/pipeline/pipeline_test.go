package pipeline

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/lifedb/internal/db"
	"github.com/yourorg/lifedb/internal/domain"
	"github.com/yourorg/lifedb/internal/graph"
	"github.com/yourorg/lifedb/internal/outbox"
	"github.com/yourorg/lifedb/internal/transfer"
)

type fakeExtractor struct {
	mu    sync.Mutex
	md    domain.Metadata
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (domain.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Metadata{}, f.err
	}
	return f.md, nil
}

type fakeProjector struct {
	mu        sync.Mutex
	err       error
	projected map[int64]graph.ItemProjection
	renames   [][2]string
	merges    [][2]string
}

func newFakeProjector() *fakeProjector {
	return &fakeProjector{projected: make(map[int64]graph.ItemProjection)}
}

func (f *fakeProjector) Project(ctx context.Context, p graph.ItemProjection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.projected[p.ID] = p
	return nil
}

func (f *fakeProjector) RenameCategory(ctx context.Context, oldName, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.renames = append(f.renames, [2]string{oldName, newName})
	return nil
}

func (f *fakeProjector) MergeTags(ctx context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.merges = append(f.merges, [2]string{src, dst})
	return nil
}

func (f *fakeProjector) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type failingStore struct {
	ItemStore
}

func (failingStore) UpsertCapture(context.Context, db.CaptureInput) (int64, error) {
	return 0, errors.New("disk I/O error")
}

type harness struct {
	p     *Pipeline
	store *db.Store
	ex    *fakeExtractor
	proj  *fakeProjector
	box   *outbox.Badger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := db.Open(context.Background(), db.Config{
		Driver:     db.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "pipeline.sqlite"),
	}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	box, err := outbox.OpenBadger("")
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	t.Cleanup(func() { _ = box.Close() })

	h := &harness{
		store: store,
		ex: &fakeExtractor{md: domain.Metadata{
			Title:       "Example page",
			Description: "About examples",
			Meta: map[string]string{
				domain.MetaOGImage:       "https://cdn.example/og.png",
				domain.MetaPublishedTime: "2024-05-01",
			},
			Headings: domain.Headings{H1: []string{"Example"}, H2: []string{}},
			Images:   []string{"/a.png"},
		}},
		proj: newFakeProjector(),
		box:  box,
	}
	h.p = New(Deps{Store: store, Extractor: h.ex, Projector: h.proj, Outbox: box}, Config{
		ExtractTimeout: time.Second,
		ProjectTimeout: time.Second,
	})
	return h
}

func TestCaptureDedupesByNormalizedURL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id1, err := h.p.Capture(ctx, "https://example.com/a?utm_source=x&b=2&a=1", "Reading")
	if err != nil {
		t.Fatalf("capture 1: %v", err)
	}
	id2, err := h.p.Capture(ctx, "  https://EXAMPLE.com:443/a?a=1&b=2#section ", "Reading")
	if err != nil {
		t.Fatalf("capture 2: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected one item, got ids %d and %d", id1, id2)
	}
	st, err := h.p.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Items != 1 || st.Categories != 1 {
		t.Fatalf("stats = %+v", st)
	}
	pr, ok := h.proj.projected[id1]
	if !ok || pr.Domain != "example.com" || pr.Category != "Reading" || pr.Title != "Example page" {
		t.Fatalf("projection = %+v (present=%v)", pr, ok)
	}
}

func TestCaptureReplacesMetadata(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id1, err := h.p.Capture(ctx, "https://example.com/r", "Reading")
	if err != nil {
		t.Fatalf("capture 1: %v", err)
	}
	h.ex.md = domain.Metadata{
		Title:    "Second",
		Meta:     map[string]string{},
		Headings: domain.Headings{H1: []string{"Again"}, H2: []string{}},
		Images:   []string{"/second.png"},
	}
	id2, err := h.p.Capture(ctx, "https://example.com/r#again", "Reading")
	if err != nil {
		t.Fatalf("capture 2: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected one item, got ids %d and %d", id1, id2)
	}
	v, err := h.p.ItemMeta(ctx, id1)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if v.Summary.Title != "Second" || v.Summary.Thumb != "" {
		t.Fatalf("summary = %+v", v.Summary)
	}
	if len(v.Summary.Images) != 1 || v.Summary.Images[0] != "/second.png" {
		t.Fatalf("summary images = %v", v.Summary.Images)
	}
	for _, old := range []string{"Example page", "/a.png", "og.png", "2024-05-01"} {
		if bytes.Contains(v.Raw, []byte(old)) {
			t.Fatalf("first extraction %q still in blob: %s", old, v.Raw)
		}
	}
	if !bytes.Contains(v.Raw, []byte(`"/second.png"`)) {
		t.Fatalf("raw blob = %s", v.Raw)
	}
}

func TestCaptureRejectsInvalidURL(t *testing.T) {
	h := newHarness(t)
	for _, raw := range []string{"", "   ", "ftp://example.com/x", "example.com/no-scheme", "http://"} {
		if _, err := h.p.Capture(context.Background(), raw, ""); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%q: expected ErrInvalidInput, got %v", raw, err)
		}
	}
	if h.ex.calls != 0 {
		t.Fatalf("extractor called %d times for invalid input", h.ex.calls)
	}
}

func TestCaptureExtractionFailurePersistsNothing(t *testing.T) {
	h := newHarness(t)
	h.ex.err = errors.New("connection refused")

	_, err := h.p.Capture(context.Background(), "https://example.com/down", "NewCategory")
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	st, _ := h.p.Stats(context.Background())
	if st.Items != 0 || st.Categories != 0 {
		t.Fatalf("partial write after extraction failure: %+v", st)
	}
	if len(h.proj.projected) != 0 {
		t.Fatalf("projected after failure: %+v", h.proj.projected)
	}
}

func TestCaptureStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	p := New(Deps{Store: failingStore{ItemStore: h.store}, Extractor: h.ex, Projector: h.proj}, Config{})
	_, err := p.Capture(context.Background(), "https://example.com/x", "")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "disk I/O error") {
		t.Fatalf("cause not wrapped: %v", err)
	}
	if len(h.proj.projected) != 0 {
		t.Fatalf("projected despite store failure")
	}
}

func TestCaptureProjectionFailureIsQueued(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.proj.setErr(errors.New("neo4j unavailable"))

	id, err := h.p.Capture(ctx, "https://example.com/p", "Later")
	if err != nil {
		t.Fatalf("capture must succeed when projection fails: %v", err)
	}
	pending, err := h.box.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ItemID != id {
		t.Fatalf("outbox = %+v", pending)
	}

	h.proj.setErr(nil)
	n, err := h.p.ReplayOutbox(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("replay = %d, %v", n, err)
	}
	if _, ok := h.proj.projected[id]; !ok {
		t.Fatalf("item not projected after replay")
	}
	pending, _ = h.box.Pending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("outbox not drained: %+v", pending)
	}
}

// requeueingProjector succeeds but records a fresh failure for the item
// first, as a concurrent capture whose projection failed would.
type requeueingProjector struct {
	*fakeProjector
	box *outbox.Badger
}

func (r requeueingProjector) Project(ctx context.Context, p graph.ItemProjection) error {
	if err := r.box.Record(ctx, p.ID, errors.New("concurrent failure")); err != nil {
		return err
	}
	return r.fakeProjector.Project(ctx, p)
}

func TestReplayOutboxKeepsNewerFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.proj.setErr(errors.New("neo4j unavailable"))
	id, err := h.p.Capture(ctx, "https://example.com/q", "")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	h.proj.setErr(nil)

	p := New(Deps{Store: h.store, Extractor: h.ex, Projector: requeueingProjector{h.proj, h.box}, Outbox: h.box}, Config{})
	n, err := p.ReplayOutbox(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("replay = %d, %v", n, err)
	}
	pending, _ := h.box.Pending(ctx, 10)
	if len(pending) != 1 || pending[0].ItemID != id || pending[0].LastError != "concurrent failure" {
		t.Fatalf("newer outbox entry was acked: %+v", pending)
	}
}

func TestConcurrentCapturesConverge(t *testing.T) {
	h := newHarness(t)
	const n = 8
	var wg sync.WaitGroup
	ids := make([]int64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = h.p.Capture(context.Background(), "https://example.com/same", "Reading")
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("capture %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("ids diverged: %v", ids)
		}
	}
	st, _ := h.p.Stats(context.Background())
	if st.Items != 1 {
		t.Fatalf("expected 1 item, got %d", st.Items)
	}
}

func TestRenameCategory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, u := range []string{"https://example.com/1", "https://example.com/2"} {
		if _, err := h.p.Capture(ctx, u, "A"); err != nil {
			t.Fatalf("capture: %v", err)
		}
	}
	if err := h.p.RenameCategory(ctx, " A ", "B"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	cats, _ := h.p.ListCategories(ctx)
	if len(cats) != 1 || cats[0] != "B" {
		t.Fatalf("categories = %v", cats)
	}
	items, _ := h.p.ListItems(ctx, domain.ItemFilter{Category: "B"})
	if len(items) != 2 {
		t.Fatalf("items in B = %d", len(items))
	}
	if len(h.proj.renames) != 1 || h.proj.renames[0] != [2]string{"A", "B"} {
		t.Fatalf("graph renames = %v", h.proj.renames)
	}
	if err := h.p.RenameCategory(ctx, "", "B"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRenameCategoryGraphFailureQueuesItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, err := h.p.Capture(ctx, "https://example.com/r", "Old")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	h.proj.setErr(errors.New("neo4j unavailable"))
	if err := h.p.RenameCategory(ctx, "Old", "New"); err != nil {
		t.Fatalf("rename must succeed when graph fails: %v", err)
	}
	pending, _ := h.box.Pending(ctx, 10)
	if len(pending) != 1 || pending[0].ItemID != id {
		t.Fatalf("outbox = %+v", pending)
	}
}

func TestMergeTags(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, _ := h.p.Capture(ctx, "https://example.com/a", "")
	b, _ := h.p.Capture(ctx, "https://example.com/b", "")
	if _, err := h.p.SetItemTags(ctx, a, []string{"go", "golang"}); err != nil {
		t.Fatalf("tags a: %v", err)
	}
	if _, err := h.p.SetItemTags(ctx, b, []string{"golang"}); err != nil {
		t.Fatalf("tags b: %v", err)
	}
	if got := h.proj.projected[a].Tags; len(got) != 2 {
		t.Fatalf("projection tags after set = %v", got)
	}

	if err := h.p.MergeTags(ctx, "golang", "go"); err != nil {
		t.Fatalf("merge: %v", err)
	}
	tags, _ := h.p.ListTags(ctx)
	if len(tags) != 1 || tags[0] != "go" {
		t.Fatalf("tags = %v", tags)
	}
	for _, id := range []int64{a, b} {
		v, err := h.p.ItemMeta(ctx, id)
		if err != nil {
			t.Fatalf("meta %d: %v", id, err)
		}
		if len(v.Summary.Tags) != 1 || v.Summary.Tags[0] != "go" {
			t.Fatalf("item %d tags = %v", id, v.Summary.Tags)
		}
	}
	for _, pair := range [][2]string{{"go", "go"}, {"", "go"}, {"go", " "}} {
		if err := h.p.MergeTags(ctx, pair[0], pair[1]); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%v: expected ErrInvalidInput, got %v", pair, err)
		}
	}
}

func TestSetItemTagsUnknownItem(t *testing.T) {
	h := newHarness(t)
	if _, err := h.p.SetItemTags(context.Background(), 404, []string{"x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestItemMetaSummary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, err := h.p.Capture(ctx, "https://example.com/m", "Reading")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	v, err := h.p.ItemMeta(ctx, id)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	s := v.Summary
	if s.Thumb != "https://cdn.example/og.png" || s.Published != "2024-05-01" || s.Title != "Example page" {
		t.Fatalf("summary = %+v", s)
	}
	if len(s.Headings.H1) != 1 || len(s.Images) != 1 || s.Tags == nil {
		t.Fatalf("summary lists = %+v", s)
	}
	if !bytes.Contains(v.Raw, []byte(`"og:image"`)) {
		t.Fatalf("raw blob = %s", v.Raw)
	}
	if _, err := h.p.ItemMeta(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestImportAndExport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.p.Capture(ctx, "https://example.com/known", ""); err != nil {
		t.Fatalf("capture: %v", err)
	}
	res, err := h.p.Import(ctx, []transfer.Record{
		{URL: "https://example.com/known?utm_campaign=z"},
		{URL: "https://example.com/fresh", Category: "Imported"},
		{URL: "  "},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 1 || res.Skipped != 2 {
		t.Fatalf("import result = %+v", res)
	}
	if _, ok := h.proj.projected[res.IDs[0]]; !ok {
		t.Fatalf("imported item not projected")
	}

	var buf bytes.Buffer
	if err := h.p.Export(ctx, &buf, "csv", 0); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "2,https://example.com/fresh,") {
		t.Fatalf("export = %q", buf.String())
	}
	if err := h.p.Export(ctx, &buf, "yaml", 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProjectedGraphDefaultsToEmpty(t *testing.T) {
	h := newHarness(t)
	g, err := h.p.ProjectedGraph(context.Background(), domain.GraphFilter{})
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if g.Nodes == nil || g.Edges == nil {
		t.Fatalf("expected empty graph, got %+v", g)
	}
}
