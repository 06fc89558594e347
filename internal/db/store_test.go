package db

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/yourorg/lifedb/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := Config{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "test.sqlite")}
	s, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func capture(t *testing.T, s *Store, url, norm, cat string) int64 {
	t.Helper()
	id, err := s.UpsertCapture(context.Background(), CaptureInput{
		URL: url, URLNorm: norm, Domain: "example.com", Category: cat, Title: "t:" + url,
		Meta: []byte(`{"title":"t:` + url + `"}`),
	})
	if err != nil {
		t.Fatalf("upsert %s: %v", url, err)
	}
	return id
}

func TestUpsertCaptureDedup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1 := capture(t, s, "https://example.com/a?utm_source=x", "https://example.com/a", "Reading")
	it1, _, err := s.ItemWithMeta(ctx, id1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	id2 := capture(t, s, "https://EXAMPLE.com/a#top", "https://example.com/a", "Later")
	if id1 != id2 {
		t.Fatalf("expected same id, got %d and %d", id1, id2)
	}
	it2, meta, err := s.ItemWithMeta(ctx, id2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !it2.CreatedAt.Equal(it1.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", it1.CreatedAt, it2.CreatedAt)
	}
	if it2.URL != "https://EXAMPLE.com/a#top" || it2.Category != "Later" {
		t.Fatalf("item not updated: %+v", it2)
	}
	if string(meta) != `{"title":"t:https://EXAMPLE.com/a#top"}` {
		t.Fatalf("meta = %s", meta)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Items != 1 || st.Categories != 2 || st.LastCreatedAt == nil {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestUpsertCaptureMatchesOriginalURL(t *testing.T) {
	s := openTestStore(t)
	// Legacy row whose stored norm differs from today's normal form.
	id1 := capture(t, s, "https://example.com/b", "https://example.com/b?old=1", "")
	id2 := capture(t, s, "https://example.com/b", "https://example.com/b", "")
	if id1 != id2 {
		t.Fatalf("expected lookup by original url to match, got %d and %d", id1, id2)
	}
	it, _, err := s.ItemWithMeta(context.Background(), id2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if it.URLNorm != "https://example.com/b" {
		t.Fatalf("url_norm not recomputed: %q", it.URLNorm)
	}
}

func TestUpsertCaptureEmptyCategoryNotStored(t *testing.T) {
	s := openTestStore(t)
	capture(t, s, "https://example.com/c", "https://example.com/c", "")
	cats, err := s.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cats) != 0 {
		t.Fatalf("expected no categories, got %v", cats)
	}
}

func TestUpsertCaptureConcurrent(t *testing.T) {
	s := openTestStore(t)
	const n = 8
	ids := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = s.UpsertCapture(context.Background(), CaptureInput{
				URL: "https://example.com/race", URLNorm: "https://example.com/race", Domain: "example.com",
			})
		}(i)
	}
	wg.Wait()
	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("capture %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("ids differ: %v", ids)
		}
	}
	st, _ := s.Stats(context.Background())
	if st.Items != 1 {
		t.Fatalf("expected 1 item, got %d", st.Items)
	}
}

func TestRenameCategory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	capture(t, s, "https://example.com/1", "https://example.com/1", "A")
	capture(t, s, "https://example.com/2", "https://example.com/2", "A")
	capture(t, s, "https://example.com/3", "https://example.com/3", "C")

	if err := s.RenameCategory(ctx, "A", "B"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	cats, _ := s.ListCategories(ctx)
	if len(cats) != 2 || cats[0] != "B" || cats[1] != "C" {
		t.Fatalf("categories = %v", cats)
	}
	inA, _ := s.ListItems(ctx, domain.ItemFilter{Category: "A"})
	inB, _ := s.ListItems(ctx, domain.ItemFilter{Category: "B"})
	if len(inA) != 0 || len(inB) != 2 {
		t.Fatalf("A=%d B=%d", len(inA), len(inB))
	}

	// Self-rename is a no-op that keeps the row.
	if err := s.RenameCategory(ctx, "C", "C"); err != nil {
		t.Fatalf("self rename: %v", err)
	}
	cats, _ = s.ListCategories(ctx)
	if len(cats) != 2 {
		t.Fatalf("categories after self rename = %v", cats)
	}
}

func TestMergeTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := capture(t, s, "https://example.com/a", "https://example.com/a", "")
	b := capture(t, s, "https://example.com/b", "https://example.com/b", "")
	if _, err := s.SetItemTags(ctx, a, []string{"go", "golang"}); err != nil {
		t.Fatalf("tags a: %v", err)
	}
	if _, err := s.SetItemTags(ctx, b, []string{"golang"}); err != nil {
		t.Fatalf("tags b: %v", err)
	}

	if err := s.MergeTags(ctx, "golang", "go"); err != nil {
		t.Fatalf("merge: %v", err)
	}
	tags, _ := s.ListTags(ctx)
	if len(tags) != 1 || tags[0] != "go" {
		t.Fatalf("tags = %v", tags)
	}
	m, err := s.TagsFor(ctx, []int64{a, b})
	if err != nil {
		t.Fatalf("tags for: %v", err)
	}
	if len(m[a]) != 1 || m[a][0] != "go" || len(m[b]) != 1 || m[b][0] != "go" {
		t.Fatalf("associations = %v", m)
	}

	// Unknown source only ensures the destination.
	if err := s.MergeTags(ctx, "missing", "rust"); err != nil {
		t.Fatalf("merge missing: %v", err)
	}
	tags, _ = s.ListTags(ctx)
	if len(tags) != 2 {
		t.Fatalf("tags = %v", tags)
	}
	if err := s.MergeTags(ctx, "go", "go"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetItemTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := capture(t, s, "https://example.com/t", "https://example.com/t", "")

	got, err := s.SetItemTags(ctx, id, []string{" b ", "a", "b", ""})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
	if _, err := s.SetItemTags(ctx, id, []string{"c"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	tags, _ := s.ItemTags(ctx, id)
	if len(tags) != 1 || tags[0] != "c" {
		t.Fatalf("tags = %v", tags)
	}
	if _, err := s.SetItemTags(ctx, 9999, []string{"x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListItemsFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := capture(t, s, "https://example.com/golang-tips", "https://example.com/golang-tips", "dev")
	capture(t, s, "https://example.com/cooking", "https://example.com/cooking", "home")
	if _, err := s.SetItemTags(ctx, a, []string{"go"}); err != nil {
		t.Fatalf("tags: %v", err)
	}

	cases := map[string]struct {
		f    domain.ItemFilter
		want int
	}{
		"all":      {domain.ItemFilter{}, 2},
		"query":    {domain.ItemFilter{Query: "golang"}, 1},
		"category": {domain.ItemFilter{Category: "home"}, 1},
		"tag":      {domain.ItemFilter{Tag: "go"}, 1},
		"domain":   {domain.ItemFilter{Domain: "other.org"}, 0},
		"limit":    {domain.ItemFilter{Limit: 1}, 1},
	}
	for name, c := range cases {
		got, err := s.ListItems(ctx, c.f)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != c.want {
			t.Fatalf("%s: got %d items, want %d", name, len(got), c.want)
		}
	}
}

func TestImportSkipsExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	capture(t, s, "https://example.com/known", "https://example.com/known", "")

	ids, err := s.ImportItems(ctx, []ImportRow{
		{URL: "https://example.com/known", URLNorm: "https://example.com/known"},
		{URL: "https://example.com/new", URLNorm: "https://example.com/new", Category: "Imported"},
		{URL: "https://example.com/new#dup", URLNorm: "https://example.com/new"},
		{URL: "", URLNorm: ""},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 imported, got %v", ids)
	}
	items, err := s.ExportItems(ctx, 0)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(items) != 2 || items[0].ID != ids[0] {
		t.Fatalf("export order/contents wrong: %+v", items)
	}
	cats, _ := s.ListCategories(ctx)
	if len(cats) != 1 || cats[0] != "Imported" {
		t.Fatalf("categories = %v", cats)
	}
}

func TestItemWithMetaNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.ItemWithMeta(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestItemIDsAfter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var want []int64
	for _, u := range []string{"https://e.com/1", "https://e.com/2", "https://e.com/3"} {
		want = append(want, capture(t, s, u, u, ""))
	}
	page, err := s.ItemIDsAfter(ctx, 0, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 || page[0] != want[0] {
		t.Fatalf("page1 = %v", page)
	}
	page, _ = s.ItemIDsAfter(ctx, page[1], 2)
	if len(page) != 1 || page[0] != want[2] {
		t.Fatalf("page2 = %v", page)
	}
}
