// Package pipeline captures pages into the item store and keeps the graph
// projection in step with relational truth.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/db"
	"github.com/yourorg/lifedb/internal/domain"
	"github.com/yourorg/lifedb/internal/extract"
	"github.com/yourorg/lifedb/internal/graph"
	"github.com/yourorg/lifedb/internal/models"
	"github.com/yourorg/lifedb/internal/notify"
	"github.com/yourorg/lifedb/internal/outbox"
)

// ItemStore is the relational store as the pipeline uses it.
type ItemStore interface {
	UpsertCapture(ctx context.Context, in db.CaptureInput) (int64, error)
	EnsureCategory(ctx context.Context, name string) error
	RenameCategory(ctx context.Context, oldName, newName string) error
	MergeTags(ctx context.Context, src, dst string) error
	SetItemTags(ctx context.Context, itemID int64, names []string) ([]string, error)
	TagsFor(ctx context.Context, ids []int64) (map[int64][]string, error)
	GetItems(ctx context.Context, ids []int64) ([]models.Item, error)
	ItemIDsAfter(ctx context.Context, after int64, limit int) ([]int64, error)
	ItemIDsByCategory(ctx context.Context, name string) ([]int64, error)
	ItemIDsByTag(ctx context.Context, name string) ([]int64, error)
	ListItems(ctx context.Context, f domain.ItemFilter) ([]models.Item, error)
	ItemWithMeta(ctx context.Context, id int64) (models.Item, []byte, error)
	Stats(ctx context.Context) (domain.Stats, error)
	ListCategories(ctx context.Context) ([]string, error)
	ListTags(ctx context.Context) ([]string, error)
	ImportItems(ctx context.Context, rows []db.ImportRow) ([]int64, error)
	ExportItems(ctx context.Context, limit int) ([]models.Item, error)
}

// Deps are the collaborators of a Pipeline. Store and Extractor are
// required; the rest default to no-ops.
type Deps struct {
	Store     ItemStore
	Extractor extract.Extractor
	Projector graph.Projector
	Graph     graph.Reader
	Outbox    outbox.Outbox
	Notifier  notify.Notifier
	Log       *zap.Logger
}

type Config struct {
	// ExtractTimeout bounds one metadata extraction.
	ExtractTimeout time.Duration
	// ProjectTimeout bounds the post-commit graph work of one operation.
	ProjectTimeout time.Duration
}

// ConfigFromEnv reads EXTRACT_TIMEOUT and PROJECT_TIMEOUT.
func ConfigFromEnv() Config {
	return Config{
		ExtractTimeout: envDuration("EXTRACT_TIMEOUT", 12*time.Second),
		ProjectTimeout: envDuration("PROJECT_TIMEOUT", 10*time.Second),
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

type Pipeline struct {
	store     ItemStore
	extractor extract.Extractor
	projector graph.Projector
	reader    graph.Reader
	outbox    outbox.Outbox
	notifier  notify.Notifier
	log       *zap.Logger
	cfg       Config
}

func New(d Deps, cfg Config) *Pipeline {
	p := &Pipeline{
		store:     d.Store,
		extractor: d.Extractor,
		projector: d.Projector,
		reader:    d.Graph,
		outbox:    d.Outbox,
		notifier:  d.Notifier,
		log:       d.Log,
		cfg:       cfg,
	}
	if p.projector == nil {
		p.projector = graph.Nop{}
	}
	if p.reader == nil {
		p.reader = graph.Nop{}
	}
	if p.outbox == nil {
		p.outbox = outbox.Nop{}
	}
	if p.notifier == nil {
		p.notifier = notify.Nop{}
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.cfg.ExtractTimeout <= 0 {
		p.cfg.ExtractTimeout = 12 * time.Second
	}
	if p.cfg.ProjectTimeout <= 0 {
		p.cfg.ProjectTimeout = 10 * time.Second
	}
	return p
}

// storeErr maps store failures onto the pipeline's error kinds.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, db.ErrValidation):
		return fmt.Errorf("%s: %w", op, domain.ErrInvalidInput)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
}

// detached returns a context that survives the caller's cancellation but is
// bounded by the projection timeout.
func (p *Pipeline) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ProjectTimeout)
}

func (p *Pipeline) publish(ctx context.Context, ev notify.Event) {
	nctx, cancel := p.detached(ctx)
	defer cancel()
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := p.notifier.Publish(nctx, ev); err != nil {
		p.log.Warn("publish event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}
