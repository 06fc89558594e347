// Package outbox remembers items whose graph projection failed so they can be
// projected again later from relational truth.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Entry is one pending re-projection.
type Entry struct {
	ItemID    int64     `json:"item_id"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outbox is a durable set of item ids keyed by id; recording an id twice
// bumps its attempt counter.
type Outbox interface {
	Record(ctx context.Context, itemID int64, cause error) error
	Pending(ctx context.Context, limit int) ([]Entry, error)
	Ack(ctx context.Context, entries ...Entry) error
	Close() error
}

const keyPrefix = "projection/"

func key(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, id))
}

func idFromKey(k []byte) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(string(k), keyPrefix), 10, 64)
}

// Badger stores entries in a badger KV directory.
type Badger struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadger opens (or creates) the outbox at dir. An empty dir keeps the
// outbox in memory.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return &Badger{db: db, now: time.Now}, nil
}

// DirFromEnv returns OUTBOX_DIR, defaulting to /var/lifedb/outbox.
func DirFromEnv() string {
	if v, ok := os.LookupEnv("OUTBOX_DIR"); ok {
		return v
	}
	return "/var/lifedb/outbox"
}

func (b *Badger) Record(_ context.Context, itemID int64, cause error) error {
	k := key(itemID)
	return b.db.Update(func(txn *badger.Txn) error {
		e := Entry{ItemID: itemID}
		item, err := txn.Get(k)
		switch {
		case err == nil:
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		e.Attempts++
		e.UpdatedAt = b.now().UTC()
		if cause != nil {
			e.LastError = cause.Error()
		}
		v, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return txn.Set(k, v)
	})
}

// Pending returns up to limit entries in ascending item id order.
func (b *Badger) Pending(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid() && len(out) < limit; it.Next() {
			item := it.Item()
			var e Entry
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return err
			}
			if e.ItemID == 0 {
				id, err := idFromKey(item.KeyCopy(nil))
				if err != nil {
					return err
				}
				e.ItemID = id
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Ack removes entries as returned by Pending. An entry recorded again since
// then is left in place for the next replay.
func (b *Badger) Ack(_ context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			k := key(e.ItemID)
			item, err := txn.Get(k)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var cur Entry
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &cur) }); err != nil {
				return err
			}
			if cur.Attempts != e.Attempts || !cur.UpdatedAt.Equal(e.UpdatedAt) {
				continue
			}
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) Close() error { return b.db.Close() }

// Nop drops everything. Used by tools that never drain the outbox.
type Nop struct{}

func (Nop) Record(context.Context, int64, error) error    { return nil }
func (Nop) Pending(context.Context, int) ([]Entry, error) { return nil, nil }
func (Nop) Ack(context.Context, ...Entry) error           { return nil }
func (Nop) Close() error                                  { return nil }
