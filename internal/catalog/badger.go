package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Key layout:
//
//	o/{objectPath}                      -> Object
//	r/{objectPath}\x00{replNum:010d}   -> Replica
const (
	objectKeyPrefix  = "o/"
	replicaKeyPrefix = "r/"
)

func objectKey(objectPath string) []byte {
	return []byte(objectKeyPrefix + objectPath)
}

func replicaPrefix(objectPath string) []byte {
	return []byte(replicaKeyPrefix + objectPath + "\x00")
}

func replicaKey(objectPath string, replNum int) []byte {
	return []byte(fmt.Sprintf("%s%s\x00%010d", replicaKeyPrefix, objectPath, replNum))
}

// BadgerConfig configures a Badger-backed catalog.
type BadgerConfig struct {
	Dir      string // ignored when InMemory is set
	InMemory bool
	Logger   zerolog.Logger
}

// Badger is a Catalog stored in BadgerDB. Badger's optimistic transactions
// provide the atomic read-modify-write each method needs; concurrent
// commits touching the same keys fail with ErrTxConflict and may be retried.
type Badger struct {
	db     *badgerdb.DB
	logger zerolog.Logger
}

// OpenBadger opens (or creates) a Badger catalog.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	logger := cfg.Logger.With().Str("component", "catalog-badger").Logger()

	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("badger catalog dir cannot be empty")
		}
		opts = badgerdb.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithLogger(badgerLogger{logger: logger})

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger catalog: %w", err)
	}
	logger.Debug().Str("dir", cfg.Dir).Bool("in_memory", cfg.InMemory).Msg("Catalog opened")
	return &Badger{db: db, logger: logger}, nil
}

// classify maps Badger errors onto catalog errors.
func (b *Badger) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionMismatch), errors.Is(err, ErrExists):
		return err
	case errors.Is(err, badgerdb.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrTxConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %v: %w", op, err, ErrUnavailable)
	}
}

func getJSON(txn *badgerdb.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badgerdb.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return txn.Set(key, data)
}

// Object implements Catalog.
func (b *Badger) Object(ctx context.Context, objectPath string) (*Object, error) {
	var obj Object
	err := b.db.View(func(txn *badgerdb.Txn) error {
		if err := getJSON(txn, objectKey(objectPath), &obj); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("object %s: %w", objectPath, ErrNotFound)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, b.classify("read object", err)
	}
	return &obj, nil
}

// Replicas implements Catalog.
func (b *Badger) Replicas(ctx context.Context, objectPath string) ([]Replica, error) {
	var out []Replica
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var obj Object
		if err := getJSON(txn, objectKey(objectPath), &obj); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("object %s: %w", objectPath, ErrNotFound)
			}
			return err
		}

		prefix := replicaPrefix(objectPath)
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r Replica
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, b.classify("list replicas", err)
	}
	sortReplicas(out)
	return out, nil
}

// ReadReplica implements Catalog.
func (b *Badger) ReadReplica(ctx context.Context, objectPath string, replNum int) (*Replica, error) {
	var r Replica
	err := b.db.View(func(txn *badgerdb.Txn) error {
		if err := getJSON(txn, replicaKey(objectPath, replNum), &r); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("replica %s#%d: %w", objectPath, replNum, ErrNotFound)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, b.classify("read replica", err)
	}
	return &r, nil
}

// WriteReplica implements Catalog.
func (b *Badger) WriteReplica(ctx context.Context, expected uint64, next Replica) error {
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		key := replicaKey(next.ObjectPath, next.ReplNum)
		var cur Replica
		if err := getJSON(txn, key, &cur); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("replica %s#%d: %w", next.ObjectPath, next.ReplNum, ErrNotFound)
			}
			return err
		}
		if cur.Version != expected {
			return fmt.Errorf("replica %s#%d at version %d, expected %d: %w",
				next.ObjectPath, next.ReplNum, cur.Version, expected, ErrVersionMismatch)
		}
		return setJSON(txn, key, next)
	})
	return b.classify("write replica", err)
}

// InsertReplica implements Catalog.
func (b *Badger) InsertReplica(ctx context.Context, owner string, r Replica) (*Replica, error) {
	if err := ValidateObjectPath(r.ObjectPath); err != nil {
		return nil, err
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		now := time.Now().UTC()

		var obj Object
		err := getJSON(txn, objectKey(r.ObjectPath), &obj)
		switch {
		case errors.Is(err, ErrNotFound):
			obj = Object{
				Path:      r.ObjectPath,
				DataID:    uuid.NewString(),
				Owner:     owner,
				CreatedAt: now,
			}
		case err != nil:
			return err
		}

		r.DataID = obj.DataID
		r.ReplNum = obj.NextReplNum
		r.Version = 1
		r.LockToken = ""
		r.HeldStatus = ""
		r.CreatedAt = now
		r.ModifiedAt = now
		obj.NextReplNum++

		if err := setJSON(txn, objectKey(r.ObjectPath), obj); err != nil {
			return err
		}
		return setJSON(txn, replicaKey(r.ObjectPath, r.ReplNum), r)
	})
	if err != nil {
		return nil, b.classify("insert replica", err)
	}
	return &r, nil
}

// DeleteReplica implements Catalog.
func (b *Badger) DeleteReplica(ctx context.Context, objectPath string, replNum int) error {
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		key := replicaKey(objectPath, replNum)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return fmt.Errorf("replica %s#%d: %w", objectPath, replNum, ErrNotFound)
			}
			return err
		}
		return txn.Delete(key)
	})
	return b.classify("delete replica", err)
}

// Objects implements Catalog.
func (b *Badger) Objects(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(objectKeyPrefix)
		for it.Seek(seek); it.ValidForPrefix(seek); it.Next() {
			p := strings.TrimPrefix(string(it.Item().Key()), objectKeyPrefix)
			if UnderPrefix(p, prefix) {
				out = append(out, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, b.classify("list objects", err)
	}
	return out, nil
}

// Close implements Catalog.
func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(strings.TrimSpace(format), args...)
}
