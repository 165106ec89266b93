package embed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// PersistentCache stores query embeddings on disk in badger so a restart
// does not pay for every repeated query again. Failures are logged and
// treated as misses; the cache never fails an Embed call.
type PersistentCache struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLogger routes badger's logging into slog. Info chatter is
// demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...), slog.String("component", "badger"))
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...), slog.String("component", "badger"))
}

func (l *badgerLogger) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...), slog.String("component", "badger"))
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...), slog.String("component", "badger"))
}

// OpenPersistentCache opens or creates the cache in dir. An empty dir
// opens an in-memory store.
func OpenPersistentCache(dir string, logger *slog.Logger) (*PersistentCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create embedding cache directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &PersistentCache{db: db, logger: logger}, nil
}

// Get returns the vector stored under key.
func (p *PersistentCache) Get(key string) ([]float32, bool) {
	var vec []float32
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		vec, err = decodeVector(raw)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			p.logger.Warn("embedding cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	return vec, true
}

// Put stores vec under key.
func (p *PersistentCache) Put(key string, vec []float32) {
	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), encodeVector(vec))
	})
	if err != nil {
		p.logger.Warn("embedding cache write failed", slog.String("error", err.Error()))
	}
}

// Close flushes and closes the store.
func (p *PersistentCache) Close() error {
	return p.db.Close()
}

// encodeVector packs vec as little-endian float32.
func encodeVector(vec []float32) []byte {
	out := make([]byte, 0, 4*len(vec))
	for _, x := range vec {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
	}
	return out
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, nil
}
