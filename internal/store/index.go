package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
	"github.com/bjornefisk/StudyTutor/internal/logging"
)

const conditionLexicalBuild = "lexical_build_failed"

// Vector backend names accepted by LoadOptions.VectorBackend.
const (
	VectorFlat = "flat"
	VectorHNSW = "hnsw"
)

// LoadOptions controls how a bundle is turned into an Index.
type LoadOptions struct {
	// VectorBackend is "flat" (default) or "hnsw".
	VectorBackend string
	HNSW          HNSWConfig
	// Lexical builds the ranker when tokens.jsonl exists. Nil leaves the
	// index without a lexical capability.
	Lexical LexicalBuilder
	Logger  *slog.Logger
	// Notifier reports a failed lexical build once across reloads. Nil
	// warns on every Load.
	Notifier *logging.Notifier
}

// Index is a loaded, read-only corpus index. It is safe for concurrent
// use; nothing mutates it after Load returns.
type Index struct {
	dir      string
	info     IndexInfo
	chunks   []Chunk
	vectors  VectorIndex
	tokens   [][]string
	lexical  LexicalRanker
	loadedAt time.Time
}

// Load reads the bundle in dir.
//
// Missing metadata, vectors or config yield ErrIndexMissing. Undecodable
// files and disagreeing lengths yield ErrIndexCorrupt.
func Load(ctx context.Context, dir string, opts LoadOptions) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, tterrors.IndexMissing(dir, err)
	}
	for _, name := range []string{MetadataFile, VectorsFile, ConfigFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return nil, tterrors.IndexMissing(filepath.Join(dir, name), err)
		}
	}

	lock := newDirLock(dir)
	if err := lock.shared(ctx); err != nil {
		return nil, err
	}
	defer lock.unlock()

	start := time.Now()

	info, err := readInfo(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}
	chunks, err := readJSONLines[Chunk](filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, err
	}
	vectors, err := readVectors(filepath.Join(dir, VectorsFile), info.Dim)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, tterrors.IndexCorrupt(
			fmt.Sprintf("metadata has %d chunks but vectors has %d rows", len(chunks), len(vectors)), nil)
	}
	if info.Count != 0 && info.Count != len(chunks) {
		return nil, tterrors.IndexCorrupt(
			fmt.Sprintf("config count %d does not match %d chunks", info.Count, len(chunks)), nil)
	}

	tokens, err := readTokens(filepath.Join(dir, TokensFile))
	if err != nil {
		return nil, err
	}
	if tokens != nil && len(tokens) != len(chunks) {
		return nil, tterrors.IndexCorrupt(
			fmt.Sprintf("tokens has %d rows but metadata has %d chunks", len(tokens), len(chunks)), nil)
	}

	vi, err := buildVectorIndex(dir, info.Dim, vectors, opts, logger)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		dir:      dir,
		info:     info,
		chunks:   chunks,
		vectors:  vi,
		tokens:   tokens,
		loadedAt: time.Now(),
	}

	if tokens != nil && opts.Lexical != nil {
		ranker, err := opts.Lexical(ctx, tokens)
		if err != nil {
			// The capability was probed at startup, so a build failure here
			// is about this corpus. Dense search still works.
			notifier := opts.Notifier
			if notifier == nil {
				notifier = logging.NewNotifier(logger)
			}
			logger.Debug("lexical ranker build failed", slog.String("dir", dir), slog.String("error", err.Error()))
			notifier.Warn(conditionLexicalBuild, "lexical ranker build failed, index is vector-only",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
		} else {
			idx.lexical = ranker
		}
	}

	logger.Info("index loaded",
		slog.String("dir", dir),
		slog.Int("chunks", len(chunks)),
		slog.Int("dim", info.Dim),
		slog.String("vector_backend", vi.Backend()),
		slog.Bool("lexical", idx.lexical != nil),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return idx, nil
}

func buildVectorIndex(dir string, dim int, vectors [][]float32, opts LoadOptions, logger *slog.Logger) (VectorIndex, error) {
	switch opts.VectorBackend {
	case "", VectorFlat:
		vi, err := NewFlatIndex(dim, vectors)
		if err != nil {
			return nil, tterrors.IndexCorrupt("build vector index", err)
		}
		return vi, nil
	case VectorHNSW:
		if vi, ok := importGraph(dir, dim, len(vectors), opts.HNSW, logger); ok {
			return vi, nil
		}
		vi, err := NewHNSWIndex(dim, vectors, opts.HNSW)
		if err != nil {
			return nil, tterrors.IndexCorrupt("build hnsw index", err)
		}
		return vi, nil
	default:
		return nil, tterrors.ValidationError(fmt.Sprintf("unknown vector backend %q", opts.VectorBackend), nil)
	}
}

// importGraph loads hnsw.graph when it exists and matches the corpus size.
func importGraph(dir string, dim, count int, cfg HNSWConfig, logger *slog.Logger) (*HNSWIndex, bool) {
	f, err := os.Open(filepath.Join(dir, GraphFile))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	vi, err := ImportHNSWIndex(dim, f, cfg)
	if err != nil {
		logger.Warn("stored hnsw graph unreadable, rebuilding", slog.String("error", err.Error()))
		return nil, false
	}
	if vi.Len() != count {
		logger.Warn("stored hnsw graph is stale, rebuilding",
			slog.Int("graph_nodes", vi.Len()),
			slog.Int("chunks", count))
		return nil, false
	}
	return vi, true
}

func readInfo(path string) (IndexInfo, error) {
	var info IndexInfo
	data, err := os.ReadFile(path)
	if err != nil {
		return info, tterrors.IndexMissing(path, err)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, tterrors.IndexCorrupt("decode "+filepath.Base(path), err)
	}
	if info.Dim <= 0 {
		return info, tterrors.IndexCorrupt(fmt.Sprintf("invalid dimension %d in %s", info.Dim, filepath.Base(path)), nil)
	}
	return info, nil
}

func readJSONLines[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tterrors.IndexMissing(path, err)
	}
	defer f.Close()

	var rows []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(b, &row); err != nil {
			return nil, tterrors.IndexCorrupt(
				fmt.Sprintf("decode %s line %d", filepath.Base(path), line), err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, tterrors.IndexCorrupt("read "+filepath.Base(path), err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// readTokens returns nil when tokens.jsonl does not exist.
func readTokens(path string) ([][]string, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return readJSONLines[[]string](path)
}

func readVectors(path string, dim int) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tterrors.IndexMissing(path, err)
	}
	rowBytes := 4 * dim
	if len(data)%rowBytes != 0 {
		return nil, tterrors.IndexCorrupt(
			fmt.Sprintf("%s has %d bytes, not a multiple of %d", filepath.Base(path), len(data), rowBytes), nil)
	}
	n := len(data) / rowBytes
	rows := make([][]float32, n)
	for i := range rows {
		row := make([]float32, dim)
		off := i * rowBytes
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+4*j:]))
		}
		if !finite(row) {
			return nil, tterrors.IndexCorrupt(
				fmt.Sprintf("%s row %d has a NaN or infinite value", filepath.Base(path), i), nil)
		}
		rows[i] = row
	}
	return rows, nil
}

// NearestByVector returns the k nearest chunks ordered by ascending
// distance, ties by ascending ordinal.
func (x *Index) NearestByVector(vec []float32, k int) ([]Neighbor, error) {
	return x.vectors.Search(vec, k)
}

// MetadataAt returns the chunk at ordinal.
func (x *Index) MetadataAt(ordinal int) (Chunk, error) {
	if ordinal < 0 || ordinal >= len(x.chunks) {
		return Chunk{}, tterrors.ValidationError(
			fmt.Sprintf("ordinal %d out of range [0,%d)", ordinal, len(x.chunks)), nil)
	}
	return x.chunks[ordinal], nil
}

// Len returns the number of chunks.
func (x *Index) Len() int { return len(x.chunks) }

// Info returns the bundle configuration.
func (x *Index) Info() IndexInfo { return x.info }

// Dir returns the directory the index was loaded from.
func (x *Index) Dir() string { return x.dir }

// LoadedAt returns when Load finished.
func (x *Index) LoadedAt() time.Time { return x.loadedAt }

// VectorBackend names the vector index implementation.
func (x *Index) VectorBackend() string { return x.vectors.Backend() }

// Lexical returns the lexical ranker, or nil when the index has no
// tokenized corpus or no lexical backend.
func (x *Index) Lexical() LexicalRanker { return x.lexical }

// HasTokens reports whether the bundle carried a tokenized corpus.
func (x *Index) HasTokens() bool { return x.tokens != nil }

// Close releases the lexical ranker. The index must not be used afterwards.
func (x *Index) Close() error {
	if x.lexical != nil {
		return x.lexical.Close()
	}
	return nil
}
