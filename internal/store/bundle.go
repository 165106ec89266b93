package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// Bundle is everything ingestion writes for one index.
type Bundle struct {
	Info    IndexInfo
	Chunks  []Chunk
	Vectors [][]float32
	// Tokens is optional; nil means the index has no lexical data.
	Tokens [][]string
	// Graph is optional; when set its graph is exported to hnsw.graph.
	Graph *HNSWIndex
}

func (b Bundle) validate() error {
	if b.Info.Dim <= 0 {
		return fmt.Errorf("invalid dimension %d", b.Info.Dim)
	}
	if len(b.Vectors) != len(b.Chunks) {
		return fmt.Errorf("have %d vectors for %d chunks", len(b.Vectors), len(b.Chunks))
	}
	for i, v := range b.Vectors {
		if len(v) != b.Info.Dim {
			return fmt.Errorf("vector %d: %w", i, dimensionMismatch(b.Info.Dim, len(v)))
		}
		if !finite(v) {
			return tterrors.IndexCorrupt(fmt.Sprintf("vector %d has a NaN or infinite value", i), nil)
		}
	}
	if b.Tokens != nil && len(b.Tokens) != len(b.Chunks) {
		return fmt.Errorf("have %d token rows for %d chunks", len(b.Tokens), len(b.Chunks))
	}
	return nil
}

// Save writes b into dir. Each file is written to a temporary name and
// renamed into place while holding the exclusive directory lock, so a
// concurrent Load sees either the old bundle or the new one.
func Save(ctx context.Context, dir string, b Bundle) error {
	if err := b.validate(); err != nil {
		return err
	}

	lock := newDirLock(dir)
	if err := lock.exclusive(ctx); err != nil {
		return err
	}
	defer lock.unlock()

	info := b.Info
	info.Count = len(b.Chunks)
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}

	files := map[string][]byte{}

	meta, err := encodeJSONLines(b.Chunks)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	files[MetadataFile] = meta
	files[VectorsFile] = encodeVectors(b.Vectors)

	cfg, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	files[ConfigFile] = cfg

	if b.Tokens != nil {
		tok, err := encodeJSONLines(b.Tokens)
		if err != nil {
			return fmt.Errorf("encode tokens: %w", err)
		}
		files[TokensFile] = tok
	}
	if b.Graph != nil {
		var buf bytes.Buffer
		if err := b.Graph.Export(&buf); err != nil {
			return fmt.Errorf("export graph: %w", err)
		}
		files[GraphFile] = buf.Bytes()
	}

	// config.json last: its count is what Load validates the rest against.
	order := []string{MetadataFile, VectorsFile, TokensFile, GraphFile, ConfigFile}
	for _, name := range order {
		data, ok := files[name]
		if !ok {
			if err := removeIfExists(filepath.Join(dir, name)); err != nil {
				return err
			}
			continue
		}
		if err := writeFileAtomic(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	return nil
}

func encodeJSONLines[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// encodeVectors packs rows as little-endian float32, row-major.
func encodeVectors(rows [][]float32) []byte {
	if len(rows) == 0 {
		return []byte{}
	}
	out := make([]byte, 0, len(rows)*len(rows[0])*4)
	for _, row := range rows {
		for _, x := range row {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
		}
	}
	return out
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale %s: %w", filepath.Base(path), err)
	}
	return nil
}
