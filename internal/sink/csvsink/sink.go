// Package csvsink appends annotated records to a CSV file and derives the
// fetch ledger from that same file.
//
// The ledger is never stored separately: on Open the "PDF File" column of the
// existing output is read back, so a record is considered persisted exactly
// when its row made it to disk.
package csvsink

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-annotator/internal/paper"
)

// Header is the column layout of the output file.
var Header = []string{"Title", "Abstract", "Category", "PDF File", "Year"}

const idColumn = "PDF File"

// Sink is a crash-safe, append-only CSV writer that also answers ledger lookups.
type Sink struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	size   int64
	ledger map[string]struct{}
}

// Open loads the ledger from an existing output file, repairing a torn final row.
// The file itself is created on the first Persist.
func Open(path string, logger *zap.Logger) (*Sink, error) {
	if path == "" {
		return nil, errors.New("output path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{
		path:   path,
		logger: logger,
		ledger: make(map[string]struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	logger.Info("fetch ledger loaded",
		zap.String("path", path),
		zap.Int("documents", len(s.ledger)),
	)
	return s, nil
}

func (s *Sink) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read output %s: %w", s.path, err)
	}

	complete := completePrefix(data)
	if len(complete) != len(data) {
		s.logger.Warn("truncating torn trailing row",
			zap.String("path", s.path),
			zap.Int("discarded_bytes", len(data)-len(complete)),
		)
		if err := os.Truncate(s.path, int64(len(complete))); err != nil {
			return fmt.Errorf("truncate torn row in %s: %w", s.path, err)
		}
	}
	s.size = int64(len(complete))
	if len(complete) == 0 {
		return nil
	}

	r := csv.NewReader(bytes.NewReader(complete))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", s.path, err)
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == idColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return fmt.Errorf("output %s has no %q column", s.path, idColumn)
	}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", s.path, err)
		}
		if col < len(row) && row[col] != "" {
			s.ledger[oneLine(row[col])] = struct{}{}
		}
	}
	return nil
}

// completePrefix returns data up to and including its last newline.
// Rows never contain embedded newlines, so anything after it is a torn write.
func completePrefix(data []byte) []byte {
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return data
	}
	idx := bytes.LastIndexByte(data, '\n')
	if idx < 0 {
		return data[:0]
	}
	return data[:idx+1]
}

// Persist appends one row and records its DocumentID in the ledger.
// The row is flushed and fsynced before the ledger changes.
func (s *Sink) Persist(ctx context.Context, record paper.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persist canceled: %w", err)
	}
	id := oneLine(record.DocumentID)
	if id == "" {
		return errors.New("record has no document id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ledger[id]; ok {
		return paper.ErrAlreadyPersisted
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if s.size == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
	}
	if err := w.Write(row(record)); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	n, err := s.file.Write(buf.Bytes())
	if err == nil {
		err = s.file.Sync()
	}
	if err != nil {
		// Roll back a partial append so the file keeps ending on a row boundary.
		if terr := s.file.Truncate(s.size); terr != nil {
			s.logger.Error("rollback of partial row failed", zap.String("path", s.path), zap.Error(terr))
		}
		return fmt.Errorf("append to %s (%d bytes written): %w", s.path, n, err)
	}
	s.size += int64(n)
	s.ledger[id] = struct{}{}
	return nil
}

func (s *Sink) ensureOpen() error {
	if s.file != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output %s: %w", s.path, err)
	}
	s.file = f
	return nil
}

func row(r paper.Record) []string {
	return []string{
		oneLine(r.Title),
		oneLine(r.Abstract),
		oneLine(r.Label),
		oneLine(r.DocumentID),
		oneLine(r.Group),
	}
}

func oneLine(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// Contains reports whether documentID already has a persisted row. The ID is
// flattened the same way Persist stores it.
func (s *Sink) Contains(documentID string) bool {
	id := oneLine(documentID)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ledger[id]
	return ok
}

// Len reports the number of persisted documents.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}

// Path returns the output file path.
func (s *Sink) Path() string {
	return s.path
}

// Close releases the output file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("close output %s: %w", s.path, err)
	}
	return nil
}
