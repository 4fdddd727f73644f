package localfs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/core/ports"
)

// Storage reads topic files and writes run files below basePath. Absolute
// keys are used as given.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) path(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.basePath, key)
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// LoadTopics decodes a CAsT-style topics file: a JSON array of topics, each
// with numbered turns carrying a raw utterance.
func (s *Storage) LoadTopics(ctx context.Context, key string) ([]domain.Topic, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var topics []domain.Topic
	if err := json.NewDecoder(rc).Decode(&topics); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode topics file", err)
	}
	return topics, nil
}

// RunWriter writes "qid\tdocid\trank" lines in the order turns arrive.
type RunWriter struct {
	mu    sync.Mutex
	f     *os.File
	w     *bufio.Writer
	lines int
}

var _ ports.RunSink = (*RunWriter)(nil)

func (s *Storage) CreateRun(_ context.Context, key string) (*RunWriter, error) {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return &RunWriter{f: f, w: bufio.NewWriter(f)}, nil
}

func (r *RunWriter) WriteTurn(_ context.Context, queryID string, hits []domain.Hit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range domain.RunEntries(queryID, hits) {
		if _, err := fmt.Fprintf(r.w, "%s\t%s\t%d\n", entry.QueryID, entry.DocID, entry.Rank); err != nil {
			return fmt.Errorf("write run line: %w", err)
		}
		r.lines++
	}
	return nil
}

func (r *RunWriter) Lines() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines
}

func (r *RunWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		return fmt.Errorf("flush run file: %w", err)
	}
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close run file: %w", err)
	}
	return nil
}
