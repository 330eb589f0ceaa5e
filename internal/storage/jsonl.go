package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"poolRental/internal/model"
)

// archiveLine is one JSONL record in the archive file.
type archiveLine struct {
	Kind       string             `json:"kind"`
	ArchivedAt string             `json:"archived_at"`
	Rental     *model.Rental      `json:"rental,omitempty"`
	Swaps      []model.SwapDetail `json:"swaps,omitempty"`
	Channel    *model.Channel     `json:"channel,omitempty"`
}

// JsonlStorage appends archive records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

func (s *JsonlStorage) PutRental(_ context.Context, rental model.Rental, swaps []model.SwapDetail) error {
	return s.append(archiveLine{Kind: "rental", Rental: &rental, Swaps: swaps})
}

func (s *JsonlStorage) PutChannel(_ context.Context, channel model.Channel) error {
	return s.append(archiveLine{Kind: "channel", Channel: &channel})
}

func (s *JsonlStorage) append(line archiveLine) error {
	line.ArchivedAt = time.Now().UTC().Format(time.RFC3339Nano)

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open archive file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	encoded, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("marshal archive record: %w", err)
	}
	if _, err := writer.Write(encoded); err != nil {
		return fmt.Errorf("write archive record: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}

	return nil
}
