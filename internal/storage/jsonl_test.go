package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"poolRental/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "settlements.jsonl")
	sink := NewJsonlStorage(path)

	rental := model.Rental{RentalID: 1, ChainID: 56, PoolID: 2, Status: model.RentalStatusEnded, TotalFeesEarned: "6000"}
	swaps := []model.SwapDetail{{RentalID: 1, Sequence: 1, FeeCharged: "6000"}}
	if err := sink.PutRental(context.Background(), rental, swaps); err != nil {
		t.Fatalf("put rental: %v", err)
	}

	channel := model.Channel{ChannelID: "0xabc", Status: model.ChannelStatusSettled, Mock: true}
	if err := sink.PutChannel(context.Background(), channel); err != nil {
		t.Fatalf("put channel: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer file.Close()

	var lines []archiveLine
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line archiveLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("parse line: %v", err)
		}
		lines = append(lines, line)
	}

	if len(lines) != 2 {
		t.Fatalf("line count: got %d want 2", len(lines))
	}
	if lines[0].Kind != "rental" || lines[0].Rental.RentalID != 1 || len(lines[0].Swaps) != 1 {
		t.Fatalf("rental line mismatch: %+v", lines[0])
	}
	if lines[1].Kind != "channel" || !lines[1].Channel.Mock {
		t.Fatalf("channel line mismatch: %+v", lines[1])
	}
	if lines[0].ArchivedAt == "" {
		t.Fatal("archived_at must be set")
	}
}
