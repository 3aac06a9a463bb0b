package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFileLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := NewFileLog(path)

	hash := "tx1"
	since := time.Now().UTC()
	first := VerificationRecord{
		ClaimRef:  "c1",
		MinAmount: decimal.NewFromFloat(1.5),
		SinceTS:   &since,
		Verified:  true,
		Via:       "tonapi",
		TxHash:    &hash,
	}
	second := VerificationRecord{ClaimRef: "c2", MinAmount: decimal.Zero, Via: "screenshot"}

	if err := log.Record(context.Background(), first); err != nil {
		t.Fatalf("first record should succeed: %v", err)
	}
	if err := log.Record(context.Background(), second); err != nil {
		t.Fatalf("second record should succeed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	var lines []fileLogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry fileLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("each line should be valid JSON: %v", err)
		}
		lines = append(lines, entry)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].ClaimRef != "c1" || !lines[0].Verified || lines[0].TxHash == nil {
		t.Fatalf("first entry mangled: %+v", lines[0])
	}
	if lines[1].ClaimRef != "c2" || lines[1].Via != "screenshot" {
		t.Fatalf("second entry mangled: %+v", lines[1])
	}
}

func TestFileLogOpenFailure(t *testing.T) {
	log := NewFileLog(filepath.Join(t.TempDir(), "missing", "audit.log"))
	if err := log.Record(context.Background(), VerificationRecord{ClaimRef: "c1", MinAmount: decimal.Zero}); err == nil {
		t.Fatal("unwritable path should return an error")
	}
}
