package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileLog appends audit records to a JSON-lines file. It is a best-effort
// secondary trail independent of the database; callers swallow its errors.
type FileLog struct {
	path string
	mu   sync.Mutex
}

// NewFileLog builds a file-based audit sink.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

// Name identifies the file log as an audit sink.
func (f *FileLog) Name() string { return "file" }

type fileLogEntry struct {
	Time         time.Time  `json:"time"`
	ClaimRef     string     `json:"claim_ref"`
	MinAmount    string     `json:"min_amount"`
	FromAddress  *string    `json:"from_address,omitempty"`
	SinceTS      *time.Time `json:"since_ts,omitempty"`
	Verified     bool       `json:"verified"`
	Via          string     `json:"via"`
	TxHash       *string    `json:"tx_hash,omitempty"`
	TxSource     *string    `json:"tx_source,omitempty"`
	TxAmountNano *int64     `json:"tx_amount_nano,omitempty"`
	Error        *string    `json:"error,omitempty"`
	Reviewer     *string    `json:"reviewer,omitempty"`
	Note         *string    `json:"note,omitempty"`
	EvidenceRef  *string    `json:"evidence_ref,omitempty"`
}

// Record appends one JSON line.
func (f *FileLog) Record(_ context.Context, rec VerificationRecord) error {
	entry := fileLogEntry{
		Time:         time.Now().UTC(),
		ClaimRef:     rec.ClaimRef,
		MinAmount:    rec.MinAmount.String(),
		FromAddress:  rec.FromAddress,
		SinceTS:      rec.SinceTS,
		Verified:     rec.Verified,
		Via:          rec.Via,
		TxHash:       rec.TxHash,
		TxSource:     rec.TxSource,
		TxAmountNano: rec.TxAmountNano,
		Error:        rec.Error,
		Reviewer:     rec.Reviewer,
		Note:         rec.Note,
		EvidenceRef:  rec.EvidenceRef,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
