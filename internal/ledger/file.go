package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// File implements Ledger as an append-only CSV file: one row per attempt,
// keyed by nothing stronger than append order. Suitable for single-process
// deployments without a database.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

// NewFile opens (or creates) the ledger file at path for appending.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	return &File{path: path, f: f, w: csv.NewWriter(f)}, nil
}

// Close closes the underlying file.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	return l.f.Close()
}

// Append writes one attempt row and flushes it to disk.
func (l *File) Append(_ context.Context, a Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := []string{
		a.Timestamp.UTC().Format(time.RFC3339Nano),
		a.BatchID.String(),
		a.RecipientID,
		a.RecipientName,
		a.GroupTag,
		a.Body,
		string(a.Outcome),
		strconv.Itoa(a.StatusCode),
		a.ProviderMessage,
		strconv.Itoa(a.AttemptNumber),
	}
	if err := l.w.Write(record); err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// ReadAll re-reads the whole file and returns every attempt in append order.
func (l *File) ReadAll(_ context.Context) ([]Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	var attempts []Attempt
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &PersistenceError{Op: "read", Err: err}
		}
		a, err := recordToAttempt(record)
		if err != nil {
			return nil, &PersistenceError{Op: "read", Err: err}
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func recordToAttempt(record []string) (Attempt, error) {
	if len(record) != 10 {
		return Attempt{}, fmt.Errorf("expected 10 fields, got %d", len(record))
	}

	ts, err := time.Parse(time.RFC3339Nano, record[0])
	if err != nil {
		return Attempt{}, fmt.Errorf("parse timestamp: %w", err)
	}
	batchID, err := uuid.Parse(record[1])
	if err != nil {
		return Attempt{}, fmt.Errorf("parse batch id: %w", err)
	}
	statusCode, err := strconv.Atoi(record[7])
	if err != nil {
		return Attempt{}, fmt.Errorf("parse status code: %w", err)
	}
	attemptNumber, err := strconv.Atoi(record[9])
	if err != nil {
		return Attempt{}, fmt.Errorf("parse attempt number: %w", err)
	}

	return Attempt{
		Timestamp:       ts,
		BatchID:         batchID,
		RecipientID:     record[2],
		RecipientName:   record[3],
		GroupTag:        record[4],
		Body:            record[5],
		Outcome:         Outcome(record[6]),
		StatusCode:      statusCode,
		ProviderMessage: record[8],
		AttemptNumber:   attemptNumber,
	}, nil
}
