// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists audit events as a tamper-evident JSON-lines file.
//
// # Description
//
// Each record carries the hash of the previous record, creating a chain.
// If any record is modified or removed, VerifyChain reports the index where
// the chain breaks.
//
//	record N-1                 record N
//	┌───────────────────┐      ┌───────────────────┐
//	│ seq, event, ...   │      │ seq, event, ...   │
//	│ entry_hash ───────┼─────►│ prev_hash         │
//	└───────────────────┘      │ entry_hash        │
//	                           └───────────────────┘
//
// # Limitations
//
//   - Log rotation must be handled externally; rotation starts a new chain.
//   - Writes are synchronous.
package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/cairn/pkg/extensions"
)

// GenesisHash is the prev_hash of the first record in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// fileMode restricts the audit file to its owner.
const fileMode = 0600

// Record is one line of the audit file.
type Record struct {
	Sequence     int64           `json:"seq"`
	Timestamp    string          `json:"ts"`
	EventType    string          `json:"event"`
	UserID       string          `json:"user_id,omitempty"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Outcome      string          `json:"outcome,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	PrevHash     string          `json:"prev_hash"`
	EntryHash    string          `json:"entry_hash,omitempty"`
}

// ChainLogger implements extensions.AuditLogger over an append-only file.
//
// # Thread Safety
//
// All methods are safe for concurrent use; writes are serialized.
type ChainLogger struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	sequence int64
	prevHash string
}

var _ extensions.AuditLogger = (*ChainLogger)(nil)

// Open opens or creates the audit file and continues its chain.
//
// # Inputs
//
//   - path: File path. Parent directories are created.
//
// # Outputs
//
//   - *ChainLogger: Ready to use. Call Close when done.
//   - error: Non-nil if the file cannot be opened or read.
func Open(path string) (*ChainLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	l := &ChainLogger{file: file, path: path, prevHash: GenesisHash}
	if err := l.resume(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return l, nil
}

// resume reads the existing file to find the last sequence and hash.
func (l *ChainLogger) resume() error {
	return scan(l.path, func(r Record) error {
		l.sequence = r.Sequence
		l.prevHash = r.EntryHash
		return nil
	})
}

// Log appends event to the chain.
func (l *ChainLogger) Log(ctx context.Context, event extensions.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var meta json.RawMessage
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		meta = raw
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return errors.New("audit log is closed")
	}

	r := Record{
		Sequence:     l.sequence + 1,
		Timestamp:    ts.UTC().Format(time.RFC3339Nano),
		EventType:    event.EventType,
		UserID:       event.UserID,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		Outcome:      event.Outcome,
		Metadata:     meta,
		PrevHash:     l.prevHash,
	}
	hash, err := recordHash(r)
	if err != nil {
		return err
	}
	r.EntryHash = hash

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	l.sequence = r.Sequence
	l.prevHash = r.EntryHash
	return nil
}

// Flush syncs the file to disk.
func (l *ChainLogger) Flush(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Sync()
}

// Close syncs and closes the file. Safe to call twice.
func (l *ChainLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := errors.Join(l.file.Sync(), l.file.Close())
	l.file = nil
	return err
}

// VerifyChain walks the file at path and checks every link.
//
// # Outputs
//
//   - count: Records verified before the first break (all of them if valid).
//   - breakIndex: Zero-based index of the first bad record, or -1.
//   - err: Non-nil if the file cannot be read or a line is not a record.
func VerifyChain(path string) (count int64, breakIndex int64, err error) {
	prev := GenesisHash
	breakIndex = -1
	errStop := errors.New("stop")
	err = scan(path, func(r Record) error {
		want, herr := recordHash(r)
		if herr != nil {
			return herr
		}
		if r.PrevHash != prev || r.EntryHash != want {
			breakIndex = count
			return errStop
		}
		prev = r.EntryHash
		count++
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	return count, breakIndex, err
}

func scan(path string, fn func(Record) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return fmt.Errorf("audit log line %d: %w", line, err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	return nil
}

// recordHash hashes the record with EntryHash cleared. Field order is fixed
// by the struct, and Metadata is kept as the exact bytes written.
func recordHash(r Record) (string, error) {
	r.EntryHash = ""
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("hash audit record: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
