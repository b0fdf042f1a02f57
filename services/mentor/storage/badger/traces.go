// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
)

var (
	// ErrTraceConflict is returned when a trace ID is appended twice
	// with different content. The trace log is append-only; records
	// are never rewritten.
	ErrTraceConflict = errors.New("trace id already exists with different content")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// TraceStore persists interaction traces. Traces are append-only:
// appends are idempotent on trace ID, and existing records are never
// mutated.
type TraceStore struct {
	db *DB
}

// NewTraceStore creates a trace store backed by db.
func NewTraceStore(db *DB) *TraceStore {
	return &TraceStore{db: db}
}

// Append persists a trace and returns its assigned sequence number.
//
// Sequence numbers are assigned here, monotonically per session, under
// the write transaction. Re-appending a trace ID with identical content
// returns the previously assigned sequence number without writing;
// re-appending with different content fails with ErrTraceConflict.
func (s *TraceStore) Append(ctx context.Context, trace *datatypes.InteractionTrace) (int, error) {
	if err := trace.Validate(); err != nil {
		return 0, fmt.Errorf("invalid trace: %w", err)
	}

	var seq int
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		// Idempotency check via the trace ID index.
		item, err := txn.Get(traceIndexKey(trace.TraceID))
		switch {
		case err == nil:
			var existingKey []byte
			if err := item.Value(func(v []byte) error {
				existingKey = append([]byte(nil), v...)
				return nil
			}); err != nil {
				return fmt.Errorf("read trace index: %w", err)
			}
			stored, storedSeq, err := readTraceAt(txn, existingKey)
			if err != nil {
				return err
			}
			incoming := *trace
			incoming.Seq = stored.Seq
			if !sameTrace(stored, &incoming) {
				return ErrTraceConflict
			}
			seq = storedSeq
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			// First append for this trace ID.
		default:
			return fmt.Errorf("check trace index: %w", err)
		}

		next, err := nextSeq(txn, trace.SessionID)
		if err != nil {
			return err
		}
		record := *trace
		record.Seq = next

		data, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("marshal trace: %w", err)
		}
		key := traceKey(trace.SessionID, next)
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("write trace: %w", err)
		}
		if err := txn.Set(traceIndexKey(trace.TraceID), key); err != nil {
			return fmt.Errorf("write trace index: %w", err)
		}
		seq = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	trace.Seq = seq
	return seq, nil
}

// LoadSequence returns every trace for a session in sequence order.
// A session with no traces yields an empty slice, not an error.
func (s *TraceStore) LoadSequence(ctx context.Context, sessionID string) ([]*datatypes.InteractionTrace, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	var traces []*datatypes.InteractionTrace
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = tracePrefix(sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var trace datatypes.InteractionTrace
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &trace)
			}); err != nil {
				return fmt.Errorf("decode trace at %s: %w", it.Item().Key(), err)
			}
			traces = append(traces, &trace)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return traces, nil
}

// LoadTail returns the last n traces for a session in sequence order.
func (s *TraceStore) LoadTail(ctx context.Context, sessionID string, n int) ([]*datatypes.InteractionTrace, error) {
	traces, err := s.LoadSequence(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(traces) > n {
		traces = traces[len(traces)-n:]
	}
	return traces, nil
}

// nextSeq finds the highest existing sequence number for a session by
// scanning the trace prefix in reverse, and returns it plus one.
func nextSeq(txn *badger.Txn, sessionID string) (int, error) {
	prefix := tracePrefix(sessionID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = true
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	// Reverse iteration needs a seek key past the largest possible
	// entry in the prefix range.
	seek := append(append([]byte(nil), prefix...), 0xFF)
	it.Seek(seek)
	if !it.ValidForPrefix(prefix) {
		return 1, nil
	}
	key := it.Item().Key()
	var last int
	if _, err := fmt.Sscanf(string(key[len(prefix):]), "%d", &last); err != nil {
		return 0, fmt.Errorf("parse sequence from key %s: %w", key, err)
	}
	return last + 1, nil
}

func readTraceAt(txn *badger.Txn, key []byte) (*datatypes.InteractionTrace, int, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, 0, fmt.Errorf("read trace %s: %w", key, err)
	}
	var trace datatypes.InteractionTrace
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, &trace)
	}); err != nil {
		return nil, 0, fmt.Errorf("decode trace %s: %w", key, err)
	}
	return &trace, trace.Seq, nil
}

// sameTrace compares trace content for idempotency. Timestamps are
// excluded: a client retry carries the same message at a later time and
// must still be recognized as the same append.
func sameTrace(a, b *datatypes.InteractionTrace) bool {
	ac, bc := *a, *b
	ac.CreatedAtMs, bc.CreatedAtMs = 0, 0
	aj, err := json.Marshal(&ac)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(&bc)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
