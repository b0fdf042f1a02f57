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
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
)

// SessionStore persists tutoring sessions.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a session store backed by db.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// Put writes a session record, overwriting any existing one.
func (s *SessionStore) Put(ctx context.Context, session *datatypes.Session) error {
	if session.SessionID == "" {
		return errors.New("session id is required")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.SessionID), data)
	})
}

// Get loads a session by ID, returning ErrNotFound when absent.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*datatypes.Session, error) {
	var session datatypes.Session
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read session: %w", err)
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &session)
		})
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Ensure loads the session, creating it on first contact. The created
// session is active in the given mode.
func (s *SessionStore) Ensure(ctx context.Context, sessionID, studentID, activityID string, mode datatypes.SessionMode) (*datatypes.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	session = datatypes.NewSession(sessionID, studentID, activityID, mode)
	if err := s.Put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}
