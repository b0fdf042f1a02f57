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
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
)

// RiskStore persists risk findings and analysis reports.
//
// Risk IDs and report IDs are deterministic over their inputs, so
// writes here are upserts: re-running an analysis over the same window
// overwrites the same keys instead of growing the store.
type RiskStore struct {
	db *DB
}

// NewRiskStore creates a risk store backed by db.
func NewRiskStore(db *DB) *RiskStore {
	return &RiskStore{db: db}
}

// UpsertRisks writes a batch of risks in one transaction.
func (s *RiskStore) UpsertRisks(ctx context.Context, risks []*datatypes.Risk) error {
	if len(risks) == 0 {
		return nil
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		for _, risk := range risks {
			if risk.RiskID == "" || risk.SessionID == "" {
				return errors.New("risk id and session id are required")
			}
			data, err := json.Marshal(risk)
			if err != nil {
				return fmt.Errorf("marshal risk %s: %w", risk.RiskID, err)
			}
			if err := txn.Set(riskKey(risk.SessionID, risk.RiskID), data); err != nil {
				return fmt.Errorf("write risk %s: %w", risk.RiskID, err)
			}
		}
		return nil
	})
}

// LoadRisks returns every risk recorded for a session, ordered by
// detection time then ID for a stable listing.
func (s *RiskStore) LoadRisks(ctx context.Context, sessionID string) ([]*datatypes.Risk, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	var risks []*datatypes.Risk
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = riskPrefix(sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var risk datatypes.Risk
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &risk)
			}); err != nil {
				return fmt.Errorf("decode risk at %s: %w", it.Item().Key(), err)
			}
			risks = append(risks, &risk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(risks, func(i, j int) bool {
		if risks[i].DetectedAtMs != risks[j].DetectedAtMs {
			return risks[i].DetectedAtMs < risks[j].DetectedAtMs
		}
		return risks[i].RiskID < risks[j].RiskID
	})
	return risks, nil
}

// SaveReport upserts an analysis report.
func (s *RiskStore) SaveReport(ctx context.Context, report *datatypes.RiskReport) error {
	if report.ReportID == "" || report.SessionID == "" {
		return errors.New("report id and session id are required")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(reportKey(report.SessionID, report.ReportID), data)
	})
}

// LoadReports returns every report for a session, newest last.
func (s *RiskStore) LoadReports(ctx context.Context, sessionID string) ([]*datatypes.RiskReport, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	var reports []*datatypes.RiskReport
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = reportPrefix(sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var report datatypes.RiskReport
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &report)
			}); err != nil {
				return fmt.Errorf("decode report at %s: %w", it.Item().Key(), err)
			}
			reports = append(reports, &report)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].GeneratedAtMs < reports[j].GeneratedAtMs
	})
	return reports, nil
}
