// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy resolves the governance configuration for activities.
//
// Policies live as one YAML file per activity in a directory. An
// activity without a file gets the conservative default; an activity
// with a malformed file gets an error, never a permissive fallback.
// The directory is watched, so edits apply without a restart.
package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianMentor/services/mentor/datatypes"
)

// Provider loads, validates, and caches per-activity policies. Safe
// for concurrent use.
type Provider struct {
	mu      sync.RWMutex
	dir     string
	cache   map[string]datatypes.PolicyConfig
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewProvider creates a Provider over a policy directory. An empty dir
// means every activity uses the default policy. When the directory is
// set it must exist: a typo here would silently downgrade every
// activity to defaults.
func NewProvider(dir string, logger *slog.Logger) (*Provider, error) {
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("policy directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("policy path %s is not a directory", dir)
		}
	}
	return &Provider{
		dir:    dir,
		cache:  map[string]datatypes.PolicyConfig{},
		logger: logger,
	}, nil
}

// PolicyFor returns the validated policy for an activity.
//
// Resolution order: cache, then <dir>/<activity_id>.yaml, then the
// built-in default. A file that exists but fails to parse or validate
// is an error; the caller must not run the turn.
func (p *Provider) PolicyFor(activityID string) (datatypes.PolicyConfig, error) {
	if activityID == "" {
		return datatypes.PolicyConfig{}, errors.New("activity id is required")
	}

	p.mu.RLock()
	cached, ok := p.cache[activityID]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	policy, err := p.loadPolicy(activityID)
	if err != nil {
		return datatypes.PolicyConfig{}, err
	}

	p.mu.Lock()
	p.cache[activityID] = policy
	p.mu.Unlock()
	return policy, nil
}

func (p *Provider) loadPolicy(activityID string) (datatypes.PolicyConfig, error) {
	if p.dir == "" {
		return datatypes.DefaultPolicy(activityID), nil
	}
	path := filepath.Join(p.dir, activityID+".yaml")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return datatypes.DefaultPolicy(activityID), nil
	}
	if err != nil {
		return datatypes.PolicyConfig{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return ParsePolicy(data, activityID)
}

// ParsePolicy decodes and validates one policy document. The file's
// activity_id must match the activity it is registered under; a
// mismatch means a copy-pasted file governs the wrong activity.
func ParsePolicy(data []byte, activityID string) (datatypes.PolicyConfig, error) {
	var policy datatypes.PolicyConfig
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return datatypes.PolicyConfig{}, fmt.Errorf("parse policy for %s: %w", activityID, err)
	}
	if policy.ActivityID != activityID {
		return datatypes.PolicyConfig{}, fmt.Errorf(
			"policy file declares activity %q but is registered for %q", policy.ActivityID, activityID)
	}
	if err := policy.Validate(); err != nil {
		return datatypes.PolicyConfig{}, err
	}
	return policy, nil
}

// Watch starts invalidating cached policies when files in the policy
// directory change. No-op without a directory.
func (p *Provider) Watch() error {
	if p.dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	if err := watcher.Add(p.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch policy directory %s: %w", p.dir, err)
	}
	p.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				activityID := strings.TrimSuffix(filepath.Base(event.Name), ".yaml")
				p.mu.Lock()
				delete(p.cache, activityID)
				p.mu.Unlock()
				p.logger.Info("policy invalidated after file change",
					slog.String("activity_id", activityID),
					slog.String("op", event.Op.String()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("policy watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is running.
func (p *Provider) Close() error {
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}
