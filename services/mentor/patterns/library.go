// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patterns loads and serves the versioned detection catalogs
// used by the classifier, the semaphore, the rule engine, and the risk
// detectors. Defaults are embedded in the binary; deployments may ship
// an override YAML file which is hot-reloaded on change.
package patterns

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianMentor/services/mentor/patterns/enforcement"
)

// Library holds the active pattern catalogs. Safe for concurrent use:
// lookups take a read lock, reloads swap the whole catalog set under a
// write lock, so scans always see one consistent vintage.
type Library struct {
	mu       sync.RWMutex
	version  int
	byName   map[string]*Catalog
	ordered  []Catalog
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLibrary builds a library from the embedded default catalogs.
func NewLibrary() (*Library, error) {
	l := &Library{stopCh: make(chan struct{})}
	if err := l.load(enforcement.TutoringPatterns, "embedded"); err != nil {
		return nil, err
	}
	return l, nil
}

// NewLibraryFromFile builds a library from an override file instead of
// the embedded defaults. Used by `mentor policy check` and by tests.
func NewLibraryFromFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file %s: %w", path, err)
	}
	l := &Library{stopCh: make(chan struct{})}
	if err := l.load(data, path); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Library) load(data []byte, source string) error {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal the pattern catalogs from %s: %w", source, err)
	}
	if file.Version <= 0 {
		return fmt.Errorf("pattern catalogs from %s are missing a positive version", source)
	}
	if err := file.CompileRegexes(); err != nil {
		return fmt.Errorf("failed to compile a regex from %s: %w", source, err)
	}
	file.SortByPriority()

	byName := make(map[string]*Catalog, len(file.Catalogs))
	for i := range file.Catalogs {
		c := &file.Catalogs[i]
		if _, dup := byName[c.Name]; dup {
			return fmt.Errorf("duplicate catalog %q in %s", c.Name, source)
		}
		byName[c.Name] = c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.version = file.Version
	l.byName = byName
	l.ordered = file.Catalogs
	slog.Info("Loaded pattern catalogs", "source", source,
		"version", file.Version, "catalogs", len(file.Catalogs))
	return nil
}

// Version returns the version of the active catalog set.
func (l *Library) Version() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Matches reports whether any pattern in the named catalog matches text.
// An unknown catalog never matches; detection must fail closed on text,
// not open on configuration typos, so unknown names are logged loudly.
func (l *Library) Matches(catalog, text string) bool {
	_, ok := l.FirstMatch(catalog, text)
	return ok
}

// FirstMatch returns the first pattern hit in the named catalog.
func (l *Library) FirstMatch(catalog, text string) (Match, bool) {
	l.mu.RLock()
	c, ok := l.byName[catalog]
	l.mu.RUnlock()
	if !ok {
		slog.Warn("Unknown pattern catalog requested", "catalog", catalog)
		return Match{}, false
	}
	for i := range c.Patterns {
		p := &c.Patterns[i]
		if m := p.compiledPattern.FindString(text); m != "" {
			return Match{
				CatalogName: c.Name,
				PatternId:   p.Id,
				Matched:     m,
				Confidence:  p.Confidence,
				Concept:     p.Concept,
				Severity:    p.Severity,
			}, true
		}
	}
	return Match{}, false
}

// FindAll returns every pattern hit in the named catalog, one Match per
// matching pattern. Used by the detectors, which want all signatures
// present rather than just the first.
func (l *Library) FindAll(catalog, text string) []Match {
	l.mu.RLock()
	c, ok := l.byName[catalog]
	l.mu.RUnlock()
	if !ok {
		slog.Warn("Unknown pattern catalog requested", "catalog", catalog)
		return nil
	}
	var matches []Match
	for i := range c.Patterns {
		p := &c.Patterns[i]
		if m := p.compiledPattern.FindString(text); m != "" {
			matches = append(matches, Match{
				CatalogName: c.Name,
				PatternId:   p.Id,
				Matched:     m,
				Confidence:  p.Confidence,
				Concept:     p.Concept,
				Severity:    p.Severity,
			})
		}
	}
	return matches
}

// ClassifyIntent scans the intent catalogs in priority order and returns
// the name of the first catalog with a hit, or "" when nothing matched.
// Only catalogs in the given allow-list participate, so marker catalogs
// never masquerade as intents.
func (l *Library) ClassifyIntent(text string, allowed map[string]bool) (string, Match, bool) {
	l.mu.RLock()
	ordered := l.ordered
	l.mu.RUnlock()
	for i := range ordered {
		c := &ordered[i]
		if !allowed[c.Name] {
			continue
		}
		for j := range c.Patterns {
			p := &c.Patterns[j]
			if m := p.compiledPattern.FindString(text); m != "" {
				return c.Name, Match{
					CatalogName: c.Name,
					PatternId:   p.Id,
					Matched:     m,
					Confidence:  p.Confidence,
				}, true
			}
		}
	}
	return "", Match{}, false
}

// WatchOverride starts watching an override file and reloads the
// catalogs whenever it changes. Malformed updates are rejected and the
// previous catalogs stay active.
func (l *Library) WatchOverride(path string) error {
	if err := l.loadOverrideFile(path); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create pattern watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files on save
	// and a file watch dies with the old inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch pattern directory: %w", err)
	}
	l.watcher = watcher

	go func() {
		target := filepath.Clean(path)
		for {
			select {
			case <-l.stopCh:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := l.loadOverrideFile(path); err != nil {
					slog.Error("Pattern override reload failed, keeping previous catalogs",
						"path", path, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Pattern watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (l *Library) loadOverrideFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pattern override %s: %w", path, err)
	}
	return l.load(data, path)
}

// Close stops the override watcher, if one is running.
func (l *Library) Close() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopCh)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
	})
	return err
}
