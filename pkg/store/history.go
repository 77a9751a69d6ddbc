package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// AddToHistory validates res and prepends it to the history list. Entries
// with the same source text created within the duplicate window are
// replaced, and the list is trimmed to the configured limit.
func (s *Store) AddToHistory(ctx context.Context, res *core.GenerationResult) error {
	if err := res.Validate(); err != nil {
		return err
	}

	s.histMu.Lock()
	defer s.histMu.Unlock()

	settings, err := s.GetSettings(ctx)
	if err != nil {
		return err
	}
	history, err := s.loadHistory(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	next := make([]*core.GenerationResult, 0, len(history)+1)
	next = append(next, res)
	for _, e := range history {
		if e.SourceText == res.SourceText && now.Sub(e.CreatedAt) < s.dupWindow {
			continue
		}
		next = append(next, e)
	}
	if limit := settings.HistoryLimit; limit > 0 && len(next) > limit {
		next = next[:limit]
	}

	return s.Set(ctx, map[string]any{HistoryKey: next})
}

// GetHistory returns the history list, newest first. Entries that fail
// structural validation are dropped and the cleaned list is written back.
func (s *Store) GetHistory(ctx context.Context) ([]*core.GenerationResult, error) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return s.loadHistory(ctx)
}

func (s *Store) loadHistory(ctx context.Context) ([]*core.GenerationResult, error) {
	raw, ok, err := s.getRaw(ctx, HistoryKey)
	if err != nil || !ok {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Warn("history is unreadable, resetting", "error", err)
		return nil, s.Set(ctx, map[string]any{HistoryKey: []*core.GenerationResult{}})
	}

	valid := make([]*core.GenerationResult, 0, len(items))
	for _, item := range items {
		var r core.GenerationResult
		if err := json.Unmarshal(item, &r); err != nil {
			continue
		}
		if r.Validate() != nil {
			continue
		}
		valid = append(valid, &r)
	}

	if dropped := len(items) - len(valid); dropped > 0 {
		s.logger.Warn("dropped invalid history entries", "count", dropped)
		if err := s.Set(ctx, map[string]any{HistoryKey: valid}); err != nil {
			return nil, err
		}
	}
	return valid, nil
}

// DeleteHistoryEntry removes the entry with id and reports whether it existed.
func (s *Store) DeleteHistoryEntry(ctx context.Context, id string) (bool, error) {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	history, err := s.loadHistory(ctx)
	if err != nil {
		return false, err
	}
	next := history[:0]
	found := false
	for _, e := range history {
		if e.ID == id {
			found = true
			continue
		}
		next = append(next, e)
	}
	if !found {
		return false, nil
	}
	return true, s.Set(ctx, map[string]any{HistoryKey: next})
}

// ClearHistory removes every history entry.
func (s *Store) ClearHistory(ctx context.Context) error {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return s.Remove(ctx, HistoryKey)
}

// SearchHistory returns entries whose text or title contains query,
// ignoring case. An empty query returns the full list.
func (s *Store) SearchHistory(ctx context.Context, query string) ([]*core.GenerationResult, error) {
	history, err := s.GetHistory(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return history, nil
	}
	var out []*core.GenerationResult
	for _, e := range history {
		if strings.Contains(strings.ToLower(e.SourceText), q) || strings.Contains(strings.ToLower(e.Title), q) {
			out = append(out, e)
		}
	}
	return out, nil
}
