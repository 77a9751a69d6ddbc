package export

import (
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// Stats summarizes a set of results.
type Stats struct {
	Count      int               `json:"count"`
	ByKind     map[core.Kind]int `json:"byType"`
	Oldest     time.Time         `json:"oldest,omitzero"`
	Newest     time.Time         `json:"newest,omitzero"`
	ImageBytes int               `json:"imageBytes"`
}

// ComputeStats counts results by kind and finds their date range.
func ComputeStats(results []*core.GenerationResult) Stats {
	s := Stats{ByKind: make(map[core.Kind]int)}
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Count++
		s.ByKind[r.Kind]++
		s.ImageBytes += len(r.ImageData)
		if s.Oldest.IsZero() || r.CreatedAt.Before(s.Oldest) {
			s.Oldest = r.CreatedAt
		}
		if r.CreatedAt.After(s.Newest) {
			s.Newest = r.CreatedAt
		}
	}
	return s
}
