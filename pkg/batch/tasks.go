package batch

import (
	"strings"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/generator"
)

// TaskSpec describes one task to add to a job.
type TaskSpec struct {
	Text     string
	Kind     core.Kind
	Options  core.RenderOptions
	Priority int
}

// TasksFromTexts builds specs for texts, skipping blank and repeated lines.
// An empty kind is detected per text.
func TasksFromTexts(texts []string, kind core.Kind, opts core.RenderOptions) []TaskSpec {
	seen := make(map[string]bool, len(texts))
	specs := make([]TaskSpec, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true

		k := kind
		if k == "" {
			k = generator.DetectKind(t)
		}
		specs = append(specs, TaskSpec{Text: t, Kind: k, Options: opts})
	}
	return specs
}

// TasksFromURLs builds url-kind specs, one per distinct address.
func TasksFromURLs(urls []string, opts core.RenderOptions) []TaskSpec {
	return TasksFromTexts(urls, core.KindURL, opts)
}
