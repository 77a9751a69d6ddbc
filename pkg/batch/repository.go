package batch

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
	"github.com/jdziat/simple-qr-jobs/pkg/kv"
)

// JobRepository persists batch job records.
type JobRepository interface {
	SaveJob(ctx context.Context, job *core.BatchJob) error
	// GetJob returns core.ErrJobNotFound when no record exists.
	GetJob(ctx context.Context, id string) (*core.BatchJob, error)
	// ListJobs returns every job, newest first.
	ListJobs(ctx context.Context) ([]*core.BatchJob, error)
	DeleteJob(ctx context.Context, id string) error
}

// Keys used by KVRepository.
const (
	jobKeyPrefix = "batchJob_"
	jobIndexKey  = "batchJobs"
)

// KVRepository stores each job as JSON under batchJob_<id> and keeps an
// index of ids under batchJobs.
type KVRepository struct {
	kv kv.Store
	// mu serializes index updates from this process.
	mu sync.Mutex
}

// NewKVRepository creates a repository over store.
func NewKVRepository(store kv.Store) *KVRepository {
	return &KVRepository{kv: store}
}

func jobKey(id string) string { return jobKeyPrefix + id }

func (r *KVRepository) index(ctx context.Context) ([]string, error) {
	vals, err := r.kv.Get(ctx, jobIndexKey)
	if err != nil {
		return nil, err
	}
	raw, ok := vals[jobIndexKey]
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, core.Storage("decode job index", err)
	}
	return ids, nil
}

// SaveJob writes the job and, for new jobs, its index entry in one call.
func (r *KVRepository) SaveJob(ctx context.Context, job *core.BatchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return core.Storage("encode job", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.index(ctx)
	if err != nil {
		return err
	}
	entries := map[string][]byte{jobKey(job.ID): data}
	if !contains(ids, job.ID) {
		idx, err := json.Marshal(append(ids, job.ID))
		if err != nil {
			return core.Storage("encode job index", err)
		}
		entries[jobIndexKey] = idx
	}
	return core.Storage("save job", r.kv.Set(ctx, entries))
}

// GetJob loads one job.
func (r *KVRepository) GetJob(ctx context.Context, id string) (*core.BatchJob, error) {
	vals, err := r.kv.Get(ctx, jobKey(id))
	if err != nil {
		return nil, core.Storage("get job", err)
	}
	raw, ok := vals[jobKey(id)]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	var job core.BatchJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, core.Storage("decode job", err)
	}
	return &job, nil
}

// ListJobs loads every indexed job. Records that no longer decode are skipped.
func (r *KVRepository) ListJobs(ctx context.Context) ([]*core.BatchJob, error) {
	ids, err := r.index(ctx)
	if err != nil {
		return nil, core.Storage("list jobs", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	vals, err := r.kv.Get(ctx, keys...)
	if err != nil {
		return nil, core.Storage("list jobs", err)
	}

	jobs := make([]*core.BatchJob, 0, len(vals))
	for _, k := range keys {
		raw, ok := vals[k]
		if !ok {
			continue
		}
		var job core.BatchJob
		if err := json.Unmarshal(raw, &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// DeleteJob removes the job and its index entry.
func (r *KVRepository) DeleteJob(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.index(ctx)
	if err != nil {
		return core.Storage("delete job", err)
	}
	if !contains(ids, id) {
		return core.ErrJobNotFound
	}
	kept := make([]string, 0, len(ids)-1)
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	idx, err := json.Marshal(kept)
	if err != nil {
		return core.Storage("encode job index", err)
	}
	if err := r.kv.Set(ctx, map[string][]byte{jobIndexKey: idx}); err != nil {
		return core.Storage("delete job", err)
	}
	return core.Storage("delete job", r.kv.Remove(ctx, jobKey(id)))
}

func contains(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
