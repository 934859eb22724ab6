package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one pipeline stage run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in execution order. Nil jobs and repeated names are ignored.
type Registry struct {
	jobs []Job
	seen map[string]struct{}
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{seen: map[string]struct{}{}}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register appends a job after the ones already registered.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if r.seen == nil {
		r.seen = map[string]struct{}{}
	}
	if _, dup := r.seen[job.Name()]; dup {
		return
	}
	r.seen[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Names lists job names in execution order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}

// Only returns a registry holding the named jobs, still in registration order.
// Unknown names are an error so a typo never silently skips a stage.
func (r *Registry) Only(names ...string) (*Registry, error) {
	want := map[string]struct{}{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.seen[name]; !ok {
			return nil, fmt.Errorf("unknown job %q (have %s)", name, strings.Join(r.Names(), ", "))
		}
		want[name] = struct{}{}
	}
	if len(want) == 0 {
		return nil, fmt.Errorf("no jobs selected")
	}
	subset := NewRegistry()
	for _, job := range r.jobs {
		if _, ok := want[job.Name()]; ok {
			subset.Register(job)
		}
	}
	return subset, nil
}
