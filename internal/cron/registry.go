package cron

import (
	"context"
	"time"
)

// Job is one unit of scheduled work. Runs must be safe to repeat.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduled struct {
	job   Job
	every time.Duration
}

// Registry holds jobs in registration order with their cadence. A zero
// cadence means every service tick.
type Registry struct {
	entries []scheduled
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

func (r *Registry) Register(job Job) *Registry {
	return r.Every(0, job)
}

// Every registers job to run at most once per interval.
func (r *Registry) Every(interval time.Duration, job Job) *Registry {
	if job != nil {
		r.entries = append(r.entries, scheduled{job: job, every: max(interval, 0)})
	}
	return r
}

func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// due lists the jobs whose cadence has elapsed since lastRun at now.
func (r *Registry) due(now time.Time, lastRun map[string]time.Time) []Job {
	var out []Job
	for _, e := range r.entries {
		last, ran := lastRun[e.job.Name()]
		if !ran || e.every == 0 || now.Sub(last) >= e.every {
			out = append(out, e.job)
		}
	}
	return out
}
