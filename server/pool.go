package server

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"narrator/common"
	"narrator/pipelines/narrated"
)

// ErrQueueFull is returned by Submit when every queue slot is taken.
var ErrQueueFull = errors.New("job queue is full")

var log = common.Logger("server")

// Processor runs one narrated render.
type Processor interface {
	Process(ctx context.Context, req narrated.Request) (*narrated.Result, error)
}

type Job struct {
	ID      string
	Request narrated.Request
}

// WorkerPool runs jobs on a fixed number of goroutines behind a bounded queue.
type WorkerPool struct {
	jobs       chan *Job
	store      *StatusStore
	proc       Processor
	wg         sync.WaitGroup
	numWorkers int
	once       sync.Once
}

func NewWorkerPool(numWorkers, queueSize int, proc Processor, store *StatusStore) *WorkerPool {
	pool := &WorkerPool{
		jobs:       make(chan *Job, queueSize),
		store:      store,
		proc:       proc,
		numWorkers: numWorkers,
	}
	for i := 0; i < numWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}
	log.Infof("started %d workers", numWorkers)
	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		log.WithFields(logrus.Fields{"worker": id, "job": job.ID}).Info("processing job")
		p.process(job)
	}
	log.WithField("worker", id).Debug("shutting down")
}

func (p *WorkerPool) process(job *Job) {
	logger := log.WithField("job", job.ID)
	p.put(&JobStatus{ID: job.ID, Status: StatusProcessing})

	res, err := p.proc.Process(context.Background(), job.Request)
	status := &JobStatus{ID: job.ID, Status: StatusCompleted}
	if res != nil {
		status.RunID = res.RunID
		status.Trace = res.Trace
	}
	switch {
	case errors.Is(err, narrated.ErrVideoGenerationFailed):
		status.Status = StatusFailed
		status.Error = narrated.ErrVideoGenerationFailed.Error()
		logger.WithError(err).Warn("job failed")
	case err != nil:
		status.Status = StatusFailed
		status.Error = err.Error()
		logger.WithError(err).Warn("job failed")
	default:
		d := res.Deliverable
		status.Deliverable = &d
		logger.WithField("fidelity", d.Fidelity).Info("job completed")
	}
	p.put(status)
}

func (p *WorkerPool) put(status *JobStatus) {
	if err := p.store.Put(status); err != nil {
		log.WithError(err).WithField("job", status.ID).Error("could not persist job status")
	}
}

// Submit records the job as queued and hands it to a worker without blocking.
func (p *WorkerPool) Submit(job *Job) error {
	if err := p.store.Put(&JobStatus{
		ID:     job.ID,
		Status: StatusQueued,
		Script: job.Request.ScriptPath,
		Scene:  job.Request.SceneName,
	}); err != nil {
		return err
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		p.put(&JobStatus{ID: job.ID, Status: StatusFailed, Error: ErrQueueFull.Error()})
		return ErrQueueFull
	}
}

// Queued is the number of jobs waiting for a worker.
func (p *WorkerPool) Queued() int {
	return len(p.jobs)
}

// Shutdown stops accepting jobs and waits for running ones to finish.
func (p *WorkerPool) Shutdown() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
