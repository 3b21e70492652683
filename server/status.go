package server

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"narrator/common"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrJobNotFound is returned for ids the store has never seen.
var ErrJobNotFound = errors.New("job not found")

// JobStatus is the persisted state of one render job.
type JobStatus struct {
	ID          string              `json:"id"`
	Status      string              `json:"status"`
	Script      string              `json:"script"`
	Scene       string              `json:"scene,omitempty"`
	RunID       string              `json:"run_id,omitempty"`
	Deliverable *common.Deliverable `json:"deliverable,omitempty"`
	Trace       []string            `json:"render_trace,omitempty"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (s *JobStatus) Done() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// StatusStore keeps one JSON file per job so status survives restarts.
type StatusStore struct {
	Dir string
	mu  sync.RWMutex
}

func NewStatusStore(dir string) (*StatusStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &StatusStore{Dir: dir}, nil
}

func (s *StatusStore) path(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

// Put writes status, keeping fields already recorded that the update leaves empty.
func (s *StatusStore) Put(status *JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.load(status.ID); err == nil {
		if status.Script == "" {
			status.Script = existing.Script
		}
		if status.Scene == "" {
			status.Scene = existing.Scene
		}
		if status.RunID == "" {
			status.RunID = existing.RunID
		}
		if status.CreatedAt.IsZero() {
			status.CreatedAt = existing.CreatedAt
		}
	}

	now := time.Now()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}
	status.UpdatedAt = now
	if status.Done() && status.CompletedAt == nil {
		status.CompletedAt = &now
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(status.ID), data, 0644)
}

func (s *StatusStore) Get(id string) (*JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(id)
}

// load expects the caller to hold the lock.
func (s *StatusStore) load(id string) (*JobStatus, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var status JobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
