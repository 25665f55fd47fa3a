package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SyncJob asks the worker to sync one profile.
type SyncJob struct {
	Handle       string    `json:"handle"`
	ForceRecache bool      `json:"force_recache"`
	MaxPages     int       `json:"max_pages,omitempty"`
	Priority     int       `json:"priority,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

func DecodeSyncJob(body []byte) (*SyncJob, error) {
	var job SyncJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("unmarshal sync job: %w", err)
	}
	job.Handle = strings.TrimPrefix(strings.TrimSpace(job.Handle), "@")
	if job.Handle == "" {
		return nil, errors.New("sync job has no handle")
	}
	return &job, nil
}

// FailureReport describes one post that could not be persisted, with the
// raw input and the sanitized values that were written.
type FailureReport struct {
	Kind       string            `json:"kind"`
	Op         string            `json:"op"`
	Handle     string            `json:"handle"`
	ProfileID  string            `json:"profile_id,omitempty"`
	TikTokID   string            `json:"tiktok_id"`
	Batch      int               `json:"batch"`
	Batches    int               `json:"batches"`
	Error      string            `json:"error"`
	Input      json.RawMessage   `json:"input,omitempty"`
	Sanitized  map[string]string `json:"sanitized,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
