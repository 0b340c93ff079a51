package upload

import (
	"github.com/google/uuid"
)

// Status is the lifecycle state of an upload job. The server reports
// processing, processed and unknown; the rest are local.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusUnknown    Status = "unknown"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions follow s.
func (s Status) Terminal() bool {
	switch s {
	case StatusProcessed, StatusUnknown, StatusError:
		return true
	}
	return false
}

// Job tracks one file from selection to a terminal processing status.
type Job struct {
	ID       uuid.UUID
	FileID   string
	Path     string
	Size     int64
	Progress int
	Status   Status
	Detail   string
	Err      error
}

func newJob(path string, size int64) Job {
	return Job{
		ID:     uuid.New(),
		Path:   path,
		Size:   size,
		Status: StatusPending,
	}
}

func percent(sent, size int64) int {
	if size <= 0 {
		return 0
	}
	p := int(sent * 100 / size)
	if p > 100 {
		p = 100
	}
	return p
}
