package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/VladFo01/chatlink/chatlink"
	"github.com/VladFo01/chatlink/chatlink/rest"
)

// API is the subset of the REST client an Uploader needs.
type API interface {
	StatusFetcher
	Upload(ctx context.Context, filename string, r io.Reader, progress func(sent int64)) (*rest.UploadResponse, error)
}

// Uploader streams a file to the server and follows it through processing.
type Uploader struct {
	API          API
	PollInterval time.Duration
	MaxAttempts  int
	// OnUpdate receives a snapshot after every job change. It may be
	// called from the upload streaming goroutine.
	OnUpdate func(Job)
	Recorder Recorder
	Logger   chatlink.Logger
}

// NewUploader returns an Uploader with the default poll settings.
func NewUploader(api API) *Uploader {
	return &Uploader{
		API:          api,
		PollInterval: DefaultPollInterval,
		MaxAttempts:  DefaultMaxPollAttempts,
	}
}

// Run uploads the file at path and polls until processing is terminal.
// The returned Job is always the final snapshot, also on error.
func (u *Uploader) Run(ctx context.Context, path string) (Job, error) {
	rec := u.Recorder
	if rec == nil {
		rec = noopRecorder{}
	}
	log := u.Logger
	if log == nil {
		log = chatlink.NoopLogger{}
	}

	var (
		mu  sync.Mutex
		job Job
	)
	update := func(fn func(*Job)) Job {
		mu.Lock()
		fn(&job)
		snap := job
		mu.Unlock()
		if u.OnUpdate != nil {
			u.OnUpdate(snap)
		}
		return snap
	}
	fail := func(status Status, err error) (Job, error) {
		snap := update(func(j *Job) {
			j.Status = status
			j.Err = err
		})
		log.Warn("upload failed", map[string]any{"job": snap.ID.String(), "path": path, "error": err})
		return snap, err
	}

	f, err := os.Open(path)
	if err != nil {
		job = newJob(path, 0)
		return fail(StatusError, fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		job = newJob(path, 0)
		return fail(StatusError, fmt.Errorf("stat %s: %w", path, err))
	}

	job = newJob(path, info.Size())
	update(func(*Job) {})
	update(func(j *Job) { j.Status = StatusUploading })

	var sentPrev int64
	progress := func(sent int64) {
		rec.UploadBytes(sent - sentPrev)
		sentPrev = sent

		mu.Lock()
		p := percent(sent, job.Size)
		changed := p != job.Progress
		mu.Unlock()
		if changed {
			update(func(j *Job) { j.Progress = p })
		}
	}

	resp, err := u.API.Upload(ctx, filepath.Base(path), f, progress)
	if err != nil {
		return fail(StatusError, fmt.Errorf("upload %s: %w", path, err))
	}

	snap := update(func(j *Job) {
		j.FileID = resp.FileID
		j.Progress = 100
		j.Status = StatusProcessing
	})
	log.Info("upload accepted", map[string]any{"job": snap.ID.String(), "file_id": resp.FileID, "bytes": snap.Size})

	poller := &Poller{
		Fetcher:     u.API,
		Interval:    u.PollInterval,
		MaxAttempts: u.MaxAttempts,
		Recorder:    rec,
		Logger:      log,
		Observer: func(r Result) {
			if r.Err != nil || r.Status.Terminal() {
				return
			}
			update(func(j *Job) {
				j.Status = r.Status
				j.Detail = r.Detail
			})
		},
	}
	if poller.Interval <= 0 {
		poller.Interval = DefaultPollInterval
	}

	status, err := poller.Poll(ctx, resp.FileID)
	if err != nil {
		var pe *PollError
		if errors.As(err, &pe) && pe.Kind == KindProcessingFailed {
			update(func(j *Job) { j.Detail = pe.Detail })
			return fail(StatusUnknown, err)
		}
		return fail(StatusError, err)
	}

	snap = update(func(j *Job) { j.Status = status })
	log.Info("upload processed", map[string]any{"job": snap.ID.String(), "file_id": snap.FileID})
	return snap, nil
}
