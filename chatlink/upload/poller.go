// Package upload tracks uploaded files through server-side processing.
package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/VladFo01/chatlink/chatlink"
	"github.com/VladFo01/chatlink/chatlink/rest"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultMaxPollAttempts = 30
)

// StatusFetcher queries the processing status of an uploaded file.
// *rest.Client satisfies it.
type StatusFetcher interface {
	UploadStatus(ctx context.Context, fileID string) (*rest.StatusResponse, error)
}

// Result is one fetch outcome as seen by an Observer.
type Result struct {
	Attempt int
	Status  Status
	Detail  string
	Err     error
}

// Recorder receives poll and upload counters.
type Recorder interface {
	PollAttempt(status Status)
	PollFinished(outcome string)
	UploadBytes(n int64)
}

type noopRecorder struct{}

func (noopRecorder) PollAttempt(Status)  {}
func (noopRecorder) PollFinished(string) {}
func (noopRecorder) UploadBytes(int64)   {}

// Poller repeatedly fetches a file's status until it is terminal or the
// attempt budget runs out.
type Poller struct {
	Fetcher     StatusFetcher
	Interval    time.Duration
	MaxAttempts int
	// Observer, if set, sees every fetch result before it is acted on.
	Observer func(Result)
	Recorder Recorder
	Logger   chatlink.Logger
}

// NewPoller returns a Poller with the default interval and attempt budget.
func NewPoller(f StatusFetcher) *Poller {
	return &Poller{
		Fetcher:     f,
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultMaxPollAttempts,
	}
}

// Poll fetches immediately, then once per Interval. It returns
// StatusProcessed on success, a *PollError on a failing terminal
// condition, ctx.Err() on cancellation, or the wrapped fetch error.
func (p *Poller) Poll(ctx context.Context, fileID string) (Status, error) {
	rec := p.Recorder
	if rec == nil {
		rec = noopRecorder{}
	}
	log := p.Logger
	if log == nil {
		log = chatlink.NoopLogger{}
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxPollAttempts
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	last := StatusProcessing
	for attempt := 1; ; attempt++ {
		if attempt > maxAttempts {
			rec.PollFinished("timeout")
			log.Warn("upload poll timed out", map[string]any{"file_id": fileID, "attempts": maxAttempts})
			return last, &PollError{Kind: KindTimeout, FileID: fileID, Status: last, Attempts: maxAttempts}
		}

		resp, err := p.Fetcher.UploadStatus(ctx, fileID)
		res := Result{Attempt: attempt, Err: err}
		if err == nil {
			res.Status = Status(resp.Status)
			res.Detail = resp.Detail
		}
		rec.PollAttempt(res.Status)
		if p.Observer != nil {
			p.Observer(res)
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				rec.PollFinished("canceled")
				return last, ctxErr
			}
			rec.PollFinished("fetch_error")
			return last, fmt.Errorf("poll %s attempt %d: %w", fileID, attempt, err)
		}

		last = res.Status
		log.Debug("upload status", map[string]any{"file_id": fileID, "attempt": attempt, "status": string(last)})

		switch last {
		case StatusProcessed:
			rec.PollFinished("processed")
			return last, nil
		case StatusUnknown:
			rec.PollFinished("processing_failed")
			return last, &PollError{Kind: KindProcessingFailed, FileID: fileID, Status: last, Detail: res.Detail, Attempts: attempt}
		case StatusProcessing:
		default:
			rec.PollFinished("unexpected_status")
			return last, &PollError{Kind: KindUnexpectedStatus, FileID: fileID, Status: last, Detail: res.Detail, Attempts: attempt}
		}

		if timer == nil {
			timer = time.NewTimer(p.Interval)
		} else {
			timer.Reset(p.Interval)
		}
		select {
		case <-ctx.Done():
			rec.PollFinished("canceled")
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}
