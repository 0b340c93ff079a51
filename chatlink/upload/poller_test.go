package upload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VladFo01/chatlink/chatlink/rest"
)

// scriptedFetcher returns statuses[i] on the i-th call and repeats the
// last entry once the script runs out.
type scriptedFetcher struct {
	mu       sync.Mutex
	statuses []rest.StatusResponse
	err      error
	calls    int
}

func (f *scriptedFetcher) UploadStatus(ctx context.Context, fileID string) (*rest.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls - 1
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	resp := f.statuses[i]
	return &resp, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func processingThen(k int, final rest.StatusResponse) *scriptedFetcher {
	f := &scriptedFetcher{}
	for i := 1; i < k; i++ {
		f.statuses = append(f.statuses, rest.StatusResponse{Status: "processing"})
	}
	f.statuses = append(f.statuses, final)
	return f
}

func fastPoller(f StatusFetcher) *Poller {
	p := NewPoller(f)
	p.Interval = time.Millisecond
	return p
}

func TestPollResolvesOnProcessed(t *testing.T) {
	for _, k := range []int{1, 2, 7, 30} {
		f := processingThen(k, rest.StatusResponse{Status: "processed"})
		p := fastPoller(f)

		var seen []Result
		p.Observer = func(r Result) { seen = append(seen, r) }

		status, err := p.Poll(context.Background(), "file-1")
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, StatusProcessed, status)
		assert.Equal(t, k, f.Calls())
		require.Len(t, seen, k)
		assert.Equal(t, StatusProcessed, seen[k-1].Status)
		assert.Equal(t, k, seen[k-1].Attempt)
	}
}

func TestPollTimesOutAfterMaxAttempts(t *testing.T) {
	f := processingThen(1, rest.StatusResponse{Status: "processing"})
	p := fastPoller(f)

	observed := 0
	p.Observer = func(Result) { observed++ }

	status, err := p.Poll(context.Background(), "file-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StatusProcessing, status)
	assert.Equal(t, 30, f.Calls())
	assert.Equal(t, 30, observed)

	var pe *PollError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 30, pe.Attempts)
}

func TestPollUnknownFailsImmediately(t *testing.T) {
	f := processingThen(1, rest.StatusResponse{Status: "unknown", Detail: "unsupported file type"})
	p := fastPoller(f)

	var seen []Result
	p.Observer = func(r Result) { seen = append(seen, r) }

	_, err := p.Poll(context.Background(), "file-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessingFailed)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, f.Calls())
	require.Len(t, seen, 1)
	assert.Equal(t, StatusUnknown, seen[0].Status)

	var pe *PollError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "unsupported file type", pe.Detail)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestPollUnexpectedStatus(t *testing.T) {
	f := processingThen(3, rest.StatusResponse{Status: "exploded"})
	status, err := fastPoller(f).Poll(context.Background(), "file-1")

	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, Status("exploded"), status)
	assert.Equal(t, 3, f.Calls())
}

func TestPollFetchErrorIsObservedAndEndsPoll(t *testing.T) {
	boom := errors.New("connection refused")
	f := &scriptedFetcher{err: boom}
	p := fastPoller(f)

	var seen []Result
	p.Observer = func(r Result) { seen = append(seen, r) }

	_, err := p.Poll(context.Background(), "file-1")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, f.Calls())
	require.Len(t, seen, 1)
	assert.ErrorIs(t, seen[0].Err, boom)
}

func TestPollCancel(t *testing.T) {
	f := processingThen(1, rest.StatusResponse{Status: "processing"})
	p := NewPoller(f)
	p.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	p.Observer = func(Result) { cancel() }

	done := make(chan error, 1)
	go func() {
		_, err := p.Poll(ctx, "file-1")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not stop on cancel")
	}
	assert.Equal(t, 1, f.Calls())
}

func TestPollErrorKinds(t *testing.T) {
	err := &PollError{Kind: KindTimeout, FileID: "x", Status: StatusProcessing, Attempts: 30}
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrProcessingFailed))
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, `upload x: still processing after 30 attempts`, err.Error())
}
