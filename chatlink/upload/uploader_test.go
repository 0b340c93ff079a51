package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VladFo01/chatlink/chatlink/rest"
)

type fakeAPI struct {
	*scriptedFetcher
	uploadErr error
	gotName   string
	gotBody   string
}

func (a *fakeAPI) Upload(ctx context.Context, filename string, r io.Reader, progress func(int64)) (*rest.UploadResponse, error) {
	if a.uploadErr != nil {
		return nil, a.uploadErr
	}
	a.gotName = filename
	var sb strings.Builder
	buf := make([]byte, 4)
	var sent int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
			sent += int64(n)
			progress(sent)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	a.gotBody = sb.String()
	return &rest.UploadResponse{FileID: "srv-42"}, nil
}

type jobLog struct {
	mu   sync.Mutex
	jobs []Job
}

func (l *jobLog) add(j Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, j)
}

func (l *jobLog) statuses() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Status
	for _, j := range l.jobs {
		if len(out) == 0 || out[len(out)-1] != j.Status {
			out = append(out, j.Status)
		}
	}
	return out
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestUploader(api API, log *jobLog) *Uploader {
	u := NewUploader(api)
	u.PollInterval = time.Millisecond
	u.OnUpdate = log.add
	return u
}

func TestUploaderProcessed(t *testing.T) {
	path := writeTemp(t, "report.pdf", "0123456789abcdef")
	api := &fakeAPI{scriptedFetcher: processingThen(3, rest.StatusResponse{Status: "processed"})}
	log := &jobLog{}

	job, err := newTestUploader(api, log).Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, StatusProcessed, job.Status)
	assert.Equal(t, "srv-42", job.FileID)
	assert.Equal(t, int64(16), job.Size)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "report.pdf", api.gotName)
	assert.Equal(t, "0123456789abcdef", api.gotBody)
	assert.Equal(t, []Status{StatusPending, StatusUploading, StatusProcessing, StatusProcessed}, log.statuses())

	var progress []int
	for _, j := range log.jobs {
		if j.Status == StatusUploading && j.Progress > 0 {
			progress = append(progress, j.Progress)
		}
	}
	assert.Equal(t, []int{25, 50, 75, 100}, progress)
}

func TestUploaderUnknownStatus(t *testing.T) {
	path := writeTemp(t, "blob.bin", "data")
	api := &fakeAPI{scriptedFetcher: processingThen(1, rest.StatusResponse{Status: "unknown", Detail: "cannot parse"})}

	job, err := newTestUploader(api, &jobLog{}).Run(context.Background(), path)
	assert.ErrorIs(t, err, ErrProcessingFailed)
	assert.Equal(t, StatusUnknown, job.Status)
	assert.Equal(t, "cannot parse", job.Detail)
	assert.True(t, job.Status.Terminal())
}

func TestUploaderUploadError(t *testing.T) {
	path := writeTemp(t, "a.txt", "x")
	api := &fakeAPI{scriptedFetcher: &scriptedFetcher{}, uploadErr: &rest.APIError{StatusCode: 413, Detail: "too large"}}

	job, err := newTestUploader(api, &jobLog{}).Run(context.Background(), path)
	var apiErr *rest.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, StatusError, job.Status)
	assert.Equal(t, 0, api.Calls())
}

func TestUploaderMissingFile(t *testing.T) {
	api := &fakeAPI{scriptedFetcher: &scriptedFetcher{}}

	job, err := newTestUploader(api, &jobLog{}).Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, StatusError, job.Status)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, percent(10, 0))
	assert.Equal(t, 50, percent(5, 10))
	assert.Equal(t, 100, percent(12, 10))
}
