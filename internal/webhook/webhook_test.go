package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billtruong003/video-to-subtitle-converter/internal/jobstore"
	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

func TestDefaultRetryDelays(t *testing.T) {
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 25 * time.Second}, DefaultRetryDelays())
	assert.Equal(t, DefaultRetryDelays(), BackoffDelays(DefaultMaxRetries))
	assert.Empty(t, BackoffDelays(0))
	assert.Equal(t, DefaultRetryDelays(), NewService(Config{URL: "http://example.invalid"}).cfg.RetryDelays)
}

type received struct {
	event     string
	signature string
	body      []byte
}

func newReceiver(t *testing.T, failures int32) (*httptest.Server, func() []received) {
	t.Helper()

	var mu sync.Mutex
	var got []received
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= failures {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, received{
			event:     r.Header.Get("X-Webhook-Event"),
			signature: r.Header.Get("X-Webhook-Signature"),
			body:      body,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), got...)
	}
}

func TestNotifySignsPayload(t *testing.T) {
	srv, got := newReceiver(t, 0)
	svc := NewService(Config{URL: srv.URL, Secret: "s3cret", RetryDelays: []time.Duration{}})

	job := &models.Job{ID: "job-1", Status: models.JobStatusBurned}
	require.NoError(t, svc.Notify(context.Background(), EventJobCompleted, job))
	svc.Wait()

	deliveries := got()
	require.Len(t, deliveries, 1)
	assert.Equal(t, EventJobCompleted, deliveries[0].event)
	assert.Equal(t, generateSignature(deliveries[0].body, "s3cret"), deliveries[0].signature)

	var event Event
	require.NoError(t, json.Unmarshal(deliveries[0].body, &event))
	assert.Equal(t, "job-1", event.Data.ID)
}

func TestNotifyRetries(t *testing.T) {
	srv, got := newReceiver(t, 2)
	svc := NewService(Config{URL: srv.URL, RetryDelays: []time.Duration{time.Millisecond, time.Millisecond}})

	require.NoError(t, svc.Notify(context.Background(), EventJobFailed, &models.Job{ID: "job-2"}))
	svc.Wait()

	deliveries := got()
	require.Len(t, deliveries, 1)
	assert.Empty(t, deliveries[0].signature)
}

func TestDeliverGivesUp(t *testing.T) {
	srv, got := newReceiver(t, 10)
	svc := NewService(Config{URL: srv.URL, RetryDelays: []time.Duration{time.Millisecond}})

	err := svc.deliver(context.Background(), "d-1", EventJobFailed, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Empty(t, got())
}

func TestDisabledServiceIsNoop(t *testing.T) {
	var svc *Service
	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.Notify(context.Background(), EventJobCompleted, &models.Job{}))
	assert.False(t, NewService(Config{}).Enabled())
}

func TestRecorderNotifiesTerminalStates(t *testing.T) {
	srv, got := newReceiver(t, 0)
	svc := NewService(Config{URL: srv.URL, RetryDelays: []time.Duration{}})
	store := jobstore.NewMemoryStore()
	recorder := NewRecorder(store, svc)

	job := &models.Job{ID: "job-3", Status: models.JobStatusInit}
	for _, status := range []string{models.JobStatusInit, models.JobStatusAudioExtracted, models.JobStatusFailed} {
		job.Status = status
		require.NoError(t, recorder.Save(context.Background(), job))
	}
	svc.Wait()

	deliveries := got()
	require.Len(t, deliveries, 1)
	assert.Equal(t, EventJobFailed, deliveries[0].event)

	stored, err := store.Get(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
}
