package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billtruong003/video-to-subtitle-converter/internal/jobstore"
	"github.com/billtruong003/video-to-subtitle-converter/internal/logging"
	"github.com/billtruong003/video-to-subtitle-converter/internal/middleware"
	"github.com/billtruong003/video-to-subtitle-converter/internal/monitoring"
	"github.com/billtruong003/video-to-subtitle-converter/internal/transcoder"
	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

type fakeProber struct {
	meta *transcoder.VideoMetadata
	err  error
}

func (p *fakeProber) ProbeVideo(ctx context.Context, inputPath string) (*transcoder.VideoMetadata, error) {
	return p.meta, p.err
}

type recordingPool struct {
	mu   sync.Mutex
	jobs []*models.Job
}

func (p *recordingPool) Submit(ctx context.Context, job *models.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
}

func videoMeta() *transcoder.VideoMetadata {
	return &transcoder.VideoMetadata{
		Format:  transcoder.FormatInfo{Duration: "12.5"},
		Streams: []transcoder.StreamInfo{{CodecType: "video"}, {CodecType: "audio"}},
	}
}

type testServer struct {
	api    *API
	router *gin.Engine
	store  *jobstore.MemoryStore
	pool   *recordingPool
	prober *fakeProber
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	ts := &testServer{
		store:  jobstore.NewMemoryStore(),
		pool:   &recordingPool{},
		prober: &fakeProber{meta: videoMeta()},
	}
	ts.api = &API{
		ctx:             context.Background(),
		store:           ts.store,
		prober:          ts.prober,
		pool:            ts.pool,
		logger:          logging.NewNopLogger(),
		uploadDir:       filepath.Join(dir, "uploads"),
		outputDir:       filepath.Join(dir, "outputs"),
		maxUploadSize:   10 << 20,
		defaultLanguage: "vi",
		defaultQuality:  transcoder.DefaultQuality,
	}
	ts.router = setupRouter(ts.api, logging.NewNopLogger(), middleware.NewRateLimiter(1000, 1000))
	return ts
}

func uploadRequest(t *testing.T, filename string, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("video", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake video bytes"))
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

type fakeMonitor struct {
	status string
}

func (m fakeMonitor) Snapshot() monitoring.Snapshot {
	return monitoring.Snapshot{QueuedJobs: 2, Workers: 1}
}
func (m fakeMonitor) SystemHealth() string { return m.status }
func (m fakeMonitor) Alerts() []string     { return []string{"Low disk space"} }

func TestHealthCheckReportsMonitor(t *testing.T) {
	ts := newTestServer(t)

	ts.api.monitor = fakeMonitor{status: monitoring.HealthWarning}
	w := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queued_jobs":2`)
	assert.Contains(t, w.Body.String(), monitoring.HealthWarning)

	ts.api.monitor = fakeMonitor{status: monitoring.HealthCritical}
	w = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Low disk space")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	w := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "subburn_http_requests_total")
}

func TestCreateJob(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(uploadRequest(t, "lecture.mp4", map[string]string{"language": "en", "quality": "high"}))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job models.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, models.JobStatusInit, job.Status)
	assert.Equal(t, "en", job.Language)
	assert.Equal(t, transcoder.QualityHigh, job.Quality)
	assert.Equal(t, filepath.Join(ts.api.uploadDir, job.ID, "lecture.mp4"), job.InputVideoPath)
	assert.Equal(t, filepath.Join(ts.api.outputDir, job.ID, "lecture.srt"), job.SubtitlePath)
	assert.Equal(t, filepath.Join(ts.api.outputDir, job.ID, "lecture_subtitled.mp4"), job.OutputVideoPath)
	assert.FileExists(t, job.InputVideoPath)

	require.Len(t, ts.pool.jobs, 1)
	assert.Equal(t, job.ID, ts.pool.jobs[0].ID)

	stored, err := ts.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInit, stored.Status)
}

func TestCreateJobDefaults(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(uploadRequest(t, "../../etc/clip.mkv", nil))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job models.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, "vi", job.Language)
	assert.Equal(t, transcoder.QualityMedium, job.Quality)
	assert.Equal(t, filepath.Join(ts.api.uploadDir, job.ID, "clip.mkv"), job.InputVideoPath)
}

func TestCreateJobUnknownQualityUsesMedium(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(uploadRequest(t, "lecture.mp4", map[string]string{"quality": "4k"}))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job models.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, transcoder.QualityMedium, job.Quality)
	require.Len(t, ts.pool.jobs, 1)
	assert.Equal(t, transcoder.QualityMedium, ts.pool.jobs[0].Quality)
}

func TestCreateJobRejects(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		fields   map[string]string
		prober   *fakeProber
	}{
		{"missing file", "", nil, nil},
		{"probe failure", "a.mp4", nil, &fakeProber{err: errors.New("invalid data")}},
		{"no video stream", "a.mp3", nil, &fakeProber{meta: &transcoder.VideoMetadata{
			Streams: []transcoder.StreamInfo{{CodecType: "audio"}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.prober != nil {
				ts.api.prober = tt.prober
			}

			w := ts.do(uploadRequest(t, tt.filename, tt.fields))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, ts.pool.jobs)

			entries, _ := os.ReadDir(ts.api.uploadDir)
			assert.Empty(t, entries, "rejected uploads are removed")
		})
	}
}

func TestGetJob(t *testing.T) {
	ts := newTestServer(t)
	job := &models.Job{ID: "job-1", Status: models.JobStatusTranscribed}
	require.NoError(t, ts.store.Save(context.Background(), job))

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.JobStatusTranscribed)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobs(t *testing.T) {
	ts := newTestServer(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, ts.store.Save(context.Background(), &models.Job{ID: id, Status: models.JobStatusInit}))
	}

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Jobs  []models.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloads(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()

	srt := filepath.Join(dir, "clip.srt")
	video := filepath.Join(dir, "clip_subtitled.mp4")
	require.NoError(t, os.WriteFile(srt, []byte("1\n00:00:00,000 --> 00:00:01,000\nHi\n\n"), 0644))
	require.NoError(t, os.WriteFile(video, []byte("video"), 0644))

	jobs := []*models.Job{
		{ID: "done", Status: models.JobStatusBurned, SubtitlePath: srt, OutputVideoPath: video},
		{ID: "running", Status: models.JobStatusSubtitleWritten, SubtitlePath: srt, OutputVideoPath: video},
		{ID: "silent", Status: models.JobStatusSkippedNoSpeech, SubtitlePath: filepath.Join(dir, "none.srt")},
	}
	for _, job := range jobs {
		require.NoError(t, ts.store.Save(context.Background(), job))
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/jobs/done/video", http.StatusOK},
		{"/api/v1/jobs/done/subtitles", http.StatusOK},
		{"/api/v1/jobs/running/video", http.StatusConflict},
		{"/api/v1/jobs/running/subtitles", http.StatusConflict},
		{"/api/v1/jobs/silent/video", http.StatusNotFound},
		{"/api/v1/jobs/silent/subtitles", http.StatusNotFound},
		{"/api/v1/jobs/missing/video", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := ts.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/done/subtitles", nil))
	assert.Contains(t, w.Body.String(), "00:00:00,000 --> 00:00:01,000")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "clip.srt")
}

func TestUploadName(t *testing.T) {
	assert.Equal(t, "clip.mp4", uploadName("clip.mp4"))
	assert.Equal(t, "clip.mp4", uploadName("/tmp/../clip.mp4"))
	assert.Equal(t, "clip.mp4", uploadName(`C:\Users\me\clip.mp4`))
	assert.Equal(t, "video.mp4", uploadName(".."))
	assert.Equal(t, "video.mp4", uploadName(""))
}
