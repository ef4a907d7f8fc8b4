package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/billtruong003/video-to-subtitle-converter/internal/metrics"
	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

// Webhook event names
const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

const maxResponseBody = 4096

// Event is the JSON body posted to the webhook URL
type Event struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      *models.Job `json:"data"`
}

// Config holds webhook delivery settings
type Config struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	RetryDelays []time.Duration
}

// DefaultMaxRetries is the number of redeliveries after a failed attempt
const DefaultMaxRetries = 3

// DefaultRetryDelays returns the waits between delivery attempts
func DefaultRetryDelays() []time.Duration {
	return BackoffDelays(DefaultMaxRetries)
}

// BackoffDelays returns retries waits starting at one second and growing
// fivefold
func BackoffDelays(retries int) []time.Duration {
	delays := make([]time.Duration, 0, retries)
	delay := time.Second
	for i := 0; i < retries; i++ {
		delays = append(delays, delay)
		delay *= 5
	}
	return delays
}

// Service delivers job notifications with retries
type Service struct {
	client *http.Client
	cfg    Config
	wg     sync.WaitGroup
}

// NewService creates a new webhook service
func NewService(cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryDelays == nil {
		cfg.RetryDelays = DefaultRetryDelays()
	}
	return &Service{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg: cfg,
	}
}

// Enabled reports whether a URL is configured
func (s *Service) Enabled() bool {
	return s != nil && s.cfg.URL != ""
}

// Notify sends a notification for the job in the background. Delivery
// continues after ctx is canceled.
func (s *Service) Notify(ctx context.Context, event string, job *models.Job) error {
	if !s.Enabled() {
		return nil
	}

	payload, err := json.Marshal(Event{
		Event:     event,
		Timestamp: time.Now(),
		Data:      job,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	deliveryID := uuid.New().String()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(context.WithoutCancel(ctx), deliveryID, event, payload)
	}()

	return nil
}

// Wait blocks until in-flight deliveries finish
func (s *Service) Wait() {
	s.wg.Wait()
}

// deliver posts the payload until it is accepted or retries run out
func (s *Service) deliver(ctx context.Context, deliveryID, event string, payload []byte) error {
	logger := log.With().Str("delivery_id", deliveryID).Str("event", event).Logger()

	var lastErr error
	for attempt := 0; attempt <= len(s.cfg.RetryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetryDelays[attempt-1]):
			}
		}

		statusCode, err := s.send(ctx, deliveryID, event, payload)
		if err == nil {
			logger.Debug().Int("status", statusCode).Int("attempt", attempt+1).Msg("Webhook delivered")
			return nil
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Webhook delivery failed")
	}

	metrics.RecordError("webhook", "delivery_failed")
	logger.Error().Err(lastErr).Msg("Webhook delivery abandoned")
	return lastErr
}

func (s *Service) send(ctx context.Context, deliveryID, event string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Subburn-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Delivery", deliveryID)

	if s.cfg.Secret != "" {
		req.Header.Set("X-Webhook-Signature", generateSignature(payload, s.cfg.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	return resp.StatusCode, nil
}

// generateSignature generates HMAC-SHA256 signature for webhook payload
func generateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// JobRecorder persists job state transitions
type JobRecorder interface {
	Save(ctx context.Context, job *models.Job) error
}

// Recorder forwards saves and notifies once a job reaches a terminal state
type Recorder struct {
	next    JobRecorder
	service *Service
}

// NewRecorder wraps next with terminal-state notifications
func NewRecorder(next JobRecorder, service *Service) *Recorder {
	return &Recorder{next: next, service: service}
}

// Save persists the job and sends a notification for terminal states
func (r *Recorder) Save(ctx context.Context, job *models.Job) error {
	err := r.next.Save(ctx, job)

	if job.IsTerminal() {
		event := EventJobCompleted
		if job.Status == models.JobStatusFailed {
			event = EventJobFailed
		}
		snapshot := *job
		if notifyErr := r.service.Notify(ctx, event, &snapshot); notifyErr != nil {
			log.Warn().Err(notifyErr).Str("job_id", job.ID).Msg("Failed to queue webhook")
		}
	}

	return err
}
