package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ondamlab/yesterday/internal/domain"
)

// fcmChunkSize is the delivery service's per-request message limit.
const fcmChunkSize = 500

// FCMSender delivers notifications through an FCM-compatible HTTP endpoint.
// Batches larger than the per-request limit are split into chunks; a failed
// chunk does not abort the remaining ones.
type FCMSender struct {
	endpoint   string
	serverKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFCMSender creates a sender for the given endpoint and server key.
func NewFCMSender(endpoint, serverKey string, timeout time.Duration, logger *slog.Logger) *FCMSender {
	return &FCMSender{
		endpoint:   endpoint,
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type fcmMessage struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmRequest struct {
	Messages []fcmMessage `json:"messages"`
}

type fcmResponse struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// Send posts the batch in chunks and sums the per-chunk success counts. The
// returned error is the last chunk failure, if any.
func (s *FCMSender) Send(ctx context.Context, batch []domain.Notification) (int, error) {
	var sent int
	var lastErr error

	for start := 0; start < len(batch); start += fcmChunkSize {
		end := min(start+fcmChunkSize, len(batch))
		n, err := s.sendChunk(ctx, batch[start:end])
		sent += n
		if err != nil {
			s.logger.Error("push chunk failed", "chunk_start", start, "chunk_size", end-start, "error", err)
			lastErr = err
		}
	}
	return sent, lastErr
}

func (s *FCMSender) sendChunk(ctx context.Context, chunk []domain.Notification) (int, error) {
	req := fcmRequest{Messages: make([]fcmMessage, len(chunk))}
	for i, n := range chunk {
		req.Messages[i] = fcmMessage{Token: n.Destination, Title: n.Title, Body: n.Body}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal push chunk: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create push request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "key="+s.serverKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("push endpoint: status %d", resp.StatusCode)
	}

	var result fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode push response: %w", err)
	}
	if result.FailureCount > 0 {
		s.logger.Warn("push chunk partially failed",
			"success", result.SuccessCount, "failure", result.FailureCount)
	}
	return result.SuccessCount, nil
}
