// internal/submit/http.go
//
// JSON POST sink.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP POSTs the envelope as JSON to URL.  Any 2xx response is success;
// anything else is an error carrying the status code.
type HTTP struct {
	URL     string
	Client  *http.Client      // nil → 10 s timeout client
	Headers map[string]string // extra request headers
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Submission failed: %d", e.StatusCode)
}

var defaultClient = &http.Client{Timeout: 10 * time.Second}

// Submit implements Sink.
func (h *HTTP) Submit(ctx context.Context, env Envelope) error {
	if h.URL == "" {
		return fmt.Errorf("submit: http sink has no URL")
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("submit: encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	cl := h.Client
	if cl == nil {
		cl = defaultClient
	}
	resp, err := cl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: h.URL, StatusCode: resp.StatusCode}
	}
	return nil
}
