package crawler

import (
	"fmt"
	"net/http"
	"time"
)

// DefaultAccept prefers HTML, then plain text, then any other text type.
const DefaultAccept = "text/html, text/plain;q=0.8, text/*;q=0.7"

// Outcome classifies how a crawl attempt ended.
type Outcome string

// Crawl attempt outcomes.
const (
	OutcomeIdle            Outcome = "idle"
	OutcomeIndexed         Outcome = "indexed"
	OutcomeRedirected      Outcome = "redirected"
	OutcomeRobotsDenied    Outcome = "robots_denied"
	OutcomeContentRejected Outcome = "content_rejected"
	OutcomeFailed          Outcome = "failed"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the raw result of a single GET. Redirects are not
// followed, so a 3xx response carries its Location header.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// IsRedirect reports whether the response is a 3xx.
func (r FetchResponse) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// IsSuccess reports whether the response is a 2xx.
func (r FetchResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError reports a response that was neither 2xx nor 3xx.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}
