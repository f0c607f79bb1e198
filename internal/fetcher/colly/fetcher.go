// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/crawlsearch/internal/crawler"
)

const defaultTimeout = 5 * time.Second

var errNoResponse = errors.New("colly fetch produced no response")

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Accept      string
	Timeout     time.Duration
	MaxBodySize int
}

// Fetcher issues one GET per call through a cloned Colly collector. It never
// follows redirects and never consults robots.txt itself.
type Fetcher struct {
	accept   string
	template *colly.Collector
}

// hookRegistrar is the callback surface of *colly.Collector used per visit.
type hookRegistrar interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	accept := cfg.Accept
	if accept == "" {
		accept = crawler.DefaultAccept
	}

	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	if cfg.MaxBodySize > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodySize))
	}
	template := colly.NewCollector(opts...)
	template.WithTransport(transport())
	template.SetRequestTimeout(timeout)
	template.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
	return &Fetcher{accept: accept, template: template}
}

// Fetch executes a single GET. Non-2xx statuses are returned as responses,
// not errors.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	v := &visit{accept: f.accept, request: request, started: time.Now()}
	c := f.template.Clone()
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.AllowURLRevisit = true
	v.register(c)

	done := make(chan error, 1)
	go func() { done <- c.Visit(request.URL) }()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		return v.outcome(err)
	}
}

// visit accumulates the callbacks of one collector run.
type visit struct {
	accept  string
	request crawler.FetchRequest
	started time.Time

	resp    crawler.FetchResponse
	failure error
}

func (v *visit) register(hooks hookRegistrar) {
	hooks.OnRequest(v.prepare)
	hooks.OnResponse(v.capture)
	hooks.OnError(func(_ *colly.Response, err error) { v.failure = err })
}

func (v *visit) prepare(r *colly.Request) {
	r.Headers.Set("Accept", v.accept)
	for key, values := range v.request.Headers {
		r.Headers.Del(key)
		for _, value := range values {
			r.Headers.Add(key, value)
		}
	}
}

func (v *visit) capture(r *colly.Response) {
	headers := http.Header{}
	if r.Headers != nil {
		headers = r.Headers.Clone()
	}
	v.resp = crawler.FetchResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(v.started),
	}
}

func (v *visit) outcome(visitErr error) (crawler.FetchResponse, error) {
	switch {
	case v.failure != nil:
		return crawler.FetchResponse{}, fmt.Errorf("colly response failed: %w", v.failure)
	case visitErr != nil:
		return crawler.FetchResponse{}, fmt.Errorf("colly visit failed: %w", visitErr)
	case v.resp.StatusCode == 0:
		return crawler.FetchResponse{}, errNoResponse
	}
	return v.resp, nil
}

func transport() *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
