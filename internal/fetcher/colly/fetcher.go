// Package collyfetcher fetches pages with gocolly, including form POSTs and
// legacy charsets.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/JakeFAU/pagecrawl/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Request describes one fetch. An empty Method means GET; a non-nil Form is
// sent as an application/x-www-form-urlencoded POST body.
type Request struct {
	URL     string
	Method  string
	Form    url.Values
	Headers http.Header
	// Charset decodes the response body to UTF-8, e.g. "euc-jp".
	Charset string
	// FormCharset encodes Form values before escaping. Empty means UTF-8.
	FormCharset string
}

// Response is a fetched page. URL is the final URL after redirects.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Fetcher runs requests on clones of a shared base collector.
type Fetcher struct {
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	// Clones share the base http.Client, so the timeout is set only here.
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{logger: logger, baseCollector: c}
}

// Fetch performs the request and returns the whole body.
func (f *Fetcher) Fetch(ctx context.Context, request Request) (Response, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
		if request.Form != nil {
			method = http.MethodPost
		}
	}
	body, err := encodeForm(request.Form, request.FormCharset)
	if err != nil {
		return Response{}, err
	}

	var (
		result   Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, request, start, &result, &fetchErr)

	headers := request.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if request.Form != nil {
		headers.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	done := make(chan error, 1)
	go func() {
		var reader io.Reader
		if request.Form != nil {
			reader = strings.NewReader(body)
		}
		done <- collector.Request(method, request.URL, reader, nil, headers)
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			metrics.ObserveFetch(request.URL, statusOf(fetchErr), 0)
			return Response{}, fetchErr
		}
		if err != nil {
			metrics.ObserveFetch(request.URL, 0, 0)
			return Response{}, fmt.Errorf("colly visit failed: %w", err)
		}
	}
	metrics.ObserveFetch(result.URL, result.StatusCode, int64(len(result.Body)))
	f.logger.Debug("fetched",
		zap.String("method", method),
		zap.String("url", request.URL),
		zap.String("final_url", result.URL),
		zap.Int("status", result.StatusCode),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request Request,
	start time.Time,
	result *Response,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request Request,
	start time.Time,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if request.Charset != "" {
			r.ResponseCharacterEncoding = request.Charset
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			finalURL := request.URL
			if r.Request != nil && r.Request.URL != nil {
				finalURL = r.Request.URL.String()
			}
			*fetchErr = &StatusError{URL: finalURL, StatusCode: r.StatusCode}
			return
		}
		*fetchErr = fmt.Errorf("colly response failed: %w", err)
	})
}

// encodeForm url-encodes form, first converting keys and values to charset.
func encodeForm(form url.Values, charset string) (string, error) {
	if form == nil {
		return "", nil
	}
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		return form.Encode(), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", fmt.Errorf("form charset %q: %w", charset, err)
	}
	encoder := enc.NewEncoder()
	converted := url.Values{}
	for key, values := range form {
		k, err := encoder.String(key)
		if err != nil {
			return "", fmt.Errorf("encode form key %q: %w", key, err)
		}
		for _, v := range values {
			ev, err := encoder.String(v)
			if err != nil {
				return "", fmt.Errorf("encode form value for %q: %w", key, err)
			}
			converted.Add(k, ev)
		}
	}
	return converted.Encode(), nil
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
