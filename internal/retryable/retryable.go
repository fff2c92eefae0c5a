// Package retryable wraps an http client with a bounded retry loop
package retryable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iiif-archive/iiifarchive/types"
)

// Retryable is used to create requests with built in retry capabilities
type Retryable interface {
	Get(ctx context.Context, u string, opts ...OptsReq) (Response, error)
}

// Response is used to handle the result of a request
type Response interface {
	io.ReadCloser
	HTTPResponse() *http.Response
	Attempts() int
}

// Outcome is the classification of a response status
type Outcome int

const (
	// OutcomeSuccess is any 2xx status
	OutcomeSuccess Outcome = iota
	// OutcomeTransient may succeed when retried
	OutcomeTransient
	// OutcomePermanent will not be retried
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	}
	return "permanent"
}

// Classify maps a status code to an outcome.
// Only gateway errors are retried, everything else outside of 2xx fails immediately.
func Classify(status int) Outcome {
	switch {
	case 200 <= status && status < 300:
		return OutcomeSuccess
	case status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return OutcomeTransient
	}
	return OutcomePermanent
}

// Opts injects options into New
type Opts func(*retryable)

// OptsReq injects options into Get
type OptsReq func(*request)

type retryable struct {
	httpClient *http.Client
	limit      int
	delay      time.Duration
	delayMax   time.Duration
	log        *logrus.Logger
	useragent  string
}

const (
	defaultDelay = 5 * time.Second
	defaultLimit = 3
)

// New returns a retryable interface
func New(opts ...Opts) Retryable {
	r := &retryable{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		limit: defaultLimit,
		delay: defaultDelay,
		log:   &logrus.Logger{Out: io.Discard},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.delayMax < r.delay {
		r.delayMax = r.delay * 12
	}
	return r
}

// WithDelay sets the time to wait between attempts, zero retries immediately
func WithDelay(delay time.Duration) Opts {
	return func(r *retryable) {
		if delay >= 0 {
			r.delay = delay
		}
	}
}

// WithDelayMax caps the wait requested by a Retry-After header
func WithDelayMax(delayMax time.Duration) Opts {
	return func(r *retryable) {
		r.delayMax = delayMax
	}
}

// WithHTTPClient uses a specific http client with retryable requests
func WithHTTPClient(h *http.Client) Opts {
	return func(r *retryable) {
		if h != nil {
			r.httpClient = h
		}
	}
}

// WithLimit sets the number of attempts for transient failures (defaults to 3)
func WithLimit(l int) Opts {
	return func(r *retryable) {
		if l > 0 {
			r.limit = l
		}
	}
}

// WithLog injects a logrus Logger configuration
func WithLog(log *logrus.Logger) Opts {
	return func(r *retryable) {
		r.log = log
	}
}

// WithTransport uses a specific http transport with retryable requests
func WithTransport(t *http.Transport) Opts {
	return func(r *retryable) {
		r.httpClient = &http.Client{Transport: t}
	}
}

// WithUserAgent sets a user agent header
func WithUserAgent(ua string) Opts {
	return func(r *retryable) {
		r.useragent = ua
	}
}

type request struct {
	r          *retryable
	context    context.Context
	url        string
	header     http.Header
	attempts   int
	nextDelay  time.Duration
	resp       *http.Response
	curRead    int64
	progressCB func(int64, error)
	log        *logrus.Logger
}

// Get requests u until a success, a permanent failure, or the attempt limit.
// Failures are returned as a *types.FetchError.
func (r *retryable) Get(ctx context.Context, u string, opts ...OptsReq) (Response, error) {
	req := &request{
		r:       r,
		context: ctx,
		url:     u,
		header:  http.Header{},
		log:     r.log,
	}
	for _, opt := range opts {
		opt(req)
	}
	err := req.retryLoop()
	if err != nil {
		return nil, err
	}
	return req, nil
}

// WithHeader sets a header
func WithHeader(key string, values []string) OptsReq {
	return func(req *request) {
		for _, v := range values {
			req.header.Add(key, v)
		}
	}
}

// WithProgressCB calls the CB function as data is received
func WithProgressCB(cb func(int64, error)) OptsReq {
	return func(req *request) {
		req.progressCB = cb
	}
}

func (req *request) retryLoop() error {
	var lastErr error
	lastStatus := 0
	for req.attempts < req.r.limit {
		if req.attempts > 0 {
			if err := req.sleep(); err != nil {
				return &types.FetchError{URL: req.url, Status: lastStatus, Attempts: req.attempts, Err: err}
			}
		}
		req.attempts++
		resp, err := req.httpDo()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || req.context.Err() != nil {
				return &types.FetchError{URL: req.url, Attempts: req.attempts, Err: fmt.Errorf("%w: %w", types.ErrCanceled, err)}
			}
			req.log.WithFields(logrus.Fields{
				"url":     req.url,
				"attempt": req.attempts,
				"err":     err,
			}).Warn("Request failed")
			lastErr, lastStatus = err, 0
			continue
		}
		switch Classify(resp.StatusCode) {
		case OutcomeSuccess:
			req.resp = resp
			return nil
		case OutcomeTransient:
			req.log.WithFields(logrus.Fields{
				"url":     req.url,
				"attempt": req.attempts,
				"status":  resp.Status,
			}).Warn("Server unavailable")
			req.retryAfter(resp)
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr, lastStatus = nil, resp.StatusCode
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			req.log.WithFields(logrus.Fields{
				"url":    req.url,
				"status": resp.Status,
				"body":   string(body),
			}).Debug("Unexpected status")
			return &types.FetchError{URL: req.url, Status: resp.StatusCode, Attempts: req.attempts, Err: types.ErrPermanentFetch}
		}
	}
	err := types.ErrTransientFetch
	if lastErr != nil {
		err = fmt.Errorf("%w: %w", types.ErrTransientFetch, lastErr)
	}
	return &types.FetchError{URL: req.url, Status: lastStatus, Attempts: req.attempts, Err: err}
}

// retryAfter extends the next delay when the server asks for it
func (req *request) retryAfter(resp *http.Response) {
	req.nextDelay = 0
	sec, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || sec <= 0 {
		return
	}
	req.nextDelay = min(time.Duration(sec)*time.Second, req.r.delayMax)
}

func (req *request) sleep() error {
	sleepTime := max(req.r.delay, req.nextDelay)
	req.nextDelay = 0
	if sleepTime <= 0 {
		if err := req.context.Err(); err != nil {
			return fmt.Errorf("%w: %w", types.ErrCanceled, err)
		}
		return nil
	}
	req.log.WithFields(logrus.Fields{
		"url":     req.url,
		"seconds": sleepTime.Seconds(),
	}).Debug("Sleeping before retry")
	select {
	case <-req.context.Done():
		return fmt.Errorf("%w: %w", types.ErrCanceled, req.context.Err())
	case <-time.After(sleepTime):
	}
	return nil
}

func (req *request) httpDo() (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(req.context, http.MethodGet, req.url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range req.header {
		httpReq.Header[k] = v
	}
	if req.r.useragent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", req.r.useragent)
	}
	req.log.WithFields(logrus.Fields{
		"url":     req.url,
		"attempt": req.attempts,
	}).Debug("Sending request")
	return req.r.httpClient.Do(httpReq)
}

func (req *request) Read(b []byte) (int, error) {
	if req.resp == nil {
		return 0, types.ErrNotFound
	}
	i, err := req.resp.Body.Read(b)
	req.curRead += int64(i)
	if req.progressCB != nil {
		req.progressCB(req.curRead, err)
	}
	return i, err
}

func (req *request) Close() error {
	if req.resp == nil {
		return types.ErrNotFound
	}
	return req.resp.Body.Close()
}

func (req *request) HTTPResponse() *http.Response {
	return req.resp
}

func (req *request) Attempts() int {
	return req.attempts
}
