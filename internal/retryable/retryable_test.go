package retryable

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iiif-archive/iiifarchive/internal/reqresp"
	"github.com/iiif-archive/iiifarchive/types"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tt := []struct {
		status int
		expect Outcome
	}{
		{status: 200, expect: OutcomeSuccess},
		{status: 204, expect: OutcomeSuccess},
		{status: 299, expect: OutcomeSuccess},
		{status: 301, expect: OutcomePermanent},
		{status: 401, expect: OutcomePermanent},
		{status: 404, expect: OutcomePermanent},
		{status: 429, expect: OutcomePermanent},
		{status: 500, expect: OutcomePermanent},
		{status: 501, expect: OutcomePermanent},
		{status: 502, expect: OutcomeTransient},
		{status: 503, expect: OutcomeTransient},
		{status: 504, expect: OutcomeTransient},
		{status: 505, expect: OutcomePermanent},
	}
	for _, tc := range tt {
		if result := Classify(tc.status); result != tc.expect {
			t.Errorf("status %d: expected %s, received %s", tc.status, tc.expect, result)
		}
	}
}

func TestGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	body := []byte("tile data")
	rrs := []reqresp.ReqResp{
		{
			ReqEntry: reqresp.ReqEntry{
				Name:     "flaky 502",
				DelOnUse: true,
				Method:   "GET",
				Path:     "/flaky",
			},
			RespEntry: reqresp.RespEntry{
				Status: http.StatusBadGateway,
			},
		},
		{
			ReqEntry: reqresp.ReqEntry{
				Name:     "flaky 503",
				DelOnUse: true,
				Method:   "GET",
				Path:     "/flaky",
			},
			RespEntry: reqresp.RespEntry{
				Status: http.StatusServiceUnavailable,
			},
		},
		{
			ReqEntry: reqresp.ReqEntry{
				Name:   "flaky ok",
				Method: "GET",
				Path:   "/flaky",
			},
			RespEntry: reqresp.RespEntry{
				Status: http.StatusOK,
				Body:   body,
			},
		},
		{
			ReqEntry: reqresp.ReqEntry{
				Name:   "missing",
				Method: "GET",
				Path:   "/missing",
			},
			RespEntry: reqresp.RespEntry{
				Status: http.StatusNotFound,
			},
		},
		{
			ReqEntry: reqresp.ReqEntry{
				Name:   "down",
				Method: "GET",
				Path:   "/down",
			},
			RespEntry: reqresp.RespEntry{
				Status: http.StatusGatewayTimeout,
			},
		},
		{
			ReqEntry: reqresp.ReqEntry{
				Name:   "agent",
				Method: "GET",
				Path:   "/agent",
				Headers: http.Header{
					"User-Agent": {"iiifarchive-test"},
					"Accept":     {"application/json"},
				},
			},
			RespEntry: reqresp.RespEntry{
				Status: http.StatusOK,
				Body:   []byte("{}"),
			},
		},
	}
	h := reqresp.NewHandler(t, rrs)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	r := New(WithDelay(0), WithLimit(3), WithUserAgent("iiifarchive-test"))

	t.Run("retry transient", func(t *testing.T) {
		resp, err := r.Get(ctx, ts.URL+"/flaky")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		defer resp.Close()
		b, err := io.ReadAll(resp)
		if err != nil {
			t.Fatalf("failed to read: %v", err)
		}
		if string(b) != string(body) {
			t.Errorf("body mismatch, expected %s, received %s", body, b)
		}
		if resp.Attempts() != 3 {
			t.Errorf("attempts, expected 3, received %d", resp.Attempts())
		}
		if resp.HTTPResponse().StatusCode != http.StatusOK {
			t.Errorf("unexpected status %d", resp.HTTPResponse().StatusCode)
		}
	})
	t.Run("permanent not retried", func(t *testing.T) {
		_, err := r.Get(ctx, ts.URL+"/missing")
		if !errors.Is(err, types.ErrPermanentFetch) {
			t.Fatalf("expected permanent failure, received %v", err)
		}
		var fe *types.FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("error is not a FetchError: %v", err)
		}
		if fe.Status != http.StatusNotFound || fe.Attempts != 1 || fe.URL != ts.URL+"/missing" {
			t.Errorf("unexpected error fields: %#v", fe)
		}
		if c := h.Count("/missing"); c != 1 {
			t.Errorf("request count, expected 1, received %d", c)
		}
	})
	t.Run("transient exhausted", func(t *testing.T) {
		_, err := r.Get(ctx, ts.URL+"/down")
		if !errors.Is(err, types.ErrTransientFetch) {
			t.Fatalf("expected transient failure, received %v", err)
		}
		var fe *types.FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("error is not a FetchError: %v", err)
		}
		if fe.Status != http.StatusGatewayTimeout || fe.Attempts != 3 {
			t.Errorf("unexpected error fields: %#v", fe)
		}
		if c := h.Count("/down"); c != 3 {
			t.Errorf("request count, expected 3, received %d", c)
		}
	})
	t.Run("headers", func(t *testing.T) {
		resp, err := r.Get(ctx, ts.URL+"/agent", WithHeader("Accept", []string{"application/json"}))
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		_ = resp.Close()
	})
}

func TestGetTransportError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.NotFoundHandler())
	u := ts.URL + "/gone"
	ts.Close()
	r := New(WithDelay(0), WithLimit(2))
	_, err := r.Get(context.Background(), u)
	if !errors.Is(err, types.ErrTransientFetch) {
		t.Fatalf("expected transient failure, received %v", err)
	}
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.Attempts != 2 {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGetCanceled(t *testing.T) {
	t.Parallel()
	rrs := []reqresp.ReqResp{
		{
			ReqEntry:  reqresp.ReqEntry{Method: "GET", Path: "/busy"},
			RespEntry: reqresp.RespEntry{Status: http.StatusServiceUnavailable},
		},
	}
	ts := httptest.NewServer(reqresp.NewHandler(t, rrs))
	t.Cleanup(ts.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r := New(WithDelay(time.Minute), WithLimit(5))
	start := time.Now()
	_, err := r.Get(ctx, ts.URL+"/busy")
	if !errors.Is(err, types.ErrCanceled) {
		t.Errorf("expected canceled, received %v", err)
	}
	if time.Since(start) > 30*time.Second {
		t.Errorf("cancel did not interrupt the retry delay")
	}
}

func TestGetRetryAfter(t *testing.T) {
	t.Parallel()
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(ts.Close)
	r := New(WithDelay(0), WithDelayMax(20*time.Millisecond), WithTransport(&http.Transport{}))
	start := time.Now()
	resp, err := r.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	defer resp.Close()
	elapsed := time.Since(start)
	if elapsed < 20*time.Millisecond || elapsed > 10*time.Second {
		t.Errorf("retry after not capped by delay max, waited %s", elapsed)
	}
	if resp.Attempts() != 2 {
		t.Errorf("expected 2 attempts, received %d", resp.Attempts())
	}
}

func TestGetProgressCB(t *testing.T) {
	t.Parallel()
	body := []byte("a tile of some length")
	rrs := []reqresp.ReqResp{
		{
			ReqEntry:  reqresp.ReqEntry{Method: "GET", Path: "/tile"},
			RespEntry: reqresp.RespEntry{Status: http.StatusOK, Body: body},
		},
	}
	ts := httptest.NewServer(reqresp.NewHandler(t, rrs))
	t.Cleanup(ts.Close)
	var last int64
	r := New(WithDelay(0))
	resp, err := r.Get(context.Background(), ts.URL+"/tile", WithProgressCB(func(n int64, _ error) { last = n }))
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	defer resp.Close()
	if _, err := io.ReadAll(resp); err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if last != int64(len(body)) {
		t.Errorf("expected progress %d, received %d", len(body), last)
	}
}
