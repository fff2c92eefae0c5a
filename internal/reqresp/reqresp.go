// Package reqresp serves canned responses for http tests
package reqresp

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"testing"
)

type ReqResp struct {
	ReqEntry  ReqEntry
	RespEntry RespEntry
}

type ReqEntry struct {
	Name     string
	DelOnUse bool
	Method   string
	Path     string
	Query    map[string][]string
	Headers  http.Header
	Body     []byte
}

type RespEntry struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Handler is an http.Handler that also counts the requests it served
type Handler struct {
	t     *testing.T
	mu    sync.Mutex
	rrs   []ReqResp
	count map[string]int
}

func NewHandler(t *testing.T, rrs []ReqResp) *Handler {
	return &Handler{
		t:     t,
		rrs:   append([]ReqResp{}, rrs...),
		count: map[string]int{},
	}
}

// Count returns the number of requests received for a path, or all paths when empty
func (r *Handler) Count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if path != "" {
		return r.count[path]
	}
	total := 0
	for _, c := range r.count {
		total += c
	}
	return total
}

// return false if any item in a is not found in b
func strMapMatch(a, b map[string][]string) bool {
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		for _, ave := range av {
			found := false
			for _, bve := range bv {
				if ave == bve {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func (r *Handler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count[req.URL.Path]++
	reqBody, err := io.ReadAll(req.Body)
	if err != nil {
		r.t.Errorf("Error reading request body: %v", err)
		rw.WriteHeader(http.StatusInternalServerError)
		_, _ = rw.Write([]byte("Error reading request body"))
		return
	}
	for i, rr := range r.rrs {
		reqMatch := rr.ReqEntry
		if reqMatch.Method != req.Method ||
			reqMatch.Path != req.URL.Path ||
			!strMapMatch(reqMatch.Query, req.URL.Query()) ||
			!strMapMatch(reqMatch.Headers, req.Header) ||
			!bytes.Equal(reqMatch.Body, reqBody) {
			// skip if any field does not match
			continue
		}

		// respond
		r.t.Logf("Sending response %s", reqMatch.Name)
		rwHeader := rw.Header()
		for k, v := range rr.RespEntry.Headers {
			rwHeader[k] = v
		}
		if rr.RespEntry.Status != 0 {
			rw.WriteHeader(rr.RespEntry.Status)
		}
		_, _ = io.Copy(rw, bytes.NewReader(rr.RespEntry.Body))

		// for single use test cases, delete this entry
		if reqMatch.DelOnUse {
			r.rrs = append(r.rrs[:i], r.rrs[i+1:]...)
		}
		return
	}
	r.t.Errorf("Unhandled request: %s %s", req.Method, req.URL.String())
	rw.WriteHeader(http.StatusInternalServerError)
	_, _ = rw.Write([]byte("Unsupported request"))
}
