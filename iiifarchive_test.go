package iiifarchive

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iiif-archive/iiifarchive/config"
	"github.com/iiif-archive/iiifarchive/internal/reqresp"
	"github.com/iiif-archive/iiifarchive/pkg/archive"
	"github.com/iiif-archive/iiifarchive/types"
	"github.com/iiif-archive/iiifarchive/types/imageservice"
	"github.com/iiif-archive/iiifarchive/types/manifest"
)

const serverPlaceholder = "SERVER"

var (
	rawManifest = `{
		"@context": "http://iiif.io/api/presentation/2/context.json",
		"@id": "SERVER/iiif/book/manifest.json",
		"@type": "sc:Manifest",
		"label": "Book",
		"sequences": [
			{
				"canvases": [
					{
						"@id": "SERVER/iiif/book/canvas/1",
						"label": "p. 1",
						"images": [
							{"resource": {"@id": "SERVER/images/page1.jpg", "format": "image/jpeg"}}
						]
					},
					{
						"@id": "SERVER/iiif/book/canvas/2",
						"label": "p. 2",
						"images": [
							{
								"resource": {
									"@id": "SERVER/iiif/page2/full/full/0/default.jpg",
									"service": {
										"@context": "http://iiif.io/api/image/2/context.json",
										"@id": "SERVER/iiif/page2",
										"profile": "http://iiif.io/api/image/2/level0.json"
									}
								}
							}
						]
					}
				]
			}
		]
	}`
	rawInfo = `{
		"@context": "http://iiif.io/api/image/2/context.json",
		"@id": "SERVER/iiif/page2",
		"protocol": "http://iiif.io/api/image",
		"width": 300,
		"height": 200,
		"tiles": [{"width": 256, "scaleFactors": [1, 2]}],
		"profile": ["http://iiif.io/api/image/2/level0.json"]
	}`
	rawComposite = `{
		"@context": "http://iiif.io/api/presentation/2/context.json",
		"@id": "SERVER/iiif/composite/manifest.json",
		"sequences": [
			{
				"canvases": [
					{
						"@id": "SERVER/iiif/composite/canvas/1",
						"images": [
							{"resource": {"@id": "SERVER/images/a.jpg"}},
							{"resource": {"@id": "SERVER/images/b.jpg"}}
						]
					}
				]
			}
		]
	}`
	tilePaths = []string{
		"0,0,256,200/256,/0/default.jpg",
		"256,0,44,200/44,/0/default.jpg",
		"full/150,/0/default.jpg",
	}
)

type testServer struct {
	*httptest.Server
	h *reqresp.Handler
}

// newTestServer serves rrs, replacing the placeholder in bodies with the server url
func newTestServer(t *testing.T, rrs []reqresp.ReqResp) *testServer {
	t.Helper()
	return newTestServerFunc(t, rrs, nil)
}

// newTestServerFunc also passes every request to before, when set, ahead of the canned handler
func newTestServerFunc(t *testing.T, rrs []reqresp.ReqResp, before func(*http.Request)) *testServer {
	t.Helper()
	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if before != nil {
			before(r)
		}
		ts.h.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	for i := range rrs {
		rrs[i].RespEntry.Body = bytes.ReplaceAll(rrs[i].RespEntry.Body, []byte(serverPlaceholder), []byte(ts.URL))
	}
	ts.h = reqresp.NewHandler(t, rrs)
	return ts
}

func get(name, path string, status int, body []byte) reqresp.ReqResp {
	return reqresp.ReqResp{
		ReqEntry: reqresp.ReqEntry{
			Name:   name,
			Method: http.MethodGet,
			Path:   path,
		},
		RespEntry: reqresp.RespEntry{
			Status: status,
			Body:   body,
		},
	}
}

// bookRRs serves the two canvas manifest, failFirstTile returns a 404 for the first tile
func bookRRs(failFirstTile bool) []reqresp.ReqResp {
	rrs := []reqresp.ReqResp{
		get("manifest", "/iiif/book/manifest.json", http.StatusOK, []byte(rawManifest)),
		get("page1", "/images/page1.jpg", http.StatusOK, []byte("page1 jpeg")),
		get("info", "/iiif/page2/info.json", http.StatusOK, []byte(rawInfo)),
	}
	for i, p := range tilePaths {
		status := http.StatusOK
		if failFirstTile && i == 0 {
			status = http.StatusNotFound
		}
		rrs = append(rrs, get("tile "+p, "/iiif/page2/"+p, status, []byte("tile "+p)))
	}
	return rrs
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ScratchDir:    filepath.Join(t.TempDir(), "scratch"),
		RetryLimit:    3,
		NoDelayLevel0: true,
	}
}

// readTree returns the content of every file below dir keyed by slash separated relative path
func readTree(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	files := map[string][]byte{}
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = b
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	return files
}

func testLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	log.SetOutput(os.Stderr)
	return log
}

func TestNew(t *testing.T) {
	t.Parallel()
	conf := testConfig(t)
	c := New(WithConfig(conf), WithUserAgent("test/1"))
	if c.Config() != conf {
		t.Errorf("config mismatch, expected %v, received %v", conf, c.Config())
	}
	if c.userAgent != "test/1" {
		t.Errorf("user agent, expected test/1, received %s", c.userAgent)
	}
	if c.throttle != nil {
		t.Errorf("throttle should be nil with a zero delay")
	}
	def := New()
	if def.Config() != config.Default() {
		t.Errorf("default config mismatch, received %v", def.Config())
	}
	if def.throttle.Delay() != time.Second {
		t.Errorf("default delay, received %s", def.throttle.Delay())
	}
}

func TestArchive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t, bookRRs(false))
	conf := testConfig(t)
	progress := []Progress{}
	c := New(WithConfig(conf), WithLog(testLog()), WithProgress(func(p Progress) {
		progress = append(progress, p)
	}))
	outDir := t.TempDir()
	out := filepath.Join(outDir, "book")
	zipPath, err := c.Archive(ctx, ts.URL+"/iiif/book/manifest.json", out)
	if err != nil {
		t.Fatalf("failed to archive: %v", err)
	}
	if zipPath != out+".zip" {
		t.Errorf("zip path, expected %s, received %s", out+".zip", zipPath)
	}
	if _, err := os.Stat(zipPath); err != nil {
		t.Errorf("zip not created: %v", err)
	}
	svcDir := serviceDir("p. 2", ts.URL+"/iiif/page2")
	if !strings.HasPrefix(svcDir, "p-2-") {
		t.Errorf("unexpected service dir %s", svcDir)
	}

	t.Run("manifest", func(t *testing.T) {
		raw, err := os.ReadFile(filepath.Join(conf.ScratchDir, "book", ManifestFile))
		if err != nil {
			t.Fatalf("failed to read manifest: %v", err)
		}
		m, err := manifest.Parse(raw)
		if err != nil {
			t.Fatalf("failed to parse manifest: %v", err)
		}
		cl, err := m.Containers()
		if err != nil {
			t.Fatalf("failed to list containers: %v", err)
		}
		if len(cl) != 2 {
			t.Fatalf("expected 2 containers, received %d", len(cl))
		}
		expect := []string{"page1.jpg", svcDir}
		for i, cont := range cl {
			u, err := cont.GetURL()
			if err != nil {
				t.Errorf("container %d url: %v", i, err)
			} else if u != expect[i] {
				t.Errorf("container %d url, expected %s, received %s", i, expect[i], u)
			}
		}
		if m.GetID() != ts.URL+"/iiif/book/manifest.json" {
			t.Errorf("manifest id changed to %s", m.GetID())
		}
	})
	t.Run("service dir", func(t *testing.T) {
		dir := filepath.Join(conf.ScratchDir, "book", svcDir)
		if _, err := os.Stat(filepath.Join(dir, imageservice.InfoFile)); err != nil {
			t.Errorf("info.json missing: %v", err)
		}
		for _, p := range tilePaths {
			b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
			if err != nil {
				t.Errorf("tile %s missing: %v", p, err)
				continue
			}
			if string(b) != "tile "+p {
				t.Errorf("tile %s content, received %s", p, b)
			}
		}
	})
	t.Run("zip", func(t *testing.T) {
		dest := t.TempDir()
		top, err := archive.Unzip(ctx, zipPath, dest)
		if err != nil {
			t.Fatalf("failed to unzip: %v", err)
		}
		if len(top) != 1 || top[0] != "book" {
			t.Errorf("unexpected top level entries %v", top)
		}
		if _, err := os.Stat(filepath.Join(dest, "book", "page1.jpg")); err != nil {
			t.Errorf("asset missing from zip: %v", err)
		}
	})
	t.Run("progress", func(t *testing.T) {
		if len(progress) == 0 {
			t.Fatalf("no progress reported")
		}
		last := progress[len(progress)-1]
		if last.Canvas != 2 || last.Canvases != 2 {
			t.Errorf("unexpected final progress %v", last)
		}
		tiles := 0
		for _, p := range progress {
			if p.Tiles == len(tilePaths) {
				tiles++
			}
		}
		if tiles != len(tilePaths) {
			t.Errorf("expected %d tile reports, received %d", len(tilePaths), tiles)
		}
	})
	t.Run("requests", func(t *testing.T) {
		if ts.h.Count("") != 3+len(tilePaths) {
			t.Errorf("expected %d requests, received %d", 3+len(tilePaths), ts.h.Count(""))
		}
	})
}

func TestArchiveIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t, bookRRs(false))
	conf := testConfig(t)
	c := New(WithConfig(conf), WithLog(testLog()))
	out := filepath.Join(t.TempDir(), "book.zip")
	if _, err := c.Archive(ctx, ts.URL+"/iiif/book/manifest.json", out); err != nil {
		t.Fatalf("failed to archive: %v", err)
	}
	first := ts.h.Count("")
	before := readTree(t, filepath.Join(conf.ScratchDir, "book"))

	if _, err := c.Archive(ctx, ts.URL+"/iiif/book/manifest.json", out); err != nil {
		t.Fatalf("failed to archive again: %v", err)
	}
	if second := ts.h.Count(""); second != first {
		t.Errorf("second run made %d requests", second-first)
	}
	after := readTree(t, filepath.Join(conf.ScratchDir, "book"))
	if len(before) != len(after) {
		t.Errorf("file count changed from %d to %d", len(before), len(after))
	}
	for name, b := range before {
		if !bytes.Equal(b, after[name]) {
			t.Errorf("file %s changed on the second run", name)
		}
	}
}

func TestArchiveResume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t, bookRRs(false))
	conf := testConfig(t)
	// a partial earlier run left the asset behind
	if err := os.MkdirAll(filepath.Join(conf.ScratchDir, "book"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(conf.ScratchDir, "book", "page1.jpg"), []byte("page1 jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(WithConfig(conf), WithLog(testLog()))
	if _, err := c.Archive(ctx, ts.URL+"/iiif/book/manifest.json", filepath.Join(t.TempDir(), "book")); err != nil {
		t.Fatalf("failed to archive: %v", err)
	}
	if n := ts.h.Count("/images/page1.jpg"); n != 0 {
		t.Errorf("existing asset was requested %d times", n)
	}
	if n := ts.h.Count("/iiif/page2/info.json"); n != 1 {
		t.Errorf("info.json requested %d times", n)
	}
}

func TestArchiveErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("tile failure skipped", func(t *testing.T) {
		ts := newTestServer(t, bookRRs(true))
		conf := testConfig(t)
		c := New(WithConfig(conf), WithLog(testLog()))
		_, err := c.Archive(ctx, ts.URL+"/iiif/book/manifest.json", filepath.Join(t.TempDir(), "book"))
		if err != nil {
			t.Fatalf("tile failure should not abort the run: %v", err)
		}
		svcDir := serviceDir("p. 2", ts.URL+"/iiif/page2")
		if _, err := os.Stat(filepath.Join(conf.ScratchDir, "book", svcDir, filepath.FromSlash(tilePaths[0]))); err == nil {
			t.Errorf("failed tile was written")
		}
		if _, err := os.Stat(filepath.Join(conf.ScratchDir, "book", svcDir, filepath.FromSlash(tilePaths[1]))); err != nil {
			t.Errorf("tile after failure missing: %v", err)
		}
		if n := ts.h.Count("/iiif/page2/" + tilePaths[0]); n != 1 {
			t.Errorf("permanent tile failure requested %d times", n)
		}
	})
	t.Run("asset failure fatal", func(t *testing.T) {
		rrs := bookRRs(false)
		rrs[1].RespEntry.Status = http.StatusForbidden
		ts := newTestServer(t, rrs)
		c := New(WithConfig(testConfig(t)), WithLog(testLog()))
		_, err := c.Archive(ctx, ts.URL+"/iiif/book/manifest.json", filepath.Join(t.TempDir(), "book"))
		if !errors.Is(err, types.ErrPermanentFetch) {
			t.Fatalf("expected permanent fetch error, received %v", err)
		}
		fe := &types.FetchError{}
		if !errors.As(err, &fe) {
			t.Fatalf("expected a FetchError, received %T", err)
		}
		if fe.Status != http.StatusForbidden || fe.Path != "book/page1.jpg" || !strings.HasSuffix(fe.URL, "/images/page1.jpg") {
			t.Errorf("unexpected fetch error details %+v", fe)
		}
		if ts.h.Count("/iiif/page2/info.json") != 0 {
			t.Errorf("run continued after a fatal error")
		}
	})
	t.Run("transient exhausted", func(t *testing.T) {
		rrs := bookRRs(false)
		rrs[0].RespEntry.Status = http.StatusServiceUnavailable
		ts := newTestServer(t, rrs)
		c := New(WithConfig(testConfig(t)), WithLog(testLog()))
		_, err := c.Archive(ctx, ts.URL+"/iiif/book/manifest.json", filepath.Join(t.TempDir(), "book"))
		if !errors.Is(err, types.ErrTransientFetch) {
			t.Fatalf("expected transient fetch error, received %v", err)
		}
		if n := ts.h.Count("/iiif/book/manifest.json"); n != 3 {
			t.Errorf("expected 3 attempts, received %d", n)
		}
	})
	t.Run("composite", func(t *testing.T) {
		ts := newTestServer(t, []reqresp.ReqResp{
			get("manifest", "/iiif/composite/manifest.json", http.StatusOK, []byte(rawComposite)),
		})
		c := New(WithConfig(testConfig(t)), WithLog(testLog()))
		_, err := c.Archive(ctx, ts.URL+"/iiif/composite/manifest.json", filepath.Join(t.TempDir(), "composite"))
		if !errors.Is(err, types.ErrUnsupportedCompositeAsset) {
			t.Fatalf("expected composite error, received %v", err)
		}
	})
	t.Run("unsupported schema", func(t *testing.T) {
		ts := newTestServer(t, []reqresp.ReqResp{
			get("manifest", "/other.json", http.StatusOK, []byte(`{"@context": "http://example.org/context.json"}`)),
		})
		c := New(WithConfig(testConfig(t)), WithLog(testLog()))
		_, err := c.Archive(ctx, ts.URL+"/other.json", filepath.Join(t.TempDir(), "other"))
		if !errors.Is(err, types.ErrUnsupportedSchema) {
			t.Fatalf("expected unsupported schema, received %v", err)
		}
	})
	t.Run("missing input", func(t *testing.T) {
		c := New(WithConfig(testConfig(t)))
		if _, err := c.Archive(ctx, "", "book"); !errors.Is(err, types.ErrMissingInput) {
			t.Errorf("empty url, received %v", err)
		}
		if _, err := c.Archive(ctx, "https://example.org/manifest.json", ""); !errors.Is(err, types.ErrMissingInput) {
			t.Errorf("empty output, received %v", err)
		}
	})
	t.Run("canceled", func(t *testing.T) {
		ts := newTestServer(t, bookRRs(false))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		c := New(WithConfig(testConfig(t)))
		_, err := c.Archive(cctx, ts.URL+"/iiif/book/manifest.json", filepath.Join(t.TempDir(), "book"))
		if !errors.Is(err, types.ErrCanceled) {
			t.Fatalf("expected canceled, received %v", err)
		}
	})
}

func TestArchiveDeleteScratch(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, bookRRs(false))
	conf := testConfig(t)
	conf.DeleteScratch = true
	c := New(WithConfig(conf), WithLog(testLog()))
	zipPath, err := c.Archive(context.Background(), ts.URL+"/iiif/book/manifest.json", filepath.Join(t.TempDir(), "book"))
	if err != nil {
		t.Fatalf("failed to archive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(conf.ScratchDir, "book")); !os.IsNotExist(err) {
		t.Errorf("scratch directory not removed: %v", err)
	}
	if _, err := os.Stat(zipPath); err != nil {
		t.Errorf("zip missing: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t, bookRRs(false))
	c := New(WithConfig(testConfig(t)), WithLog(testLog()))
	zipPath, err := c.Archive(ctx, ts.URL+"/iiif/book/manifest.json", filepath.Join(t.TempDir(), "book"))
	if err != nil {
		t.Fatalf("failed to archive: %v", err)
	}
	svcDir := serviceDir("p. 2", ts.URL+"/iiif/page2")
	tt := []struct {
		name string
		base string
	}{
		{name: "plain", base: "https://mirror.example.org/static"},
		{name: "trailing slash", base: "https://mirror.example.org/static/"},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			dest := t.TempDir()
			dir, err := c.Restore(ctx, zipPath, dest, tc.base)
			if err != nil {
				t.Fatalf("failed to restore: %v", err)
			}
			if dir != filepath.Join(dest, "book") {
				t.Errorf("restored dir, expected %s, received %s", filepath.Join(dest, "book"), dir)
			}
			prefix := "https://mirror.example.org/static/book/"
			raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
			if err != nil {
				t.Fatalf("failed to read manifest: %v", err)
			}
			m, err := manifest.Parse(raw)
			if err != nil {
				t.Fatalf("failed to parse manifest: %v", err)
			}
			if m.GetID() != prefix+ManifestFile {
				t.Errorf("manifest id, expected %s, received %s", prefix+ManifestFile, m.GetID())
			}
			cl, err := m.Containers()
			if err != nil {
				t.Fatalf("failed to list containers: %v", err)
			}
			expect := []string{prefix + "page1.jpg", prefix + svcDir}
			for i, cont := range cl {
				u, err := cont.GetURL()
				if err != nil || u != expect[i] {
					t.Errorf("container %d url, expected %s, received %s, %v", i, expect[i], u, err)
				}
			}
			raw, err = os.ReadFile(filepath.Join(dir, svcDir, imageservice.InfoFile))
			if err != nil {
				t.Fatalf("failed to read info.json: %v", err)
			}
			svc, err := imageservice.Parse(raw)
			if err != nil {
				t.Fatalf("failed to parse info.json: %v", err)
			}
			if svc.GetID() != prefix+svcDir {
				t.Errorf("service id, expected %s, received %s", prefix+svcDir, svc.GetID())
			}
		})
	}
}

func TestRestoreErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New()
	dir := t.TempDir()
	notZip := filepath.Join(dir, "book.zip")
	if err := os.WriteFile(notZip, []byte("not a zip file"), 0o644); err != nil {
		t.Fatal(err)
	}
	tt := []struct {
		name      string
		bundle    string
		dest      string
		base      string
		expectErr error
	}{
		{name: "missing bundle", bundle: "", dest: dir, base: "https://example.org", expectErr: types.ErrMissingInput},
		{name: "missing dest", bundle: notZip, dest: "", base: "https://example.org", expectErr: types.ErrMissingInput},
		{name: "missing base", bundle: notZip, dest: dir, base: "/", expectErr: types.ErrMissingInput},
		{name: "not a zip", bundle: notZip, dest: filepath.Join(dir, "out"), base: "https://example.org", expectErr: archive.ErrUnsupportedFormat},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Restore(ctx, tc.bundle, tc.dest, tc.base)
			if !errors.Is(err, tc.expectErr) {
				t.Errorf("expected %v, received %v", tc.expectErr, err)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := newTestServer(t, bookRRs(false))
	c := New(WithConfig(testConfig(t)))
	m, err := c.FetchManifest(ctx, ts.URL+"/iiif/book/manifest.json")
	if err != nil {
		t.Fatalf("failed to fetch manifest: %v", err)
	}
	if m.Version() != manifest.Version2 || m.GetLabel() != "Book" {
		t.Errorf("unexpected manifest %s %s", m.Version(), m.GetLabel())
	}
	for _, u := range []string{ts.URL + "/iiif/page2", ts.URL + "/iiif/page2/", ts.URL + "/iiif/page2/info.json"} {
		svc, err := c.FetchService(ctx, u)
		if err != nil {
			t.Errorf("failed to fetch %s: %v", u, err)
			continue
		}
		if !svc.IsLevel0() || svc.Width() != 300 {
			t.Errorf("unexpected service from %s", u)
		}
	}
	if _, err := c.FetchManifest(ctx, ""); !errors.Is(err, types.ErrMissingInput) {
		t.Errorf("empty url, received %v", err)
	}
}

func TestNames(t *testing.T) {
	t.Parallel()
	t.Run("bundle", func(t *testing.T) {
		tt := []struct {
			in, name, zip string
			err           bool
		}{
			{in: "book", name: "book", zip: "book.zip"},
			{in: "book.zip", name: "book", zip: "book.zip"},
			{in: "out/book.ZIP", name: "book", zip: "out/book.ZIP"},
			{in: filepath.Join("out", "book"), name: "book", zip: filepath.Join("out", "book.zip")},
			{in: "", err: true},
			{in: ".zip", err: true},
		}
		for _, tc := range tt {
			name, zipPath, err := BundleName(tc.in)
			if tc.err {
				if err == nil {
					t.Errorf("%q: expected error", tc.in)
				}
				continue
			}
			if err != nil || name != tc.name || zipPath != tc.zip {
				t.Errorf("%q: expected %s %s, received %s %s %v", tc.in, tc.name, tc.zip, name, zipPath, err)
			}
		}
	})
	t.Run("slug", func(t *testing.T) {
		tt := map[string]string{
			"p. 2":           "p-2",
			"  Folio 12r  ":  "folio-12r",
			"":               "",
			"---":            "",
			"Große Seite #1": "große-seite-1",
		}
		for in, expect := range tt {
			if out := slug(in); out != expect {
				t.Errorf("slug %q, expected %q, received %q", in, expect, out)
			}
		}
	})
	t.Run("asset", func(t *testing.T) {
		used := map[string]bool{ManifestFile: true}
		a := assetName("default.jpg", "https://a.example.org/1/default.jpg", used)
		used[a] = true
		b := assetName("default.jpg", "https://a.example.org/2/default.jpg", used)
		if a != "default.jpg" {
			t.Errorf("first name changed to %s", a)
		}
		if b == a || !strings.HasSuffix(b, "-default.jpg") {
			t.Errorf("collision not resolved: %s", b)
		}
		if m := assetName(ManifestFile, "https://a.example.org/manifest.json", used); m == ManifestFile {
			t.Errorf("manifest name reused by an asset")
		}
	})
	t.Run("scheme", func(t *testing.T) {
		for u, expect := range map[string]bool{
			"https://example.org/a": true,
			"http://x":              true,
			"page1.jpg":             false,
			"p-2-0123456789ab":      false,
			"dir/a://b":             false,
		} {
			if hasScheme(u) != expect {
				t.Errorf("hasScheme %s, expected %t", u, expect)
			}
		}
	})
}

func TestArchivePacing(t *testing.T) {
	t.Parallel()
	delay := 200 * time.Millisecond
	tt := []struct {
		name          string
		level0        bool
		noDelayLevel0 bool
		pacedTiles    bool
	}{
		{name: "level0 tiles skip the delay", level0: true, noDelayLevel0: true, pacedTiles: false},
		{name: "level0 tiles paced when enabled", level0: true, noDelayLevel0: false, pacedTiles: true},
		{name: "other services always paced", level0: false, noDelayLevel0: true, pacedTiles: true},
	}
	for _, tc := range tt {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rrs := bookRRs(false)
			if !tc.level0 {
				for i := range rrs {
					if rrs[i].ReqEntry.Name == "info" {
						rrs[i].RespEntry.Body = bytes.ReplaceAll(rrs[i].RespEntry.Body, []byte("level0.json"), []byte("level1.json"))
					}
				}
			}
			var mu sync.Mutex
			seen := []time.Time{}
			paths := []string{}
			ts := newTestServerFunc(t, rrs, func(r *http.Request) {
				mu.Lock()
				seen = append(seen, time.Now())
				paths = append(paths, r.URL.Path)
				mu.Unlock()
			})
			conf := testConfig(t)
			conf.Delay = delay
			conf.NoDelayLevel0 = tc.noDelayLevel0
			c := New(WithConfig(conf), WithLog(testLog()))
			if _, err := c.Archive(context.Background(), ts.URL+"/iiif/book/manifest.json", filepath.Join(t.TempDir(), "book")); err != nil {
				t.Fatalf("failed to archive: %v", err)
			}
			mu.Lock()
			defer mu.Unlock()
			// manifest, asset, info.json, then the tiles
			if len(seen) != 3+len(tilePaths) {
				t.Fatalf("unexpected requests %v", paths)
			}
			for i := 1; i < len(seen); i++ {
				gap := seen[i].Sub(seen[i-1])
				paced := i < 3 || tc.pacedTiles
				if paced && gap < delay*3/4 {
					t.Errorf("request %s followed the previous after %s, expected at least %s", paths[i], gap, delay)
				}
				if !paced && gap >= delay/2 {
					t.Errorf("request %s waited %s without pacing", paths[i], gap)
				}
			}
		})
	}
}

func TestServiceDirStable(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"@context": "http://iiif.io/api/presentation/3/context.json",
		"id": "https://example.org/iiif/book/manifest.json",
		"type": "Manifest",
		"items": [{
			"id": "https://example.org/iiif/book/canvas/1",
			"type": "Canvas",
			"label": {"fr": ["Recto"], "de": ["Vorderseite"], "it": ["Fronte"]},
			"items": [{"type": "AnnotationPage", "items": [{"type": "Annotation", "body": {
				"id": "https://example.org/iiif/recto/full/max/0/default.jpg",
				"service": [{"id": "https://example.org/iiif/recto", "type": "ImageService3"}]
			}}]}]
		}]
	}`)
	dirs := map[string]int{}
	for i := 0; i < 100; i++ {
		m, err := manifest.Parse(raw)
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		cl, err := m.Containers()
		if err != nil || len(cl) != 1 {
			t.Fatalf("unexpected containers %v: %v", cl, err)
		}
		u, err := cl[0].GetURL()
		if err != nil {
			t.Fatalf("failed to get url: %v", err)
		}
		dirs[serviceDir(cl[0].GetLabel(), u)]++
	}
	if len(dirs) != 1 {
		t.Errorf("service dir changed between parses: %v", dirs)
	}
	for d := range dirs {
		if !strings.HasPrefix(d, "vorderseite-") {
			t.Errorf("unexpected service dir %s", d)
		}
	}
}
