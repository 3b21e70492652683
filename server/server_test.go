package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"narrator/common"
	"narrator/pipelines/narrated"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	mu   sync.Mutex
	err  error
	seen []narrated.Request
}

func (f *fakeProcessor) Process(_ context.Context, req narrated.Request) (*narrated.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	if f.err != nil {
		return &narrated.Result{RunID: "r1", Trace: []string{"AttemptMinimal->Failed"}}, f.err
	}
	return &narrated.Result{
		RunID:       "r1",
		Deliverable: common.Deliverable{Path: "out/Demo_narrated_r1.mp4", Fidelity: common.FidelityPrimary, Narrated: true},
	}, nil
}

func newTestServer(t *testing.T, proc Processor) *Server {
	cfg := common.DefaultConfig()
	dir := t.TempDir()
	cfg.Server.UploadDir = filepath.Join(dir, "uploads")
	cfg.Paths.OutputDir = filepath.Join(dir, "output")
	s, err := New(cfg, proc)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func postJSON(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/render", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func waitForStatus(t *testing.T, h http.Handler, id string) *JobStatus {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status/"+id, nil))
		if w.Code == http.StatusOK {
			var st JobStatus
			if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
				t.Fatal(err)
			}
			if st.Done() {
				return &st
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func jobID(t *testing.T, w *httptest.ResponseRecorder) string {
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp["job_id"]
}

func TestRenderJSONCompletes(t *testing.T) {
	proc := &fakeProcessor{}
	s := newTestServer(t, proc)
	h := s.Router()

	w := postJSON(t, h, RenderRequest{Script: "class Demo(Scene): pass", Scene: "Demo", Quality: "low"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	st := waitForStatus(t, h, jobID(t, w))
	if st.Status != StatusCompleted || st.Deliverable == nil || !st.Deliverable.Narrated {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Scene != "Demo" || st.CompletedAt == nil || st.RunID != "r1" {
		t.Errorf("status lost fields: %+v", st)
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	data, err := os.ReadFile(proc.seen[0].ScriptPath)
	if err != nil || string(data) != "class Demo(Scene): pass" {
		t.Errorf("script not stored: %q, %v", data, err)
	}
}

func TestRenderUpload(t *testing.T) {
	proc := &fakeProcessor{}
	h := newTestServer(t, proc).Router()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("script", "wave.py")
	fw.Write([]byte("class Wave(Scene): pass"))
	mw.WriteField("scene", "Wave")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/render", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	waitForStatus(t, h, jobID(t, w))

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if got := proc.seen[0]; got.SceneName != "Wave" || !strings.HasSuffix(got.ScriptPath, "_wave.py") {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestRenderWithoutScript(t *testing.T) {
	h := newTestServer(t, &fakeProcessor{}).Router()

	w := postJSON(t, h, RenderRequest{Scene: "Demo"})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "no video requested") {
		t.Errorf("status %d: %s", w.Code, w.Body)
	}
}

func TestRenderRejectsUnknownQuality(t *testing.T) {
	h := newTestServer(t, &fakeProcessor{}).Router()

	w := postJSON(t, h, RenderRequest{Script: "x", Quality: "ultra"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d: %s", w.Code, w.Body)
	}
}

func TestFailedJobReportsGenerationFailure(t *testing.T) {
	err := errors.Join(narrated.ErrVideoGenerationFailed, common.ErrNoArtifact)
	h := newTestServer(t, &fakeProcessor{err: err}).Router()

	w := postJSON(t, h, RenderRequest{Script: "class Demo(Scene): pass"})
	st := waitForStatus(t, h, jobID(t, w))
	if st.Status != StatusFailed || st.Error != "video generation failed" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Deliverable != nil || len(st.Trace) != 1 {
		t.Errorf("failed job should keep the trace and no deliverable: %+v", st)
	}
}

func TestStatusLookup(t *testing.T) {
	h := newTestServer(t, &fakeProcessor{}).Router()

	for path, want := range map[string]int{
		"/status/not-a-uuid":                           http.StatusBadRequest,
		"/status/1b4e28ba-2fa1-11d2-883f-0016d3cca427": http.StatusNotFound,
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != want {
			t.Errorf("%s: status %d, want %d", path, w.Code, want)
		}
	}
}

func TestHealthAndVideos(t *testing.T) {
	s := newTestServer(t, &fakeProcessor{})
	if err := os.MkdirAll(s.cfg.Paths.OutputDir, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(s.cfg.Paths.OutputDir, "Demo.mp4"), []byte("mp4"), 0644)
	h := s.Router()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"workers":2`) {
		t.Errorf("health: %d %s", w.Code, w.Body)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos/Demo.mp4", nil))
	if w.Code != http.StatusOK || w.Body.String() != "mp4" {
		t.Errorf("videos: %d %q", w.Code, w.Body)
	}
}

type blockingProcessor struct{ release chan struct{} }

func (b blockingProcessor) Process(context.Context, narrated.Request) (*narrated.Result, error) {
	<-b.release
	return &narrated.Result{}, nil
}

func TestSubmitQueueFull(t *testing.T) {
	store, err := NewStatusStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	proc := blockingProcessor{release: make(chan struct{})}
	pool := NewWorkerPool(0, 1, proc, store)

	if err := pool.Submit(&Job{ID: "a"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := pool.Submit(&Job{ID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second submit: %v, want ErrQueueFull", err)
	}
	st, err := store.Get("b")
	if err != nil || st.Status != StatusFailed {
		t.Errorf("rejected job status %+v, %v", st, err)
	}
	if pool.Queued() != 1 {
		t.Errorf("queued = %d", pool.Queued())
	}
	close(proc.release)
	pool.Shutdown()
}

func TestStatusStoreKeepsCreatedAt(t *testing.T) {
	store, err := NewStatusStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(&JobStatus{ID: "j", Status: StatusQueued, Script: "a.py"}); err != nil {
		t.Fatal(err)
	}
	first, _ := store.Get("j")
	if err := store.Put(&JobStatus{ID: "j", Status: StatusCompleted}); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get("j")
	if err != nil {
		t.Fatal(err)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) || got.Script != "a.py" || got.CompletedAt == nil {
		t.Errorf("merge lost fields: %+v", got)
	}
	if _, err := store.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("err = %v", err)
	}
}
