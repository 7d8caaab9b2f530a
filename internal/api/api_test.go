package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/lectorlips/internal/compileservice"
	"github.com/starford/lectorlips/internal/testutil"
	"golang.org/x/time/rate"
)

type apiEnv struct {
	router  http.Handler
	outDir  string
	mapping string

	mu    sync.Mutex
	hooks []string
}

// testEnv sets up an output dir, SQLite DB, mapping, service and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) *apiEnv {
	t.Helper()
	return testEnvFull(t, RouterOptions{AuthEnabled: authToken != "", Token: authToken}, true)
}

func testEnvFull(t *testing.T, opts RouterOptions, withMapping bool) *apiEnv {
	t.Helper()
	outDir, out := testutil.TestDir(t)
	mapping := filepath.Join(t.TempDir(), "viseme_mapping.json")
	if withMapping {
		mapping = testutil.TestMapping(t, filepath.Dir(mapping))
	}
	svc := compileservice.NewService(out, testutil.TestDB(t), compileservice.Defaults{
		TextureBase:     "b.a:mouths/",
		EndTickDuration: 100,
		MappingFile:     mapping,
	}, testutil.Logger())

	env := &apiEnv{outDir: outDir, mapping: mapping}
	opts.OnCompile = func(kind, source string, _ *compileservice.Result, _ error) {
		env.mu.Lock()
		env.hooks = append(env.hooks, kind+":"+source)
		env.mu.Unlock()
	}
	env.router = NewRouter(svc, opts)
	return env
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func compileBody(tag string) map[string]any {
	return map[string]any{
		"source":     "line.txt",
		"keyframes":  testutil.SampleKeyframes,
		"output_tag": tag,
	}
}

func TestCompile_CreatesOutput(t *testing.T) {
	env := testEnv(t, "")

	w := env.do(t, http.MethodPost, "/compile", compileBody("line"), "")
	if w.Code != http.StatusCreated {
		t.Fatalf("compile status = %d, body = %s", w.Code, w.Body.String())
	}
	var res CompileResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)

	for _, want := range []string{
		`Texture:"b.a:mouths/0.png", Name:"blockbuster.image"}, Duration:10.0f`,
		`Texture:"b.a:mouths/1.png", Name:"blockbuster.image"}, Duration:100f`,
	} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("text %s\nmissing %s", res.Text, want)
		}
	}
	if !strings.HasSuffix(res.Output, "_line"+compileservice.OutputSuffix) {
		t.Errorf("output = %q", res.Output)
	}
	if res.ID == 0 {
		t.Error("compile not recorded")
	}
	m, _ := filepath.Glob(filepath.Join(env.outDir, "*"+compileservice.OutputSuffix))
	if len(m) != 1 {
		t.Errorf("outputs = %d, want 1", len(m))
	}
	if len(env.hooks) != 1 || env.hooks[0] != "succeeded:line.txt" {
		t.Errorf("hooks = %v", env.hooks)
	}
}

func TestCompile_DryRunWritesNothing(t *testing.T) {
	env := testEnv(t, "")

	body := compileBody("")
	body["dry_run"] = true
	w := env.do(t, http.MethodPost, "/compile", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("dry run status = %d, body = %s", w.Code, w.Body.String())
	}
	m, _ := filepath.Glob(filepath.Join(env.outDir, "*"))
	if len(m) != 0 {
		t.Errorf("dry run wrote %v", m)
	}
	if len(env.hooks) != 0 {
		t.Errorf("dry run fired hooks: %v", env.hooks)
	}
}

func TestCompile_BadInput(t *testing.T) {
	env := testEnv(t, "")

	cases := map[string]map[string]any{
		"no markers":    {"keyframes": "hello\n"},
		"empty":         {"keyframes": ""},
		"bad number":    {"keyframes": "Units Per Second 24\nTime Remap\nhdr\nx 1\n"},
		"bad texture":   {"keyframes": testutil.SampleKeyframes, "texture_base": "no-colon"},
		"negative end":  {"keyframes": testutil.SampleKeyframes, "end_tick_duration": -1},
		"bad tag":       {"keyframes": testutil.SampleKeyframes, "output_tag": "../x"},
		"zero fps":      {"keyframes": "Units Per Second 0\nTime Remap\nhdr\n0 1\n"},
		"no keyframes":  {"keyframes": "Units Per Second 24\nTime Remap\nhdr\n"},
		"malformed row": {"keyframes": "Units Per Second 24\nTime Remap\nhdr\n1 2 3\n"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/compile", body, "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestCompile_InvalidJSON(t *testing.T) {
	env := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/compile", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCompile_MissingMapping(t *testing.T) {
	env := testEnvFull(t, RouterOptions{}, false)

	w := env.do(t, http.MethodPost, "/compile", compileBody(""), "")
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412, body = %s", w.Code, w.Body.String())
	}
	if len(env.hooks) != 1 || env.hooks[0] != "failed:line.txt" {
		t.Errorf("hooks = %v", env.hooks)
	}
}

func TestMapping_GetAndPut(t *testing.T) {
	env := testEnvFull(t, RouterOptions{}, false)

	w := env.do(t, http.MethodGet, "/mapping", nil, "")
	if w.Code != http.StatusPreconditionFailed {
		t.Fatalf("get before create = %d, want 412", w.Code)
	}

	suffixes := make([]string, 15)
	for i := range suffixes {
		suffixes[i] = fmt.Sprintf("m%d.png", i)
	}
	w = env.do(t, http.MethodPut, "/mapping", map[string]any{"suffixes": suffixes}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("put = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/mapping", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	var resp struct {
		Mapping map[string]string `json:"mapping"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Mapping["0"] != "m0.png" || resp.Mapping["14"] != "m14.png" {
		t.Errorf("mapping = %v", resp.Mapping)
	}

	// Existing mapping without replace.
	w = env.do(t, http.MethodPut, "/mapping", map[string]any{"suffixes": suffixes}, "")
	if w.Code != http.StatusConflict {
		t.Errorf("second put = %d, want 409", w.Code)
	}

	suffixes[0] = "new.png"
	w = env.do(t, http.MethodPut, "/mapping", map[string]any{"suffixes": suffixes, "replace": true}, "")
	if w.Code != http.StatusCreated {
		t.Errorf("replace put = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestMapping_PutWrongCount(t *testing.T) {
	env := testEnvFull(t, RouterOptions{}, false)

	w := env.do(t, http.MethodPut, "/mapping", map[string]any{"suffixes": []string{"a", "b"}}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHistory(t *testing.T) {
	env := testEnv(t, "")

	for _, tag := range []string{"a", "b"} {
		if w := env.do(t, http.MethodPost, "/compile", compileBody(tag), ""); w.Code != http.StatusCreated {
			t.Fatalf("compile %s = %d", tag, w.Code)
		}
	}

	w := env.do(t, http.MethodGet, "/history?limit=1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("history = %d", w.Code)
	}
	var list HistoryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 2 || len(list.Compiles) != 1 {
		t.Fatalf("total = %d, page = %d", list.Total, len(list.Compiles))
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/history/%d", list.Compiles[0].ID), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("history item = %d", w.Code)
	}
	var row CompileRow
	_ = json.Unmarshal(w.Body.Bytes(), &row)
	if row.Segments != 2 || row.Source != "line.txt" {
		t.Errorf("row = %+v", row)
	}
}

func TestHistory_NotFoundAndBadID(t *testing.T) {
	env := testEnv(t, "")

	if w := env.do(t, http.MethodGet, "/history/999", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/history/abc", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := testEnv(t, "secret123")

	w := env.do(t, http.MethodPost, "/compile", compileBody("auth"), "secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed compile = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := testEnv(t, "secret123")

	if w := env.do(t, http.MethodGet, "/history", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := testEnv(t, "secret123")

	if w := env.do(t, http.MethodGet, "/history", nil, "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := testEnv(t, "")

	if w := env.do(t, http.MethodGet, "/history", nil, ""); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := testEnvFull(t, RouterOptions{Limiter: rate.NewLimiter(rate.Every(time.Hour), 2)}, true)

	for i := 0; i < 2; i++ {
		if w := env.do(t, http.MethodGet, "/history", nil, ""); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, w.Code)
		}
	}
	w := env.do(t, http.MethodGet, "/history", nil, "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestNewLimiter(t *testing.T) {
	if NewLimiter(0, 10) != nil {
		t.Error("zero rate should disable limiting")
	}
	l := NewLimiter(5, 0)
	if l == nil || l.Burst() != 1 {
		t.Errorf("limiter = %v", l)
	}
}

// SSE endpoint auth tests.

func sseStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := testEnvFull(t, RouterOptions{AuthEnabled: true, Token: "secret", Events: sseStub()}, true)

	if w := env.do(t, http.MethodGet, "/events", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidTokenNotRateLimited(t *testing.T) {
	env := testEnvFull(t, RouterOptions{
		AuthEnabled: true,
		Token:       "tok",
		Events:      sseStub(),
		Limiter:     rate.NewLimiter(rate.Every(time.Hour), 1),
	}, true)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		cancel()
		if w.Code != http.StatusOK {
			t.Errorf("SSE request %d = %d, want 200", i, w.Code)
		}
	}
}
