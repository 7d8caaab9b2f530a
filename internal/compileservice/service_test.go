package compileservice

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/lectorlips/internal/apperr"
	"github.com/starford/lectorlips/internal/keyframe"
	"github.com/starford/lectorlips/internal/testutil"
	"github.com/starford/lectorlips/internal/viseme"
)

type testEnv struct {
	svc     *Service
	outDir  string
	mapping string
	work    string
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	outDir, out := testutil.TestDir(t)
	work := t.TempDir()
	mapping := testutil.TestMapping(t, work)
	svc := NewService(out, testutil.TestDB(t), Defaults{
		EndTickDuration: 100,
		MappingFile:     mapping,
	}, testutil.Logger())
	svc.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local) }
	return &testEnv{svc: svc, outDir: outDir, mapping: mapping, work: work}
}

func (e *testEnv) keyframeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(e.work, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func outputs(t *testing.T, dir string) []string {
	t.Helper()
	m, _ := filepath.Glob(filepath.Join(dir, "*"+OutputSuffix))
	return m
}

func TestCompileFile_WritesOutputAndHistory(t *testing.T) {
	env := newEnv(t)
	src := env.keyframeFile(t, "talk.txt", testutil.SampleKeyframes)

	res, err := env.svc.CompileFile(context.Background(), src, Request{TextureBase: "mod:tex"})
	if err != nil {
		t.Fatalf("CompileFile: %v", err)
	}
	if res.Output != "2026-03-04_05.06.07_output.txt" {
		t.Errorf("output = %q", res.Output)
	}
	data, err := os.ReadFile(filepath.Join(env.outDir, res.Output))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != res.Text {
		t.Error("output file differs from rendered text")
	}
	if !strings.Contains(res.Text, `Texture:"mod:tex/0.png"`) || !strings.Contains(res.Text, "Duration:10.0f") {
		t.Errorf("unexpected text: %s", res.Text)
	}

	rows, total, err := env.svc.History(context.Background(), 10, 0)
	if err != nil || total != 1 || rows[0].Output != res.Output {
		t.Errorf("history = %+v, %d, %v", rows, total, err)
	}
}

func TestCompile_EndTickDurationOverride(t *testing.T) {
	env := newEnv(t)
	end := 40.0
	res, err := env.svc.Compile(context.Background(), "x.txt", []byte(testutil.SampleKeyframes),
		Request{TextureBase: "mod:tex/", EndTickDuration: &end, DryRun: true})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !strings.Contains(res.Text, "Duration:40f") {
		t.Errorf("override not applied: %s", res.Text)
	}
}

func TestCompile_RejectsNonFiniteEndTickDuration(t *testing.T) {
	env := newEnv(t)
	for _, end := range []float64{math.NaN(), math.Inf(1), -1} {
		end := end
		_, err := env.svc.Compile(context.Background(), "x.txt", []byte(testutil.SampleKeyframes),
			Request{TextureBase: "mod:tex/", EndTickDuration: &end})
		if !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("end %v: err = %v, want ErrInvalidInput", end, err)
		}
	}
	if got := outputs(t, env.outDir); len(got) != 0 {
		t.Errorf("outputs written: %v", got)
	}
}

func TestCompile_DryRunWritesNothing(t *testing.T) {
	env := newEnv(t)
	res, err := env.svc.Compile(context.Background(), "x.txt", []byte(testutil.SampleKeyframes),
		Request{TextureBase: "mod:tex/", DryRun: true})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Output != "" || len(outputs(t, env.outDir)) != 0 {
		t.Error("dry run wrote an output file")
	}
	if _, total, _ := env.svc.History(context.Background(), 10, 0); total != 0 {
		t.Errorf("dry run recorded history: %d", total)
	}
}

func TestCompile_MissingFrameRateWritesNothing(t *testing.T) {
	env := newEnv(t)
	_, err := env.svc.Compile(context.Background(), "x.txt", []byte("Time Remap\nh\n0 0\n"), Request{TextureBase: "a:b"})
	if !errors.Is(err, keyframe.ErrMissingFrameRate) {
		t.Fatalf("err = %v, want ErrMissingFrameRate", err)
	}
	if len(outputs(t, env.outDir)) != 0 {
		t.Error("output written despite failure")
	}
}

func TestCompile_MissingMapping(t *testing.T) {
	env := newEnv(t)
	_, err := env.svc.Compile(context.Background(), "x.txt", []byte(testutil.SampleKeyframes),
		Request{TextureBase: "a:b", MappingFile: filepath.Join(env.work, "none.json")})
	if !errors.Is(err, viseme.ErrMissingMapping) {
		t.Errorf("err = %v, want ErrMissingMapping", err)
	}
}

func TestCompile_OutputCollision(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	req := Request{TextureBase: "a:b"}
	if _, err := env.svc.Compile(ctx, "x.txt", []byte(testutil.SampleKeyframes), req); err != nil {
		t.Fatal(err)
	}
	// Same clock second: the second run must not replace the first output.
	if _, err := env.svc.Compile(ctx, "x.txt", []byte(testutil.SampleKeyframes), req); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestCompile_InvalidTextureBase(t *testing.T) {
	env := newEnv(t)
	_, err := env.svc.Compile(context.Background(), "x.txt", []byte(testutil.SampleKeyframes), Request{TextureBase: "no-colon"})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCompileFile_RejectsBadPaths(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	if _, err := env.svc.CompileFile(ctx, "keys.csv", Request{TextureBase: "a:b"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("csv: err = %v", err)
	}
	if _, err := env.svc.CompileFile(ctx, filepath.Join(env.work, "absent.txt"), Request{TextureBase: "a:b"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("absent: err = %v", err)
	}
}

func TestCreateMapping(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	suffixes := make([]string, viseme.Count)
	for i := range suffixes {
		suffixes[i] = "m" + string(rune('a'+i)) + ".png"
	}
	file := filepath.Join(env.work, "custom.json")
	if _, err := env.svc.CreateMapping(ctx, suffixes, file, false); err != nil {
		t.Fatalf("CreateMapping: %v", err)
	}
	if _, err := env.svc.CreateMapping(ctx, suffixes, file, false); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("second create err = %v, want ErrAlreadyExists", err)
	}
	if _, err := env.svc.CreateMapping(ctx, suffixes, file, true); err != nil {
		t.Errorf("replace: %v", err)
	}
	m, err := env.svc.Mapping(ctx, file)
	if err != nil || m["14"] != "mo.png" {
		t.Errorf("mapping = %v, %v", m, err)
	}
}

func TestNormalizeTextureBase(t *testing.T) {
	got, err := NormalizeTextureBase("b.a:skins/mouths")
	if err != nil || got != "b.a:skins/mouths/" {
		t.Errorf("got %q, %v", got, err)
	}
	got, _ = NormalizeTextureBase("b.a:skins/")
	if got != "b.a:skins/" {
		t.Errorf("got %q", got)
	}
}
