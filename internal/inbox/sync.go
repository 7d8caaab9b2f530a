// Package inbox compiles keyframe exports dropped into a watched directory.
package inbox

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/lectorlips/internal/compileservice"
	"github.com/starford/lectorlips/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	KindSucceeded = "succeeded"
	KindFailed    = "failed"
)

// EventCallback is called after every inbox compile attempt.
type EventCallback func(kind, source string, res *compileservice.Result, err error)

// Sync compiles every keyframe file in the inbox whose content changed
// since its last recorded compile.
func Sync(ctx context.Context, svc *compileservice.Service, store storage.Provider, req compileservice.Request, logger *slog.Logger, cb EventCallback) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}
	seen, err := svc.Checksums()
	if err != nil {
		return err
	}

	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !isKeyframeFile(m.Path) || seen[m.Path] == m.Checksum {
			continue
		}
		compileFile(ctx, svc, store, m.Path, req, logger, cb)
	}
	return nil
}

// compileFile reads rel from the inbox and compiles it. The output name is
// tagged with the source stem.
func compileFile(ctx context.Context, svc *compileservice.Service, store storage.Provider, rel string, req compileservice.Request, logger *slog.Logger, cb EventCallback) {
	data, err := store.Read(rel)
	if err != nil {
		logger.Warn("inbox: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	req.OutputTag = strings.TrimSuffix(filepath.Base(rel), ".txt")
	res, err := svc.Compile(ctx, rel, data, req)
	if err != nil {
		logger.Warn("inbox: compile failed", slog.String("path", rel), slog.String("error", err.Error()))
		if cb != nil {
			cb(KindFailed, rel, nil, err)
		}
		return
	}
	logger.Debug("inbox: compiled", slog.String("path", rel), slog.String("output", res.Output))
	if cb != nil {
		cb(KindSucceeded, rel, res, nil)
	}
}

// isKeyframeFile reports whether name is an input rather than a generated
// output or a temp file.
func isKeyframeFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".txt") &&
		!strings.HasSuffix(base, compileservice.OutputSuffix) &&
		!strings.HasPrefix(base, ".")
}
