// Package driver runs the call-merging transform over files and directories,
// with a content-addressed disk cache and parallel execution.
package driver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"callfuse/internal/ir"
	"callfuse/internal/mergecalls"
	"callfuse/internal/observ"
)

// Options configures a driver run.
type Options struct {
	// Jobs bounds worker parallelism for OptimizeDir; <= 0 means GOMAXPROCS.
	Jobs int
	// Cache, when non-nil, is consulted before transforming and updated after.
	Cache *DiskCache
	// Progress, when non-nil, receives per-file stage events.
	Progress ProgressSink
}

// fingerprint folds every option that changes the produced output into the
// cache key. The transform currently has no tunables, so this is a constant
// that doubles as a manual invalidation knob.
func (o Options) fingerprint() string {
	return "mergecalls/1"
}

// FileResult is the outcome of transforming one input file.
type FileResult struct {
	Path   string // input path as given
	Output string // transformed module text
	Stats  observ.Stats
	Cached bool // served from the disk cache
}

// OptimizeSource parses src as a textual IR module, merges duplicate calls in
// every defined function, and returns the printed result with statistics.
// The module is validated both before and after the transform; the name is
// used only in error messages.
func OptimizeSource(name string, src []byte) (string, observ.Stats, error) {
	return optimize(name, src, nil)
}

// optimize is OptimizeSource with a stage hook, called as each pipeline
// stage begins. OptimizeFile uses the hook to forward progress events.
func optimize(name string, src []byte, enter func(Stage)) (string, observ.Stats, error) {
	step := func(s Stage) {
		if enter != nil {
			enter(s)
		}
	}
	var stats observ.Stats

	step(StageParse)
	m, err := ir.Parse(string(src))
	if err != nil {
		return "", stats, fmt.Errorf("%s: %w", name, err)
	}
	step(StageVerify)
	if err := ir.Validate(m); err != nil {
		return "", stats, fmt.Errorf("%s: invalid input: %w", name, err)
	}

	step(StageMerge)
	for _, f := range m.Funcs {
		if f.Declared() {
			continue
		}
		stats.FuncsSeen++
		res := mergecalls.RunFunc(f)
		if res.Changed {
			stats.FuncsChanged++
		}
		stats.GroupsMerged += res.GroupsMerged
		stats.CallsEliminated += res.CallsEliminated
	}
	if err := ir.Validate(m); err != nil {
		return "", stats, fmt.Errorf("%s: transform produced invalid IR: %w", name, err)
	}

	step(StagePrint)
	return ir.Sprint(m), stats, nil
}

// OptimizeFile transforms a single file, consulting the disk cache when one
// is configured.
func OptimizeFile(ctx context.Context, path string, opts Options) (FileResult, error) {
	select {
	case <-ctx.Done():
		return FileResult{Path: path}, ctx.Err()
	default:
	}

	start := time.Now()
	emit(opts.Progress, Event{File: path, Stage: StageRead, Status: StatusWorking})

	src, err := os.ReadFile(path)
	if err != nil {
		emit(opts.Progress, Event{File: path, Stage: StageRead, Status: StatusError, Err: err})
		return FileResult{Path: path}, err
	}

	key := cacheKey(src, opts)
	if opts.Cache != nil {
		var payload DiskPayload
		hit, err := opts.Cache.Get(key, &payload)
		if err != nil {
			return FileResult{Path: path}, fmt.Errorf("cache read for %s: %w", path, err)
		}
		if hit {
			emit(opts.Progress, Event{File: path, Stage: StagePrint, Status: StatusCached, Elapsed: time.Since(start)})
			return FileResult{
				Path:   path,
				Output: payload.Output,
				Stats:  payloadToStats(&payload),
				Cached: true,
			}, nil
		}
	}

	stage := StageRead
	out, stats, err := optimize(path, src, func(s Stage) {
		stage = s
		emit(opts.Progress, Event{File: path, Stage: s, Status: StatusWorking})
	})
	if err != nil {
		emit(opts.Progress, Event{File: path, Stage: stage, Status: StatusError, Err: err})
		return FileResult{Path: path}, err
	}

	if opts.Cache != nil {
		payload, err := statsToPayload(stats, key, opts.fingerprint(), out)
		if err != nil {
			return FileResult{Path: path}, err
		}
		if err := opts.Cache.Put(key, payload); err != nil {
			return FileResult{Path: path}, fmt.Errorf("cache write for %s: %w", path, err)
		}
	}

	emit(opts.Progress, Event{File: path, Stage: StagePrint, Status: StatusDone, Elapsed: time.Since(start)})
	return FileResult{Path: path, Output: out, Stats: stats}, nil
}

// ListFiles returns a sorted list of all *.cir files under dir.
func ListFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".cir") {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	// Deterministic order
	sort.Strings(files)
	return files, nil
}

// OptimizeDir transforms every *.cir file under dir in parallel. Results are
// returned in sorted path order regardless of completion order. The first
// error cancels the remaining work.
func OptimizeDir(ctx context.Context, dir string, opts Options) ([]FileResult, error) {
	files, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	for _, path := range files {
		emit(opts.Progress, Event{File: path, Status: StatusQueued})
	}

	// Per-index result slots: every goroutine owns a unique index, no mutex
	// needed.
	results := make([]FileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))

	for i, path := range files {
		g.Go(func() error {
			res, err := OptimizeFile(gctx, path, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
