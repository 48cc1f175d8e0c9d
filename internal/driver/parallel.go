package driver

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"bcrebuild/internal/diag"
	"bcrebuild/internal/irpack"
	"bcrebuild/internal/source"
)

// ErrOutPathWithManyInputs rejects an explicit output for a batch.
var ErrOutPathWithManyInputs = errors.New("an output path can only be used with a single input")

// ExpandInputs replaces every directory in args with the module files
// below it, sorted, skipping earlier rebuild results.
func ExpandInputs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			// Missing files are reported when they are loaded.
			files = append(files, arg)
			continue
		}
		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isModuleFile(path) {
				return nil
			}
			found = append(found, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

func isModuleFile(path string) bool {
	if _, ok := irpack.FormatFromPath(path); !ok {
		return false
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return !strings.HasSuffix(stem, rebuiltSuffix)
}

// RebuildFiles rebuilds every path, at most opts.Jobs at a time. Each
// module is handled by one goroutine; results keep the order of paths.
// The error is non-nil only when ctx was cancelled; files that were not
// started then carry a cancellation diagnostic.
func RebuildFiles(ctx context.Context, paths []string, opts Options) ([]*Result, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	if len(paths) > 1 && opts.OutPath != "" {
		return nil, ErrOutPathWithManyInputs
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	for _, path := range paths {
		emit(opts.Progress, Event{File: path, Stage: StageLoad, Status: StatusQueued})
	}
	results := make([]*Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = RebuildFile(gctx, path, opts)
			return nil
		})
	}
	err := g.Wait()
	for i, r := range results {
		if r != nil {
			continue
		}
		bag := diag.NewBag(opts.maxDiagnostics())
		bag.Add(diag.NewError(diag.RebuildCancelled, source.Pos{File: paths[i]}, "rebuild cancelled before start"))
		results[i] = &Result{Path: paths[i], Bag: bag}
		emit(opts.Progress, Event{File: paths[i], Stage: StageLoad, Status: StatusError, Err: err})
	}
	return results, err
}
