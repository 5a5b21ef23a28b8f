// Package ingest drains the watch folder.
//
// Loop lists the *.tif files waiting in the watch folder, routes each one in
// turn and lists again, so files that arrive while a batch is running are
// picked up without waiting for the next scheduled run. Files are processed
// one at a time: the index session is shared and audit rows are written in
// processing order.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/docrouter/internal/indexing"
	"github.com/harrison/docrouter/internal/logger"
	"github.com/harrison/docrouter/internal/metadata"
	"github.com/harrison/docrouter/internal/models"
	"github.com/harrison/docrouter/internal/router"
	"github.com/harrison/docrouter/internal/unknown"
)

// Deps are the collaborators a Loop routes files with
type Deps struct {
	Source    metadata.Source
	Audit     metadata.AuditWriter
	Index     indexing.Service
	Allocator *unknown.Allocator
	Logger    logger.Logger
	Options   router.Options
}

// Loop is one ingestion run. The metadata cache is loaded the first time files
// are found and kept for the lifetime of the Loop.
type Loop struct {
	deps     Deps
	cache    *metadata.Cache
	newRunID func() string
}

// NewLoop creates a Loop. A nil logger discards output.
func NewLoop(deps Deps) *Loop {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	return &Loop{
		deps:     deps,
		newRunID: func() string { return uuid.New().String() },
	}
}

// Cache returns the loaded metadata cache, or nil before the first batch
func (l *Loop) Cache() *metadata.Cache {
	return l.cache
}

// Run routes every *.tif file in watchFolder until a listing finds nothing new.
//
// A missing watch folder lists as empty. Failing to load the metadata cache
// ends the run with an error wrapping metadata.ErrStoreUnavailable. A file
// that fails is logged, counted and not retried within the same run; when any
// file failed the returned error is a *BatchError. Cancelling ctx stops the
// run between files.
func (l *Loop) Run(ctx context.Context, watchFolder string) (summary models.BatchSummary, err error) {
	log := l.deps.Logger
	start := time.Now()
	summary.RunID = l.newRunID()
	defer func() { summary.Duration = time.Since(start) }()

	if strings.TrimSpace(watchFolder) == "" {
		log.LogWarn("watch folder is not configured, nothing to process")
		return summary, nil
	}

	attempted := make(map[string]bool)
	var rt *router.Router

	for {
		files, err := ListFiles(watchFolder)
		if err != nil {
			return summary, err
		}
		pending := files[:0]
		for _, f := range files {
			if !attempted[f] {
				pending = append(pending, f)
			}
		}
		if len(pending) == 0 {
			if summary.Passes == 0 {
				log.LogDebug(fmt.Sprintf("no files waiting in %s", watchFolder))
			}
			break
		}

		if rt == nil {
			if err := l.loadCache(ctx); err != nil {
				return summary, err
			}
			rt = router.New(l.deps.Options, l.cache, l.deps.Index, l.auditFor(summary.RunID), l.deps.Allocator, log)
		}

		summary.Passes++
		log.LogInfo(fmt.Sprintf("pass %d: %d file(s) in %s", summary.Passes, len(pending), watchFolder))

		if err := l.deps.Index.Connect(ctx); err != nil {
			log.LogError(fmt.Sprintf("indexing service connect failed, recognized files will be archived: %v", err))
		}

		for _, file := range pending {
			if ctxErr := ctx.Err(); ctxErr != nil {
				l.disconnect(ctx)
				return summary, ctxErr
			}
			attempted[file] = true
			d := l.processFile(ctx, rt, file)
			log.LogDisposition(d)
			summary.Add(d)
		}

		l.disconnect(ctx)
	}

	summary.Duration = time.Since(start)
	if summary.Total > 0 {
		log.LogBatchSummary(summary)
	}
	return summary, newBatchError(summary)
}

// processFile routes one file, turning a panic into a failed disposition so
// the rest of the batch still runs.
func (l *Loop) processFile(ctx context.Context, rt *router.Router, file string) (d models.Disposition) {
	defer func() {
		if r := recover(); r != nil {
			d = models.Disposition{
				File:    file,
				Outcome: models.OutcomeFailed,
				Reason:  fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	d, err := rt.Process(ctx, file)
	if err != nil {
		l.deps.Logger.LogError(fmt.Sprintf("error processing %s: %v", file, err))
	}
	return d
}

func (l *Loop) loadCache(ctx context.Context) error {
	if l.cache != nil {
		return nil
	}
	cache, err := metadata.Load(ctx, l.deps.Source)
	if err != nil {
		if !errors.Is(err, metadata.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", metadata.ErrStoreUnavailable, err)
		}
		return err
	}
	types, props, collators := cache.Counts()
	l.deps.Logger.LogInfo(fmt.Sprintf("metadata loaded: %d document types, %d properties, %d collator paths", types, props, collators))
	l.cache = cache
	return nil
}

// auditFor stamps audit rows with the run id when the writer supports it
func (l *Loop) auditFor(runID string) metadata.AuditWriter {
	if s, ok := l.deps.Audit.(*metadata.Store); ok && s != nil {
		return s.WithRunID(runID)
	}
	return l.deps.Audit
}

func (l *Loop) disconnect(ctx context.Context) {
	if err := l.deps.Index.Disconnect(context.WithoutCancel(ctx)); err != nil {
		l.deps.Logger.LogWarn(fmt.Sprintf("indexing service disconnect: %v", err))
	}
}

// ListFiles returns the *.tif files directly inside dir in name order. The
// extension match ignores case. A missing dir lists as empty.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list watch folder: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".tif") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}
