// Package router decides where each scanned document goes.
//
// A recognized document is stored in the index engine, optionally archived for
// validation, then removed from the watch folder. Anything that cannot be
// recognized or indexed is copied into the unknown-folder tree and only removed
// once the copy is confirmed on disk.
package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/docrouter/internal/filelock"
	"github.com/harrison/docrouter/internal/indexing"
	"github.com/harrison/docrouter/internal/logger"
	"github.com/harrison/docrouter/internal/metadata"
	"github.com/harrison/docrouter/internal/models"
	"github.com/harrison/docrouter/internal/parser"
	"github.com/harrison/docrouter/internal/unknown"
)

// DefaultLocationMarker is removed from a document-type code to get its location code
const DefaultLocationMarker = "XXX"

// Options are the filesystem settings the router needs
type Options struct {
	ValidationDir        string
	DefaultUnknownFolder string
	MaxUnknownFiles      int
	LocationMarker       string
}

// Router routes single files. It is not safe for concurrent use: the index
// session is shared and audit rows are expected in processing order.
type Router struct {
	opts      Options
	cache     *metadata.Cache
	index     indexing.Service
	audit     metadata.AuditWriter
	allocator *unknown.Allocator
	log       logger.Logger
	now       func() time.Time
}

// New creates a Router. A nil allocator uses the wall clock and a nil logger discards output.
func New(opts Options, cache *metadata.Cache, index indexing.Service, audit metadata.AuditWriter, allocator *unknown.Allocator, log logger.Logger) *Router {
	if opts.LocationMarker == "" {
		opts.LocationMarker = DefaultLocationMarker
	}
	if allocator == nil {
		allocator = unknown.NewAllocator()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Router{
		opts:      opts,
		cache:     cache,
		index:     index,
		audit:     audit,
		allocator: allocator,
		log:       log,
		now:       time.Now,
	}
}

// SetClock replaces the clock used for validation timestamps
func (r *Router) SetClock(now func() time.Time) {
	r.now = now
}

// Process routes the file at workingPath. The returned disposition is always
// populated; the error is non-nil only when the file could not reach any
// terminal state and is then a *FileError.
func (r *Router) Process(ctx context.Context, workingPath string) (models.Disposition, error) {
	start := time.Now()
	key := parser.Parse(workingPath)
	pc := models.NewProcessingContext(workingPath, key, r.now())

	d, err := r.route(ctx, pc)
	d.File = workingPath
	d.DocumentType = key.DocumentTypeCode
	d.Duration = time.Since(start)
	if err != nil {
		d.Outcome = models.OutcomeFailed
		d.Reason = err.Error()
	}
	return d, err
}

func (r *Router) route(ctx context.Context, pc *models.ProcessingContext) (models.Disposition, error) {
	name := pc.WorkingFile()

	dt, ok := r.cache.FindDocumentType(pc.Key.DocumentTypeCode)
	if !ok {
		reason := "document type not recognized"
		if !pc.Key.Parsed() {
			reason = "no document type in filename"
		}
		r.log.LogWarn(fmt.Sprintf("%s: %s %q", name, reason, pc.Key.DocumentTypeCode))
		return r.fallback(ctx, pc, reason)
	}

	pc.ApplyDocumentType(dt)
	r.log.LogDebug(fmt.Sprintf("%s: recognized as %s (type %d, workflow %d, sirm %t)",
		name, dt.Name, pc.DocumentTypeID, pc.WorkflowID, pc.IsSirmProcess))

	id, err := r.indexDocument(ctx, pc)
	if err != nil {
		r.log.LogError(fmt.Sprintf("%s: indexing failed: %v", name, err))
		return r.fallback(ctx, pc, "indexing failed: "+err.Error())
	}

	d := models.Disposition{Outcome: models.OutcomeIndexed, DocumentID: id}

	if pc.IsSirmProcess {
		if err := writeValidation(r.opts.ValidationDir, pc, r.now()); err != nil {
			return d, NewFileError(pc.WorkingFilePath, StageValidation, err)
		}
		d.Validated = true
	}

	if err := os.Remove(pc.WorkingFilePath); err != nil {
		if !os.IsNotExist(err) {
			return d, NewFileError(pc.WorkingFilePath, StageCleanup, err)
		}
		r.log.LogWarn(fmt.Sprintf("%s: working file already gone at cleanup", name))
	}
	return d, nil
}

// indexDocument stores the document and returns its id. Every error from the
// index engine comes back to the caller as an index failure.
func (r *Router) indexDocument(ctx context.Context, pc *models.ProcessingContext) (int, error) {
	h, err := r.index.CreateDocument(ctx, pc.TopLevelFolderID, pc.DocumentTypeID, pc.WorkingFilePath)
	if err != nil {
		return 0, err
	}

	if id := r.cache.DocumentTypePropertyID; id != 0 {
		if err := r.index.SetProperty(ctx, h, id, pc.Key.DocumentTypeCode, models.DataTypeString); err != nil {
			return 0, err
		}
	}
	if pc.KeyPropertyID != 0 {
		dataType := r.cache.PropertyDataType(pc.KeyPropertyID)
		if err := r.index.SetProperty(ctx, h, pc.KeyPropertyID, pc.Key.KeyValue, dataType); err != nil {
			return 0, err
		}
	}
	if id := r.cache.InvoiceNoPropertyID; id != 0 && pc.Key.InvoiceNumber != "" {
		if err := r.index.SetProperty(ctx, h, id, pc.Key.InvoiceNumber, models.DataTypeString); err != nil {
			return 0, err
		}
	}

	docID, err := r.index.Commit(ctx, h)
	if err != nil {
		return 0, err
	}
	if docID <= 0 {
		return 0, fmt.Errorf("%w: %d (key %q)", indexing.ErrInvalidDocumentID, docID, pc.Key.KeyValue)
	}
	pc.ValidationDocumentID = docID
	r.recordDestination(ctx, pc.WorkingFilePath, strconv.Itoa(docID))

	if pc.WorkflowID > 0 {
		if err := r.index.PlaceInWorkflow(ctx, h, pc.WorkflowID, pc.WorkflowQueueID, pc.InitialWorkflowActivityID); err != nil {
			return 0, fmt.Errorf("document %d: %w", docID, err)
		}
	} else {
		r.log.LogDebug(fmt.Sprintf("%s: workflow id is 0, skipping workflow placement", pc.WorkingFile()))
	}
	return docID, nil
}

// fallback files the document in the unknown tree. It never removes the
// original unless the copy is confirmed at the destination.
func (r *Router) fallback(ctx context.Context, pc *models.ProcessingContext, reason string) (models.Disposition, error) {
	d := models.Disposition{Reason: reason}

	base := r.unknownBase(pc)
	if base == "" {
		r.log.LogError(fmt.Sprintf("%s: no unknown folder configured, leaving file in place", pc.WorkingFile()))
		d.Outcome = models.OutcomeSkipped
		d.Reason = reason + "; no unknown folder configured"
		return d, nil
	}
	pc.UnknownDirectory = base

	state, err := r.allocator.Allocate(base, r.opts.MaxUnknownFiles)
	if err != nil {
		return d, NewFileError(pc.WorkingFilePath, StageArchive, fmt.Errorf("allocate unknown folder: %w", err))
	}
	pc.UnknownFolder = state

	folder := filepath.Join(unknown.CleanDirectoryName(base), state.WorkingFolderName)
	target := filepath.Join(folder, pc.WorkingFile())

	if err := os.MkdirAll(folder, 0755); err != nil {
		return d, NewFileError(pc.WorkingFilePath, StageArchive, fmt.Errorf("create unknown folder: %w", err))
	}

	if _, err := os.Stat(pc.WorkingFilePath); err == nil {
		if err := copyFile(pc.WorkingFilePath, target); err != nil {
			return d, NewFileError(pc.WorkingFilePath, StageArchive, err)
		}
	} else if !os.IsNotExist(err) {
		return d, NewFileError(pc.WorkingFilePath, StageArchive, err)
	}

	if _, err := os.Stat(target); err != nil {
		r.log.LogWarn(fmt.Sprintf("%s: copy to %s not confirmed, leaving original in place", pc.WorkingFile(), target))
		d.Outcome = models.OutcomeSkipped
		d.Reason = reason + "; copy not confirmed"
		return d, nil
	}

	if err := os.Remove(pc.WorkingFilePath); err != nil && !os.IsNotExist(err) {
		return d, NewFileError(pc.WorkingFilePath, StageArchive, fmt.Errorf("remove original: %w", err))
	}
	r.recordDestination(ctx, pc.WorkingFilePath, target)

	d.Outcome = models.OutcomeArchived
	d.Destination = target
	return d, nil
}

// unknownBase picks the collator path for the document's location, or the
// default unknown root when that path is unset or missing on disk.
func (r *Router) unknownBase(pc *models.ProcessingContext) string {
	location := strings.ReplaceAll(pc.Key.DocumentTypeCode, r.opts.LocationMarker, "")
	if location != "" {
		if path := r.cache.FindCollatorPath(location); path != "" {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				return path
			}
			r.log.LogWarn(fmt.Sprintf("collator path %s for location %s does not exist, using default", path, location))
		}
	}
	return r.opts.DefaultUnknownFolder
}

// recordDestination writes the audit row. Failures are logged and never undo
// the disposition.
func (r *Router) recordDestination(ctx context.Context, file, destination string) {
	if r.audit == nil {
		return
	}
	ok, err := r.audit.SetFileDestination(ctx, file, destination)
	switch {
	case err != nil:
		r.log.LogError(fmt.Sprintf("audit write for %s failed: %v", file, err))
	case !ok:
		r.log.LogWarn(fmt.Sprintf("audit write for %s was not applied", file))
	}
}

func copyFile(src, dst string) error {
	if _, err := filelock.CopyFile(src, dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("copy to unknown folder: %w", err)
	}
	return nil
}
