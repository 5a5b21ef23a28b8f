package ingest

import (
	"fmt"
	"strings"

	"github.com/harrison/docrouter/internal/models"
)

// BatchError reports the files of a run that ended in a failure. The run
// itself completed; every other file was processed.
type BatchError struct {
	RunID    string
	Total    int
	Failures []models.Disposition
}

func (e *BatchError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("run %s: %d of %d files failed", e.RunID, len(e.Failures), e.Total))
	for i, f := range e.Failures {
		if i == 3 {
			sb.WriteString(fmt.Sprintf("; and %d more", len(e.Failures)-i))
			break
		}
		sb.WriteString(fmt.Sprintf("; %s: %s", f.File, f.Reason))
	}
	return sb.String()
}

// newBatchError returns nil when the summary has no failures
func newBatchError(s models.BatchSummary) error {
	if s.Failed == 0 {
		return nil
	}
	return &BatchError{RunID: s.RunID, Total: s.Total, Failures: s.Failures}
}
