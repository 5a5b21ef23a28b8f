package models

import "time"

// Outcome is the terminal state of a single file
type Outcome string

// Disposition outcomes
const (
	OutcomeIndexed  Outcome = "INDEXED"  // Stored in the index engine and removed from the watch folder
	OutcomeArchived Outcome = "ARCHIVED" // Copied into the unknown tree and removed from the watch folder
	OutcomeFailed   Outcome = "FAILED"   // Processing raised an error; the file stays in place
	OutcomeSkipped  Outcome = "SKIPPED"  // Nothing could be done (e.g. copy unconfirmed); the file stays in place
)

// Disposition records what happened to one input file
type Disposition struct {
	File         string        // Full path of the input file
	Outcome      Outcome       // Terminal state
	DocumentType string        // Parsed document-type code (may be empty)
	DocumentID   int           // Index engine id when indexed
	Destination  string        // Unknown-tree path when archived
	Reason       string        // Why the fallback path was taken, or the error text
	Validated    bool          // A validation archive record was written
	Duration     time.Duration // Time spent on this file
}

// BatchSummary aggregates the dispositions of one ingestion run
type BatchSummary struct {
	RunID    string
	Passes   int // Number of folder listings that found files
	Total    int
	Indexed  int
	Archived int
	Failed   int
	Skipped  int
	Duration time.Duration
	Failures []Disposition
}

// Add folds a disposition into the summary counts
func (s *BatchSummary) Add(d Disposition) {
	s.Total++
	switch d.Outcome {
	case OutcomeIndexed:
		s.Indexed++
	case OutcomeArchived:
		s.Archived++
	case OutcomeFailed:
		s.Failed++
		s.Failures = append(s.Failures, d)
	case OutcomeSkipped:
		s.Skipped++
	}
}
