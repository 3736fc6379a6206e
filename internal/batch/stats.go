package batch

import "time"

// Stats aggregates the counters for one batch run. Mutated only by the
// Runner; callers receive snapshots through the progress callback and the
// final return value.
type Stats struct {
	Total     int
	Processed int
	Enriched  int
	Failed    int
	Skipped   int

	CoversFound       int
	DescriptionsAdded int

	// NeedingEnrichment counts books a dry run flagged as incomplete.
	NeedingEnrichment int

	// Sampled title lists for reporting, each capped at sampleLimit.
	EnrichedBooks   []string
	SkippedBooks    []string
	NoMetadataBooks []string

	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns the wall-clock duration of the run.
func (s *Stats) Duration() time.Duration {
	end := s.CompletedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartedAt)
}

// SuccessRate returns enriched books as a percentage of the total.
func (s *Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Enriched) / float64(s.Total) * 100
}

func (s *Stats) sampleEnriched(title string) {
	if len(s.EnrichedBooks) < sampleLimit {
		s.EnrichedBooks = append(s.EnrichedBooks, title)
	}
}

func (s *Stats) sampleSkipped(title string) {
	if len(s.SkippedBooks) < sampleLimit {
		s.SkippedBooks = append(s.SkippedBooks, title)
	}
}

func (s *Stats) sampleNoMetadata(title string) {
	if len(s.NoMetadataBooks) < sampleLimit {
		s.NoMetadataBooks = append(s.NoMetadataBooks, title)
	}
}
