package book

// Outcome is the orchestrator's verdict for one book.
type Outcome int

const (
	// OutcomeSkipped means the book already had sufficient metadata.
	OutcomeSkipped Outcome = iota
	// OutcomeRejected means a candidate was found but failed validation or
	// the quality threshold. Distinct from "no candidate" for statistics.
	OutcomeRejected
	// OutcomeNoCandidate means every provider was exhausted without data.
	OutcomeNoCandidate
	// OutcomeAccepted means a validated candidate is ready to merge.
	OutcomeAccepted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRejected:
		return "rejected"
	case OutcomeNoCandidate:
		return "no-candidate"
	case OutcomeAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// Decision is the definite result of one enrichment attempt. The orchestrator
// always returns a Decision, never an error, so one book cannot abort a batch.
type Decision struct {
	Outcome   Outcome
	Reason    string
	Candidate *Candidate
}

// Skipped builds a Decision for a book that needs no enrichment.
func Skipped(reason string) Decision {
	return Decision{Outcome: OutcomeSkipped, Reason: reason}
}

// Rejected builds a Decision for a candidate that failed validation.
func Rejected(reason string) Decision {
	return Decision{Outcome: OutcomeRejected, Reason: reason}
}

// NoCandidate builds a Decision for an exhausted provider chain.
func NoCandidate(reason string) Decision {
	return Decision{Outcome: OutcomeNoCandidate, Reason: reason}
}

// Accepted builds a Decision carrying a validated candidate.
func Accepted(c *Candidate) Decision {
	return Decision{Outcome: OutcomeAccepted, Candidate: c}
}
