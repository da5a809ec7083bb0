package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageCandidateDone Stage = "CANDIDATE_DONE"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
)

// Outcome classifies a processed candidate.
type Outcome string

// Candidate outcomes.
const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeRejected         Outcome = "rejected"
	OutcomeFailedFetch      Outcome = "failed_fetch"
	OutcomeFailedExtraction Outcome = "failed_extraction"
)

// Event captures one step of a run.
type Event struct {
	RunID    string
	SourceID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// URL and Outcome are set on candidate events.
	URL     string
	Outcome Outcome
	// Bytes is the fetched body size of a candidate.
	Bytes int64
	// Dur is the candidate or run latency.
	Dur time.Duration
	// Inserted and Skipped are set on run completion.
	Inserted int
	Skipped  int
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

func (e Event) terminal() bool {
	return e.Stage == StageRunDone || e.Stage == StageRunError
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.SourceID == "" {
		return errors.New("source id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageCandidateDone:
		if e.URL == "" {
			return errors.New("candidate event requires url")
		}
		switch e.Outcome {
		case OutcomeAccepted, OutcomeRejected, OutcomeFailedFetch, OutcomeFailedExtraction:
		default:
			return fmt.Errorf("unknown outcome %q", e.Outcome)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
