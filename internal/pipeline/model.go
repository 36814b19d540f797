package pipeline

import "time"

// scoreTarget is the score at or above which a round is flagged as
// having hit the target. Informational only: the loop never stops on it.
const scoreTarget = 85

// Evaluation is the structured scoring of one candidate resume.
type Evaluation struct {
	Score           int      `json:"score"`
	Assessment      string   `json:"assessment"`
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
	MissingElements []string `json:"missingElements"`
}

// TargetAchieved reports whether the score reached the target.
func (e Evaluation) TargetAchieved() bool {
	return e.Score >= scoreTarget
}

// Round is one completed (document, evaluation) pair. A document
// without its evaluation is a transient state and never becomes a Round.
type Round struct {
	Number     int        `json:"roundNumber"`
	Document   string     `json:"document"`
	Evaluation Evaluation `json:"evaluation"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// TailorResult is the outcome of the billable first-round step.
type TailorResult struct {
	SessionID string
	Round     Round
	Balance   int
	Billed    bool
}

// OptimizeResult is the outcome of a revision step.
type OptimizeResult struct {
	SessionID string
	Round     Round
}
