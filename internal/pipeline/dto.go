package pipeline

import "time"

type tailorRequest struct {
	JobDescription string `json:"jobDescription"`
	DocumentID     string `json:"documentId"`
}

type evaluateRequest struct {
	Document string `json:"document"`
}

// EvaluationPayload is the wire form of an Evaluation, with the
// derived target flag the UI renders.
type EvaluationPayload struct {
	Score           int      `json:"score"`
	Assessment      string   `json:"assessment"`
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
	MissingElements []string `json:"missingElements"`
	TargetAchieved  bool     `json:"targetAchieved"`
}

// RoundPayload is the wire form of one ledger round.
type RoundPayload struct {
	Number     int               `json:"roundNumber"`
	Document   string            `json:"document"`
	Evaluation EvaluationPayload `json:"evaluation"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// TailorResponse is returned by the session-opening tailor step.
// Balance is present only when the step was billed.
type TailorResponse struct {
	SessionID string       `json:"sessionId"`
	Round     RoundPayload `json:"round"`
	Billed    bool         `json:"billed"`
	Balance   *int         `json:"balance,omitempty"`
}

// OptimizeResponse is returned by a revision step.
type OptimizeResponse struct {
	SessionID string       `json:"sessionId"`
	Round     RoundPayload `json:"round"`
}

// RoundsResponse lists a session's ledger and the current pointer.
type RoundsResponse struct {
	SessionID    string         `json:"sessionId"`
	CurrentRound int            `json:"currentRound"`
	Rounds       []RoundPayload `json:"rounds"`
}

// RestoreResponse confirms the pointer move.
type RestoreResponse struct {
	SessionID    string       `json:"sessionId"`
	CurrentRound int          `json:"currentRound"`
	Round        RoundPayload `json:"round"`
}

func toEvaluationPayload(e Evaluation) EvaluationPayload {
	return EvaluationPayload{
		Score:           e.Score,
		Assessment:      e.Assessment,
		Strengths:       e.Strengths,
		Improvements:    e.Improvements,
		MissingElements: e.MissingElements,
		TargetAchieved:  e.TargetAchieved(),
	}
}

func toRoundPayload(r Round) RoundPayload {
	return RoundPayload{
		Number:     r.Number,
		Document:   r.Document,
		Evaluation: toEvaluationPayload(r.Evaluation),
		CreatedAt:  r.CreatedAt,
	}
}

func toRoundPayloads(rounds []Round) []RoundPayload {
	out := make([]RoundPayload, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, toRoundPayload(r))
	}
	return out
}
