package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tailor-backend/internal/credits"
	"tailor-backend/internal/documents"
	"tailor-backend/internal/llm"
	"tailor-backend/internal/shared/metrics"
)

const defaultMaxIterations = 10

// Generator is the provider gateway surface the pipeline drives. No
// other component talks to the provider.
type Generator interface {
	Invoke(ctx context.Context, req llm.InvokeRequest) (string, error)
}

// Options configures a pipeline Service. Credentials are handed in
// explicitly here, never read from ambient state at call time.
type Options struct {
	PrimaryKey    string
	FallbackKey   string
	MaxIterations int
}

// Service runs the tailor → evaluate → (optimize → evaluate)* loop for
// each session, admitting billable steps through the credits service
// and recording every completed round in the session's ledger.
type Service struct {
	Gateway       Generator
	Credits       *credits.Service
	Docs          documents.DocumentsRepo
	PrimaryKey    string
	FallbackKey   string
	MaxIterations int

	sessions *sessionStore
	now      func() time.Time
}

// NewService constructs a pipeline Service.
func NewService(gateway Generator, creditsSvc *credits.Service, docs documents.DocumentsRepo, opts Options) *Service {
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Service{
		Gateway:       gateway,
		Credits:       creditsSvc,
		Docs:          docs,
		PrimaryKey:    opts.PrimaryKey,
		FallbackKey:   opts.FallbackKey,
		MaxIterations: maxIterations,
		sessions:      newSessionStore(),
		now:           time.Now,
	}
}

// Tailor runs the billable first-round step: admission check, initial
// generation from the base resume, debit, then the mandatory evaluate.
// Round 1 exists only once its evaluation is in hand.
func (s *Service) Tailor(ctx context.Context, userID, role, jobDescription, documentID string) (TailorResult, error) {
	if strings.TrimSpace(jobDescription) == "" {
		return TailorResult{}, fmt.Errorf("%w: job description is required", ErrInvalidInput)
	}

	decision, err := s.Credits.Authorize(ctx, userID, role)
	if err != nil {
		return TailorResult{}, err
	}
	if !decision.Allowed {
		metrics.IncSessionDenied()
		return TailorResult{}, &AdmissionDeniedError{Balance: decision.Balance, Plans: decision.Plans}
	}

	var doc documents.Document
	if documentID != "" {
		doc, err = s.Docs.GetByID(ctx, userID, documentID)
	} else {
		doc, err = s.Docs.GetCurrentByUser(ctx, userID)
	}
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return TailorResult{}, ErrMissingBaseDocument
		}
		return TailorResult{}, err
	}

	text, err := s.Gateway.Invoke(ctx, llm.InvokeRequest{
		Prompt:      llm.TailorPrompt(doc.Content, jobDescription),
		PrimaryKey:  s.PrimaryKey,
		FallbackKey: s.FallbackKey,
	})
	if err != nil {
		return TailorResult{}, err
	}
	document := stripFences(text)

	// The generation succeeded; this is the one billable moment.
	balance := decision.Balance
	billed := false
	if !decision.Unlimited {
		balance, err = s.Credits.Debit(ctx, userID)
		if err != nil {
			return TailorResult{}, err
		}
		billed = true
	}

	eval, err := s.evaluate(ctx, document, jobDescription)
	if err != nil {
		return TailorResult{}, err
	}

	sess := &session{
		id:             uuid.NewString(),
		userID:         userID,
		jobDescription: jobDescription,
		createdAt:      s.now(),
	}
	round := Round{
		Number:     1,
		Document:   document,
		Evaluation: eval,
		CreatedAt:  s.now().UTC(),
	}
	if err := sess.ledger.Append(round); err != nil {
		return TailorResult{}, err
	}
	sess.current = 1
	s.sessions.put(sess)
	metrics.IncSessionStarted()
	metrics.IncRoundGenerated()

	return TailorResult{SessionID: sess.id, Round: round, Balance: balance, Billed: billed}, nil
}

// Optimize produces the next round from the current one: a revision
// directed by the current round's evaluation feedback, followed by the
// mandatory evaluate. Never billed.
func (s *Service) Optimize(ctx context.Context, userID, sessionID string) (OptimizeResult, error) {
	sess, ok := s.sessions.get(sessionID, userID)
	if !ok {
		return OptimizeResult{}, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ledger.Len() >= s.MaxIterations {
		return OptimizeResult{}, ErrIterationCap
	}
	base, ok := sess.currentRound()
	if !ok {
		return OptimizeResult{}, ErrRoundNotFound
	}

	text, err := s.Gateway.Invoke(ctx, llm.InvokeRequest{
		Prompt:      llm.OptimizePrompt(base.Document, sess.jobDescription, formatFeedback(base.Evaluation)),
		PrimaryKey:  s.PrimaryKey,
		FallbackKey: s.FallbackKey,
	})
	if err != nil {
		return OptimizeResult{}, err
	}
	document := stripFences(text)

	eval, err := s.evaluate(ctx, document, sess.jobDescription)
	if err != nil {
		return OptimizeResult{}, err
	}

	round := Round{
		Number:     sess.ledger.Len() + 1,
		Document:   document,
		Evaluation: eval,
		CreatedAt:  s.now().UTC(),
	}
	if err := sess.ledger.Append(round); err != nil {
		return OptimizeResult{}, err
	}
	sess.current = round.Number
	metrics.IncRoundGenerated()

	return OptimizeResult{SessionID: sess.id, Round: round}, nil
}

// Evaluate re-scores a document against the session's job description
// without appending a round. With an empty document it scores the
// current round, e.g. after the caller edited and restored.
func (s *Service) Evaluate(ctx context.Context, userID, sessionID, document string) (Evaluation, error) {
	sess, ok := s.sessions.get(sessionID, userID)
	if !ok {
		return Evaluation{}, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if strings.TrimSpace(document) == "" {
		current, ok := sess.currentRound()
		if !ok {
			return Evaluation{}, ErrRoundNotFound
		}
		document = current.Document
	}
	return s.evaluate(ctx, document, sess.jobDescription)
}

// Rounds lists the session's full ledger plus the current pointer.
func (s *Service) Rounds(ctx context.Context, userID, sessionID string) ([]Round, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	sess, ok := s.sessions.get(sessionID, userID)
	if !ok {
		return nil, 0, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.ledger.List(), sess.current, nil
}

// Round returns one round by number.
func (s *Service) Round(ctx context.Context, userID, sessionID string, number int) (Round, error) {
	if err := ctx.Err(); err != nil {
		return Round{}, err
	}
	sess, ok := s.sessions.get(sessionID, userID)
	if !ok {
		return Round{}, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	round, ok := sess.ledger.Get(number)
	if !ok {
		return Round{}, ErrRoundNotFound
	}
	return round, nil
}

// Restore moves the current pointer back to an earlier round. Later
// rounds stay in the ledger; a following Optimize builds on the
// restored round and appends at the end of the sequence.
func (s *Service) Restore(ctx context.Context, userID, sessionID string, number int) (Round, error) {
	if err := ctx.Err(); err != nil {
		return Round{}, err
	}
	sess, ok := s.sessions.get(sessionID, userID)
	if !ok {
		return Round{}, ErrSessionNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	round, ok := sess.ledger.Get(number)
	if !ok {
		return Round{}, ErrRoundNotFound
	}
	sess.current = number
	return round, nil
}

// Abandon drops the session and its ledger.
func (s *Service) Abandon(ctx context.Context, userID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.sessions.drop(sessionID, userID) {
		return ErrSessionNotFound
	}
	return nil
}

func (s *Service) evaluate(ctx context.Context, document, jobDescription string) (Evaluation, error) {
	text, err := s.Gateway.Invoke(ctx, llm.InvokeRequest{
		Prompt:      llm.EvaluatePrompt(document, jobDescription),
		PrimaryKey:  s.PrimaryKey,
		FallbackKey: s.FallbackKey,
	})
	if err != nil {
		return Evaluation{}, err
	}
	return ParseEvaluation(text)
}

func formatFeedback(eval Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score: %d/100\n", eval.Score)
	fmt.Fprintf(&b, "Assessment: %s\n", eval.Assessment)
	writeList(&b, "Strengths to keep", eval.Strengths)
	writeList(&b, "Improvements to make", eval.Improvements)
	writeList(&b, "Missing elements to add", eval.MissingElements)
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(heading)
	b.WriteString(":\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}
