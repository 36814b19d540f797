package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"tailor-backend/internal/credits"
	"tailor-backend/internal/documents"
	"tailor-backend/internal/llm"
)

type reply struct {
	text string
	err  error
}

type stubGateway struct {
	t       *testing.T
	replies []reply
	calls   []llm.InvokeRequest
}

func (g *stubGateway) Invoke(_ context.Context, req llm.InvokeRequest) (string, error) {
	g.calls = append(g.calls, req)
	if len(g.replies) == 0 {
		g.t.Fatalf("unexpected gateway call %d: %.60q", len(g.calls), req.Prompt)
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.text, r.err
}

func evalJSON(score int) string {
	return fmt.Sprintf(`{"score":%d,"assessment":"ok","improvements":["tighten summary"]}`, score)
}

const baseResume = `\documentclass{article} base resume`

func newTestService(t *testing.T, gw *stubGateway, maxIterations int) (*Service, *credits.Service) {
	t.Helper()
	creditsSvc := credits.NewService()
	docs := documents.NewMemoryRepo()
	if err := docs.Create(context.Background(), documents.Document{
		ID:       "doc-1",
		UserID:   "u1",
		FileName: "base.tex",
		Content:  baseResume,
	}); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	svc := NewService(gw, creditsSvc, docs, Options{
		PrimaryKey:    "pk",
		FallbackKey:   "fk",
		MaxIterations: maxIterations,
	})
	return svc, creditsSvc
}

func mustTailor(t *testing.T, svc *Service) TailorResult {
	t.Helper()
	result, err := svc.Tailor(context.Background(), "u1", "member", "Backend engineer, Go", "")
	if err != nil {
		t.Fatalf("tailor: %v", err)
	}
	return result
}

func TestTailorCreatesRoundOneAndBills(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "```latex\ntailored v1\n```"},
		{text: evalJSON(70)},
	}}
	svc, creditsSvc := newTestService(t, gw, 0)

	result := mustTailor(t, svc)

	if result.SessionID == "" {
		t.Fatal("expected a session ID")
	}
	if result.Round.Number != 1 {
		t.Fatalf("expected round 1, got %d", result.Round.Number)
	}
	if result.Round.Document != "tailored v1" {
		t.Fatalf("fences must be stripped from the document, got %q", result.Round.Document)
	}
	if result.Round.Evaluation.Score != 70 {
		t.Fatalf("expected score 70, got %d", result.Round.Evaluation.Score)
	}
	if !result.Billed || result.Balance != 2 {
		t.Fatalf("expected billed with balance 2, got billed=%v balance=%d", result.Billed, result.Balance)
	}
	if balance, _ := creditsSvc.Balance(context.Background(), "u1"); balance != 2 {
		t.Fatalf("expected stored balance 2, got %d", balance)
	}

	if len(gw.calls) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(gw.calls))
	}
	if !strings.Contains(gw.calls[0].Prompt, baseResume) || !strings.Contains(gw.calls[0].Prompt, "Backend engineer, Go") {
		t.Fatal("tailor prompt must carry the base resume and the job description")
	}
	if gw.calls[0].PrimaryKey != "pk" || gw.calls[0].FallbackKey != "fk" {
		t.Fatal("gateway requests must carry both keys")
	}
	if !strings.Contains(gw.calls[1].Prompt, "tailored v1") {
		t.Fatal("evaluate prompt must carry the generated document")
	}
}

func TestTailorDeniedBeforeProviderCall(t *testing.T) {
	gw := &stubGateway{t: t}
	svc, creditsSvc := newTestService(t, gw, 0)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := creditsSvc.Debit(ctx, "u1"); err != nil {
			t.Fatalf("drain credits: %v", err)
		}
	}

	_, err := svc.Tailor(ctx, "u1", "member", "Backend engineer", "")
	var denied *AdmissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected AdmissionDeniedError, got %v", err)
	}
	if denied.Balance != 0 {
		t.Fatalf("expected balance 0 in deny, got %d", denied.Balance)
	}
	if len(denied.Plans) == 0 {
		t.Fatal("deny must carry purchase plans")
	}
	if len(gw.calls) != 0 {
		t.Fatalf("denied tailor must never reach the provider, got %d calls", len(gw.calls))
	}
}

func TestTailorUnlimitedRoleSkipsBilling(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "tailored"},
		{text: evalJSON(60)},
	}}
	svc, _ := newTestService(t, gw, 0)

	docs := svc.Docs.(*documents.MemoryRepo)
	if err := docs.Create(context.Background(), documents.Document{ID: "doc-2", UserID: "admin-1", FileName: "base.tex", Content: "resume"}); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	result, err := svc.Tailor(context.Background(), "admin-1", "admin", "SRE role", "")
	if err != nil {
		t.Fatalf("tailor: %v", err)
	}
	if result.Billed {
		t.Fatal("admin tailor must not bill")
	}
}

func TestTailorWithoutBaseDocument(t *testing.T) {
	gw := &stubGateway{t: t}
	svc, creditsSvc := newTestService(t, gw, 0)

	_, err := svc.Tailor(context.Background(), "u2", "member", "Backend engineer", "")
	if !errors.Is(err, ErrMissingBaseDocument) {
		t.Fatalf("expected ErrMissingBaseDocument, got %v", err)
	}
	if len(gw.calls) != 0 {
		t.Fatal("missing base document must fail before the provider")
	}
	if balance, _ := creditsSvc.Balance(context.Background(), "u2"); balance != 3 {
		t.Fatalf("failed tailor must not debit, balance %d", balance)
	}
}

func TestTailorMalformedEvaluation(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "tailored"},
		{text: "an 8 out of 10, nice work"},
	}}
	svc, creditsSvc := newTestService(t, gw, 0)

	_, err := svc.Tailor(context.Background(), "u1", "member", "Backend engineer", "")
	var malformed *MalformedEvaluationError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedEvaluationError, got %v", err)
	}
	// The generation itself succeeded, so the credit is spent.
	if balance, _ := creditsSvc.Balance(context.Background(), "u1"); balance != 2 {
		t.Fatalf("expected balance 2 after billed generation, got %d", balance)
	}
}

func TestTailorProviderErrorPropagates(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{err: &llm.ProviderError{Kind: llm.KindOverloaded, Status: 503}},
	}}
	svc, creditsSvc := newTestService(t, gw, 0)

	_, err := svc.Tailor(context.Background(), "u1", "member", "Backend engineer", "")
	var perr *llm.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Kind != llm.KindOverloaded {
		t.Fatalf("expected overloaded, got %s", perr.Kind)
	}
	if balance, _ := creditsSvc.Balance(context.Background(), "u1"); balance != 3 {
		t.Fatalf("failed generation must not debit, balance %d", balance)
	}
}

func TestTailorRejectsEmptyJobDescription(t *testing.T) {
	gw := &stubGateway{t: t}
	svc, _ := newTestService(t, gw, 0)

	_, err := svc.Tailor(context.Background(), "u1", "member", "   ", "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTailorSpendsLastCreditThenDenies(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(60)},
	}}
	svc, creditsSvc := newTestService(t, gw, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := creditsSvc.Debit(ctx, "u1"); err != nil {
			t.Fatalf("drain credits: %v", err)
		}
	}

	result, err := svc.Tailor(ctx, "u1", "member", "Backend engineer", "")
	if err != nil {
		t.Fatalf("tailor with last credit: %v", err)
	}
	if result.Balance != 0 || !result.Billed {
		t.Fatalf("expected billed to zero, got billed=%v balance=%d", result.Billed, result.Balance)
	}

	_, err = svc.Tailor(ctx, "u1", "member", "Backend engineer", "")
	var denied *AdmissionDeniedError
	if !errors.As(err, &denied) || denied.Balance != 0 {
		t.Fatalf("expected deny at balance 0, got %v", err)
	}
}

func TestOptimizeConcurrentCallsSerialize(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(60)},
		{text: "v2"},
		{text: evalJSON(65)},
		{text: "v3"},
		{text: evalJSON(70)},
	}}
	svc, _ := newTestService(t, gw, 0)
	ctx := context.Background()

	session := mustTailor(t, svc)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Optimize(ctx, "u1", session.SessionID)
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent optimize: %v", err)
		}
	}

	rounds, current, err := svc.Rounds(ctx, "u1", session.SessionID)
	if err != nil {
		t.Fatalf("rounds: %v", err)
	}
	if len(rounds) != 3 || current != 3 {
		t.Fatalf("expected 3 serialized rounds, got %d rounds current=%d", len(rounds), current)
	}
	for i, round := range rounds {
		if round.Number != i+1 {
			t.Fatalf("round numbering broken: %+v", rounds)
		}
	}
}

func TestOptimizeAppendsNextRoundWithoutBilling(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(60)},
		{text: "v2"},
		{text: evalJSON(75)},
	}}
	svc, creditsSvc := newTestService(t, gw, 0)

	session := mustTailor(t, svc)

	result, err := svc.Optimize(context.Background(), "u1", session.SessionID)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if result.Round.Number != 2 {
		t.Fatalf("expected round 2, got %d", result.Round.Number)
	}
	if result.Round.Document != "v2" {
		t.Fatalf("unexpected document %q", result.Round.Document)
	}

	optimizePrompt := gw.calls[2].Prompt
	if !strings.Contains(optimizePrompt, "v1") {
		t.Fatal("optimize prompt must carry the current round's document")
	}
	if !strings.Contains(optimizePrompt, "Score: 60/100") || !strings.Contains(optimizePrompt, "tighten summary") {
		t.Fatal("optimize prompt must carry the current round's feedback")
	}

	if balance, _ := creditsSvc.Balance(context.Background(), "u1"); balance != 2 {
		t.Fatalf("optimize must not bill, balance %d", balance)
	}
}

func TestOptimizeIterationCap(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(60)},
		{text: "v2"},
		{text: evalJSON(75)},
	}}
	svc, _ := newTestService(t, gw, 2)

	session := mustTailor(t, svc)
	if _, err := svc.Optimize(context.Background(), "u1", session.SessionID); err != nil {
		t.Fatalf("optimize: %v", err)
	}

	calls := len(gw.calls)
	_, err := svc.Optimize(context.Background(), "u1", session.SessionID)
	if !errors.Is(err, ErrIterationCap) {
		t.Fatalf("expected ErrIterationCap, got %v", err)
	}
	if len(gw.calls) != calls {
		t.Fatal("capped optimize must not reach the provider")
	}
}

func TestOptimizeContinuesPastTargetScore(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(92)},
		{text: "v2"},
		{text: evalJSON(95)},
	}}
	svc, _ := newTestService(t, gw, 0)

	session := mustTailor(t, svc)
	if !session.Round.Evaluation.TargetAchieved() {
		t.Fatal("expected round 1 to reach the target")
	}

	result, err := svc.Optimize(context.Background(), "u1", session.SessionID)
	if err != nil {
		t.Fatalf("optimize past target: %v", err)
	}
	if result.Round.Number != 2 {
		t.Fatalf("expected round 2, got %d", result.Round.Number)
	}
}

func TestRestoreThenOptimizeBasesOnRestoredRound(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(60)},
		{text: "v2"},
		{text: evalJSON(55)},
	}}
	svc, _ := newTestService(t, gw, 0)
	ctx := context.Background()

	session := mustTailor(t, svc)
	if _, err := svc.Optimize(ctx, "u1", session.SessionID); err != nil {
		t.Fatalf("optimize: %v", err)
	}

	restored, err := svc.Restore(ctx, "u1", session.SessionID, 1)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Document != "v1" {
		t.Fatalf("expected restored round 1, got %q", restored.Document)
	}

	rounds, current, err := svc.Rounds(ctx, "u1", session.SessionID)
	if err != nil {
		t.Fatalf("rounds: %v", err)
	}
	if current != 1 {
		t.Fatalf("expected current round 1 after restore, got %d", current)
	}
	if len(rounds) != 2 {
		t.Fatalf("restore must not truncate the ledger, got %d rounds", len(rounds))
	}

	gw.replies = []reply{
		{text: "v3"},
		{text: evalJSON(80)},
	}
	result, err := svc.Optimize(ctx, "u1", session.SessionID)
	if err != nil {
		t.Fatalf("optimize after restore: %v", err)
	}
	if result.Round.Number != 3 {
		t.Fatalf("round after restore must append as 3, got %d", result.Round.Number)
	}
	if !strings.Contains(gw.calls[4].Prompt, "v1") || strings.Contains(gw.calls[4].Prompt, "v2") {
		t.Fatal("optimize after restore must base on the restored round")
	}

	if round2, err := svc.Round(ctx, "u1", session.SessionID, 2); err != nil || round2.Document != "v2" {
		t.Fatalf("round 2 must survive intact, got %q err=%v", round2.Document, err)
	}
	if _, current, _ := svc.Rounds(ctx, "u1", session.SessionID); current != 3 {
		t.Fatalf("expected current round 3, got %d", current)
	}
}

func TestRestoreUnknownRound(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(60)},
	}}
	svc, _ := newTestService(t, gw, 0)

	session := mustTailor(t, svc)
	if _, err := svc.Restore(context.Background(), "u1", session.SessionID, 4); !errors.Is(err, ErrRoundNotFound) {
		t.Fatalf("expected ErrRoundNotFound, got %v", err)
	}
}

func TestEvaluateDoesNotAppendRound(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(60)},
		{text: evalJSON(88)},
	}}
	svc, _ := newTestService(t, gw, 0)
	ctx := context.Background()

	session := mustTailor(t, svc)

	eval, err := svc.Evaluate(ctx, "u1", session.SessionID, "hand-edited resume")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.Score != 88 {
		t.Fatalf("expected score 88, got %d", eval.Score)
	}
	if !strings.Contains(gw.calls[2].Prompt, "hand-edited resume") {
		t.Fatal("evaluate must score the supplied document")
	}

	rounds, _, _ := svc.Rounds(ctx, "u1", session.SessionID)
	if len(rounds) != 1 {
		t.Fatalf("evaluate must not append rounds, got %d", len(rounds))
	}
}

func TestEvaluateDefaultsToCurrentRound(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(60)},
		{text: evalJSON(61)},
	}}
	svc, _ := newTestService(t, gw, 0)

	session := mustTailor(t, svc)
	if _, err := svc.Evaluate(context.Background(), "u1", session.SessionID, ""); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !strings.Contains(gw.calls[2].Prompt, "v1") {
		t.Fatal("empty document must score the current round")
	}
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(60)},
	}}
	svc, _ := newTestService(t, gw, 0)

	session := mustTailor(t, svc)

	if _, _, err := svc.Rounds(context.Background(), "intruder", session.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign caller, got %v", err)
	}
	if _, err := svc.Optimize(context.Background(), "intruder", session.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for foreign optimize, got %v", err)
	}
}

func TestAbandonDropsSession(t *testing.T) {
	gw := &stubGateway{t: t, replies: []reply{
		{text: "v1"},
		{text: evalJSON(60)},
	}}
	svc, _ := newTestService(t, gw, 0)
	ctx := context.Background()

	session := mustTailor(t, svc)
	if err := svc.Abandon(ctx, "u1", session.SessionID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, _, err := svc.Rounds(ctx, "u1", session.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after abandon, got %v", err)
	}
	if err := svc.Abandon(ctx, "u1", session.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on double abandon, got %v", err)
	}
}
