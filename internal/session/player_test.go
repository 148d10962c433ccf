package session

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"trivia-live/internal/domain"
	"trivia-live/internal/infra/memory"
	"trivia-live/internal/store"
)

func joinPlayer(t *testing.T, st store.Store, clock clockwork.Clock, name string) *PlayerClient {
	t.Helper()
	c, err := Join(context.Background(), st, PlayerConfig{
		SessionID: "abcd",
		Name:      name,
		Clock:     clock,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestJoinWritesFreshPlayerRecord(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTreeStore()
	startHost(t, st, clockwork.NewFakeClock(), sampleQuiz())

	c := joinPlayer(t, st, clockwork.NewFakeClock(), "  Alice ")
	if c.SessionID() != "ABCD" || c.Name() != "Alice" {
		t.Fatalf("expected normalized identity, got %s/%s", c.SessionID(), c.Name())
	}

	snap, _ := st.Read(ctx, PlayerPath("ABCD", "Alice"))
	var p domain.Player
	if err := snap.Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.UID == "" || p.Color == "" || p.Score != 0 || p.Answer != "" || p.IsCorrect != nil {
		t.Fatalf("unexpected player record %+v", p)
	}
	if c.View().State != StateWaiting {
		t.Fatalf("expected waiting before any question, got %s", c.View().State)
	}
}

func TestJoinValidation(t *testing.T) {
	st := memory.NewTreeStore()
	ctx := context.Background()
	if _, err := Join(ctx, st, PlayerConfig{SessionID: "ABCD", Name: "  "}); !errors.Is(err, domain.ErrEmptyName) {
		t.Fatalf("expected empty name, got %v", err)
	}
	if _, err := Join(ctx, st, PlayerConfig{SessionID: "", Name: "Alice"}); !errors.Is(err, domain.ErrEmptySessionID) {
		t.Fatalf("expected empty session id, got %v", err)
	}
	if _, err := Join(ctx, st, PlayerConfig{SessionID: "ABCD", Name: "a.b"}); !errors.Is(err, domain.ErrInvalidName) {
		t.Fatalf("expected invalid name, got %v", err)
	}
}

func TestPlayerAnswersAndIsGraded(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTreeStore()
	clock := clockwork.NewFakeClock()
	h := startHost(t, st, clock, sampleQuiz())
	c := joinPlayer(t, st, clock, "Alice")
	waitFor(t, func() bool { return len(h.View().Players) == 1 }, "host to see Alice")

	if err := c.SubmitAnswer(ctx, "Paris"); !errors.Is(err, domain.ErrSubmissionClosed) {
		t.Fatalf("expected submission closed before a question, got %v", err)
	}

	if err := h.StartRound(ctx); err != nil {
		t.Fatalf("start round: %v", err)
	}
	waitFor(t, func() bool { return c.View().State == StateActive }, "question to open")
	if v := c.View(); v.Question != "Capital of France?" || v.RoundTitle != "Geography" || v.TimeLeft != 3 {
		t.Fatalf("unexpected player view %+v", v)
	}

	if err := c.SubmitAnswer(ctx, "   "); !errors.Is(err, domain.ErrEmptyAnswer) {
		t.Fatalf("expected empty answer, got %v", err)
	}
	if snap, _ := st.Read(ctx, PlayerPath("ABCD", "Alice")+"/answer"); snap.Text() != "" {
		t.Fatalf("rejected submission must not write, got %v", snap.Value)
	}

	if err := c.SubmitAnswer(ctx, "  Paris "); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap, _ := st.Read(ctx, PlayerPath("ABCD", "Alice")+"/answer"); snap.Text() != "Paris" {
		t.Fatalf("expected trimmed answer stored, got %v", snap.Value)
	}
	if c.View().State != StateSubmitted {
		t.Fatalf("expected submitted, got %s", c.View().State)
	}
	if err := c.SubmitAnswer(ctx, "Lyon"); !errors.Is(err, domain.ErrSubmissionClosed) {
		t.Fatalf("expected one submission per question, got %v", err)
	}

	waitFor(t, func() bool { return h.View().Players[0].Answer == "Paris" }, "host to see the answer")
	if _, err := h.GradeAnswer(ctx, "Alice", true); err != nil {
		t.Fatalf("grade: %v", err)
	}
	waitFor(t, func() bool {
		v := c.View()
		return v.Score == 1 && v.Verdict == domain.VerdictCorrect
	}, "grade to reach the player")

	if err := h.RevealAnswer(ctx); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	waitFor(t, func() bool { return c.View().Revealed }, "reveal")
	if v := c.View(); v.Answer != "Paris" || v.AnswerMedia != domain.MediaImage {
		t.Fatalf("unexpected reveal %+v", v)
	}
}

func TestPlayerLocksWhenTimeRunsOut(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTreeStore()
	clock := clockwork.NewFakeClock()
	h := startHost(t, st, clock, sampleQuiz())
	c := joinPlayer(t, st, clock, "Bob")

	if err := h.StartRound(ctx); err != nil {
		t.Fatalf("start round: %v", err)
	}
	waitFor(t, func() bool { return c.View().State == StateActive }, "question to open")

	for want := 2; want >= 0; want-- {
		advance(t, clock, func() bool { return c.View().TimeLeft == want })
	}
	waitFor(t, func() bool { return c.View().State == StateLocked }, "lock")
	if err := c.SubmitAnswer(ctx, "Paris"); !errors.Is(err, domain.ErrSubmissionClosed) {
		t.Fatalf("expected submission closed after timeout, got %v", err)
	}
	if snap, _ := st.Read(ctx, PlayerPath("ABCD", "Bob")+"/answer"); snap.Text() != "" {
		t.Fatalf("locked player must not write an answer, got %q", snap.Text())
	}

	// the next question reopens answering
	if err := h.AdvanceQuestion(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	waitFor(t, func() bool {
		v := c.View()
		return v.State == StateActive && v.Question == "Capital of Italy?"
	}, "reopen after lock")
	if c.View().TimeLeft != 3 {
		t.Fatalf("expected countdown restarted, got %d", c.View().TimeLeft)
	}
}

func TestRevealReachesEveryPlayerState(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTreeStore()
	h := startHost(t, st, clockwork.NewFakeClock(), sampleQuiz())

	active := joinPlayer(t, st, clockwork.NewFakeClock(), "Ava")
	if active.View().State != StateWaiting {
		t.Fatalf("expected waiting before the first question, got %s", active.View().State)
	}
	submitted := joinPlayer(t, st, clockwork.NewFakeClock(), "Sam")
	lockClock := clockwork.NewFakeClock()
	locked := joinPlayer(t, st, lockClock, "Lou")
	waitFor(t, func() bool { return len(h.View().Players) == 3 }, "host to see players")

	if err := h.StartRound(ctx); err != nil {
		t.Fatalf("start round: %v", err)
	}
	clients := map[string]*PlayerClient{"Ava": active, "Sam": submitted, "Lou": locked}
	for name, c := range clients {
		waitFor(t, func() bool { return c.View().State == StateActive }, name+" to open")
	}
	if err := submitted.SubmitAnswer(ctx, "Paris"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	for want := 2; want >= 0; want-- {
		advance(t, lockClock, func() bool { return locked.View().TimeLeft == want })
	}
	waitFor(t, func() bool { return locked.View().State == StateLocked }, "lock")

	if submitted.View().State != StateSubmitted || active.View().State != StateActive {
		t.Fatalf("unexpected states before reveal: %s %s", submitted.View().State, active.View().State)
	}
	if err := h.RevealAnswer(ctx); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	for name, c := range clients {
		waitFor(t, func() bool {
			v := c.View()
			return v.Revealed && v.Answer == "Paris"
		}, name+" to see the answer")
	}
}

func TestPlayerReopensAfterSubmission(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTreeStore()
	clock := clockwork.NewFakeClock()
	h := startHost(t, st, clock, sampleQuiz())
	c := joinPlayer(t, st, clock, "Carol")
	waitFor(t, func() bool { return len(h.View().Players) == 1 }, "host to see Carol")

	if err := h.StartRound(ctx); err != nil {
		t.Fatalf("start round: %v", err)
	}
	waitFor(t, func() bool { return c.View().State == StateActive }, "question to open")
	if err := c.SubmitAnswer(ctx, "Paris"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := h.AdvanceQuestion(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	waitFor(t, func() bool {
		v := c.View()
		return v.State == StateActive && v.Submitted == ""
	}, "reopen after submission")
	if err := c.SubmitAnswer(ctx, "Rome"); err != nil {
		t.Fatalf("submit second answer: %v", err)
	}
}

func TestPlayerJoiningMidQuestionIsActive(t *testing.T) {
	ctx := context.Background()
	st := memory.NewTreeStore()
	clock := clockwork.NewFakeClock()
	h := startHost(t, st, clock, sampleQuiz())
	if err := h.StartRound(ctx); err != nil {
		t.Fatalf("start round: %v", err)
	}

	c := joinPlayer(t, st, clock, "Dave")
	if v := c.View(); v.State != StateActive || v.Question != "Capital of France?" {
		t.Fatalf("expected open question on join, got %+v", v)
	}
}

func TestPlayerCloseRejectsSubmissions(t *testing.T) {
	st := memory.NewTreeStore()
	c := joinPlayer(t, st, clockwork.NewFakeClock(), "Erin")
	c.Close()
	if err := c.SubmitAnswer(context.Background(), "x"); !errors.Is(err, domain.ErrSubmissionClosed) {
		t.Fatalf("expected closed client to refuse, got %v", err)
	}
	if st.Subscribers() != 0 {
		t.Fatalf("expected subscription released")
	}
}
