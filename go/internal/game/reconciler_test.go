package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/quizlink/go/internal/session"
)

type fakeRealtime struct {
	mu      sync.Mutex
	deliver bool
	calls   int
}

func (f *fakeRealtime) SubmitAnswer(questionID, answer string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.deliver
}

func (f *fakeRealtime) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQuery struct {
	mu          sync.Mutex
	current     *Question
	currentErr  error
	submitErr   error
	submitCalls int
}

func (f *fakeQuery) CurrentQuestion(ctx context.Context) (*Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.currentErr
}

func (f *fakeQuery) SubmitAnswer(ctx context.Context, questionID, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	return f.submitErr
}

func (f *fakeQuery) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

type harness struct {
	rec      *Reconciler
	clock    *clockwork.FakeClock
	realtime *fakeRealtime
	query    *fakeQuery
	updates  chan Snapshot
	errs     chan string
}

func newHarness(t *testing.T, offset time.Duration) *harness {
	t.Helper()
	h := &harness{
		clock:    clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000)),
		realtime: &fakeRealtime{deliver: true},
		query:    &fakeQuery{},
		updates:  make(chan Snapshot, 32),
		errs:     make(chan string, 8),
	}
	h.rec = NewReconciler(
		h.clock,
		func() time.Duration { return offset },
		h.realtime,
		h.query,
		func(msg string) { h.errs <- msg },
	)
	h.rec.OnUpdate(func(s Snapshot) { h.updates <- s })
	return h
}

func (h *harness) waitUpdate(t *testing.T) Snapshot {
	t.Helper()
	select {
	case s := <-h.updates:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot update")
		return Snapshot{}
	}
}

func (h *harness) drainUpdates() {
	for {
		select {
		case <-h.updates:
		default:
			return
		}
	}
}

func questionEvent(id, text string, options []string) session.QuestionPayload {
	return session.QuestionPayload{ID: id, Text: text, Options: options}
}

func TestImmediateRevealIsAtomic(t *testing.T) {
	h := newHarness(t, 0)

	h.rec.HandleQuestion(questionEvent("q-1", "capital of France?", []string{"Paris", "Lyon", "Nice"}))

	s := h.waitUpdate(t)
	if s.Question == nil || s.Question.ID != "q-1" {
		t.Fatalf("expected question q-1 in snapshot, got %+v", s.Question)
	}
	if len(s.Answers) != len(s.Question.Options) {
		t.Fatalf("answers out of lockstep with options: %d vs %d", len(s.Answers), len(s.Question.Options))
	}
	for i, a := range s.Answers {
		if a.Text != s.Question.Options[i] {
			t.Fatalf("answer %d text %q does not match option %q", i, a.Text, s.Question.Options[i])
		}
	}
}

func TestEverySnapshotKeepsAnswersInLockstep(t *testing.T) {
	h := newHarness(t, 0)

	h.rec.HandleQuestion(questionEvent("q-1", "first", []string{"a", "b"}))
	h.rec.HandleQuestion(questionEvent("q-2", "second", []string{"x", "y", "z"}))
	h.rec.SelectAnswer(1)
	h.rec.HandleQuestion(questionEvent("q-3", "third", []string{"only"}))

	for i := 0; i < 4; i++ {
		s := h.waitUpdate(t)
		if s.Question == nil {
			t.Fatalf("update %d: expected a question", i)
		}
		if len(s.Answers) != len(s.Question.Options) {
			t.Fatalf("update %d: question %s paired with %d answers for %d options",
				i, s.Question.ID, len(s.Answers), len(s.Question.Options))
		}
	}
}

func TestScheduledRevealUsesClockOffset(t *testing.T) {
	// Server clock runs 500ms ahead; the question starts at server time T
	// while our local clock reads T-1000ms. The reveal must fire 1500ms out.
	h := newHarness(t, 500*time.Millisecond)

	startAt := h.clock.Now().Add(time.Second).UnixMilli()
	h.rec.HandleQuestion(session.QuestionPayload{
		ID:      "q-1",
		Text:    "scheduled",
		Options: []string{"a", "b"},
		StartAt: &startAt,
	})

	h.clock.BlockUntil(1)
	h.clock.Advance(1499 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	select {
	case s := <-h.updates:
		t.Fatalf("reveal fired early: %+v", s.Question)
	default:
	}

	h.clock.Advance(time.Millisecond)
	s := h.waitUpdate(t)
	if s.Question == nil || s.Question.ID != "q-1" {
		t.Fatalf("expected q-1 revealed after scheduled delay, got %+v", s.Question)
	}
}

func TestPastStartTimeRevealsImmediately(t *testing.T) {
	h := newHarness(t, 0)

	startAt := h.clock.Now().Add(-5 * time.Second).UnixMilli()
	h.rec.HandleQuestion(session.QuestionPayload{
		ID:      "q-late",
		Text:    "late joiner",
		Options: []string{"a"},
		StartAt: &startAt,
	})

	s := h.waitUpdate(t)
	if s.Question == nil || s.Question.ID != "q-late" {
		t.Fatalf("expected immediate reveal for past start time, got %+v", s.Question)
	}
}

func TestStaleRevealTimerIsSuperseded(t *testing.T) {
	h := newHarness(t, 0)

	startAt := h.clock.Now().Add(2 * time.Second).UnixMilli()
	h.rec.HandleQuestion(session.QuestionPayload{
		ID:      "q-old",
		Text:    "slow",
		Options: []string{"a", "b"},
		StartAt: &startAt,
	})
	h.clock.BlockUntil(1)

	// A newer question lands before the scheduled reveal fires.
	h.rec.HandleQuestion(questionEvent("q-new", "fast", []string{"x", "y"}))
	s := h.waitUpdate(t)
	if s.Question.ID != "q-new" {
		t.Fatalf("expected q-new applied, got %s", s.Question.ID)
	}

	h.clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	select {
	case s := <-h.updates:
		t.Fatalf("stale reveal timer mutated the model: %+v", s.Question)
	default:
	}
	if got := h.rec.Snapshot().Question.ID; got != "q-new" {
		t.Fatalf("expected model to stay on q-new, got %s", got)
	}
}

func TestNotifyOnlyEventTriggersRefetch(t *testing.T) {
	h := newHarness(t, 0)
	h.query.current = &Question{ID: "q-7", Text: "fetched", Options: []string{"a", "b"}}

	h.rec.HandleQuestion(session.QuestionPayload{})

	s := h.waitUpdate(t)
	if s.Question == nil || s.Question.ID != "q-7" {
		t.Fatalf("expected fetched question applied, got %+v", s.Question)
	}
}

func TestNotifyOnlyNeverTouchesModelOnFetchFailure(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "existing", []string{"a"}))
	h.waitUpdate(t)

	h.query.currentErr = errors.New("boom")
	h.rec.HandleQuestion(session.QuestionPayload{})

	time.Sleep(50 * time.Millisecond)
	select {
	case <-h.updates:
		t.Fatalf("failed fetch must not publish an update")
	default:
	}
	if got := h.rec.Snapshot().Question.ID; got != "q-1" {
		t.Fatalf("model changed after failed fetch: %s", got)
	}
}

func TestAcceptedQuestionOptionsAreNeverReplaced(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "full", []string{"a", "b", "c"}))
	h.waitUpdate(t)

	// A later lightweight event for the same id only updates metadata.
	idx := 2
	h.rec.HandleQuestion(session.QuestionPayload{ID: "q-1", Text: "full", CorrectIndex: &idx})
	s := h.waitUpdate(t)
	if len(s.Question.Options) != 3 || len(s.Answers) != 3 {
		t.Fatalf("option list was stomped: %+v", s)
	}
	if s.Question.CorrectIndex == nil || *s.Question.CorrectIndex != 2 {
		t.Fatalf("metadata update lost: %+v", s.Question)
	}
}

func TestStaleResultIsRejected(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-a", "first", []string{"a", "b"}))
	h.rec.HandleQuestion(questionEvent("q-b", "second", []string{"x", "y"}))
	h.waitUpdate(t)
	h.waitUpdate(t)

	idx := 0
	h.rec.HandleAnswerResult(session.AnswerResultPayload{QuestionID: "q-a", CorrectIndex: &idx})

	time.Sleep(20 * time.Millisecond)
	select {
	case <-h.updates:
		t.Fatalf("stale result produced an update")
	default:
	}
	s := h.rec.Snapshot()
	for i, a := range s.Answers {
		if a.Correct != nil {
			t.Fatalf("answer %d of q-b mutated by stale q-a result", i)
		}
	}
	if s.ResultsVisible {
		t.Fatalf("stale result flipped results-visible")
	}
}

func TestResultAppliesByIndex(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"a", "b", "c"}))
	h.waitUpdate(t)

	idx := 1
	h.rec.HandleAnswerResult(session.AnswerResultPayload{QuestionID: "q-1", CorrectIndex: &idx})
	s := h.waitUpdate(t)

	if !s.ResultsVisible {
		t.Fatalf("expected results visible")
	}
	for i, a := range s.Answers {
		if a.Correct == nil {
			t.Fatalf("answer %d missing verdict", i)
		}
		if *a.Correct != (i == 1) {
			t.Fatalf("answer %d verdict wrong: %v", i, *a.Correct)
		}
	}
}

func TestResultAppliesByTextEquality(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"Paris", "Lyon"}))
	h.waitUpdate(t)

	h.rec.HandleAnswerResult(session.AnswerResultPayload{QuestionID: "q-1", CorrectAnswer: "Paris"})
	s := h.waitUpdate(t)

	if s.Answers[0].Correct == nil || !*s.Answers[0].Correct {
		t.Fatalf("expected Paris marked correct")
	}
	if s.Answers[1].Correct == nil || *s.Answers[1].Correct {
		t.Fatalf("expected Lyon marked incorrect")
	}
}

func TestSelectionGuardAfterSubmit(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"A", "B", "C"}))
	h.waitUpdate(t)

	h.rec.SelectAnswer(1)
	h.waitUpdate(t)
	if err := h.rec.SubmitAnswer(context.Background()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	h.waitUpdate(t)

	h.rec.SelectAnswer(2)
	time.Sleep(20 * time.Millisecond)
	select {
	case <-h.updates:
		t.Fatalf("selection after submit produced an update")
	default:
	}

	selected, ok := h.rec.Snapshot().SelectedAnswer()
	if !ok || selected.Text != "B" {
		t.Fatalf("expected selection to remain B, got %+v (ok=%v)", selected, ok)
	}
}

func TestSelectionGuardAfterResults(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"A", "B"}))
	h.waitUpdate(t)

	idx := 0
	h.rec.HandleAnswerResult(session.AnswerResultPayload{QuestionID: "q-1", CorrectIndex: &idx})
	h.waitUpdate(t)

	h.rec.SelectAnswer(1)
	if _, ok := h.rec.Snapshot().SelectedAnswer(); ok {
		t.Fatalf("selection accepted after results became visible")
	}
}

func TestSelectReplacesPriorSelection(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"A", "B"}))
	h.waitUpdate(t)

	h.rec.SelectAnswer(0)
	h.waitUpdate(t)
	h.rec.SelectAnswer(1)
	s := h.waitUpdate(t)

	if s.Answers[0].Selected || !s.Answers[1].Selected {
		t.Fatalf("expected exactly B selected, got %+v", s.Answers)
	}
}

func TestSubmitFallsBackExactlyOnce(t *testing.T) {
	h := newHarness(t, 0)
	h.realtime.deliver = false
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"A", "B"}))
	h.waitUpdate(t)
	h.rec.SelectAnswer(0)
	h.waitUpdate(t)

	if err := h.rec.SubmitAnswer(context.Background()); err != nil {
		t.Fatalf("expected fallback submission to succeed, got %v", err)
	}
	if h.realtime.callCount() != 1 {
		t.Fatalf("expected 1 realtime attempt, got %d", h.realtime.callCount())
	}
	if h.query.submitCount() != 1 {
		t.Fatalf("expected exactly 1 fallback call, got %d", h.query.submitCount())
	}
	if !h.rec.Snapshot().Submitted {
		t.Fatalf("expected submitted flag set after fallback success")
	}
}

func TestSubmitRollsBackWhenBothPathsFail(t *testing.T) {
	h := newHarness(t, 0)
	h.realtime.deliver = false
	h.query.submitErr = errors.New("service unavailable")
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"A", "B"}))
	h.waitUpdate(t)
	h.rec.SelectAnswer(0)
	h.waitUpdate(t)

	if err := h.rec.SubmitAnswer(context.Background()); err == nil {
		t.Fatalf("expected error when both paths fail")
	}
	if h.rec.Snapshot().Submitted {
		t.Fatalf("submitted flag not rolled back")
	}
	select {
	case <-h.errs:
	case <-time.After(time.Second):
		t.Fatalf("expected a user-facing error")
	}

	// The player may retry.
	h.query.submitErr = nil
	h.drainUpdates()
	if err := h.rec.SubmitAnswer(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !h.rec.Snapshot().Submitted {
		t.Fatalf("expected submitted after retry")
	}
}

func TestSubmitWithoutSelectionFails(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"A"}))
	h.waitUpdate(t)

	if err := h.rec.SubmitAnswer(context.Background()); err == nil {
		t.Fatalf("expected error submitting without a selection")
	}
	if h.realtime.callCount() != 0 {
		t.Fatalf("no network call expected without a selection")
	}
}

func TestQuestionEndedFlipsResultsVisible(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"A"}))
	h.waitUpdate(t)

	h.rec.HandleQuestionEnded("q-other")
	if h.rec.Snapshot().ResultsVisible {
		t.Fatalf("question-ended for another id must not apply")
	}

	h.rec.HandleQuestionEnded("q-1")
	if !h.rec.Snapshot().ResultsVisible {
		t.Fatalf("expected results visible after question ended")
	}
}

func TestGameEndedClearsModel(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"A"}))
	h.waitUpdate(t)

	h.rec.HandleGameEnded()
	s := h.rec.Snapshot()
	if s.Question != nil || len(s.Answers) != 0 || s.Submitted || s.ResultsVisible {
		t.Fatalf("expected empty model after game end, got %+v", s)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	h := newHarness(t, 0)
	h.rec.HandleQuestion(questionEvent("q-1", "t", []string{"A", "B"}))
	h.waitUpdate(t)

	s := h.rec.Snapshot()
	s.Answers[0].Selected = true
	s.Question.Options[0] = "tampered"

	fresh := h.rec.Snapshot()
	if fresh.Answers[0].Selected {
		t.Fatalf("snapshot mutation leaked into the model")
	}
	if fresh.Question.Options[0] != "A" {
		t.Fatalf("option mutation leaked into the model")
	}
}
