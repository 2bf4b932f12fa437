package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlink/go/internal/session"
)

// RealtimeSender is the low-latency submission path over the session
// transport. A false return means "not delivered", not an error.
type RealtimeSender interface {
	SubmitAnswer(questionID, answer string) bool
}

// QueryClient is the request/response fallback: authoritative current
// question for reconciliation and answer submission when the realtime path
// reports non-delivery.
type QueryClient interface {
	CurrentQuestion(ctx context.Context) (*Question, error)
	SubmitAnswer(ctx context.Context, questionID, answer string) error
}

const queryTimeout = 10 * time.Second

// Reconciler consumes routed session events plus local player actions and
// maintains the Snapshot, including synchronized reveal timing from the
// measured clock offset. It owns the model exclusively; readers only ever
// get value copies.
type Reconciler struct {
	clock    clockwork.Clock
	offset   func() time.Duration // serverTime - localTime
	realtime RealtimeSender
	query    QueryClient

	mu            sync.Mutex
	current       Snapshot
	pendingID     string // question id of the scheduled reveal, if any
	pendingTimer  clockwork.Timer
	pendingCancel chan struct{}

	updateSubs []func(Snapshot)
	errorFn    func(msg string)
}

// NewReconciler creates a reconciler. offset supplies the latest clock
// offset estimate; errorFn is the designated user-facing error channel.
func NewReconciler(clock clockwork.Clock, offset func() time.Duration, realtime RealtimeSender, query QueryClient, errorFn func(string)) *Reconciler {
	if offset == nil {
		offset = func() time.Duration { return 0 }
	}
	if errorFn == nil {
		errorFn = func(string) {}
	}
	return &Reconciler{
		clock:    clock,
		offset:   offset,
		realtime: realtime,
		query:    query,
		errorFn:  errorFn,
	}
}

// OnUpdate registers a snapshot subscriber. Handlers receive a deep copy
// and must not call back into the reconciler.
func (r *Reconciler) OnUpdate(fn func(Snapshot)) {
	r.mu.Lock()
	r.updateSubs = append(r.updateSubs, fn)
	r.mu.Unlock()
}

// Snapshot returns a copy of the last published model.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.clone()
}

// HandleQuestion processes a question_started event (or the current_question
// part of initial_state).
//
// A populated payload with a start_at timestamp is scheduled so all clients
// reveal at the same wall-clock instant: the reveal fires after
// max(0, start_at + clockOffset - now). Without start_at it applies
// immediately (late joiners, older payloads).
//
// A notify-only payload (no id, no text) never touches the model; it
// triggers an out-of-band fetch of the authoritative current question, which
// is applied immediately since the fetch already reflects server state.
func (r *Reconciler) HandleQuestion(p session.QuestionPayload) {
	if p.IsNotifyOnly() {
		go r.refetchCurrent()
		return
	}

	q := questionFromPayload(p)
	if q.StartAt == nil {
		r.mu.Lock()
		r.applyQuestionLocked(q)
		r.mu.Unlock()
		return
	}

	delay := q.StartAt.Add(r.offset()).Sub(r.clock.Now())
	if delay <= 0 {
		r.mu.Lock()
		r.applyQuestionLocked(q)
		r.mu.Unlock()
		return
	}
	r.scheduleReveal(q, delay)
}

// scheduleReveal arms the single pending reveal timer. A newer question
// supersedes any pending one; a stale timer that still fires re-checks the
// pending id and no-ops on mismatch.
func (r *Reconciler) scheduleReveal(q Question, delay time.Duration) {
	r.mu.Lock()
	r.cancelPendingLocked()
	timer := r.clock.NewTimer(delay)
	cancelCh := make(chan struct{})
	r.pendingTimer = timer
	r.pendingCancel = cancelCh
	r.pendingID = q.ID
	r.mu.Unlock()

	log.Debug().
		Str("question_id", q.ID).
		Dur("delay", delay).
		Msg("scheduled question reveal")

	go func() {
		select {
		case <-timer.Chan():
		case <-cancelCh:
			return
		}

		r.mu.Lock()
		if r.pendingID != q.ID {
			r.mu.Unlock()
			return
		}
		r.pendingID = ""
		r.pendingTimer = nil
		r.pendingCancel = nil
		r.applyQuestionLocked(q)
		r.mu.Unlock()
	}()
}

// cancelPendingLocked clears any scheduled reveal. Caller holds r.mu.
func (r *Reconciler) cancelPendingLocked() {
	r.pendingID = ""
	if r.pendingTimer != nil {
		stopAndDrainTimer(r.pendingTimer)
		r.pendingTimer = nil
	}
	if r.pendingCancel != nil {
		close(r.pendingCancel)
		r.pendingCancel = nil
	}
}

// refetchCurrent pulls the authoritative current question after a
// notify-only ping.
func (r *Reconciler) refetchCurrent() {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	q, err := r.query.CurrentQuestion(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch current question")
		return
	}
	if q == nil {
		return
	}
	r.mu.Lock()
	r.applyQuestionLocked(*q)
	r.mu.Unlock()
}

// applyQuestionLocked performs the atomic question+answers transition.
// If the incoming id matches the active question, only metadata is updated;
// the option list of an accepted question is never replaced, so a
// lightweight later event cannot stomp a fully-populated one.
func (r *Reconciler) applyQuestionLocked(q Question) {
	if r.current.Question != nil && r.current.Question.ID == q.ID {
		next := r.current.clone()
		if q.CorrectIndex != nil {
			idx := *q.CorrectIndex
			next.Question.CorrectIndex = &idx
		}
		r.publishLocked(next)
		return
	}

	// A newly applied question supersedes any still-pending reveal; the
	// stale timer re-checks the pending id when it fires and no-ops.
	if r.pendingID != "" && r.pendingID != q.ID {
		r.cancelPendingLocked()
	}

	answers := make([]AnswerEntry, len(q.Options))
	for i, opt := range q.Options {
		answers[i] = AnswerEntry{Text: opt}
	}
	r.publishLocked(Snapshot{
		Question: &q,
		Answers:  answers,
	})
}

// HandleAnswerResult applies a result event against the question id it is
// addressed to. Results for a superseded question are dropped; the model
// already advanced and its answer list must not be mutated by stragglers.
func (r *Reconciler) HandleAnswerResult(p session.AnswerResultPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current.Question == nil || r.current.Question.ID != p.QuestionID {
		log.Debug().
			Str("question_id", p.QuestionID).
			Msg("ignoring result for stale question")
		return
	}
	if p.Correct == nil && p.CorrectIndex == nil && p.CorrectAnswer == "" {
		// Acknowledgement without a verdict; nothing to reveal yet.
		return
	}

	next := r.current.clone()
	switch {
	case p.CorrectIndex != nil:
		for i := range next.Answers {
			c := i == *p.CorrectIndex
			next.Answers[i].Correct = &c
		}
		idx := *p.CorrectIndex
		next.Question.CorrectIndex = &idx
	case p.CorrectAnswer != "":
		for i := range next.Answers {
			c := next.Answers[i].Text == p.CorrectAnswer
			next.Answers[i].Correct = &c
		}
	default:
		// Only our own verdict is known; mark the selected entry.
		for i := range next.Answers {
			if next.Answers[i].Selected {
				c := *p.Correct
				next.Answers[i].Correct = &c
			}
		}
	}
	next.ResultsVisible = true
	r.publishLocked(next)
}

// HandleQuestionEnded flips results visible for the addressed question.
func (r *Reconciler) HandleQuestionEnded(questionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current.Question == nil || r.current.Question.ID != questionID {
		return
	}
	next := r.current.clone()
	next.ResultsVisible = true
	r.publishLocked(next)
}

// HandleGameEnded clears the model.
func (r *Reconciler) HandleGameEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelPendingLocked()
	r.publishLocked(Snapshot{})
}

// SelectAnswer marks exactly one entry selected. Rejected (no-op) once a
// submission has been made or results are visible.
func (r *Reconciler) SelectAnswer(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current.Submitted || r.current.ResultsVisible {
		return
	}
	if index < 0 || index >= len(r.current.Answers) {
		return
	}
	next := r.current.clone()
	for i := range next.Answers {
		next.Answers[i].Selected = i == index
	}
	r.publishLocked(next)
}

// SubmitAnswer submits the current selection. The realtime path is tried
// first; on non-delivery the fallback query path is invoked exactly once. If
// both fail the submitted flag is rolled back so the player may retry, and a
// recoverable error is surfaced.
func (r *Reconciler) SubmitAnswer(ctx context.Context) error {
	r.mu.Lock()
	if r.current.Question == nil {
		r.mu.Unlock()
		return fmt.Errorf("no active question")
	}
	if r.current.Submitted {
		r.mu.Unlock()
		return nil
	}
	selected, ok := r.current.SelectedAnswer()
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("no answer selected")
	}
	questionID := r.current.Question.ID
	next := r.current.clone()
	next.Submitted = true
	r.publishLocked(next)
	r.mu.Unlock()

	if r.realtime.SubmitAnswer(questionID, selected.Text) {
		return nil
	}

	// Realtime path reported non-delivery; fall back once.
	if err := r.query.SubmitAnswer(ctx, questionID, selected.Text); err != nil {
		r.mu.Lock()
		rollback := r.current.clone()
		rollback.Submitted = false
		r.publishLocked(rollback)
		r.mu.Unlock()
		r.errorFn("could not submit your answer, please try again")
		return fmt.Errorf("submit answer fallback: %w", err)
	}
	return nil
}

// publishLocked replaces the model as a single value and notifies
// subscribers. Caller holds r.mu.
func (r *Reconciler) publishLocked(next Snapshot) {
	r.current = next
	for _, fn := range r.updateSubs {
		fn(next.clone())
	}
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
