// Phase handlers.
//
// One routine per phase kind. Every handler shares the same contract: it
// renders its UI, suspends on the cancellable sleep primitive or on button
// events from the client, and returns (true, nil) on natural completion,
// (false, nil) when the player resolved it manually, or (false, ctx.Err())
// when the phase token was invalidated. Each terminal branch applies its
// score delta exactly once.

package main

import (
	"context"
	"math/rand/v2"
	"time"
)

// buttonOutcome values returned by waitForButtons.
const (
	outcomeTimeout = "timeout"
	outcomeConfirm = "confirm"
	outcomeFail    = "fail"
	outcomeAbort   = "abort"
)

// waitForButtons races a timer against confirm/fail button events and the
// phase token. Unrelated events are ignored.
func (q *quadrant) waitForButtons(ctx context.Context, d time.Duration) string {
	t := time.NewTimer(d)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			return outcomeTimeout
		case <-ctx.Done():
			return outcomeAbort
		case msg := <-q.inputs:
			switch msg.Type {
			case "confirm":
				return outcomeConfirm
			case "fail":
				return outcomeFail
			}
		}
	}
}

// resolveCancel applies the confirm/fail scoring for a cancellable phase and
// unshifts its fallback phase onto the front of the queue.
func (q *quadrant) resolveCancel(ctx context.Context, ph phaseInstance, rules phaseRules, outcome string) {
	switch outcome {
	case outcomeConfirm:
		switch phaseGroup(ph.name) {
		case "puff":
			q.promptManualBreaths(ctx)
		case "sniff":
			q.addScore(10)
		case "mask":
			q.addScore(10)
		case "action":
			points := 8
			if ph.action != nil && ph.action.Points != 0 {
				points = ph.action.Points
			}
			q.addScore(points)
		}
	case outcomeFail:
		q.addScore(-5)
	}

	q.prependPhase(rules.ui.cancelTarget)
}

// promptManualBreaths shows the 1-5 breath picker after a confirmed puff
// phase and awards ten points per claimed breath. This is the trust prompt;
// BREATH_COUNT_QUESTION is the audit.
func (q *quadrant) promptManualBreaths(ctx context.Context) {
	const d = 10 * time.Second

	q.session.ui.render(q.id, promptMessage{Type: "breath_count", Quadrant: q.id, Seconds: seconds(d)})

	t := time.NewTimer(d)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			return
		case <-ctx.Done():
			return
		case msg := <-q.inputs:
			if msg.Type == "breaths" && msg.Count >= 1 && msg.Count <= 5 {
				q.addScore(msg.Count * 10)
				return
			}
		}
	}
}

func (q *quadrant) handleIdlePhase(ctx context.Context, ph phaseInstance, rules phaseRules) (bool, error) {
	d := q.phaseDuration(ph, rules)
	q.renderPhase(ph, rules, d)

	if !sleep(ctx, d) {
		return false, ctx.Err()
	}
	return true, nil
}

func (q *quadrant) handleTimedPhase(ctx context.Context, ph phaseInstance, rules phaseRules) (bool, error) {
	d := q.phaseDuration(ph, rules)
	q.renderPhase(ph, rules, d)

	if rules.ui.ShowCancel {
		switch res := q.waitForButtons(ctx, d); res {
		case outcomeAbort:
			return false, ctx.Err()
		case outcomeConfirm, outcomeFail:
			q.resolveCancel(ctx, ph, rules, res)
			return false, nil
		}
	} else if !sleep(ctx, d) {
		return false, ctx.Err()
	}

	// Exhale steps count toward the breath audit only on natural completion.
	if ph.name == "PUFF_EXHALE" {
		q.loopCounter++
		q.completedBreaths++
	}

	return true, nil
}

func (q *quadrant) handleValidationPhase(ctx context.Context, ph phaseInstance, rules phaseRules) (bool, error) {
	d := q.phaseDuration(ph, rules)
	q.renderPhase(ph, rules, d)
	q.session.ui.render(q.id, promptMessage{
		Type:     "validation",
		Quadrant: q.id,
		Prompt:   rules.ui.InfoText,
		Seconds:  seconds(d),
	})

	switch q.waitForButtons(ctx, d) {
	case outcomeAbort:
		return false, ctx.Err()
	case outcomeConfirm:
		switch ph.name {
		case "PUFF_VALIDATION":
			q.addScore(20)
		case "SNIFF_VALIDATION", "MASK_VALIDATION", "ACTION_VALIDATION":
			q.addScore(10)
		}
	case outcomeFail:
		q.addScore(-5)
	case outcomeTimeout:
		q.addScore(-2)
	}

	return true, nil
}

// handleBreathQuestionPhase audits the completed Puff cycle: a claim is paid
// out at ten points per breath only when it does not exceed the count the
// engine recorded; over-claiming earns nothing. The phase always runs its
// full duration.
func (q *quadrant) handleBreathQuestionPhase(ctx context.Context, ph phaseInstance, rules phaseRules) (bool, error) {
	d := q.phaseDuration(ph, rules)
	q.renderPhase(ph, rules, d)
	q.session.ui.render(q.id, promptMessage{
		Type:     "breath_count",
		Quadrant: q.id,
		Prompt:   rules.ui.InfoText,
		Seconds:  seconds(d),
	})

	t := time.NewTimer(d)
	defer t.Stop()

	answered := false
	for {
		select {
		case <-t.C:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case msg := <-q.inputs:
			if msg.Type != "breaths" || answered || msg.Count < 1 || msg.Count > 5 {
				continue
			}
			answered = true
			if msg.Count <= q.completedBreaths {
				q.addScore(msg.Count * 10)
			} else {
				q.addScore(0)
			}
		}
	}
}

// handleActionPhase runs a physical challenge. Natural timeout with no
// manual resolution counts as "not verified" and costs two points.
func (q *quadrant) handleActionPhase(ctx context.Context, ph phaseInstance, rules phaseRules) (bool, error) {
	if ph.action == nil {
		action := q.session.actions[q.rng.IntN(len(q.session.actions))]
		ph.action = &action
	}

	d := q.phaseDuration(ph, rules)
	if d == 0 {
		d = time.Duration(ph.action.Seconds) * time.Second
	}

	q.renderPhase(ph, rules, d)
	q.session.ui.render(q.id, actionMessage{
		Type:     "action",
		Quadrant: q.id,
		Action:   ph.action,
		Seconds:  seconds(d),
	})

	switch res := q.waitForButtons(ctx, d); res {
	case outcomeAbort:
		return false, ctx.Err()
	case outcomeConfirm, outcomeFail:
		q.resolveCancel(ctx, ph, rules, res)
		return false, nil
	}

	q.addScore(-2)
	return true, nil
}

// handleChoicePhase offers three event tiles sampled from the pool; a pick
// prepends the chosen event's phases so it runs next, ahead of whatever the
// builder already queued.
func (q *quadrant) handleChoicePhase(ctx context.Context, ph phaseInstance, rules phaseRules) (bool, error) {
	d := q.phaseDuration(ph, rules)
	q.renderPhase(ph, rules, d)

	pool := []choiceOption{
		{Label: "Puff", Emoji: eventEmoji["Puff"], Event: "Puff"},
		{Label: "Sniff", Emoji: eventEmoji["Sniff"], Event: "Sniff"},
		{Label: "Mask", Emoji: eventEmoji["Mask"], Event: "Mask"},
		{Label: "Task", Emoji: eventEmoji["Action"], Event: "Action"},
		{Label: "New Vid", Emoji: eventEmoji["Grid"], Event: "Grid"},
		{Label: "Chill", Emoji: eventEmoji["Chill"], Event: "Chill"},
		{Label: "Replay", Emoji: eventEmoji["Replay"], Event: "Replay"},
		{Label: "Trivia", Emoji: eventEmoji["Trivia"], Event: "Trivia"},
		{Label: "Peace", Emoji: eventEmoji["Peace"], Event: "Peace"},
	}
	if q.lastEvent != "" {
		pool = append(pool, choiceOption{Label: "Redo Last", Emoji: eventEmoji["Redo Last"], Event: "Redo Last"})
	}

	options := pickUnique(q.rng, pool, 3)
	q.session.ui.render(q.id, choicesMessage{
		Type:     "choices",
		Quadrant: q.id,
		Options:  options,
		Seconds:  seconds(d),
	})

	t := time.NewTimer(d)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case msg := <-q.inputs:
			if msg.Type != "choice" {
				continue
			}
			for _, opt := range options {
				if opt.Event == msg.Choice {
					q.prependPhases(q.eventPhases(msg.Choice))
					return true, nil
				}
			}
		}
	}
}

// handleGridChoicePhase offers up to four replacement clips; a pick awards
// ten points and retargets the quadrant's video cycling.
func (q *quadrant) handleGridChoicePhase(ctx context.Context, ph phaseInstance, rules phaseRules) (bool, error) {
	d := q.phaseDuration(ph, rules)
	q.renderPhase(ph, rules, d)

	choices := pickUnique(q.rng, q.gridPool(), 4)
	if len(choices) == 0 {
		return true, nil
	}

	q.session.ui.render(q.id, gridMessage{
		Type:     "grid",
		Quadrant: q.id,
		Clips:    choices,
		Seconds:  seconds(d),
	})

	t := time.NewTimer(d)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			// No selection: the client resumes the paused clip.
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case msg := <-q.inputs:
			if msg.Type != "clip" {
				continue
			}
			for _, c := range choices {
				if c.Name == msg.Clip {
					q.addScore(10)
					q.retarget(c, false)
					return true, nil
				}
			}
		}
	}
}

// handleTriviaPhase presents up to five unique questions within a fixed
// duration budget; any leftover budget after the last question is waited
// out so the phase keeps its scripted length.
func (q *quadrant) handleTriviaPhase(ctx context.Context, ph phaseInstance, rules phaseRules) (bool, error) {
	d := q.phaseDuration(ph, rules)
	q.renderPhase(ph, rules, d)

	if len(q.session.trivia) == 0 {
		if !sleep(ctx, d) {
			return false, ctx.Err()
		}
		return true, nil
	}

	count := len(q.session.trivia)
	if count > 5 {
		count = 5
	}
	questions := pickUnique(q.rng, q.session.trivia, count)
	deadline := time.Now().Add(d)

	for i, question := range questions {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		q.session.ui.render(q.id, triviaMessage{
			Type:     "trivia",
			Quadrant: q.id,
			Index:    i + 1,
			Total:    len(questions),
			Question: question.Question,
			Answers:  question.Answers,
			Seconds:  seconds(remaining),
		})

		answered, err := q.awaitTriviaAnswer(ctx, question, remaining)
		if err != nil {
			return false, err
		}
		if !answered {
			break
		}
	}

	if remaining := time.Until(deadline); remaining > 0 && !sleep(ctx, remaining) {
		return false, ctx.Err()
	}
	return true, nil
}

// awaitTriviaAnswer locks in the first answer, scores it, reveals the
// result for two seconds, and reports whether an answer arrived before the
// limit.
func (q *quadrant) awaitTriviaAnswer(ctx context.Context, question triviaQuestion, limit time.Duration) (bool, error) {
	t := time.NewTimer(limit)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case msg := <-q.inputs:
			if msg.Type != "answer" {
				continue
			}

			right := msg.Answer == question.Correct
			if right {
				points := question.Points
				if points == 0 {
					points = 8
				}
				q.addScore(points)
			} else {
				q.addScore(-3)
			}

			q.session.ui.render(q.id, triviaResultMessage{
				Type:     "trivia_result",
				Quadrant: q.id,
				Answer:   msg.Answer,
				Correct:  question.Correct,
				Right:    right,
			})

			if !sleep(ctx, q.session.revealPause) {
				return false, ctx.Err()
			}
			return true, nil
		}
	}
}

// handleReplayPhase restarts the current clip from time zero, waits out its
// effective duration (capped at one minute), and awards a flat completion
// bonus.
func (q *quadrant) handleReplayPhase(ctx context.Context, ph phaseInstance, rules phaseRules) (bool, error) {
	d := q.phaseDuration(ph, rules)
	if d == 0 || d > time.Minute {
		d = time.Minute
	}

	if c := q.currentClip(); c != nil {
		q.retarget(c, true)
	}
	q.renderPhase(ph, rules, d)

	if !sleep(ctx, d) {
		return false, ctx.Err()
	}

	q.addScore(5)
	return true, nil
}

// pickUnique samples up to n elements from list without replacement.
func pickUnique[T any](rng *rand.Rand, list []T, n int) []T {
	arr := append([]T(nil), list...)
	if n > len(arr) {
		n = len(arr)
	}

	out := make([]T, 0, n)
	for len(out) < n {
		i := rng.IntN(len(arr))
		out = append(out, arr[i])
		arr = append(arr[:i], arr[i+1:]...)
	}
	return out
}
