package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimedPhaseNaturalCompletion(t *testing.T) {
	s, _ := newTestSession(t)
	q := s.quads[0]

	ph := phaseInstance{name: "CHILL_MAIN", duration: 2 * time.Millisecond}
	done, err := q.handleTimedPhase(context.Background(), ph, defaultCatalog["CHILL_MAIN"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, q.score)
}

func TestTimedPhaseAbort(t *testing.T) {
	s, _ := newTestSession(t)
	q := s.quads[0]

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ph := phaseInstance{name: "MASK_MAIN", duration: time.Minute}
	done, err := q.handleTimedPhase(ctx, ph, defaultCatalog["MASK_MAIN"])

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, done)
}

func TestExhaleCountsOnlyOnNaturalCompletion(t *testing.T) {
	s, _ := newTestSession(t)
	q := s.quads[0]

	ph := phaseInstance{name: "PUFF_EXHALE", duration: 2 * time.Millisecond, loop: 1}
	done, err := q.handleTimedPhase(context.Background(), ph, defaultCatalog["PUFF_EXHALE"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, q.loopCounter)
	assert.Equal(t, 1, q.completedBreaths)

	// A manual resolution on the next exhale must not count it.
	q.deliver(clientMessage{Type: "fail"})
	ph.loop = 2
	done, err = q.handleTimedPhase(context.Background(), ph, defaultCatalog["PUFF_EXHALE"])

	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, q.completedBreaths)
}

func TestTimedPhaseConfirmMask(t *testing.T) {
	s, _ := newTestSession(t)
	q := s.quads[0]
	q.deliver(clientMessage{Type: "confirm"})

	ph := phaseInstance{name: "MASK_MAIN", duration: time.Minute}
	done, err := q.handleTimedPhase(context.Background(), ph, defaultCatalog["MASK_MAIN"])

	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 10, q.score)
	assert.Equal(t, []string{"MASK_VALIDATION"}, queueNames(q))
}

func TestTimedPhaseFailPenalty(t *testing.T) {
	s, _ := newTestSession(t)
	q := s.quads[0]
	q.deliver(clientMessage{Type: "fail"})

	ph := phaseInstance{name: "PUFF_LIGHT", duration: time.Minute}
	done, err := q.handleTimedPhase(context.Background(), ph, defaultCatalog["PUFF_LIGHT"])

	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, -5, q.score)
	assert.Equal(t, []string{"IDLE_GAP"}, queueNames(q))
}

func TestTimedPhaseConfirmPuffPromptsBreathPicker(t *testing.T) {
	s, ui := newTestSession(t)
	q := s.quads[0]
	q.deliver(clientMessage{Type: "confirm"})
	q.deliver(clientMessage{Type: "breaths", Count: 4})

	ph := phaseInstance{name: "PUFF_SMOKE", duration: time.Minute}
	done, err := q.handleTimedPhase(context.Background(), ph, defaultCatalog["PUFF_SMOKE"])

	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 40, q.score, "trust prompt pays ten per claimed breath, unchecked")
	assert.Equal(t, []string{"IDLE_GAP"}, queueNames(q))

	prompts := messagesOf[promptMessage](ui, q.id)
	require.NotEmpty(t, prompts)
	assert.Equal(t, "breath_count", prompts[0].Type)
}

func TestValidationScoring(t *testing.T) {
	for _, tc := range []struct {
		phase  string
		button string
		want   int
	}{
		{"PUFF_VALIDATION", "confirm", 20},
		{"SNIFF_VALIDATION", "confirm", 10},
		{"MASK_VALIDATION", "confirm", 10},
		{"ACTION_VALIDATION", "confirm", 10},
		{"SNIFF_VALIDATION", "fail", -5},
		{"SNIFF_VALIDATION", "", -2},
	} {
		name := tc.phase + "/" + tc.button
		if tc.button == "" {
			name = tc.phase + "/timeout"
		}
		t.Run(name, func(t *testing.T) {
			s, _ := newTestSession(t)
			q := s.quads[0]

			ph := phaseInstance{name: tc.phase}
			if tc.button != "" {
				q.deliver(clientMessage{Type: tc.button})
			} else {
				ph.duration = 2 * time.Millisecond
			}

			done, err := q.handleValidationPhase(context.Background(), ph, defaultCatalog[tc.phase])

			require.NoError(t, err)
			assert.True(t, done)
			assert.Equal(t, tc.want, q.score)
		})
	}
}

func TestBreathAudit(t *testing.T) {
	run := func(t *testing.T, completed, claimed int) (*quadrant, *fakeUI) {
		t.Helper()
		s, ui := newTestSession(t)
		q := s.quads[0]
		q.completedBreaths = completed
		if claimed != 0 {
			q.deliver(clientMessage{Type: "breaths", Count: claimed})
		}

		ph := phaseInstance{name: "BREATH_COUNT_QUESTION", duration: 30 * time.Millisecond}
		done, err := q.handleBreathQuestionPhase(context.Background(), ph, defaultCatalog["BREATH_COUNT_QUESTION"])
		require.NoError(t, err)
		assert.True(t, done, "the audit always runs its full duration")
		return q, ui
	}

	t.Run("claim within completed pays out", func(t *testing.T) {
		q, _ := run(t, 3, 3)
		assert.Equal(t, 30, q.score)
	})

	t.Run("over-claim earns nothing", func(t *testing.T) {
		q, ui := run(t, 3, 5)
		assert.Zero(t, q.score)
		// The zero award still renders, distinguishing it from no answer.
		assert.NotEmpty(t, messagesOf[scoreMessage](ui, q.id))
	})

	t.Run("no answer leaves the score alone", func(t *testing.T) {
		q, ui := run(t, 3, 0)
		assert.Zero(t, q.score)
		assert.Empty(t, messagesOf[scoreMessage](ui, q.id))
	})

	t.Run("only the first valid claim counts", func(t *testing.T) {
		s, _ := newTestSession(t)
		q := s.quads[0]
		q.completedBreaths = 5
		q.deliver(clientMessage{Type: "breaths", Count: 9}) // out of range, ignored
		q.deliver(clientMessage{Type: "breaths", Count: 2})
		q.deliver(clientMessage{Type: "breaths", Count: 5})

		ph := phaseInstance{name: "BREATH_COUNT_QUESTION", duration: 30 * time.Millisecond}
		done, err := q.handleBreathQuestionPhase(context.Background(), ph, defaultCatalog["BREATH_COUNT_QUESTION"])

		require.NoError(t, err)
		assert.True(t, done)
		assert.Equal(t, 20, q.score)
	})
}

func TestActionPhaseTimeoutPenalty(t *testing.T) {
	s, ui := newTestSession(t)
	q := s.quads[0]

	action := defaultActions[0]
	ph := phaseInstance{name: "ACTION_MAIN", duration: 2 * time.Millisecond, action: &action}
	done, err := q.handleActionPhase(context.Background(), ph, defaultCatalog["ACTION_MAIN"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, -2, q.score)

	actions := messagesOf[actionMessage](ui, q.id)
	require.Len(t, actions, 1)
	assert.Equal(t, action.Label, actions[0].Action.Label)
}

func TestActionPhaseConfirmAwardsPoints(t *testing.T) {
	s, _ := newTestSession(t)
	q := s.quads[0]
	q.deliver(clientMessage{Type: "confirm"})

	action := actionDef{Label: "Test", Seconds: 60, Points: 12}
	ph := phaseInstance{name: "ACTION_MAIN", duration: time.Minute, action: &action}
	done, err := q.handleActionPhase(context.Background(), ph, defaultCatalog["ACTION_MAIN"])

	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 12, q.score)
	assert.Equal(t, []string{"IDLE_GAP"}, queueNames(q))
}

func TestActionPhasePicksActionWhenUnset(t *testing.T) {
	s, ui := newTestSession(t)
	q := s.quads[0]

	ph := phaseInstance{name: "ACTION_MAIN", duration: 2 * time.Millisecond}
	done, err := q.handleActionPhase(context.Background(), ph, defaultCatalog["ACTION_MAIN"])

	require.NoError(t, err)
	assert.True(t, done)

	actions := messagesOf[actionMessage](ui, q.id)
	require.Len(t, actions, 1)
	assert.NotNil(t, actions[0].Action)
}

// TestActionEventEndToEnd drives a forced Action draw through the scheduler:
// build, ready, main (timing out), validation.
func TestActionEventEndToEnd(t *testing.T) {
	s, ui := newTestSession(t)
	s.catalog = fastCatalog()
	s.drawEvent = func(*quadrant) string { return "Action" }
	q := s.quads[0]

	q.buildAndEnqueueNextEvent()
	require.Equal(t, []string{
		"IDLE_GAP", "READY_TO_ACTION", "ACTION_MAIN", "ACTION_VALIDATION",
	}, queueNames(q))

	// Shrink the per-action override so the main phase times out quickly.
	q.queue[2].duration = 2 * time.Millisecond

	ctx := context.Background()
	q.step(ctx) // idle gap
	q.step(ctx) // ready
	assert.Zero(t, q.score)
	q.step(ctx) // main, times out
	assert.Equal(t, -2, q.score)
	q.step(ctx) // validation, times out
	assert.Equal(t, -4, q.score)

	var rendered []string
	for _, msg := range messagesOf[phaseMessage](ui, q.id) {
		rendered = append(rendered, msg.Phase)
	}
	assert.Equal(t, []string{
		"IDLE_GAP", "READY_TO_ACTION", "ACTION_MAIN", "ACTION_VALIDATION",
	}, rendered)
}

func TestChoicePhasePrependsChosenEvent(t *testing.T) {
	s, ui := newTestSession(t)
	q := s.quads[0]
	q.rng = rand.New(rand.NewPCG(7, 7))
	q.queue = []phaseInstance{{name: "CHILL_MAIN"}}

	// Mirror the handler's sampling to learn which tiles it will offer.
	mirror := rand.New(rand.NewPCG(7, 7))
	pool := []choiceOption{
		{Event: "Puff"}, {Event: "Sniff"}, {Event: "Mask"},
		{Event: "Action"}, {Event: "Grid"}, {Event: "Chill"},
		{Event: "Replay"}, {Event: "Trivia"}, {Event: "Peace"},
	}
	options := pickUnique(mirror, pool, 3)
	chosen := options[0].Event

	q.deliver(clientMessage{Type: "choice", Choice: chosen})

	ph := phaseInstance{name: "YOU_CHOOSE_OVERLAY", duration: time.Minute}
	done, err := q.handleChoicePhase(context.Background(), ph, defaultCatalog["YOU_CHOOSE_OVERLAY"])

	require.NoError(t, err)
	assert.True(t, done)

	first := map[string]string{
		"Puff": "READY_TO_PUFF", "Sniff": "READY_TO_SNIFF",
		"Mask": "READY_FOR_MASK", "Action": "READY_TO_ACTION",
		"Grid": "GRID_CHOICE_OVERLAY", "Chill": "CHILL_MAIN",
		"Replay": "REPLAY_VIDEO_MAIN", "Trivia": "TRIVIA_MAIN",
		"Peace": "PEACE_MAIN",
	}
	require.NotEmpty(t, q.queue)
	assert.Equal(t, first[chosen], q.queue[0].name)
	assert.Equal(t, "CHILL_MAIN", q.queue[len(q.queue)-1].name,
		"the interrupted sequence stays behind the prepended one")

	choices := messagesOf[choicesMessage](ui, q.id)
	require.Len(t, choices, 1)
	assert.Len(t, choices[0].Options, 3)
}

func TestChoicePhaseIgnoresUnofferedEvent(t *testing.T) {
	s, _ := newTestSession(t)
	q := s.quads[0]
	q.rng = rand.New(rand.NewPCG(7, 7))

	mirror := rand.New(rand.NewPCG(7, 7))
	pool := []choiceOption{
		{Event: "Puff"}, {Event: "Sniff"}, {Event: "Mask"},
		{Event: "Action"}, {Event: "Grid"}, {Event: "Chill"},
		{Event: "Replay"}, {Event: "Trivia"}, {Event: "Peace"},
	}
	options := pickUnique(mirror, pool, 3)

	offered := make(map[string]bool)
	for _, opt := range options {
		offered[opt.Event] = true
	}
	var unoffered string
	for _, opt := range pool {
		if !offered[opt.Event] {
			unoffered = opt.Event
			break
		}
	}

	q.deliver(clientMessage{Type: "choice", Choice: unoffered})

	ph := phaseInstance{name: "YOU_CHOOSE_OVERLAY", duration: 20 * time.Millisecond}
	done, err := q.handleChoicePhase(context.Background(), ph, defaultCatalog["YOU_CHOOSE_OVERLAY"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, q.queue)
}

func TestChoicePhaseOffersRedoLastOnlyWithHistory(t *testing.T) {
	offered := func(t *testing.T, lastEvent string, runs int) map[string]bool {
		t.Helper()
		s, ui := newTestSession(t)
		q := s.quads[0]
		q.lastEvent = lastEvent

		ph := phaseInstance{name: "YOU_CHOOSE_OVERLAY", duration: 2 * time.Millisecond}
		for i := 0; i < runs; i++ {
			_, err := q.handleChoicePhase(context.Background(), ph, defaultCatalog["YOU_CHOOSE_OVERLAY"])
			require.NoError(t, err)
		}

		events := make(map[string]bool)
		for _, msg := range messagesOf[choicesMessage](ui, q.id) {
			for _, opt := range msg.Options {
				events[opt.Event] = true
			}
		}
		return events
	}

	assert.True(t, offered(t, "Sniff", 50)["Redo Last"],
		"Redo Last shows up once history exists")
	assert.False(t, offered(t, "", 50)["Redo Last"],
		"no Redo Last tile without a previous event")
}

func TestGridChoiceAwardsAndRetargets(t *testing.T) {
	s, ui := newTestSession(t, "c0.mp4", "c1.mp4", "c2.mp4", "c3.mp4", "c4.mp4", "c5.mp4")
	q0, q1 := s.quads[0], s.quads[1]
	q0.retarget(s.library.at(0), false)
	q1.retarget(s.library.at(1), false)

	// Pool excludes q0's own clip and q1's in-use clip, leaving exactly
	// the four others, so any of them is guaranteed to be offered.
	q0.deliver(clientMessage{Type: "clip", Clip: "c3.mp4"})

	ph := phaseInstance{name: "GRID_CHOICE_OVERLAY", duration: time.Minute}
	done, err := q0.handleGridChoicePhase(context.Background(), ph, defaultCatalog["GRID_CHOICE_OVERLAY"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 10, q0.score)
	assert.Equal(t, "c3.mp4", q0.currentClip().Name)

	grids := messagesOf[gridMessage](ui, q0.id)
	require.Len(t, grids, 1)
	assert.Len(t, grids[0].Clips, 4)
}

func TestGridChoiceEmptyPool(t *testing.T) {
	s, ui := newTestSession(t)
	q := s.quads[0]

	ph := phaseInstance{name: "GRID_CHOICE_OVERLAY", duration: time.Minute}
	done, err := q.handleGridChoicePhase(context.Background(), ph, defaultCatalog["GRID_CHOICE_OVERLAY"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, q.score)
	assert.Empty(t, messagesOf[gridMessage](ui, q.id))
}

func TestGridChoiceTimeoutKeepsClip(t *testing.T) {
	s, _ := newTestSession(t, "c0.mp4", "c1.mp4", "c2.mp4")
	q := s.quads[0]
	q.retarget(s.library.at(0), false)

	ph := phaseInstance{name: "GRID_CHOICE_OVERLAY", duration: 5 * time.Millisecond}
	done, err := q.handleGridChoicePhase(context.Background(), ph, defaultCatalog["GRID_CHOICE_OVERLAY"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, q.score)
	assert.Equal(t, "c0.mp4", q.currentClip().Name)
}

func TestTriviaPhaseAsksDistinctQuestions(t *testing.T) {
	s, ui := newTestSession(t)
	q := s.quads[0]

	bank := make([]triviaQuestion, 8)
	for i := range bank {
		bank[i] = triviaQuestion{
			Question: fmt.Sprintf("Question %d?", i),
			Answers:  []string{"yes", "no", "maybe"},
			Correct:  0,
			Points:   5,
		}
	}
	s.trivia = bank

	for i := 0; i < 5; i++ {
		q.deliver(clientMessage{Type: "answer", Answer: 0})
	}

	ph := phaseInstance{name: "TRIVIA_MAIN", duration: 150 * time.Millisecond}
	done, err := q.handleTriviaPhase(context.Background(), ph, defaultCatalog["TRIVIA_MAIN"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 25, q.score)

	asked := messagesOf[triviaMessage](ui, q.id)
	require.Len(t, asked, 5)
	seen := make(map[string]bool)
	for _, msg := range asked {
		assert.False(t, seen[msg.Question], "question %q repeated", msg.Question)
		seen[msg.Question] = true
	}
}

func TestTriviaWrongAnswerPenalty(t *testing.T) {
	s, ui := newTestSession(t)
	q := s.quads[0]
	s.trivia = []triviaQuestion{{
		Question: "Pick the second answer.",
		Answers:  []string{"first", "second"},
		Correct:  1,
		Points:   8,
	}}

	q.deliver(clientMessage{Type: "answer", Answer: 0})

	ph := phaseInstance{name: "TRIVIA_MAIN", duration: 30 * time.Millisecond}
	done, err := q.handleTriviaPhase(context.Background(), ph, defaultCatalog["TRIVIA_MAIN"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, -3, q.score)

	results := messagesOf[triviaResultMessage](ui, q.id)
	require.Len(t, results, 1)
	assert.False(t, results[0].Right)
	assert.Equal(t, 1, results[0].Correct)
}

func TestTriviaDefaultPointsWhenUnset(t *testing.T) {
	s, _ := newTestSession(t)
	q := s.quads[0]
	s.trivia = []triviaQuestion{{
		Question: "Any?",
		Answers:  []string{"a", "b"},
		Correct:  0,
	}}

	q.deliver(clientMessage{Type: "answer", Answer: 0})

	ph := phaseInstance{name: "TRIVIA_MAIN", duration: 30 * time.Millisecond}
	_, err := q.handleTriviaPhase(context.Background(), ph, defaultCatalog["TRIVIA_MAIN"])

	require.NoError(t, err)
	assert.Equal(t, 8, q.score)
}

func TestTriviaEmptyBankSleepsOut(t *testing.T) {
	s, ui := newTestSession(t)
	q := s.quads[0]
	s.trivia = nil

	ph := phaseInstance{name: "TRIVIA_MAIN", duration: 5 * time.Millisecond}
	done, err := q.handleTriviaPhase(context.Background(), ph, defaultCatalog["TRIVIA_MAIN"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, messagesOf[triviaMessage](ui, q.id))
}

func TestReplayRestartsClipAndAwardsBonus(t *testing.T) {
	s, ui := newTestSession(t, "c0.mp4")
	q := s.quads[0]
	q.retarget(s.library.at(0), false)

	ph := phaseInstance{name: "REPLAY_VIDEO_MAIN", duration: 5 * time.Millisecond}
	done, err := q.handleReplayPhase(context.Background(), ph, defaultCatalog["REPLAY_VIDEO_MAIN"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 5, q.score)

	videos := messagesOf[videoMessage](ui, q.id)
	require.GreaterOrEqual(t, len(videos), 2)
	assert.True(t, videos[len(videos)-1].Restart)
}

func TestIdlePhaseRendersCountdown(t *testing.T) {
	s, ui := newTestSession(t)
	q := s.quads[0]

	ph := phaseInstance{name: "IDLE_GAP", duration: 2 * time.Millisecond, nextEventName: "Puff"}
	done, err := q.handleIdlePhase(context.Background(), ph, defaultCatalog["IDLE_GAP"])

	require.NoError(t, err)
	assert.True(t, done)
	assert.Zero(t, q.score)

	phases := messagesOf[phaseMessage](ui, q.id)
	require.Len(t, phases, 1)
	assert.Equal(t, "Puff", phases[0].NextEventName)
}

func TestPickUnique(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))

	out := pickUnique(rng, []int{1, 2, 3, 4, 5}, 3)
	assert.Len(t, out, 3)
	seen := make(map[int]bool)
	for _, v := range out {
		assert.False(t, seen[v])
		seen[v] = true
	}

	assert.Len(t, pickUnique(rng, []int{1, 2}, 5), 2)
	assert.Empty(t, pickUnique(rng, []int(nil), 3))

	questions := pickUnique(rng, defaultTrivia, 5)
	require.Len(t, questions, 5)
	texts := make(map[string]bool)
	for _, question := range questions {
		assert.False(t, texts[question.Question])
		texts[question.Question] = true
	}
}
