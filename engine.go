// Quadbox phase engine
//
// Each session owns N quadrants (player slots). A quadrant runs one
// scheduler goroutine: pop the next phase off the queue, invalidate the
// previous cancellation token, dispatch the phase's handler, tear the UI
// down, yield briefly, repeat. The queue is replenished with an idle gap
// plus one randomly drawn event whenever it runs low, so the loop never
// stalls. Only an explicit session stop halts a quadrant; handler failures
// are logged and skipped.
//
// All engine state (score, queue, counters) is owned by the scheduler
// goroutine. The pieces touched from outside it — the active cancel func and
// the clip cursor — sit behind the quadrant mutex.

package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

const (
	queueLowWater  = 3
	schedulerYield = 10 * time.Millisecond
)

// renderer is the UI collaborator: it receives declarative render
// instructions per phase transition and a teardown call on every phase exit.
type renderer interface {
	render(quadrant int, msg any)
	clearPhase(quadrant int)
}

// Messages sent to clients
type phaseMessage struct {
	Type          string  `json:"type"` // "phase"
	Quadrant      int     `json:"quadrant"`
	Phase         string  `json:"phase"`
	Seconds       int     `json:"seconds,omitempty"`
	NextEventName string  `json:"next_event_name,omitempty"`
	Loop          int     `json:"loop,omitempty"`
	UI            uiRules `json:"ui"`
}

type scoreMessage struct {
	Type     string `json:"type"` // "score"
	Quadrant int    `json:"quadrant"`
	Score    int    `json:"score"`
}

type videoMessage struct {
	Type     string `json:"type"` // "video"
	Quadrant int    `json:"quadrant"`
	Clip     *clip  `json:"clip"`
	Restart  bool   `json:"restart,omitempty"`
}

type vibeMessage struct {
	Type     string `json:"type"` // "vibe"
	Quadrant int    `json:"quadrant"`
	Vibe     string `json:"vibe"`
}

type promptMessage struct {
	Type     string `json:"type"` // "validation" or "breath_count"
	Quadrant int    `json:"quadrant"`
	Prompt   string `json:"prompt,omitempty"`
	Seconds  int    `json:"seconds"`
}

type actionMessage struct {
	Type     string     `json:"type"` // "action"
	Quadrant int        `json:"quadrant"`
	Action   *actionDef `json:"action"`
	Seconds  int        `json:"seconds"`
}

type choiceOption struct {
	Label string `json:"label"`
	Emoji string `json:"emoji"`
	Event string `json:"event"`
}

type choicesMessage struct {
	Type     string         `json:"type"` // "choices"
	Quadrant int            `json:"quadrant"`
	Options  []choiceOption `json:"options"`
	Seconds  int            `json:"seconds"`
}

type gridMessage struct {
	Type     string  `json:"type"` // "grid"
	Quadrant int     `json:"quadrant"`
	Clips    []*clip `json:"clips"`
	Seconds  int     `json:"seconds"`
}

type triviaMessage struct {
	Type     string   `json:"type"` // "trivia"
	Quadrant int      `json:"quadrant"`
	Index    int      `json:"index"`
	Total    int      `json:"total"`
	Question string   `json:"question"`
	Answers  []string `json:"answers"`
	Seconds  int      `json:"seconds"`
}

type triviaResultMessage struct {
	Type     string `json:"type"` // "trivia_result"
	Quadrant int    `json:"quadrant"`
	Answer   int    `json:"answer"`
	Correct  int    `json:"correct"`
	Right    bool   `json:"right"`
}

// Messages coming from clients
type clientMessage struct {
	Type     string `json:"type"`               // "ready", "stop", "restart", "reset", "shuffle", "ended", "confirm", "fail", "choice", "breaths", "answer", "clip"
	Quadrant int    `json:"quadrant"`           // target player slot
	Choice   string `json:"choice,omitempty"`   // choice: chosen event name
	Count    int    `json:"count,omitempty"`    // breaths: claimed breath count
	Answer   int    `json:"answer"`             // answer: trivia answer index
	Clip     string `json:"clip,omitempty"`     // clip: grid selection by file name
}

// session is the explicitly constructed context for one running game: the
// shared clip list, the phase catalog, the reference data pools, and the
// quadrants. One per session, never process-wide.
type session struct {
	id      string
	cfg     *Config
	ui      renderer
	library *clipLibrary

	catalog map[string]phaseRules
	actions []actionDef
	trivia  []triviaQuestion

	// drawEvent picks the next high-level event for a quadrant.
	drawEvent func(q *quadrant) string

	// revealPause is how long a trivia answer's correctness stays on
	// screen before the next question.
	revealPause time.Duration

	quads []*quadrant

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

func newSession(id string, cfg *Config, ui renderer, library *clipLibrary) *session {
	s := &session{
		id:        id,
		cfg:       cfg,
		ui:        ui,
		library:   library,
		catalog:   defaultCatalog,
		actions:   defaultActions,
		trivia:    defaultTrivia,
		drawEvent: weightedDraw,

		revealPause: 2 * time.Second,
	}

	count := 2
	if cfg != nil && cfg.quadrants > 0 {
		count = cfg.quadrants
	}
	for i := 0; i < count; i++ {
		s.quads = append(s.quads, newQuadrant(s, i))
	}

	return s
}

func (s *session) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// start resets every quadrant and spawns its scheduler loop. Safe to call
// again after stop.
func (s *session) start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx, s.cancel = ctx, cancel
	s.mu.Unlock()

	for i, q := range s.quads {
		// Wait for a previous loop to unwind before resetting its state.
		for q.processing.Load() {
			time.Sleep(time.Millisecond)
		}
		q.reset()

		q.vibe = vibeKeys[i%len(vibeKeys)]
		s.ui.render(q.id, vibeMessage{Type: "vibe", Quadrant: q.id, Vibe: q.vibe})
		s.ui.render(q.id, scoreMessage{Type: "score", Quadrant: q.id, Score: 0})
		if c := s.library.at(i); c != nil {
			q.retarget(c, false)
		}

		q.buildAndEnqueueNextEvent()
		go q.loop(ctx)
	}

	logf(s.cfg, "GAMES: Session %s started with %d quadrants", s.id, len(s.quads))
}

// stop prevents every scheduler from rescheduling and aborts in-flight
// phases via their tokens. In-flight handlers unwind at their next
// suspension point.
func (s *session) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	for _, q := range s.quads {
		s.ui.clearPhase(q.id)
	}

	logf(s.cfg, "GAMES: Session %s stopped", s.id)
}

type quadrant struct {
	session *session
	id      int

	rng    *rand.Rand
	inputs chan clientMessage

	// Owned by the scheduler goroutine.
	score            int
	queue            []phaseInstance
	current          *phaseInstance
	lastEvent        string
	loopCounter      int
	completedBreaths int
	vibe             string

	processing  atomic.Bool
	restartFlag atomic.Bool

	mu        sync.Mutex // guards cancel, clip, clipIndex
	cancel    context.CancelFunc
	clip      *clip
	clipIndex int
}

func newQuadrant(s *session, id int) *quadrant {
	return &quadrant{
		session: s,
		id:      id,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		inputs:  make(chan clientMessage, 8),
	}
}

func (q *quadrant) reset() {
	q.score = 0
	q.queue = q.queue[:0]
	q.current = nil
	q.lastEvent = ""
	q.loopCounter = 0
	q.completedBreaths = 0
	q.restartFlag.Store(false)
	q.drainInputs()
}

// requestRestart aborts the in-flight phase and flags the scheduler to
// clear its queue and reseed on the next iteration. Score is kept.
func (q *quadrant) requestRestart() {
	if !q.session.isRunning() {
		return
	}
	q.restartFlag.Store(true)
	q.cancelCurrent()
}

func (q *quadrant) cancelCurrent() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// swapCancel installs the token for the next phase and invalidates the
// previous one. Cancelling twice is safe.
func (q *quadrant) swapCancel(next context.CancelFunc) {
	q.mu.Lock()
	prev := q.cancel
	q.cancel = next
	q.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// deliver hands a button event to the in-flight phase. Events are dropped
// when no handler is listening, mirroring clicks on a dismissed overlay.
func (q *quadrant) deliver(msg clientMessage) {
	select {
	case q.inputs <- msg:
	default:
	}
}

// drainInputs discards stale button events left over from a previous phase.
func (q *quadrant) drainInputs() {
	for {
		select {
		case <-q.inputs:
		default:
			return
		}
	}
}

func (q *quadrant) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		q.step(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(schedulerYield):
		}
	}
}

// step executes one scheduler iteration: refill, pop, re-token, dispatch,
// tear down. It never lets a handler failure escape.
func (q *quadrant) step(parent context.Context) {
	if !q.processing.CompareAndSwap(false, true) {
		return
	}
	defer q.processing.Store(false)

	if q.restartFlag.Swap(false) {
		q.queue = q.queue[:0]
		q.current = nil
	}

	if len(q.queue) < queueLowWater {
		q.buildAndEnqueueNextEvent()
	}

	if len(q.queue) == 0 {
		// Unreachable given the refill above, but an empty pop must not panic.
		return
	}
	ph := q.queue[0]
	q.queue = q.queue[1:]

	ctx, cancel := context.WithCancel(parent)
	q.swapCancel(cancel)
	q.drainInputs()

	rules, ok := q.session.catalog[ph.name]
	if !ok {
		logf(q.session.cfg, "PHASE: unknown phase %q in session %s, skipping", ph.name, q.session.id)
		return
	}

	q.current = &ph
	if _, err := q.dispatch(ctx, ph, rules); err != nil && !errors.Is(err, context.Canceled) {
		logf(q.session.cfg, "PHASE: %s failed in session %s: %v", ph.name, q.session.id, err)
	}

	q.session.ui.clearPhase(q.id)
	q.current = nil
}

func (q *quadrant) dispatch(ctx context.Context, ph phaseInstance, rules phaseRules) (bool, error) {
	switch rules.kind {
	case phaseIdle:
		return q.handleIdlePhase(ctx, ph, rules)
	case phaseTimed:
		return q.handleTimedPhase(ctx, ph, rules)
	case phaseValidation:
		return q.handleValidationPhase(ctx, ph, rules)
	case phaseBreathQuestion:
		return q.handleBreathQuestionPhase(ctx, ph, rules)
	case phaseAction:
		return q.handleActionPhase(ctx, ph, rules)
	case phaseChoice:
		return q.handleChoicePhase(ctx, ph, rules)
	case phaseGridChoice:
		return q.handleGridChoicePhase(ctx, ph, rules)
	case phaseTrivia:
		return q.handleTriviaPhase(ctx, ph, rules)
	case phaseReplay:
		return q.handleReplayPhase(ctx, ph, rules)
	}
	return false, fmt.Errorf("no handler for phase kind %d", rules.kind)
}

// -----------------------------
// Event sequences & queue
// -----------------------------

// weightedDraw picks the next high-level event: half the time the player
// chooses, otherwise an even split over the scripted events.
func weightedDraw(q *quadrant) string {
	r := q.rng.Float64()
	switch {
	case r < 0.5:
		return "You Choose"
	case r < 0.6:
		return "Puff"
	case r < 0.7:
		return "Sniff"
	case r < 0.8:
		return "Mask"
	case r < 0.9:
		return "Action"
	default:
		return "Trivia"
	}
}

// buildAndEnqueueNextEvent appends an idle gap labelled with the drawn
// event, followed by the event's phases.
func (q *quadrant) buildAndEnqueueNextEvent() {
	name := q.session.drawEvent(q)

	idle := phaseInstance{
		name:          "IDLE_GAP",
		duration:      randDuration(q.rng, q.session.catalog["IDLE_GAP"]),
		nextEventName: name,
	}

	q.queue = append(q.queue, idle)
	q.queue = append(q.queue, q.eventPhases(name)...)
	q.lastEvent = name
}

// eventPhases expands a high-level event name into its ordered phases.
func (q *quadrant) eventPhases(event string) []phaseInstance {
	var phases []phaseInstance

	switch event {
	case "Puff":
		phases = append(phases,
			phaseInstance{name: "READY_TO_PUFF"},
			phaseInstance{name: "PUFF_LIGHT"},
			phaseInstance{name: "PUFF_SMOKE"},
		)
		q.loopCounter = 0
		q.completedBreaths = 0
		for i := 1; i <= 5; i++ {
			phases = append(phases,
				phaseInstance{name: "PUFF_INHALE", loop: i},
				phaseInstance{name: "PUFF_HOLD", loop: i},
				phaseInstance{name: "PUFF_EXHALE", loop: i},
			)
		}
		phases = append(phases,
			phaseInstance{name: "PUFF_VALIDATION"},
			phaseInstance{name: "BREATH_COUNT_QUESTION"},
		)
	case "Sniff":
		phases = append(phases,
			phaseInstance{name: "READY_TO_SNIFF"},
			phaseInstance{name: "SNIFF_MAIN"},
			phaseInstance{name: "SNIFF_VALIDATION"},
		)
	case "Mask":
		phases = append(phases,
			phaseInstance{name: "READY_FOR_MASK"},
			phaseInstance{name: "MASK_MAIN"},
			phaseInstance{name: "MASK_VALIDATION"},
		)
	case "Action":
		action := q.session.actions[q.rng.IntN(len(q.session.actions))]
		phases = append(phases,
			phaseInstance{name: "READY_TO_ACTION"},
			phaseInstance{
				name:     "ACTION_MAIN",
				duration: time.Duration(action.Seconds) * time.Second,
				action:   &action,
			},
			phaseInstance{name: "ACTION_VALIDATION"},
		)
	case "You Choose":
		phases = append(phases, phaseInstance{name: "YOU_CHOOSE_OVERLAY"})
	case "Grid":
		phases = append(phases, phaseInstance{name: "GRID_CHOICE_OVERLAY"})
	case "Chill":
		phases = append(phases, phaseInstance{name: "CHILL_MAIN"})
	case "Peace":
		phases = append(phases, phaseInstance{name: "PEACE_MAIN"})
	case "Trivia":
		phases = append(phases, phaseInstance{name: "TRIVIA_MAIN"})
	case "Replay":
		phases = append(phases, phaseInstance{name: "REPLAY_VIDEO_MAIN"})
	case "Redo Last":
		// Guard against self-reference and missing history.
		if q.lastEvent != "" && q.lastEvent != "Redo Last" {
			return q.eventPhases(q.lastEvent)
		}
		return q.eventPhases("Chill")
	default:
		return q.eventPhases("Chill")
	}

	return phases
}

// prependPhase unshifts a phase to the immediate front of the queue,
// interrupting the normal sequence.
func (q *quadrant) prependPhase(name string) {
	if name == "" {
		return
	}
	q.queue = append([]phaseInstance{{name: name}}, q.queue...)
}

func (q *quadrant) prependPhases(phases []phaseInstance) {
	q.queue = append(append([]phaseInstance{}, phases...), q.queue...)
}

// -----------------------------
// Timing primitives & scoring
// -----------------------------

// sleep waits out d unless ctx is cancelled first, returning true only on a
// full elapse. The underlying timer is released on both paths.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func randDuration(rng *rand.Rand, rules phaseRules) time.Duration {
	if rules.duration > 0 || rules.maxDuration <= rules.minDuration {
		return rules.duration
	}
	span := rules.maxDuration - rules.minDuration
	return rules.minDuration + time.Duration(rng.Int64N(int64(span)))
}

// phaseDuration resolves a phase's effective duration: instance override
// first, then the catalog's fixed or ranged spec.
func (q *quadrant) phaseDuration(ph phaseInstance, rules phaseRules) time.Duration {
	if ph.duration > 0 {
		return ph.duration
	}
	if rules.duration > 0 {
		return rules.duration
	}
	return randDuration(q.rng, rules)
}

func (q *quadrant) addScore(points int) {
	q.score += points
	q.session.ui.render(q.id, scoreMessage{Type: "score", Quadrant: q.id, Score: q.score})
}

func seconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

func (q *quadrant) renderPhase(ph phaseInstance, rules phaseRules, d time.Duration) {
	q.session.ui.render(q.id, phaseMessage{
		Type:          "phase",
		Quadrant:      q.id,
		Phase:         ph.name,
		Seconds:       seconds(d),
		NextEventName: ph.nextEventName,
		Loop:          ph.loop,
		UI:            rules.ui,
	})
}
