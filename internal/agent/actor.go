package agent

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/solmae/animus/internal/fault"
	"github.com/solmae/animus/pkg/types"
)

// command is one unit of work for the actor goroutine. fn runs with exclusive
// access to the live state; a non-nil return means the state was not touched.
type command struct {
	fn    func(st *types.Agent) error
	reply chan error
}

// Actor owns the live state of one agent. All writes are executed by the
// goroutine started in [Runtime.Spawn]; reads are served lock-free from the
// snapshot published after every mutation.
type Actor struct {
	id string
	rt *Runtime

	state   *types.Agent // owned by the loop goroutine
	snap    atomic.Pointer[types.Agent]
	mailbox chan command

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	deltaMu sync.Mutex
	deltas  []TraitDelta
}

func newActor(rt *Runtime, st *types.Agent) *Actor {
	a := &Actor{
		id:      st.ID,
		rt:      rt,
		state:   st,
		mailbox: make(chan command, rt.mailboxSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	a.snap.Store(cloneAgent(st))
	return a
}

// ID returns the agent's stable identifier.
func (a *Actor) ID() string { return a.id }

// Snapshot returns the last published state. The returned value is shared
// between all readers and must not be modified.
func (a *Actor) Snapshot() *types.Agent { return a.snap.Load() }

// loop is the actor goroutine. It executes mailbox commands until stop, then
// drains whatever raced in during shutdown.
func (a *Actor) loop() {
	defer close(a.stopped)
	for {
		select {
		case cmd := <-a.mailbox:
			a.execute(cmd)
		case <-a.done:
			for {
				select {
				case cmd := <-a.mailbox:
					a.execute(cmd)
				default:
					return
				}
			}
		}
	}
}

func (a *Actor) execute(cmd command) {
	err := cmd.fn(a.state)
	if err == nil {
		snap := cloneAgent(a.state)
		a.snap.Store(snap)
		a.rt.persistSnapshot(a.id, snap)
	}
	cmd.reply <- err
}

// stop shuts the actor down and waits for the loop to exit.
func (a *Actor) stop() {
	a.stopOnce.Do(func() { close(a.done) })
	<-a.stopped
}

// do submits fn to the actor goroutine and waits for it to run.
func (a *Actor) do(ctx context.Context, fn func(st *types.Agent) error) error {
	select {
	case <-a.done:
		return fault.New(fault.AgentUnknown, "agent "+a.id+" is stopped")
	default:
	}

	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case a.mailbox <- cmd:
	case <-a.done:
		return fault.New(fault.AgentUnknown, "agent "+a.id+" is stopped")
	case <-ctx.Done():
		return fmt.Errorf("agent: %w", ctx.Err())
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-a.stopped:
		// The loop exited; the command may have been buffered but never run.
		select {
		case err := <-cmd.reply:
			return err
		default:
			return fault.New(fault.AgentUnknown, "agent "+a.id+" is stopped")
		}
	case <-ctx.Done():
		return fmt.Errorf("agent: %w", ctx.Err())
	}
}

// ── trait ledger ──

// ApplyTraitDelta writes trait t through the soft-clamp and records exactly
// one ledger entry carrying the values around the write.
func (a *Actor) ApplyTraitDelta(ctx context.Context, t types.Trait, delta float64, reason string) (TraitDelta, error) {
	if !t.Valid() {
		return TraitDelta{}, fault.New(fault.InvalidArgument, fmt.Sprintf("agent: unknown trait %q", t))
	}
	var entry TraitDelta
	err := a.do(ctx, func(st *types.Agent) error {
		entry = a.applyTraitDelta(st, t, delta, reason)
		return nil
	})
	if err != nil {
		return TraitDelta{}, err
	}
	return entry, nil
}

// applyTraitDelta runs on the actor goroutine.
func (a *Actor) applyTraitDelta(st *types.Agent, t types.Trait, delta float64, reason string) TraitDelta {
	from := st.Personality.Get(t)
	st.Personality.Set(t, from+delta)
	entry := TraitDelta{
		Trait:  t,
		From:   from,
		To:     st.Personality.Get(t),
		Delta:  delta,
		Reason: reason,
		At:     a.rt.now(),
	}
	a.recordDelta(entry)
	return entry
}

func (a *Actor) recordDelta(entry TraitDelta) {
	a.deltaMu.Lock()
	defer a.deltaMu.Unlock()
	if len(a.deltas) == a.rt.deltaLogCap {
		copy(a.deltas, a.deltas[1:])
		a.deltas = a.deltas[:len(a.deltas)-1]
	}
	a.deltas = append(a.deltas, entry)
}

// DeltaLog returns a copy of the trait ledger, oldest entry first. The ledger
// keeps the most recent entries up to the runtime's configured cap.
func (a *Actor) DeltaLog() []TraitDelta {
	a.deltaMu.Lock()
	defer a.deltaMu.Unlock()
	return slices.Clone(a.deltas)
}

// ── vitals ──

// AdvanceVitals ages the agent by the given simulated hours: hunger grows at
// 1/4 per hour, fatigue at 1/6, both capped at 1.
func (a *Actor) AdvanceVitals(ctx context.Context, hours float64) (types.Vitals, error) {
	if hours < 0 {
		return types.Vitals{}, fault.New(fault.InvalidArgument, "agent: hours must not be negative")
	}
	var v types.Vitals
	err := a.do(ctx, func(st *types.Agent) error {
		st.Vitals.Hunger = types.ClampUnit(st.Vitals.Hunger + hours/4)
		st.Vitals.Fatigue = types.ClampUnit(st.Vitals.Fatigue + hours/6)
		v = st.Vitals
		return nil
	})
	if err != nil {
		return types.Vitals{}, err
	}
	return v, nil
}

// Rest clears fatigue at [RestRecoveryPerHour] for the given hours of sleep.
// Rest and Eat are the only operations that lower vitals.
func (a *Actor) Rest(ctx context.Context, hours float64) (types.Vitals, error) {
	if hours < 0 {
		return types.Vitals{}, fault.New(fault.InvalidArgument, "agent: hours must not be negative")
	}
	var v types.Vitals
	err := a.do(ctx, func(st *types.Agent) error {
		st.Vitals.Fatigue = types.ClampUnit(st.Vitals.Fatigue - hours*RestRecoveryPerHour)
		v = st.Vitals
		return nil
	})
	if err != nil {
		return types.Vitals{}, err
	}
	return v, nil
}

// Eat clears [MealRecovery] hunger.
func (a *Actor) Eat(ctx context.Context) (types.Vitals, error) {
	var v types.Vitals
	err := a.do(ctx, func(st *types.Agent) error {
		st.Vitals.Hunger = types.ClampUnit(st.Vitals.Hunger - MealRecovery)
		v = st.Vitals
		return nil
	})
	if err != nil {
		return types.Vitals{}, err
	}
	return v, nil
}

// ── actions and mood ──

type actionClass int

const (
	classNone actionClass = iota
	classThreat
	classHelp
)

// classifyAction scans the action text for threat/weapon and help/assist words.
func classifyAction(action string) actionClass {
	lower := strings.ToLower(action)
	switch {
	case strings.Contains(lower, "threat") || strings.Contains(lower, "weapon"):
		return classThreat
	case strings.Contains(lower, "help") || strings.Contains(lower, "assist"):
		return classHelp
	}
	return classNone
}

// driftClass decides whether a high-urgency exchange counts as threatening or
// helpful: the action text wins, the frame intent breaks ties.
func driftClass(action string, intent types.Intent) actionClass {
	if c := classifyAction(action); c != classNone {
		return c
	}
	switch intent {
	case types.IntentAttack, types.IntentFlee:
		return classThreat
	case types.IntentAssist:
		return classHelp
	}
	return classNone
}

// ApplyAction processes one player action against the agent's affect:
//
//  1. Keyword reactions shift the mood (threat words raise arousal, help
//     words raise valence) and set the matching label.
//  2. The mood takes one settling step toward baseline.
//  3. When a cognition frame is supplied its mood shift lands on top, and a
//     frame urgency above [DriftUrgency] nudges paranoia or empathy through
//     the trait ledger.
//
// The returned [ActionResult] carries the episodic memory note; persisting it
// is the caller's job, keeping store I/O out of the actor loop.
func (a *Actor) ApplyAction(ctx context.Context, action string, frame *types.CognitiveFrame) (ActionResult, error) {
	var res ActionResult
	err := a.do(ctx, func(st *types.Agent) error {
		m := st.Mood
		switch classifyAction(action) {
		case classThreat:
			m.Label = MoodThreatened
			m.Arousal = types.ClampUnit(m.Arousal + ThreatArousalBoost)
			m.Valence = types.ClampUnit(m.Valence - ThreatArousalBoost)
			res.Reaction = MoodThreatened
		case classHelp:
			m.Label = MoodGrateful
			m.Valence = types.ClampUnit(m.Valence + GratitudeValenceBoost)
			m.Arousal = types.ClampUnit(m.Arousal - GratitudeValenceBoost/2)
			res.Reaction = MoodGrateful
		}
		m = m.Decayed()

		if frame != nil {
			if frame.MoodShift.Label != "" {
				m.Label = frame.MoodShift.Label
			}
			m.Arousal = types.ClampUnit(m.Arousal + frame.MoodShift.Arousal)
			m.Valence = types.ClampUnit(m.Valence + frame.MoodShift.Valence)

			if frame.Urgency > DriftUrgency {
				switch driftClass(action, frame.Intent) {
				case classThreat:
					res.Drift = append(res.Drift,
						a.applyTraitDelta(st, types.TraitParanoia, ThreatParanoiaDrift, "threatening player action"))
				case classHelp:
					res.Drift = append(res.Drift,
						a.applyTraitDelta(st, types.TraitEmpathy, AssistEmpathyDrift, "helpful player action"))
				}
			}
		}

		st.Mood = m
		st.LastActiveAt = a.rt.now()
		res.Mood = m
		res.MemoryNote = "Player action: " + action
		return nil
	})
	if err != nil {
		return ActionResult{}, err
	}
	return res, nil
}

// Touch marks the agent as just interacted with, feeding tier classification.
func (a *Actor) Touch(ctx context.Context) error {
	return a.do(ctx, func(st *types.Agent) error {
		st.LastActiveAt = a.rt.now()
		return nil
	})
}

// ── goals ──

// SetGoal inserts or replaces a goal. A missing id is generated, priority and
// progress are bounded, and the goal list stays sorted strongest first.
func (a *Actor) SetGoal(ctx context.Context, g types.Goal) (types.Goal, error) {
	if g.Description == "" {
		return types.Goal{}, fault.New(fault.InvalidArgument, "agent: goal description must not be empty")
	}
	if g.Type != "" && !g.Type.Valid() {
		return types.Goal{}, fault.New(fault.InvalidArgument, fmt.Sprintf("agent: unknown goal type %q", g.Type))
	}
	err := a.do(ctx, func(st *types.Agent) error {
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		if g.CreatedAt.IsZero() {
			g.CreatedAt = a.rt.now()
		}
		g.Priority = types.ClampUnit(g.Priority)
		g.Progress = types.ClampUnit(g.Progress)

		i := slices.IndexFunc(st.Goals, func(have types.Goal) bool { return have.ID == g.ID })
		if i >= 0 {
			st.Goals[i] = g
		} else {
			st.Goals = append(st.Goals, g)
		}
		sortGoals(st.Goals)
		return nil
	})
	if err != nil {
		return types.Goal{}, err
	}
	return g, nil
}

// ProgressGoal advances a goal's progress by delta (which may be negative).
// Reaching full progress completes the goal and removes it from the active
// list; the second return reports completion.
func (a *Actor) ProgressGoal(ctx context.Context, id string, delta float64) (types.Goal, bool, error) {
	var (
		out       types.Goal
		completed bool
	)
	err := a.do(ctx, func(st *types.Agent) error {
		i := slices.IndexFunc(st.Goals, func(g types.Goal) bool { return g.ID == id })
		if i < 0 {
			return fault.New(fault.InvalidArgument, "agent "+a.id+" has no goal "+id)
		}
		g := st.Goals[i]
		g.Progress = types.ClampUnit(g.Progress + delta)
		if g.Progress >= 1 {
			st.Goals = slices.Delete(st.Goals, i, i+1)
			completed = true
		} else {
			st.Goals[i] = g
		}
		out = g
		return nil
	})
	if err != nil {
		return types.Goal{}, false, err
	}
	return out, completed, nil
}

// AbandonGoal drops a goal without completing it.
func (a *Actor) AbandonGoal(ctx context.Context, id string) error {
	return a.do(ctx, func(st *types.Agent) error {
		i := slices.IndexFunc(st.Goals, func(g types.Goal) bool { return g.ID == id })
		if i < 0 {
			return fault.New(fault.InvalidArgument, "agent "+a.id+" has no goal "+id)
		}
		st.Goals = slices.Delete(st.Goals, i, i+1)
		return nil
	})
}

func sortGoals(gs []types.Goal) {
	slices.SortStableFunc(gs, func(a, b types.Goal) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.Before(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func cloneAgent(a *types.Agent) *types.Agent {
	cp := *a
	if a.Location.Position != nil {
		pos := *a.Location.Position
		cp.Location.Position = &pos
	}
	if a.Voice != nil {
		v := *a.Voice
		cp.Voice = &v
	}
	if len(a.Goals) > 0 {
		cp.Goals = slices.Clone(a.Goals)
	}
	return &cp
}
