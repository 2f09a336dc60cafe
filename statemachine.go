// Package main - statemachine.go
//
// The battle loop: poll, classify, act.
//
// Each iteration captures one frame, classifies it, and dispatches to the
// handler for the observed screen. The machine never trusts its own memory
// over the device: whatever screen the frame shows is where the flow
// resumes, so a restart, a slow animation, or a surprise popup cannot wedge
// the loop in a phantom state. An adjacency table records which screen
// changes the flow expects; observing an unexpected jump is logged and then
// simply followed.
//
// Flow (happy path):
//
//	battle_selection -> expansion_selection -> battle_setup
//	    -> battle_in_progress -> victory/defeat/reward -> battle_selection
//
// A battle entry already waiting on the selection screen (hourglass marker)
// goes straight to battle_setup without reopening the expansion list.
//
// An expansion is marked completed only after a battle outcome was observed
// AND the flow returned to the selection screen, so a crash mid-battle
// re-runs the expansion instead of losing it.
//
// Halting: device-retry exhaustion and persistence failures stop the loop
// with the error; everything else retries, recovers, or resyncs.
package main

import (
	"context"
	"image"
)

// BotState is the machine's coarse phase, derived from the observed screen.
// It exists for logging and transition checking; dispatch keys on the screen
// itself.
type BotState int

const (
	StateIdle BotState = iota
	StateSelectingBattle
	StateSelectingExpansion
	StatePreparingBattle
	StateBattling
	StateResolving
	StateRecovering
)

// String returns a human-readable state name
func (s BotState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSelectingBattle:
		return "SelectingBattle"
	case StateSelectingExpansion:
		return "SelectingExpansion"
	case StatePreparingBattle:
		return "PreparingBattle"
	case StateBattling:
		return "Battling"
	case StateResolving:
		return "Resolving"
	case StateRecovering:
		return "Recovering"
	default:
		return "Unknown"
	}
}

// screenState maps an observed screen to the phase it implies
func screenState(tag ScreenTag) BotState {
	switch tag {
	case TagBattleSelection:
		return StateSelectingBattle
	case TagExpansionSelection:
		return StateSelectingExpansion
	case TagBattleSetup:
		return StatePreparingBattle
	case TagBattleInProgress:
		return StateBattling
	case TagVictory, TagDefeat, TagDefeatPopup, TagReward:
		return StateResolving
	default:
		return StateIdle
	}
}

// screenAdjacency lists, per screen, the screens the flow expects to see
// next (staying put is always expected). Anything else is logged as an
// unexpected jump before the machine resyncs to it.
var screenAdjacency = map[ScreenTag][]ScreenTag{
	TagBattleSelection:    {TagExpansionSelection, TagBattleSetup, TagPopup},
	TagExpansionSelection: {TagBattleSetup, TagBattleSelection, TagPopup},
	TagBattleSetup:        {TagBattleInProgress, TagPopup},
	TagBattleInProgress:   {TagVictory, TagDefeat, TagDefeatPopup, TagReward, TagPopup},
	TagVictory:            {TagReward, TagBattleSelection, TagPopup},
	TagDefeat:             {TagDefeatPopup, TagBattleSelection, TagPopup},
	TagDefeatPopup:        {TagBattleSelection, TagPopup},
	TagReward:             {TagBattleSelection, TagVictory, TagPopup},
	TagPopup:              {}, // a popup can sit on top of anything
}

// Named templates the handlers act on (filenames under the template tree)
const (
	tplHourglass   = "hourglass"
	tplBattleEntry = "expansions"
	tplAutoToggle  = "auto"
	tplBattleStart = "battle"
	tplAutoOff     = "auto_off"
)

// Machine runs the battle automation loop.
type Machine struct {
	classifier *ScreenClassifier
	matcher    *TemplateMatcher
	executor   *Executor
	library    *TemplateLibrary
	tracker    *ExpansionTracker
	settings   *Settings

	state            BotState
	lastScreen       ScreenTag
	currentExpansion string
	outcomeSeen      bool
	unknownStreak    int
	scrollCount      int
	entryScrollCount int
	idleAnnounced    bool
	attempts         map[string]int
	skipped          map[string]bool
}

// NewMachine wires the battle loop together
func NewMachine(classifier *ScreenClassifier, matcher *TemplateMatcher, executor *Executor,
	library *TemplateLibrary, tracker *ExpansionTracker, settings *Settings) *Machine {
	return &Machine{
		classifier: classifier,
		matcher:    matcher,
		executor:   executor,
		library:    library,
		tracker:    tracker,
		settings:   settings,
		state:      StateIdle,
		lastScreen: TagUnknown,
		attempts:   make(map[string]int),
		skipped:    make(map[string]bool),
	}
}

// Run drives the loop until the context is cancelled or a fatal error
// (device loss past the retry ceiling, persistence failure) occurs.
// Cancellation returns ctx.Err().
func (m *Machine) Run(ctx context.Context) error {
	LogInfo("Battle loop starting (threshold %.2f, %d expansions configured)",
		m.settings.Matching.Threshold, len(m.settings.Expansions.Order))

	for {
		if err := ctx.Err(); err != nil {
			LogInfo("Battle loop stopping: %v", err)
			return err
		}

		if reset, err := m.tracker.ConsumeResetSignal(m.settings.Paths.ResetFlag); err != nil {
			return err
		} else if reset {
			// Session-local skip marks fall with the durable ones
			m.attempts = make(map[string]int)
			m.skipped = make(map[string]bool)
			m.currentExpansion = ""
			m.outcomeSeen = false
			m.idleAnnounced = false
		}

		if err := m.step(ctx); err != nil {
			return err
		}

		if !sleepCtx(ctx, m.settings.Automation.PollDelay) {
			return ctx.Err()
		}
	}
}

// step runs one poll iteration: capture, classify, act
func (m *Machine) step(ctx context.Context) error {
	frame, err := m.executor.Capture(ctx)
	if err != nil {
		if IsDeviceUnavailable(err) {
			LogError("Halting: device lost past retry ceiling: %v", err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Unreadable capture counts as an Unknown observation
		LogWarn("Capture unusable, treating as unknown screen: %v", err)
		return m.onUnknown(ctx)
	}

	cls, err := m.classifier.Classify(frame)
	if err != nil {
		LogWarn("Classification failed, treating as unknown screen: %v", err)
		return m.onUnknown(ctx)
	}

	if cls.Tag == TagUnknown {
		return m.onUnknown(ctx)
	}

	m.unknownStreak = 0
	m.observe(cls.Tag)
	return m.dispatch(ctx, frame, cls)
}

// observe updates phase tracking and flags unexpected screen jumps
func (m *Machine) observe(tag ScreenTag) {
	if tag != m.lastScreen && m.lastScreen != TagUnknown {
		if !screenExpected(m.lastScreen, tag) {
			LogWarn("Unexpected screen change %s -> %s, resyncing", m.lastScreen, tag)
		}
	}
	if tag != TagExpansionSelection {
		m.scrollCount = 0
	}
	if tag != TagBattleSelection {
		m.entryScrollCount = 0
	}
	m.lastScreen = tag

	next := screenState(tag)
	if next != m.state {
		LogInfo("State %s -> %s (screen %s)", m.state, next, tag)
		m.state = next
	}
}

func screenExpected(from, to ScreenTag) bool {
	if from == to || to == TagPopup || from == TagPopup {
		return true
	}
	for _, t := range screenAdjacency[from] {
		if t == to {
			return true
		}
	}
	return false
}

// dispatch routes the observed screen to its handler
func (m *Machine) dispatch(ctx context.Context, frame *image.RGBA, cls Classification) error {
	switch cls.Tag {
	case TagPopup:
		return m.onPopup(ctx, cls)
	case TagBattleSelection:
		return m.onBattleSelection(ctx, frame)
	case TagExpansionSelection:
		return m.onExpansionSelection(ctx, frame)
	case TagBattleSetup:
		return m.onBattleSetup(ctx, frame)
	case TagBattleInProgress:
		return m.onBattleInProgress(ctx, frame)
	case TagVictory, TagDefeat, TagReward:
		return m.onOutcome(ctx, cls)
	case TagDefeatPopup:
		return m.onDefeatPopup(ctx, cls)
	default:
		return m.onUnknown(ctx)
	}
}

// onUnknown counts the streak and fires the recovery action at the ceiling
func (m *Machine) onUnknown(ctx context.Context) error {
	m.unknownStreak++
	LogDebug("Unknown screen (%d/%d consecutive)", m.unknownStreak, m.settings.Automation.MaxUnknownPolls)
	if m.unknownStreak < m.settings.Automation.MaxUnknownPolls {
		return nil
	}

	LogWarn("Screen unrecognized for %d polls, running recovery", m.unknownStreak)
	m.unknownStreak = 0
	m.state = StateRecovering
	m.lastScreen = TagUnknown
	return m.recover(ctx)
}

// recover tries to shake the UI loose: back out of whatever is open, then
// tap a neutral point to dismiss tap-anywhere overlays.
func (m *Machine) recover(ctx context.Context) error {
	if err := m.executor.Back(ctx); err != nil {
		return m.actionError(err)
	}
	dismiss := Point{X: CanonicalWidth / 2, Y: CanonicalHeight * 9 / 10}
	if err := m.executor.Tap(ctx, dismiss); err != nil {
		return m.actionError(err)
	}
	return nil
}

// onPopup dismisses a generic popup by tapping its matched button
func (m *Machine) onPopup(ctx context.Context, cls Classification) error {
	LogInfo("Dismissing popup (template %q)", cls.Best.Template)
	return m.actionError(m.executor.TapBounds(ctx, cls.Best.Bounds))
}

// onBattleSelection is the flow's anchor point. Completion is settled here:
// if a battle outcome was observed since the expansion was picked, getting
// back to this screen closes the cycle and marks it completed.
func (m *Machine) onBattleSelection(ctx context.Context, frame *image.RGBA) error {
	if m.outcomeSeen && m.currentExpansion != "" {
		if err := m.tracker.MarkCompleted(m.currentExpansion); err != nil {
			LogError("Halting: %v", err)
			return err
		}
		m.currentExpansion = ""
		m.outcomeSeen = false
	}

	next, ok := m.nextPending()
	if !ok {
		if !m.idleAnnounced {
			LogInfo("All expansions completed, idling")
			m.idleAnnounced = true
		}
		m.state = StateIdle
		if !sleepCtx(ctx, m.settings.Automation.IdleDelay) {
			return ctx.Err()
		}
		return nil
	}
	m.idleAnnounced = false

	if m.currentExpansion != next {
		m.currentExpansion = next
		m.outcomeSeen = false
		if err := m.tracker.MarkAttempted(next); err != nil {
			LogError("Halting: %v", err)
			return err
		}
		LogInfo("Targeting expansion %s", next)
	}

	// An hourglass marks a battle entry that is already set up and waiting.
	// Hunt it through the list first; only a list with no marker left means
	// the expansion list has to be opened for a fresh pick.
	if hourglass, ok := m.library.Candidate(TagBattleSelection, tplHourglass); ok {
		r, err := m.matcher.Match(frame, hourglass)
		if err == nil && r.Found {
			LogInfo("Battle entry marker located (score %.3f), entering setup", r.Score)
			m.entryScrollCount = 0
			return m.actionError(m.executor.TapBounds(ctx, r.Bounds))
		}
		if m.entryScrollCount < m.settings.Automation.MaxScrolls {
			m.entryScrollCount++
			LogDebug("No battle entry marker visible, scrolling (%d/%d)",
				m.entryScrollCount, m.settings.Automation.MaxScrolls)
			return m.actionError(m.executor.ScrollDown(ctx))
		}
		LogDebug("No battle entry marker after %d scrolls, opening expansion list", m.entryScrollCount)
	}

	entry, ok := m.library.Candidate(TagBattleSelection, tplBattleEntry)
	if !ok {
		LogWarn("No %q template for the selection screen, cannot open expansion list", tplBattleEntry)
		return nil
	}
	r, err := m.matcher.Match(frame, entry)
	if err != nil || !r.Found {
		LogDebug("Battle entry not visible yet (score %.3f)", r.Score)
		return nil
	}
	return m.actionError(m.executor.TapBounds(ctx, r.Bounds))
}

// nextPending asks the tracker for the next expansion to run, hiding the
// ones skipped this session from the candidate list. The tracker owns the
// selection policy; the machine only narrows its input.
func (m *Machine) nextPending() (string, bool) {
	known := make([]string, 0, len(m.settings.Expansions.Order))
	for _, id := range m.settings.Expansions.Order {
		if !m.skipped[id] {
			known = append(known, id)
		}
	}
	return m.tracker.NextExpansion(known)
}

// onExpansionSelection hunts the target expansion's image in the list,
// scrolling a bounded number of times before counting a failed attempt.
func (m *Machine) onExpansionSelection(ctx context.Context, frame *image.RGBA) error {
	if m.currentExpansion == "" {
		next, ok := m.nextPending()
		if !ok {
			LogInfo("On expansion list with nothing pending, backing out")
			return m.actionError(m.executor.Back(ctx))
		}
		m.currentExpansion = next
		m.outcomeSeen = false
		LogInfo("Targeting expansion %s", next)
	}

	tpl, ok := m.library.Expansion(m.currentExpansion)
	if !ok {
		LogWarn("No selection image for expansion %s, skipping it this session", m.currentExpansion)
		m.skipped[m.currentExpansion] = true
		m.currentExpansion = ""
		return m.actionError(m.executor.Back(ctx))
	}

	r, err := m.matcher.Match(frame, tpl)
	if err != nil {
		return m.onUnknown(ctx)
	}
	if r.Found {
		LogInfo("Expansion %s located (score %.3f), selecting", m.currentExpansion, r.Score)
		m.scrollCount = 0
		return m.actionError(m.executor.TapBounds(ctx, r.Bounds))
	}

	if m.scrollCount < m.settings.Automation.MaxScrolls {
		m.scrollCount++
		LogDebug("Expansion %s not visible, scrolling (%d/%d)",
			m.currentExpansion, m.scrollCount, m.settings.Automation.MaxScrolls)
		return m.actionError(m.executor.ScrollDown(ctx))
	}

	// Scrolled through the whole list without finding it
	m.scrollCount = 0
	m.attempts[m.currentExpansion]++
	if m.attempts[m.currentExpansion] >= m.settings.Automation.MaxAttemptsPerExpansion {
		LogWarn("Expansion %s not found after %d attempts, skipping it this session",
			m.currentExpansion, m.attempts[m.currentExpansion])
		m.skipped[m.currentExpansion] = true
	} else {
		LogWarn("Expansion %s not found in list (attempt %d/%d)",
			m.currentExpansion, m.attempts[m.currentExpansion], m.settings.Automation.MaxAttemptsPerExpansion)
	}
	m.currentExpansion = ""
	return m.actionError(m.executor.Back(ctx))
}

// onBattleSetup enables auto mode when its toggle is visible, then starts
// the battle.
func (m *Machine) onBattleSetup(ctx context.Context, frame *image.RGBA) error {
	if auto, ok := m.library.Candidate(TagBattleSetup, tplAutoToggle); ok {
		if r, err := m.matcher.Match(frame, auto); err == nil && r.Found {
			LogInfo("Enabling auto battle")
			if err := m.executor.TapBounds(ctx, r.Bounds); err != nil {
				return m.actionError(err)
			}
		}
	}

	start, ok := m.library.Candidate(TagBattleSetup, tplBattleStart)
	if !ok {
		LogWarn("No %q template for the setup screen, cannot start battle", tplBattleStart)
		return nil
	}
	r, err := m.matcher.Match(frame, start)
	if err != nil || !r.Found {
		LogDebug("Battle start button not visible yet (score %.3f)", r.Score)
		return nil
	}
	LogInfo("Starting battle for expansion %s", m.currentExpansion)
	return m.actionError(m.executor.TapBounds(ctx, r.Bounds))
}

// onBattleInProgress mostly waits; the only intervention is re-enabling
// auto mode if the game dropped it mid-battle.
func (m *Machine) onBattleInProgress(ctx context.Context, frame *image.RGBA) error {
	if off, ok := m.library.Candidate(TagBattleInProgress, tplAutoOff); ok {
		if r, err := m.matcher.Match(frame, off); err == nil && r.Found {
			LogInfo("Auto battle dropped mid-battle, re-enabling")
			return m.actionError(m.executor.TapBounds(ctx, r.Bounds))
		}
	}
	LogDebug("Battle in progress, waiting")
	return nil
}

// onOutcome records that the battle cycle reached an end screen and taps
// through it. Win or lose, the expansion's battle was played to completion.
func (m *Machine) onOutcome(ctx context.Context, cls Classification) error {
	if !m.outcomeSeen {
		LogInfo("Battle outcome observed: %s (expansion %s)", cls.Tag, m.currentExpansion)
		m.outcomeSeen = true
	}
	return m.actionError(m.executor.TapBounds(ctx, cls.Best.Bounds))
}

// onDefeatPopup acknowledges the post-defeat dialog
func (m *Machine) onDefeatPopup(ctx context.Context, cls Classification) error {
	m.outcomeSeen = true
	LogInfo("Acknowledging defeat dialog")
	return m.actionError(m.executor.TapBounds(ctx, cls.Best.Bounds))
}

// actionError decides whether an action failure halts the loop. Device loss
// past the retry ceiling and cancellation stop everything; transient action
// errors just end the iteration and let the next poll resync.
func (m *Machine) actionError(err error) error {
	if err == nil {
		return nil
	}
	if IsDeviceUnavailable(err) {
		LogError("Halting: device lost past retry ceiling: %v", err)
		return err
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return err
	}
	LogWarn("Action failed, will resync next poll: %v", err)
	return nil
}
