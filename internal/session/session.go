// Package session drives one game instance through its phase sequence. A
// session owns its authoritative state: all mutations are serialized through
// a single processing goroutine fed by a command channel, so no internal
// locks are needed and at most one transition is ever in flight.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"dilemma-server/internal/chat"
	"dilemma-server/internal/payoff"
)

const archiveTimeout = 5 * time.Second

// Deps are the session's external collaborators, passed explicitly so tests
// can substitute fakes.
type Deps struct {
	Archiver  Archiver
	Providers map[string]ActionProvider // identity -> provider for non-human seats
	Logger    zerolog.Logger
	OnEnded   func(sessionID, reason string)
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdSubmit
	cmdChat
	cmdConnect
	cmdOverride
	cmdTerminate
	cmdTimerFired
	cmdProviderAction
	cmdProviderChat
	cmdArchiveDone
	cmdSnapshot
	cmdSubscribe
)

type command struct {
	kind      cmdKind
	identity  string
	action    Action
	to        string
	content   string
	connected bool
	seq       uint64
	phase     Phase
	reason    string
	err       error
	outgoing  []Outgoing
	subID     string

	reply     chan error
	snapReply chan Snapshot
	subReply  chan (<-chan Event)
}

type transKind int

const (
	transOverride transKind = iota
	transEarly
	transTimer
)

type Session struct {
	id           string
	cfg          Config
	controllerID string
	log          zerolog.Logger

	archiver  Archiver
	providers map[string]ActionProvider
	onEnded   func(sessionID, reason string)

	// State below is owned by the loop goroutine.
	phase        Phase
	round        int // next round to reveal; rounds are 1-based
	participants map[string]*Participant
	seatOrder    []string // identity by seat index
	schedule     payoff.Schedule
	rounds       []RoundRecord
	deadline     time.Time
	held         bool
	entryPending bool
	inTransition bool
	pendingTrans map[transKind]bool
	stopped      bool

	chat  *chat.Router
	timer *PhaseTimer
	bcast *Broadcaster

	cmds chan command
	done chan struct{}

	finalMu   sync.Mutex
	finalSnap *Snapshot
}

// New creates a session from the waiting room's seat assignment. The
// controller identity is fixed here; authorization is derived from it and
// never from client-supplied role claims. The session starts in the Waiting
// phase until Start is called.
func New(cfg Config, seats []SeatAssignment, controllerID string, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(seats) != cfg.Seats {
		return nil, fmt.Errorf("got %d seat assignments for %d seats", len(seats), cfg.Seats)
	}

	participants := make(map[string]*Participant, len(seats))
	seatOrder := make([]string, cfg.Seats)
	for _, a := range seats {
		if a.Seat < 0 || a.Seat >= cfg.Seats {
			return nil, fmt.Errorf("seat index %d out of range", a.Seat)
		}
		if seatOrder[a.Seat] != "" {
			return nil, fmt.Errorf("seat %d assigned twice", a.Seat)
		}
		if _, dup := participants[a.Identity]; dup {
			return nil, fmt.Errorf("identity %q assigned twice", a.Identity)
		}
		kind := a.Kind
		if kind == "" {
			kind = cfg.SeatKind(a.Seat)
		}
		seatOrder[a.Seat] = a.Identity
		participants[a.Identity] = &Participant{
			Identity:      a.Identity,
			Seat:          a.Seat,
			Kind:          kind,
			Connected:     a.Connected || kind != KindHuman,
			RefusalBudget: cfg.RefusalBudget,
		}
	}
	for i, id := range seatOrder {
		if id == "" {
			return nil, fmt.Errorf("seat %d is unassigned", i)
		}
	}

	s := &Session{
		id:           ulid.Make().String(),
		cfg:          cfg,
		controllerID: controllerID,
		log:          deps.Logger,
		archiver:     deps.Archiver,
		providers:    deps.Providers,
		onEnded:      deps.OnEnded,
		phase:        PhaseWaiting,
		round:        1,
		participants: participants,
		seatOrder:    seatOrder,
		pendingTrans: make(map[transKind]bool),
		chat:         chat.NewRouter(cfg.ChatHistoryCap),
		bcast:        NewBroadcaster(),
		cmds:         make(chan command, 64),
		done:         make(chan struct{}),
	}
	s.log = s.log.With().Str("session_id", s.id).Logger()
	s.timer = NewPhaseTimer(func(seq uint64, phase Phase) {
		s.post(command{kind: cmdTimerFired, seq: seq, phase: phase})
	})

	go s.loop()
	return s, nil
}

func (s *Session) ID() string           { return s.id }
func (s *Session) ExperimentID() string { return s.cfg.ExperimentID }
func (s *Session) ControllerID() string { return s.controllerID }

// Start moves the session from Waiting into the first round's Announcement.
func (s *Session) Start() error {
	return s.do(command{kind: cmdStart})
}

// SubmitAction records one action for a seated participant during the Action
// phase.
func (s *Session) SubmitAction(identity string, a Action) error {
	return s.do(command{kind: cmdSubmit, identity: identity, action: a})
}

// SendChat routes a message through the chat router. to is empty for a
// broadcast.
func (s *Session) SendChat(from, to, content string) error {
	return s.do(command{kind: cmdChat, identity: from, to: to, content: content})
}

// SetConnected updates a participant's connection flag. Seat, score and
// pending state are retained across disconnects.
func (s *Session) SetConnected(identity string, connected bool) error {
	return s.do(command{kind: cmdConnect, identity: identity, connected: connected})
}

// OverridePhase is the controller's escape hatch: it releases a held phase
// or forces an immediate transition.
func (s *Session) OverridePhase(identity string) error {
	return s.do(command{kind: cmdOverride, identity: identity})
}

// Terminate ends the session early. Controller only.
func (s *Session) Terminate(identity string) error {
	return s.do(command{kind: cmdTerminate, identity: identity})
}

// Subscribe attaches a transport to the session's broadcaster. The first
// event is always a full snapshot; an ended session yields its terminal
// snapshot followed by a closed channel.
func (s *Session) Subscribe(subID, participantID string) <-chan Event {
	c := command{kind: cmdSubscribe, subID: subID, identity: participantID, subReply: make(chan (<-chan Event), 1)}
	select {
	case s.cmds <- c:
	case <-s.done:
		return s.bcast.Subscribe(subID, participantID, Snapshot{})
	}
	select {
	case ch := <-c.subReply:
		return ch
	case <-s.done:
		return s.bcast.Subscribe(subID, participantID, Snapshot{})
	}
}

func (s *Session) Unsubscribe(subID string) {
	s.bcast.Unsubscribe(subID)
}

// Snapshot returns the current authoritative state.
func (s *Session) Snapshot() Snapshot {
	c := command{kind: cmdSnapshot, snapReply: make(chan Snapshot, 1)}
	select {
	case s.cmds <- c:
	case <-s.done:
		return s.terminalSnapshot()
	}
	select {
	case snap := <-c.snapReply:
		return snap
	case <-s.done:
		return s.terminalSnapshot()
	}
}

// Dispose force-ends a session that is still running, e.g. at server
// shutdown.
func (s *Session) Dispose(reason string) {
	_ = s.do(command{kind: cmdTerminate, identity: s.controllerID, reason: reason})
}

func (s *Session) terminalSnapshot() Snapshot {
	s.finalMu.Lock()
	defer s.finalMu.Unlock()
	if s.finalSnap != nil {
		return *s.finalSnap
	}
	return Snapshot{SessionID: s.id, Phase: PhaseEnded}
}

func (s *Session) do(c command) error {
	c.reply = make(chan error, 1)
	select {
	case s.cmds <- c:
	case <-s.done:
		return ErrSessionEnded
	}
	select {
	case err := <-c.reply:
		return err
	case <-s.done:
		// A command that raced the session's end may still have been
		// processed; prefer its reply when present.
		select {
		case err := <-c.reply:
			return err
		default:
			return ErrSessionEnded
		}
	}
}

// post enqueues a command that carries no reply (timer fires, provider
// results, archive completions).
func (s *Session) post(c command) {
	select {
	case s.cmds <- c:
	case <-s.done:
	}
}

func (s *Session) loop() {
	for !s.stopped {
		c := <-s.cmds
		s.handle(c)
	}
	close(s.done)
	// Reject anything that raced in while we were ending.
	for {
		select {
		case c := <-s.cmds:
			s.rejectLate(c)
		default:
			return
		}
	}
}

func (s *Session) rejectLate(c command) {
	switch {
	case c.subReply != nil:
		c.subReply <- s.bcast.Subscribe(c.subID, c.identity, Snapshot{})
	case c.snapReply != nil:
		c.snapReply <- s.terminalSnapshot()
	case c.reply != nil:
		c.reply <- ErrSessionEnded
	}
}

func (s *Session) handle(c command) {
	switch c.kind {
	case cmdStart:
		c.reply <- s.handleStart()
	case cmdSubmit:
		c.reply <- s.handleSubmit(c.identity, c.action)
	case cmdChat:
		c.reply <- s.handleChat(c.identity, c.to, c.content)
	case cmdConnect:
		c.reply <- s.handleConnect(c.identity, c.connected)
	case cmdOverride:
		c.reply <- s.handleOverride(c.identity)
	case cmdTerminate:
		c.reply <- s.handleTerminate(c.identity, c.reason)
	case cmdTimerFired:
		s.handleTimerFired(c.seq, c.phase)
	case cmdProviderAction:
		s.handleProviderAction(c.identity, c.action, c.err)
	case cmdProviderChat:
		s.handleProviderChat(c.identity, c.outgoing, c.err)
	case cmdArchiveDone:
		if c.err != nil {
			s.log.Warn().Err(c.err).Str("what", c.reason).Msg("archival write failed")
		}
	case cmdSnapshot:
		c.snapReply <- s.snapshot()
	case cmdSubscribe:
		c.subReply <- s.bcast.Subscribe(c.subID, c.identity, s.snapshot())
	}
}

func (s *Session) handleStart() error {
	if s.phase != PhaseWaiting {
		return Invalid("session already started")
	}
	s.log.Info().Int("rounds", s.cfg.Rounds).Int("seats", s.cfg.Seats).Msg("session starting")
	s.updateStatusAsync("running")
	s.enterPhase(PhaseAnnouncement)
	return nil
}

func (s *Session) handleSubmit(identity string, a Action) error {
	p, ok := s.participants[identity]
	if !ok {
		return Unauthorized("not a seated participant")
	}
	if s.phase != PhaseAction || s.held {
		return Invalid("actions are not accepted during the " + string(s.phase) + " phase")
	}
	if !ValidAction(a) {
		return Invalid("unknown action " + string(a))
	}
	if p.Submitted {
		return Invalid("action already submitted for this round")
	}
	if a == ActionOptOut && p.RefusalBudget <= 0 {
		return Invalid("refusal budget exhausted")
	}

	p.Pending = a
	p.Submitted = true
	if a == ActionOptOut {
		p.RefusalBudget--
	}
	s.bcast.Publish(EventDelta, "", ActionReceipt{Identity: identity, Submitted: true})

	if s.allSubmitted() {
		s.requestTransition(transEarly)
	}
	return nil
}

func (s *Session) handleChat(from, to, content string) error {
	if from != s.controllerID {
		if _, ok := s.participants[from]; !ok {
			return Unauthorized("not a seated participant")
		}
	}

	open := s.phase == PhaseCommunication && !s.held
	deliveries, err := s.chat.Route(open, from, to, content, s.round, s.seatOrder, s.controllerID)
	if err != nil {
		return Invalid(err.Error())
	}

	for _, d := range deliveries {
		s.bcast.Publish(EventChat, d.To, ChatDelivery{Record: d.Record})
	}
	if len(deliveries) > 0 {
		s.archiveChatAsync(deliveries[0].Record)
	}
	return nil
}

func (s *Session) handleConnect(identity string, connected bool) error {
	if identity == s.controllerID {
		return nil
	}
	p, ok := s.participants[identity]
	if !ok {
		return Unauthorized("not a seated participant")
	}
	if p.Connected == connected {
		return nil
	}
	p.Connected = connected
	s.bcast.Publish(EventDelta, "", ConnectionChange{Identity: identity, Connected: connected})

	if connected && s.held && s.thresholdMet() {
		s.releaseHold()
	}
	return nil
}

func (s *Session) handleOverride(identity string) error {
	if identity != s.controllerID {
		s.log.Warn().Str("identity", identity).Msg("phase override rejected: not controller")
		return Unauthorized("phase override requires the controller")
	}
	if s.phase == PhaseWaiting || s.phase == PhaseEnded {
		return Invalid("no phase to override")
	}
	if s.held {
		s.log.Info().Str("phase", string(s.phase)).Msg("hold overridden by controller")
		s.releaseHold()
		return nil
	}
	s.requestTransition(transOverride)
	return nil
}

func (s *Session) handleTerminate(identity, reason string) error {
	if identity != s.controllerID {
		s.log.Warn().Str("identity", identity).Msg("termination rejected: not controller")
		return Unauthorized("early termination requires the controller")
	}
	if reason == "" {
		reason = "terminated"
	}
	s.end(reason)
	return nil
}

func (s *Session) handleTimerFired(seq uint64, phase Phase) {
	// A fire that raced a transition carries a stale sequence number.
	if seq != s.timer.Seq() || phase != s.phase {
		return
	}
	s.requestTransition(transTimer)
}

func (s *Session) handleProviderAction(identity string, a Action, err error) {
	if err != nil {
		s.log.Warn().Err(err).Str("identity", identity).Msg("action provider failed; default will apply")
		return
	}
	if err := s.handleSubmit(identity, a); err != nil {
		s.log.Warn().Err(err).Str("identity", identity).Msg("provider action rejected")
	}
}

func (s *Session) handleProviderChat(identity string, msgs []Outgoing, err error) {
	if err != nil {
		s.log.Warn().Err(err).Str("identity", identity).Msg("message provider failed")
		return
	}
	for _, m := range msgs {
		if err := s.handleChat(identity, m.To, m.Content); err != nil {
			s.log.Warn().Err(err).Str("identity", identity).Msg("provider chat rejected")
		}
	}
}

// requestTransition runs a transition now, or queues it (coalescing by kind)
// when one is already in flight.
func (s *Session) requestTransition(k transKind) {
	if s.inTransition {
		s.pendingTrans[k] = true
		return
	}
	s.inTransition = true
	s.runTransition(k)
	for {
		next, ok := s.popPending()
		if !ok {
			break
		}
		s.runTransition(next)
	}
	s.inTransition = false
}

func (s *Session) popPending() (transKind, bool) {
	for _, k := range []transKind{transOverride, transEarly, transTimer} {
		if s.pendingTrans[k] {
			delete(s.pendingTrans, k)
			return k, true
		}
	}
	return 0, false
}

func (s *Session) runTransition(k transKind) {
	if s.phase == PhaseWaiting || s.phase == PhaseEnded {
		return
	}
	if s.held && k != transOverride {
		return
	}
	s.advance()
}

func (s *Session) advance() {
	switch s.phase {
	case PhaseAnnouncement:
		s.enterPhase(PhaseCommunication)
	case PhaseCommunication:
		s.enterPhase(PhaseAction)
	case PhaseAction:
		s.enterPhase(PhaseRevelation)
	case PhaseRevelation:
		if s.round > s.cfg.Rounds {
			s.end("completed")
		} else {
			s.enterPhase(PhaseAnnouncement)
		}
	}
}

// enterPhase cancels the previous timer, schedules the next one and runs the
// phase's entry actions. If the connected-human threshold fails, the phase is
// held with its timer paused until the threshold holds again or the
// controller overrides.
func (s *Session) enterPhase(p Phase) {
	s.timer.Cancel()
	s.phase = p

	if _, err := s.timer.Schedule(p, s.durationOf(p)); err != nil {
		s.fail(err)
		return
	}
	s.deadline = s.timer.Deadline()

	if !s.thresholdMet() {
		s.timer.Pause()
		s.held = true
		s.entryPending = true
		s.log.Warn().Str("phase", string(p)).Int("min", s.cfg.MinConnectedHumans).Msg("phase held: below connected-human threshold")
		s.bcast.Publish(EventDelta, "", HoldChange{Held: true, Reason: "below connected-human threshold"})
		return
	}
	s.runEntry(p)
}

func (s *Session) releaseHold() {
	s.held = false
	if deadline, ok := s.timer.Resume(); ok {
		s.deadline = deadline
	}
	s.bcast.Publish(EventDelta, "", HoldChange{Held: false})
	if s.entryPending {
		s.entryPending = false
		s.runEntry(s.phase)
	}
}

func (s *Session) runEntry(p Phase) {
	switch p {
	case PhaseAnnouncement:
		s.enterAnnouncement()
	case PhaseCommunication:
		s.publishPhase(s.round, nil)
		s.dispatchProviders(PhaseCommunication)
	case PhaseAction:
		s.publishPhase(s.round, nil)
		s.dispatchProviders(PhaseAction)
	case PhaseRevelation:
		s.enterRevelation()
	}
}

func (s *Session) enterAnnouncement() {
	sched, err := payoff.Generate(s.round, s.history(), s.cfg.Payoff)
	if err != nil {
		s.fail(Invariant("payoff generation failed: " + err.Error()))
		return
	}
	for _, v := range payoff.Validate(sched, s.cfg.Payoff) {
		// Surfaced, not clamped: silent correction could mask a
		// misconfigured strategy.
		s.log.Warn().Int("round", s.round).Str("entry", v.Entry).Float64("value", v.Value).Msg("payoff outside configured bounds")
	}
	s.schedule = sched

	for _, p := range s.participants {
		p.Pending = ""
		p.Submitted = false
	}
	s.publishPhase(s.round, sched)
}

func (s *Session) enterRevelation() {
	round := s.round

	// Non-submitters default to opt-out, spending refusal budget if any
	// remains, otherwise to defect.
	for _, id := range s.seatOrder {
		p := s.participants[id]
		if p.Submitted {
			continue
		}
		if p.RefusalBudget > 0 {
			p.Pending = ActionOptOut
			p.RefusalBudget--
		} else {
			p.Pending = ActionDefect
		}
		p.Submitted = true
	}

	cooperators := 0
	for _, p := range s.participants {
		if p.Pending == ActionCooperate {
			cooperators++
		}
	}

	actions := make(map[string]Action, len(s.participants))
	payoffs := make(map[string]float64, len(s.participants))
	scores := make(map[string]float64, len(s.participants))
	for _, id := range s.seatOrder {
		p := s.participants[id]
		others := cooperators
		if p.Pending == ActionCooperate {
			others--
		}
		var pay float64
		switch p.Pending {
		case ActionCooperate:
			pay = s.schedule.Cooperate[others]
		case ActionDefect:
			pay = s.schedule.Defect[others]
		case ActionOptOut:
			pay = s.schedule.OptOut
		}
		p.Score += pay
		actions[id] = p.Pending
		payoffs[id] = pay
		scores[id] = p.Score
	}

	rec := RoundRecord{
		Round:      round,
		Schedule:   s.schedule,
		Actions:    actions,
		Payoffs:    payoffs,
		Scores:     scores,
		RevealedAt: time.Now(),
	}
	s.rounds = append(s.rounds, rec)
	s.round++

	s.publishPhase(round, RoundOutcome{Record: rec})
	s.archiveRoundAsync(rec)
}

func (s *Session) end(reason string) {
	s.timer.Cancel()
	s.phase = PhaseEnded

	final := make(map[string]float64, len(s.participants))
	for id, p := range s.participants {
		final[id] = p.Score
	}
	s.log.Info().Str("reason", reason).Int("rounds_completed", len(s.rounds)).Msg("session ended")
	s.bcast.Publish(EventSessionEnded, "", Ended{Reason: reason, FinalScores: final})

	snap := s.snapshot()
	snap.FinalScores = final
	snap.EndReason = reason
	s.bcast.Close(snap)

	s.finalMu.Lock()
	s.finalSnap = &snap
	s.finalMu.Unlock()

	s.updateStatusAsync(reason)
	if s.onEnded != nil {
		go s.onEnded(s.id, reason)
	}
	s.stopped = true
}

// fail is the invariant-violation path: the session is forced into a safe
// disposal rather than left inconsistent.
func (s *Session) fail(err error) {
	s.log.Error().Err(err).Msg("invariant violation, disposing session")
	s.end("error")
}

func (s *Session) dispatchProviders(phase Phase) {
	for _, id := range s.seatOrder {
		p := s.participants[id]
		if p.Kind == KindHuman {
			continue
		}
		prov := s.providers[id]
		if prov == nil {
			continue
		}
		view := s.providerView(id)
		deadline := s.deadline
		go func(id string, prov ActionProvider) {
			ctx, cancel := context.WithDeadline(context.Background(), deadline)
			defer cancel()
			if phase == PhaseAction {
				a, err := prov.RequestAction(ctx, view)
				s.post(command{kind: cmdProviderAction, identity: id, action: a, err: err})
			} else {
				msgs, err := prov.RequestMessages(ctx, view)
				s.post(command{kind: cmdProviderChat, identity: id, outgoing: msgs, err: err})
			}
		}(id, prov)
	}
}

func (s *Session) providerView(identity string) ProviderView {
	p := s.participants[identity]
	history := make([]RoundRecord, len(s.rounds))
	copy(history, s.rounds)
	return ProviderView{
		SessionID:     s.id,
		Identity:      identity,
		Round:         s.round,
		Phase:         s.phase,
		Schedule:      s.schedule,
		RefusalBudget: p.RefusalBudget,
		History:       history,
		Participants:  s.participantViews(),
	}
}

func (s *Session) archiveRoundAsync(rec RoundRecord) {
	if s.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		err := s.archiver.SaveRoundRecord(ctx, s.id, rec)
		s.post(command{kind: cmdArchiveDone, reason: fmt.Sprintf("round %d", rec.Round), err: err})
	}()
}

func (s *Session) archiveChatAsync(rec chat.Record) {
	if s.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		err := s.archiver.SaveChatRecord(ctx, s.id, rec)
		s.post(command{kind: cmdArchiveDone, reason: "chat " + rec.ID, err: err})
	}()
}

func (s *Session) updateStatusAsync(status string) {
	if s.archiver == nil {
		return
	}
	id := s.id
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archiver.UpdateStatus(ctx, id, status); err != nil {
			s.log.Warn().Err(err).Str("status", status).Msg("status update failed")
		}
	}()
}

func (s *Session) publishPhase(round int, payload any) {
	s.bcast.Publish(EventPhaseChanged, "", PhaseChange{
		Phase:    s.phase,
		Round:    round,
		Deadline: s.deadline,
		Payload:  payload,
	})
}

func (s *Session) durationOf(p Phase) time.Duration {
	switch p {
	case PhaseAnnouncement:
		return s.cfg.AnnouncementDuration
	case PhaseCommunication:
		return s.cfg.CommunicationDuration
	case PhaseAction:
		return s.cfg.ActionDuration
	case PhaseRevelation:
		return s.cfg.RevelationDuration
	}
	return time.Second
}

func (s *Session) thresholdMet() bool {
	if s.cfg.MinConnectedHumans <= 0 {
		return true
	}
	connected := 0
	for _, p := range s.participants {
		if p.Kind == KindHuman && p.Connected {
			connected++
		}
	}
	return connected >= s.cfg.MinConnectedHumans
}

func (s *Session) allSubmitted() bool {
	for _, p := range s.participants {
		if !p.Submitted {
			return false
		}
	}
	return true
}

func (s *Session) history() []payoff.RoundSummary {
	out := make([]payoff.RoundSummary, 0, len(s.rounds))
	for _, rec := range s.rounds {
		coop := 0
		for _, a := range rec.Actions {
			if a == ActionCooperate {
				coop++
			}
		}
		out = append(out, payoff.RoundSummary{
			Round:        rec.Round,
			Cooperators:  coop,
			Participants: len(rec.Actions),
		})
	}
	return out
}

func (s *Session) participantViews() []ParticipantView {
	out := make([]ParticipantView, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, ParticipantView{
			Identity:      p.Identity,
			Seat:          p.Seat,
			Kind:          p.Kind,
			Connected:     p.Connected,
			Score:         p.Score,
			RefusalBudget: p.RefusalBudget,
			Submitted:     p.Submitted,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:       s.id,
		ExperimentID:    s.cfg.ExperimentID,
		Phase:           s.phase,
		Round:           s.round,
		Held:            s.held,
		Participants:    s.participantViews(),
		RoundsCompleted: len(s.rounds),
	}
	if s.timer.Live() {
		snap.Deadline = s.deadline
	}
	return snap
}
