package game

import (
	"context"

	"github.com/cfoust/yard/pkg/rendezvous"
	"github.com/cfoust/yard/pkg/rules"
	"github.com/cfoust/yard/pkg/utils"

	opt "github.com/repeale/fp-go/option"
	"github.com/sasha-s/go-deadlock"
)

type SlotState uint8

const (
	SlotEmpty SlotState = iota
	// Handed to a worker by the session but not yet admitted to a round.
	SlotReserved
	SlotActive
	// The player has left but others may still be reading the board.
	SlotTombstoned
)

func (s SlotState) String() string {
	switch s {
	case SlotReserved:
		return "reserved"
	case SlotActive:
		return "active"
	case SlotTombstoned:
		return "tombstoned"
	default:
		return "empty"
	}
}

type slot struct {
	state  SlotState
	worker *Worker
	// Closed by the moderator once the reserved worker is counted into a
	// round and may register.
	admitted chan struct{}
}

// RoundEvent is published by the moderator each time it prepares a round.
type RoundEvent struct {
	Round int
	// Workers that must reach each barrier phase.
	Active int
	// Newcomers allowed to register.
	Registrations int
	// Players that have left so far.
	Quits int
	// Workers handed a slot so far. Always Active + Quits.
	Dispatched int
	Dead       bool
}

// State is everything the workers of one game share.
//
// The embedded mutex is the administrative lock. It guards the roster,
// the counters, the flags and every call into the board. It is only held
// for short sections that never block on a gate, a barrier or the
// network. Methods that do not lock it themselves must be called with it
// held.
type State struct {
	deadlock.Mutex

	board    rules.Board
	roster   map[rules.SlotID]*slot
	pursuers int

	totalActive int
	quitCount   int
	// Cumulative workers handed a slot, less those whose welcome failed.
	dispatched    int
	dead          bool
	pursuedJoined bool
	outcome       string

	// Written only by the moderator.
	activeThisRound int
	round           int
	// Reserved slots the moderator has not yet let register.
	pending map[rules.SlotID]struct{}

	gate             *rendezvous.Gate
	barrier          *rendezvous.Barrier
	moderatorRelease *rendezvous.Permits

	events *utils.Topic[RoundEvent]
}

func NewState(board rules.Board, pursuers int) *State {
	s := &State{
		board:    board,
		roster:   make(map[rules.SlotID]*slot),
		pursuers: pursuers,
		pending:  make(map[rules.SlotID]struct{}),
		// One registration and one entry for the pursued player's first
		// pass; everything after comes from the moderator.
		gate:             rendezvous.NewGate(1, 1),
		barrier:          rendezvous.NewBarrier(),
		moderatorRelease: rendezvous.NewPermits(0),
		events:           utils.NewTopic[RoundEvent](64),
	}

	s.roster[rules.Pursued] = &slot{}
	for i := 0; i < pursuers; i++ {
		s.roster[rules.SlotID(i)] = &slot{}
	}

	return s
}

// Events publishes one RoundEvent per round until the moderator exits.
func (s *State) Events() *utils.Topic[RoundEvent] {
	return s.events
}

// admission is closed once the worker reserved on id may register.
func (s *State) admission(id rules.SlotID) <-chan struct{} {
	return s.roster[id].admitted
}

// awaitAdmission blocks a newcomer until the moderator has counted it
// into a round. Each reservation is admitted on its own, so a newcomer
// never registers in the place of another.
func (s *State) awaitAdmission(ctx context.Context, id rules.SlotID) error {
	s.Lock()
	admitted := s.admission(id)
	s.Unlock()

	select {
	case <-admitted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// admitPending lets every reserved worker not yet counted register and
// returns how many there were.
func (s *State) admitPending() int {
	count := len(s.pending)
	for id := range s.pending {
		if admitted := s.roster[id].admitted; admitted != nil {
			close(admitted)
		}
	}
	clear(s.pending)
	return count
}

// FindEmptySlot returns the lowest free pursuer slot.
func (s *State) FindEmptySlot() opt.Option[rules.SlotID] {
	for i := 0; i < s.pursuers; i++ {
		id := rules.SlotID(i)
		if s.roster[id].state == SlotEmpty {
			return opt.Some[rules.SlotID](id)
		}
	}
	return opt.None[rules.SlotID]()
}

// Reserve hands a free slot to a worker that is about to start.
func (s *State) Reserve(id rules.SlotID, worker *Worker) {
	entry := s.roster[id]
	entry.state = SlotReserved
	entry.worker = worker
	entry.admitted = make(chan struct{})
	s.totalActive++
	s.dispatched++
	if !id.IsPursued() {
		s.pending[id] = struct{}{}
	}
}

// Retract undoes Reserve for a worker that never got going. It fails if
// the moderator already counted the worker into a round.
func (s *State) Retract(id rules.SlotID) bool {
	if !id.IsPursued() {
		if _, ok := s.pending[id]; !ok {
			return false
		}
		delete(s.pending, id)
	}

	s.totalActive--
	s.dispatched--
	s.ReleaseSlot(id)
	return true
}

// BindSlot admits a worker into the game.
func (s *State) BindSlot(id rules.SlotID, worker *Worker) {
	entry := s.roster[id]
	entry.state = SlotActive
	entry.worker = worker
	s.board.Install(id)

	if id.IsPursued() {
		s.pursuedJoined = true
	}
}

// Tombstone marks a slot for release once nobody reads the board.
func (s *State) Tombstone(id rules.SlotID) {
	entry := s.roster[id]
	if entry.state == SlotActive {
		entry.state = SlotTombstoned
	}
}

// ReleaseSlot frees a slot. Releasing an empty slot does nothing. The game
// dies when the pursued player's slot is released.
func (s *State) ReleaseSlot(id rules.SlotID) {
	entry := s.roster[id]
	if entry.state == SlotEmpty {
		return
	}

	if entry.state == SlotActive || entry.state == SlotTombstoned {
		s.board.Erase(id)
	}
	entry.state = SlotEmpty
	entry.worker = nil
	entry.admitted = nil
	delete(s.pending, id)

	if id.IsPursued() {
		s.MarkDead(rules.StatusAbandoned)
	}
}

// hangUp closes every player's connection.
func (s *State) hangUp() {
	for _, entry := range s.roster {
		if entry.worker != nil {
			entry.worker.conn.Close()
		}
	}
}

func (s *State) ApplyMove(id rules.SlotID, target int) bool {
	return s.board.Move(id, target)
}

func (s *State) RenderView(id rules.SlotID) string {
	return s.board.Render(id)
}

// MarkDead ends the game. The first outcome given sticks.
func (s *State) MarkDead(outcome string) {
	s.dead = true
	if s.outcome == "" {
		s.outcome = outcome
	}
}

func (s *State) Dead() bool {
	return s.dead
}

func (s *State) SlotState(id rules.SlotID) SlotState {
	entry, ok := s.roster[id]
	if !ok {
		return SlotEmpty
	}
	return entry.state
}

// Occupied counts slots that are not empty.
func (s *State) Occupied() int {
	count := 0
	for _, entry := range s.roster {
		if entry.state != SlotEmpty {
			count++
		}
	}
	return count
}

// Snapshot is a consistent copy of the counters.
type Snapshot struct {
	TotalActive     int
	QuitCount       int
	Dispatched      int
	ActiveThisRound int
	Round           int
	Dead            bool
	PursuedJoined   bool
	Occupied        int
	Outcome         string
}

// Snapshot locks the state.
func (s *State) Snapshot() Snapshot {
	s.Lock()
	defer s.Unlock()

	return Snapshot{
		TotalActive:     s.totalActive,
		QuitCount:       s.quitCount,
		Dispatched:      s.dispatched,
		ActiveThisRound: s.activeThisRound,
		Round:           s.round,
		Dead:            s.dead,
		PursuedJoined:   s.pursuedJoined,
		Occupied:        s.Occupied(),
		Outcome:         s.outcome,
	}
}

// RendezvousCount is the barrier counter; zero between rounds.
func (s *State) RendezvousCount() int {
	return s.barrier.Count()
}
