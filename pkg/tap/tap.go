package tap

import (
	"fmt"
)

// State represents one of the 16 defined IEEE 1149.1 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates = 16
)

var stateNames = [numStates]string{
	StateTestLogicReset: "TestLogicReset",
	StateRunTestIdle:    "RunTestIdle",
	StateSelectDRScan:   "SelectDRScan",
	StateCaptureDR:      "CaptureDR",
	StateShiftDR:        "ShiftDR",
	StateExit1DR:        "Exit1DR",
	StatePauseDR:        "PauseDR",
	StateExit2DR:        "Exit2DR",
	StateUpdateDR:       "UpdateDR",
	StateSelectIRScan:   "SelectIRScan",
	StateCaptureIR:      "CaptureIR",
	StateShiftIR:        "ShiftIR",
	StateExit1IR:        "Exit1IR",
	StatePauseIR:        "PauseIR",
	StateExit2IR:        "Exit2IR",
	StateUpdateIR:       "UpdateIR",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Valid reports whether s is one of the 16 defined TAP states.
func (s State) Valid() bool {
	return s < numStates
}

// transitions[s] holds the successor state for TMS=0 and TMS=1.
var transitions = [numStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},
	StateSelectDRScan:   {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:      {StateShiftDR, StateExit1DR},
	StateShiftDR:        {StateShiftDR, StateExit1DR},
	StateExit1DR:        {StatePauseDR, StateUpdateDR},
	StatePauseDR:        {StatePauseDR, StateExit2DR},
	StateExit2DR:        {StateShiftDR, StateUpdateDR},
	StateUpdateDR:       {StateRunTestIdle, StateSelectDRScan},
	StateSelectIRScan:   {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:      {StateShiftIR, StateExit1IR},
	StateShiftIR:        {StateShiftIR, StateExit1IR},
	StateExit1IR:        {StatePauseIR, StateUpdateIR},
	StatePauseIR:        {StatePauseIR, StateExit2IR},
	StateExit2IR:        {StateShiftIR, StateUpdateIR},
	StateUpdateIR:       {StateRunTestIdle, StateSelectDRScan},
}

// NextState returns the next TAP state after clocking TCK with the provided TMS
// value. It panics if an invalid state is supplied, which should never happen
// when interacting through the exported API.
func NextState(current State, tms bool) State {
	if !current.Valid() {
		panic(fmt.Sprintf("tap: unhandled state %d", current))
	}
	if tms {
		return transitions[current][1]
	}
	return transitions[current][0]
}

// IsStable reports whether the TAP can remain in s indefinitely by holding TMS
// constant. TestLogicReset loops on TMS=1; RunTestIdle, the Shift states and
// the Pause states loop on TMS=0. Only stable states are legal scan or idle
// endpoints.
func IsStable(s State) bool {
	switch s {
	case StateTestLogicReset, StateRunTestIdle,
		StateShiftDR, StatePauseDR,
		StateShiftIR, StatePauseIR:
		return true
	}
	return false
}

// Path is a TMS drive pattern packed LSB first: bit i of Bits is the TMS value
// for clock i. Paths between stable states never exceed seven clocks, so a
// single byte is enough.
type Path struct {
	Bits uint8
	Len  int
}

// TMS returns the TMS value for clock i of the path.
func (p Path) TMS(i int) bool {
	return (p.Bits>>uint(i))&1 == 1
}

// stableIndex maps the six stable states to rows/columns of the path table.
var stableIndex = map[State]int{
	StateTestLogicReset: 0,
	StateRunTestIdle:    1,
	StateShiftDR:        2,
	StatePauseDR:        3,
	StateShiftIR:        4,
	StatePauseIR:        5,
}

// shortPaths[from][to] is the minimal TMS sequence between two stable states,
// clocked LSB first. These follow the canonical IEEE 1149.1 state diagram;
// targets depend on the exact patterns, so the table is spelled out literally
// and cross-checked against a breadth-first search in the tests.
var shortPaths = [6][6]Path{
	/* to:  TestLogicReset RunTestIdle ShiftDR    PauseDR    ShiftIR    PauseIR */
	/* from TestLogicReset */ {{0x00, 0}, {0x00, 1}, {0x02, 4}, {0x0a, 5}, {0x06, 5}, {0x16, 6}},
	/* from RunTestIdle    */ {{0x07, 3}, {0x00, 0}, {0x01, 3}, {0x05, 4}, {0x03, 4}, {0x0b, 5}},
	/* from ShiftDR        */ {{0x1f, 5}, {0x03, 3}, {0x00, 0}, {0x01, 2}, {0x0f, 6}, {0x2f, 7}},
	/* from PauseDR        */ {{0x1f, 5}, {0x03, 3}, {0x01, 2}, {0x00, 0}, {0x0f, 6}, {0x2f, 7}},
	/* from ShiftIR        */ {{0x1f, 5}, {0x03, 3}, {0x07, 5}, {0x17, 6}, {0x00, 0}, {0x01, 2}},
	/* from PauseIR        */ {{0x1f, 5}, {0x03, 3}, {0x07, 5}, {0x17, 6}, {0x01, 2}, {0x00, 0}},
}

// ShortestPath returns the minimal TMS sequence that drives the TAP from one
// stable state to another. Both endpoints must be stable.
func ShortestPath(from, to State) (Path, error) {
	fi, ok := stableIndex[from]
	if !ok {
		return Path{}, fmt.Errorf("tap: %s is not a stable state", from)
	}
	ti, ok := stableIndex[to]
	if !ok {
		return Path{}, fmt.Errorf("tap: %s is not a stable state", to)
	}
	return shortPaths[fi][ti], nil
}

// Sequence captures a TMS drive pattern and the sequence of states that result
// from applying that pattern to the TAP controller.
type Sequence struct {
	TMS    []bool
	States []State
}

// StateMachine tracks the TAP controller state locally. It does not perform any
// I/O; instead it produces the sequences of TMS bits needed so a hardware
// adapter can be instructed separately.
type StateMachine struct {
	state State
}

// NewStateMachine creates a TAP state machine initialized to Test-Logic-Reset.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the current TAP state tracked by the machine.
func (m *StateMachine) State() State {
	return m.state
}

// Clock advances the machine one TCK cycle with the provided TMS bit and
// returns the new state.
func (m *StateMachine) Clock(tms bool) State {
	next := NextState(m.state, tms)
	m.state = next
	return next
}

// Reset applies the IEEE recommendation of clocking five consecutive TMS=1
// cycles. It returns the sequence for convenience so it can be forwarded to a
// hardware adapter.
func (m *StateMachine) Reset() Sequence {
	seq := Sequence{
		TMS:    make([]bool, 5),
		States: make([]State, 6),
	}
	seq.States[0] = m.state
	for i := 0; i < 5; i++ {
		seq.TMS[i] = true
		seq.States[i+1] = m.Clock(true)
	}
	return seq
}

// GoTo computes the minimal sequence of TMS values needed to reach the target
// state from the current state. It updates the machine as a side effect and
// returns the generated sequence.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	path, err := ComputePath(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	for _, bit := range path.TMS {
		m.Clock(bit)
	}
	return path, nil
}

// ComputePath uses BFS across the TAP state diagram to find the shortest set of
// transitions between two states. Unlike ShortestPath it accepts unstable
// endpoints, which is occasionally useful for diagnostics.
func ComputePath(from, to State) (Sequence, error) {
	if !from.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid start state %d", from)
	}
	if !to.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid target state %d", to)
	}
	if from == to {
		return Sequence{States: []State{from}}, nil
	}

	type node struct {
		state  State
		tms    []bool
		states []State
	}

	queue := []node{{
		state:  from,
		tms:    nil,
		states: []State{from},
	}}
	visited := map[State]struct{}{from: {}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, bit := range []bool{false, true} {
			next := NextState(current.state, bit)
			if _, seen := visited[next]; seen {
				continue
			}

			newTMS := append(append([]bool{}, current.tms...), bit)
			newStates := append(append([]State{}, current.states...), next)

			if next == to {
				return Sequence{
					TMS:    newTMS,
					States: newStates,
				}, nil
			}

			visited[next] = struct{}{}
			queue = append(queue, node{
				state:  next,
				tms:    newTMS,
				states: newStates,
			})
		}
	}

	return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
}
