package bitbang

import (
	"time"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

// Kind discriminates queued command records.
type Kind uint8

const (
	KindReset Kind = iota
	KindRunTest
	KindStableClocks
	KindStateMove
	KindPathMove
	KindScan
	KindSleep
	KindRawTMS
)

var kindNames = map[Kind]string{
	KindReset:        "Reset",
	KindRunTest:      "RunTest",
	KindStableClocks: "StableClocks",
	KindStateMove:    "StateMove",
	KindPathMove:     "PathMove",
	KindScan:         "Scan",
	KindSleep:        "Sleep",
	KindRawTMS:       "RawTMS",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(?)"
}

// ScanDirection selects which halves of a scan touch the bit buffer.
type ScanDirection uint8

const (
	// ScanIO drives the buffer out on TDI and captures TDO back into it.
	ScanIO ScanDirection = iota
	// ScanIn captures TDO only; TDI is held low for determinism.
	ScanIn
	// ScanOut drives TDI only; TDO is never sampled.
	ScanOut
)

// Command is one queued debug operation. Only the fields relevant to its Kind
// are meaningful. The queue owns the command for the duration of a single
// dispatch pass; Scan commands additionally lend their Bits buffer to the
// executor until the pass completes.
type Command struct {
	Kind Kind

	// Reset
	TRST bool
	SRST bool

	// RunTest, StableClocks
	Cycles int

	// RunTest, StateMove, Scan
	EndState tap.State

	// PathMove
	Path []tap.State

	// Scan, RawTMS
	Bits     []byte
	BitCount int

	// Scan
	IR     bool
	Dir    ScanDirection
	Verify func(buf []byte) error

	// Sleep
	Duration time.Duration
}

// ResetCommand asserts or releases the adapter reset lines.
func ResetCommand(trst, srst bool) Command {
	return Command{Kind: KindReset, TRST: trst, SRST: srst}
}

// RunTestCommand clocks cycles in Run-Test/Idle, then parks in end.
func RunTestCommand(cycles int, end tap.State) Command {
	return Command{Kind: KindRunTest, Cycles: cycles, EndState: end}
}

// StableClocksCommand clocks cycles without leaving the current stable state.
func StableClocksCommand(cycles int) Command {
	return Command{Kind: KindStableClocks, Cycles: cycles}
}

// StateMoveCommand walks the shortest TMS path to end.
func StateMoveCommand(end tap.State) Command {
	return Command{Kind: KindStateMove, EndState: end}
}

// PathMoveCommand walks an explicit state sequence; every hop must be a single
// TMS transition.
func PathMoveCommand(path ...tap.State) Command {
	return Command{Kind: KindPathMove, Path: path}
}

// ScanCommand shifts bitCount bits through the IR or DR. The buffer is both
// source and destination depending on dir; verify, when non-nil, is called
// with the post-scan buffer and a failure is reported as ErrQueueFailed.
func ScanCommand(ir bool, dir ScanDirection, buf []byte, bitCount int, end tap.State) Command {
	return Command{Kind: KindScan, IR: ir, Dir: dir, Bits: buf, BitCount: bitCount, EndState: end}
}

// SleepCommand pauses dispatch for the given duration.
func SleepCommand(d time.Duration) Command {
	return Command{Kind: KindSleep, Duration: d}
}

// RawTMSCommand clocks an arbitrary TMS bit pattern, bypassing TAP tracking.
func RawTMSCommand(bits []byte, bitCount int) Command {
	return Command{Kind: KindRawTMS, Bits: bits, BitCount: bitCount}
}
