// Package script generates entry obfuscation scripts for device passcodes.
//
// A script is an ordered sequence of atomic instructions (enter a digit,
// press delete, wait, distraction) that, when followed literally on an
// external device, types a given PIN. Decoy digits and deletions are
// interleaved so that no contiguous or memorable subsequence of the PIN is
// ever presented. Scripts are ephemeral: they are generated in memory, never
// persisted, and every call produces a freshly randomized sequence.
package script

import (
	cryptorand "crypto/rand"
	"errors"
	"fmt"
	"math/rand/v2"
)

// Script shape parameters.
const (
	// PINLength is the number of digits in a generated passcode.
	PINLength = 4

	// WaitSeconds is the fixed duration of a wait instruction.
	WaitSeconds = 3

	// MaxVisible is the maximum number of characters the entry field may
	// hold at any point before the final digit is appended.
	MaxVisible = 3
)

// Sentinel errors.
var (
	// ErrInvalidPIN indicates the PIN is not exactly 4 decimal digits.
	ErrInvalidPIN = errors.New("script: pin must be exactly 4 decimal digits")

	// ErrDeleteOnEmpty indicates a delete instruction with an empty buffer.
	ErrDeleteOnEmpty = errors.New("script: delete instruction on empty buffer")
)

// Kind identifies the instruction variant.
type Kind int

const (
	// KindDigit instructs the user to enter one digit.
	KindDigit Kind = iota
	// KindDelete instructs the user to press delete once.
	KindDelete
	// KindWait blocks advancement for WaitSeconds before auto-advancing.
	KindWait
	// KindDistraction shows a memory-breaking prompt.
	KindDistraction
)

// String returns the lowercase variant name.
func (k Kind) String() string {
	switch k {
	case KindDigit:
		return "digit"
	case KindDelete:
		return "delete"
	case KindWait:
		return "wait"
	case KindDistraction:
		return "distraction"
	default:
		return "unknown"
	}
}

// Instruction is one atomic entry action. Digit is set only for KindDigit,
// Seconds only for KindWait. Decoy digits are indistinguishable from real
// ones in presentation.
type Instruction struct {
	Kind    Kind
	Digit   byte // '0'-'9'
	Seconds int
	Message string
}

// fillers break the user's memory between digit entries. One of them is a
// timed wait; the rest are plain distractions.
var fillers = []Instruction{
	{Kind: KindDistraction, Message: "Look away from the screen for a moment..."},
	{Kind: KindDistraction, Message: "Take a deep breath..."},
	{Kind: KindDistraction, Message: "Think about what you had for breakfast..."},
	{Kind: KindWait, Seconds: WaitSeconds, Message: "Wait 3 seconds before continuing..."},
}

// Generator produces instruction scripts. Each Generate call draws from the
// generator's randomness source independently, so the same PIN yields a
// different script on every call.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a Generator seeded from crypto/rand.
func NewGenerator() *Generator {
	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("script: failed to seed generator: %v", err))
	}
	return &Generator{rng: rand.New(rand.NewChaCha8(seed))}
}

// NewGeneratorFromSource returns a Generator using the given source.
// Intended for deterministic tests.
func NewGeneratorFromSource(src rand.Source) *Generator {
	return &Generator{rng: rand.New(src)}
}

// NewPIN returns a fresh random PIN of PINLength decimal digits.
func (g *Generator) NewPIN() string {
	pin := make([]byte, PINLength)
	for i := range pin {
		pin[i] = byte('0' + g.rng.IntN(10))
	}
	return string(pin)
}

// ValidatePIN checks that pin is exactly PINLength decimal digits.
func ValidatePIN(pin string) error {
	if len(pin) != PINLength {
		return ErrInvalidPIN
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

// entry tracks one character in the simulated entry field. real is true when
// the character is the PIN digit at pinIndex.
type entry struct {
	digit    byte
	real     bool
	pinIndex int
}

// Generate produces a randomized instruction script for pin.
//
// Replaying the digit/delete instructions against an empty buffer yields pin
// exactly, the buffer never exceeds MaxVisible characters before the final
// digit is appended, and delete is never issued on an empty buffer.
//
// The script runs in three phases: an initial batch of 2-3 real digits with
// optional preceding decoys, a deletion round that strips everything above
// the surviving real prefix (decoys are always cleared here so later entries
// rebuild a clean prefix), and a completion round where each remaining digit
// may be preceded by a decoy enter+delete pair. Fillers are sprinkled
// between phases and digits.
func (g *Generator) Generate(pin string) ([]Instruction, error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, err
	}

	var instrs []Instruction
	var field []entry
	nextDigit := 0

	pushDigit := func(d byte, real bool, pinIndex int) {
		instrs = append(instrs, Instruction{
			Kind:    KindDigit,
			Digit:   d,
			Message: fmt.Sprintf("Enter %c on the device keypad", d),
		})
		field = append(field, entry{digit: d, real: real, pinIndex: pinIndex})
	}
	pushDelete := func() {
		instrs = append(instrs, Instruction{
			Kind:    KindDelete,
			Message: "Press Delete on the device keypad",
		})
		field = field[:len(field)-1]
	}
	pushFiller := func() {
		instrs = append(instrs, fillers[g.rng.IntN(len(fillers))])
	}

	// Phase 1: enter 2-3 digits for real, each optionally preceded by a
	// decoy. The field must stay within MaxVisible, so the batch ends early
	// once it is full. A decoy is never placed below the first real digit:
	// the deletion round keeps at least one character and that character
	// must be real.
	batch := 2 + g.rng.IntN(2)
	for i := 0; i < batch && nextDigit < PINLength; i++ {
		if len(field) == MaxVisible {
			break
		}
		if g.rng.Float64() < 0.4 && len(field) > 0 && len(field) < MaxVisible {
			pushDigit(byte('0'+g.rng.IntN(10)), false, 0)
		}
		if len(field) == MaxVisible {
			break
		}
		pushDigit(pin[nextDigit], true, nextDigit)
		nextDigit++
	}

	if nextDigit < PINLength && g.rng.Float64() < 0.7 {
		pushFiller()
	}

	// Phase 2: delete a random count, never emptying the field. Deletions
	// must reach down past any buried decoy so that the survivors are
	// exactly pin[:k]; the next digit pointer moves back to match.
	if len(field) > 1 && nextDigit < PINLength {
		clean := cleanPrefixLen(field)
		minDel := len(field) - clean
		if minDel < 1 {
			minDel = 1
		}
		maxDel := len(field) - 1
		del := minDel + g.rng.IntN(maxDel-minDel+1)
		for i := 0; i < del; i++ {
			pushDelete()
		}
		nextDigit = len(field)

		if nextDigit < PINLength && g.rng.Float64() < 0.6 {
			pushFiller()
		}
	}

	// Phase 3: complete the PIN. Each remaining digit may be preceded by a
	// decoy that is entered and immediately deleted.
	for nextDigit < PINLength {
		if g.rng.Float64() < 0.3 && len(field) < MaxVisible {
			pushDigit(byte('0'+g.rng.IntN(10)), false, 0)
			pushDelete()
		}
		pushDigit(pin[nextDigit], true, nextDigit)
		nextDigit++

		if nextDigit < PINLength && g.rng.Float64() < 0.4 {
			pushFiller()
		}
	}

	return instrs, nil
}

// cleanPrefixLen returns the length of the leading run of real digits in
// PIN order. Everything above it is a decoy or an out-of-order leftover.
func cleanPrefixLen(field []entry) int {
	n := 0
	for i, e := range field {
		if !e.real || e.pinIndex != i {
			break
		}
		n++
	}
	return n
}

// Replay applies the digit/delete instructions of a script to an initially
// empty buffer and returns the final contents. Wait and distraction
// instructions are ignored.
func Replay(instrs []Instruction) (string, error) {
	var buf []byte
	for i, in := range instrs {
		switch in.Kind {
		case KindDigit:
			buf = append(buf, in.Digit)
		case KindDelete:
			if len(buf) == 0 {
				return "", fmt.Errorf("%w: instruction %d", ErrDeleteOnEmpty, i)
			}
			buf = buf[:len(buf)-1]
		case KindWait, KindDistraction:
			// No effect on the buffer.
		}
	}
	return string(buf), nil
}
