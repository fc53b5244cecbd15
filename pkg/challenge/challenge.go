// Package challenge implements the retrieval typing challenge.
//
// A challenge is an ordered set of text passages that must each be typed to
// an exact character match before retrieval proceeds. Only forward keystrokes
// are validated: a character that mismatches the passage at the cursor is
// rejected and counted as an error, while deletions are always accepted even
// when the shortened buffer is no longer a valid prefix.
package challenge

import (
	"errors"
	"math"

	"golang.org/x/text/unicode/norm"
)

// DefaultPassage is the built-in passage shown when no custom passages are
// configured.
const DefaultPassage = "The path to self-discipline begins with small, consistent choices. " +
	"Each time you resist an impulse, you strengthen your ability to focus on what truly matters. " +
	"This moment of friction is not a barrier, it is a gift. " +
	"By taking the time to complete this challenge, you are proving to yourself that you have the patience and determination to overcome distraction. " +
	"Remember why you set these boundaries in the first place. " +
	"Your future self will thank you for the discipline you show today. " +
	"Keep typing, stay focused, and trust the process."

// ErrNoPassages indicates a challenge was created without any passages.
var ErrNoPassages = errors.New("challenge: at least one passage is required")

// Challenge tracks progress through the passages. The zero value is not
// usable; create one with New.
type Challenge struct {
	passages [][]rune
	index    int
	buffer   []rune
	errors   int
	done     bool
}

// New creates a challenge over the given passages, in order. Passages are
// NFC-normalized so that typed input with a different codepoint composition
// still matches.
func New(passages []string) (*Challenge, error) {
	if len(passages) == 0 {
		return nil, ErrNoPassages
	}
	c := &Challenge{passages: make([][]rune, len(passages))}
	for i, p := range passages {
		c.passages[i] = []rune(norm.NFC.String(p))
	}
	return c, nil
}

// TypeRune applies one forward keystroke. The rune is accepted only when it
// matches the current passage at the cursor position; a mismatch leaves the
// buffer unchanged and increments the error count. Completing the current
// passage advances to the next with an empty buffer; completing the last
// passage marks the challenge done. Keystrokes after completion are ignored.
func (c *Challenge) TypeRune(r rune) bool {
	if c.done {
		return false
	}
	r = []rune(norm.NFC.String(string(r)))[0]
	passage := c.passages[c.index]
	pos := len(c.buffer)
	if pos >= len(passage) || passage[pos] != r {
		c.errors++
		return false
	}
	c.buffer = append(c.buffer, r)
	if len(c.buffer) == len(passage) {
		c.advance()
	}
	return true
}

// Backspace removes the last buffered character. Deletions are accepted
// unconditionally; an empty buffer is a no-op.
func (c *Challenge) Backspace() {
	if c.done || len(c.buffer) == 0 {
		return
	}
	c.buffer = c.buffer[:len(c.buffer)-1]
}

// SetBuffer replaces the whole input buffer, applying the forward-growth
// rule to the newly typed character: growth whose final character mismatches
// the passage is rejected and counted as an error, while any input that is
// not longer than the current buffer is accepted as-is. This mirrors a text
// field that reports its full contents on every change.
func (c *Challenge) SetBuffer(input string) bool {
	if c.done {
		return false
	}
	in := []rune(norm.NFC.String(input))
	passage := c.passages[c.index]

	if len(in) > len(c.buffer) {
		last := len(in) - 1
		if last >= len(passage) || passage[last] != in[last] {
			c.errors++
			return false
		}
	}

	c.buffer = in
	if len(c.buffer) == len(passage) && string(c.buffer) == string(passage) {
		c.advance()
	}
	return true
}

func (c *Challenge) advance() {
	c.buffer = nil
	if c.index == len(c.passages)-1 {
		c.done = true
		return
	}
	c.index++
}

// Done reports whether every passage has been completed.
func (c *Challenge) Done() bool { return c.done }

// Errors returns the number of rejected forward keystrokes.
func (c *Challenge) Errors() int { return c.errors }

// PassageIndex returns the zero-based index of the current passage. After
// completion it stays at the last passage.
func (c *Challenge) PassageIndex() int { return c.index }

// PassageCount returns the number of passages.
func (c *Challenge) PassageCount() int { return len(c.passages) }

// Passage returns the current passage text.
func (c *Challenge) Passage() string { return string(c.passages[c.index]) }

// Buffer returns the correctly typed portion of the current passage.
func (c *Challenge) Buffer() string { return string(c.buffer) }

// Remaining returns the untyped tail of the current passage.
func (c *Challenge) Remaining() string {
	return string(c.passages[c.index][len(c.buffer):])
}

// Progress returns overall completion as a whole percentage: completed
// passages count in full, the current passage counts fractionally. Display
// only; it never gates advancement.
func (c *Challenge) Progress() int {
	if c.done {
		return 100
	}
	passage := c.passages[c.index]
	fraction := 0.0
	if len(passage) > 0 {
		fraction = float64(len(c.buffer)) / float64(len(passage))
	}
	pct := (float64(c.index)*100 + fraction*100) / float64(len(c.passages))
	return int(math.Round(pct))
}
