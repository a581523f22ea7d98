package timing

import (
	"strings"
	"time"
)

// KeyAction distinguishes forward keystrokes from corrections.
type KeyAction string

const (
	ActionType      KeyAction = "type"
	ActionBackspace KeyAction = "backspace"
)

// Keystroke is one step of a simulated typing sequence.
type Keystroke struct {
	Rune   rune
	Action KeyAction
	Delay  time.Duration
}

const punctuation = ".,!?;:"

// TypingDelays expands text into a keystroke sequence with per-character
// delays derived from words-per-minute, longer pauses after punctuation
// and spaces, and occasional mistype/backspace/retype corrections with
// probability errorRate per character.
func (e *Engine) TypingDelays(text string, wpm int, errorRate float64) []Keystroke {
	if wpm <= 0 {
		wpm = 40
	}
	// Standard five characters per word.
	base := 60000.0 / float64(wpm*5)

	var keys []Keystroke
	var prev rune

	for _, r := range text {
		delay := base * (0.8 + 0.4*e.rng.Float64())

		if prev != 0 {
			if strings.ContainsRune(punctuation, prev) {
				delay *= 2 + 2*e.rng.Float64()
			} else if prev == ' ' {
				delay *= 1.5 + 1.0*e.rng.Float64()
			}
		}

		if e.rng.Float64() < errorRate && r != ' ' {
			wrong := e.neighborRune(r)
			keys = append(keys,
				Keystroke{Rune: wrong, Action: ActionType, Delay: ms(delay)},
				Keystroke{Action: ActionBackspace, Delay: ms(base * (1.0 + e.rng.Float64()))},
				Keystroke{Rune: r, Action: ActionType, Delay: ms(base * (0.8 + 0.4*e.rng.Float64()))},
			)
		} else {
			keys = append(keys, Keystroke{Rune: r, Action: ActionType, Delay: ms(delay)})
		}

		prev = r
	}

	return keys
}

// neighborRune returns a plausible mistype for the given rune.
func (e *Engine) neighborRune(r rune) rune {
	neighbors := map[rune]string{
		'a': "sqz", 'b': "vn", 'c': "xv", 'd': "sf", 'e': "wr",
		'f': "dg", 'g': "fh", 'h': "gj", 'i': "uo", 'j': "hk",
		'k': "jl", 'l': "k", 'm': "n", 'n': "bm", 'o': "ip",
		'p': "o", 'q': "wa", 'r': "et", 's': "ad", 't': "ry",
		'u': "yi", 'v': "cb", 'w': "qe", 'x': "zc", 'y': "tu",
		'z': "x",
	}
	if opts, ok := neighbors[r]; ok {
		return rune(opts[e.rng.Intn(len(opts))])
	}
	// Fall back to an adjacent codepoint for anything off the map.
	return r + 1
}

func ms(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}
