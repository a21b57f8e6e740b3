// Package signal detects conversational cues such as questions, requests for
// help and expressions of understanding in free text.
package signal

import (
	"slices"
	"strings"
)

// Signal names a cue that can be found in a message.
type Signal string

const (
	Question            Signal = "question"
	HelpSeeking         Signal = "help_seeking"
	StrongUnderstanding Signal = "strong_understanding"
	SoftUnderstanding   Signal = "soft_understanding"
	Breakthrough        Signal = "breakthrough"
	MethodMention       Signal = "method_mention"
	Success             Signal = "success"
	Politeness          Signal = "politeness"
	SeeksUnderstanding  Signal = "seeks_understanding"
	StepCue             Signal = "step_cue"
	ExampleCue          Signal = "example_cue"
	VideoCue            Signal = "video_cue"
)

// Detector reports which signals a text carries.
type Detector interface {
	Has(text string, s Signal) bool
}

// Keyword detects signals by case-insensitive substring matching.
// Question is detected by the presence of a question mark.
type Keyword struct {
	phrases map[Signal][]string
}

var defaultPhrases = map[Signal][]string{
	HelpSeeking:         {"help", "explain", "understand"},
	StrongUnderstanding: {"i understand", "makes sense", "i see"},
	SoftUnderstanding:   {"got it", "clear", "okay"},
	Breakthrough: {
		"i understand", "i get it", "now i see", "that makes sense",
		"oh i see", "i got it", "clear now", "understand now",
	},
	MethodMention:      {"this method", "this way", "this approach"},
	Success:            {"understand", "got it", "makes sense"},
	Politeness:         {"help", "please", "can you"},
	SeeksUnderstanding: {"understand", "get it", "clear"},
	StepCue:            {"step"},
	ExampleCue:         {"example"},
	VideoCue:           {"video"},
}

// NewKeyword returns a keyword detector loaded with the default phrase lists.
func NewKeyword() *Keyword {
	k := &Keyword{phrases: make(map[Signal][]string, len(defaultPhrases))}
	for s, p := range defaultPhrases {
		k.phrases[s] = slices.Clone(p)
	}
	return k
}

// WithPhrases replaces the phrase list for a signal and returns k.
func (k *Keyword) WithPhrases(s Signal, phrases ...string) *Keyword {
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	k.phrases[s] = lowered
	return k
}

// Has reports whether text carries signal s.
func (k *Keyword) Has(text string, s Signal) bool {
	if s == Question {
		return strings.Contains(text, "?")
	}
	lower := strings.ToLower(text)
	for _, p := range k.phrases[s] {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Detect returns every signal found in text, in declaration order.
func Detect(d Detector, text string) []Signal {
	var out []Signal
	for _, s := range All {
		if d.Has(text, s) {
			out = append(out, s)
		}
	}
	return out
}

// All lists every known signal.
var All = []Signal{
	Question, HelpSeeking, StrongUnderstanding, SoftUnderstanding, Breakthrough,
	MethodMention, Success, Politeness, SeeksUnderstanding, StepCue, ExampleCue, VideoCue,
}
