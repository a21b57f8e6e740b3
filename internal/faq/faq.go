// Package faq clusters recurring student questions by a signature derived
// from their concept tags and leading key terms.
package faq

import (
	"cmp"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pavelanni/tutorstats/internal/bounded"
	"github.com/pavelanni/tutorstats/internal/model"
)

var questionWords = map[string]struct{}{
	"what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "does": {}, "this": {}, "that": {},
}

// Qualifies reports whether a message counts as a question worth clustering.
func Qualifies(text string) bool {
	return strings.Contains(text, "?") && utf8.RuneCountInString(text) > 10
}

// Signature returns the sorted union of the concept tags and the first three
// key terms of the text. Key terms are lowercased words longer than three
// characters, stripped of surrounding punctuation, that are not question words.
// A question with no concepts and no key terms has an empty signature.
func Signature(text string, concepts []string) []string {
	set := make(map[string]struct{})
	for _, c := range concepts {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	terms := 0
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if terms == 3 {
			break
		}
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		if _, skip := questionWords[w]; skip {
			continue
		}
		set[w] = struct{}{}
		terms++
	}
	sig := make([]string, 0, len(set))
	for k := range set {
		sig = append(sig, k)
	}
	sort.Strings(sig)
	return sig
}

func key(sig []string) string {
	return strings.Join(sig, "\x1f")
}

type group struct {
	signature      []string
	representative string
	members        *bounded.Ring[model.Question]
	frequency      int
	firstAsked     time.Time
	lastAsked      time.Time
	concepts       map[string]struct{}
	students       map[string]struct{}
}

// Clusterer keeps signature-keyed question groups. Each group holds a bounded
// sample of its members; the least recently asked group is evicted when the
// group limit is reached.
type Clusterer struct {
	mu        sync.Mutex
	groups    *lru.Cache[string, *group]
	memberCap int
}

// New creates a clusterer.
func New(memberCap, maxGroups int) *Clusterer {
	// NewWithEvict fails only for a non-positive size.
	groups, _ := lru.NewWithEvict(max(maxGroups, 1), func(k string, g *group) {
		slog.Debug("evicted FAQ group", "signature", k, "frequency", g.frequency)
	})
	return &Clusterer{groups: groups, memberCap: memberCap}
}

// Observe clusters the message of an interaction event when it qualifies as a question.
func (c *Clusterer) Observe(e model.InteractionEvent) {
	if !Qualifies(e.Message) {
		return
	}
	c.Add(model.Question{
		Text:      e.Message,
		Concepts:  e.Concepts,
		StudentID: e.StudentID,
		AskedAt:   e.Timestamp,
	})
}

// Add places q in the group for its signature, creating the group if needed.
func (c *Clusterer) Add(q model.Question) {
	sig := Signature(q.Text, q.Concepts)
	k := key(sig)

	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups.Get(k)
	if !ok {
		g = &group{
			signature:      sig,
			representative: q.Text,
			members:        bounded.New[model.Question](c.memberCap),
			firstAsked:     q.AskedAt,
			lastAsked:      q.AskedAt,
			concepts:       make(map[string]struct{}),
			students:       make(map[string]struct{}),
		}
		c.groups.Add(k, g)
	}

	g.members.Push(q)
	g.frequency++
	if q.AskedAt.Before(g.firstAsked) {
		g.firstAsked = q.AskedAt
	}
	if q.AskedAt.After(g.lastAsked) {
		g.lastAsked = q.AskedAt
	}
	for _, concept := range q.Concepts {
		g.concepts[concept] = struct{}{}
	}
	if q.StudentID != "" {
		g.students[q.StudentID] = struct{}{}
	}
}

// Len returns the number of groups.
func (c *Clusterer) Len() int {
	return c.groups.Len()
}

// Top returns up to limit groups ranked by frequency, most frequent first.
// A non-empty category keeps only groups with a concept containing it,
// ignoring case. A non-positive limit returns every group.
func (c *Clusterer) Top(limit int, category string) []model.FAQ {
	category = strings.ToLower(strings.TrimSpace(category))

	c.mu.Lock()
	groups := c.groups.Values()
	out := make([]model.FAQ, 0, len(groups))
	for _, g := range groups {
		if category != "" && !matches(g.concepts, category) {
			continue
		}
		out = append(out, g.view())
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(x, y model.FAQ) int {
		if d := cmp.Compare(y.Frequency, x.Frequency); d != 0 {
			return d
		}
		if d := y.LastAsked.Compare(x.LastAsked); d != 0 {
			return d
		}
		return cmp.Compare(key(x.Signature), key(y.Signature))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matches(concepts map[string]struct{}, category string) bool {
	for c := range concepts {
		if strings.Contains(strings.ToLower(c), category) {
			return true
		}
	}
	return false
}

func (g *group) view() model.FAQ {
	members := g.members.Items()
	questions := make([]string, len(members))
	for i, m := range members {
		questions[i] = m.Text
	}
	concepts := make([]string, 0, len(g.concepts))
	for c := range g.concepts {
		concepts = append(concepts, c)
	}
	sort.Strings(concepts)
	return model.FAQ{
		Signature:              slices.Clone(g.signature),
		RepresentativeQuestion: g.representative,
		Frequency:              g.frequency,
		Concepts:               concepts,
		FirstAsked:             g.firstAsked,
		LastAsked:              g.lastAsked,
		UniqueStudents:         len(g.students),
		Questions:              questions,
	}
}

// Group clusters a batch of questions without touching any shared state and
// returns every group ranked by frequency.
func Group(questions []model.Question) []model.FAQ {
	c := New(max(len(questions), 1), max(len(questions), 1))
	for _, q := range questions {
		c.Add(q)
	}
	return c.Top(0, "")
}
