package policy

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Snapshot is an immutable compiled policy. A scorer that loaded a snapshot
// keeps using it even if a newer one is swapped in.
type Snapshot struct {
	policy  *Policy
	matcher *ahocorasick.Matcher
	phrases []compiledPhrase // matcher dictionary order
}

type compiledPhrase struct {
	text string // normalized, unpadded
	refs []phraseRef
}

// phraseRef ties a dictionary entry back to the category listing it.
type phraseRef struct {
	category int
	weight   int
}

// Hit is one distinct phrase found in a text.
type Hit struct {
	Phrase   string
	Category int // index into Policy.Categories
	Weight   int
}

// Compile validates p and builds its matcher.
func Compile(p *Policy) (*Snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var phrases []compiledPhrase
	for ci, c := range p.Categories {
		for _, ph := range c.Phrases {
			norm := normalize(ph.Text)
			i, ok := index[norm]
			if !ok {
				i = len(phrases)
				index[norm] = i
				phrases = append(phrases, compiledPhrase{text: norm})
			}
			refs := phrases[i].refs
			if n := len(refs); n > 0 && refs[n-1].category == ci {
				// same phrase listed twice in one category: keep the larger weight
				refs[n-1].weight = max(refs[n-1].weight, ph.Weight)
				continue
			}
			phrases[i].refs = append(refs, phraseRef{category: ci, weight: ph.Weight})
		}
	}

	dict := make([]string, len(phrases))
	for i, ph := range phrases {
		dict[i] = " " + ph.text + " "
	}

	return &Snapshot{
		policy:  p,
		matcher: ahocorasick.NewStringMatcher(dict),
		phrases: phrases,
	}, nil
}

// Policy returns the snapshot's policy. Callers must not modify it.
func (s *Snapshot) Policy() *Policy {
	return s.policy
}

// Version returns the policy version.
func (s *Snapshot) Version() string {
	return s.policy.Version
}

// Match returns every distinct phrase present in text as a whole word
// sequence, once per category that lists it. Hits are ordered by first
// occurrence in text, then by category order.
func (s *Snapshot) Match(text string) []Hit {
	norm := normalize(text)
	if norm == "" {
		return nil
	}
	padded := " " + norm + " "

	found := s.matcher.MatchThreadSafe([]byte(padded))
	if len(found) == 0 {
		return nil
	}

	ordered := orderByPosition(padded, found, s.phrases)

	hits := make([]Hit, 0, len(ordered))
	for _, idx := range ordered {
		ph := s.phrases[idx]
		for _, ref := range ph.refs {
			hits = append(hits, Hit{Phrase: ph.text, Category: ref.category, Weight: ref.weight})
		}
	}
	return hits
}

// orderByPosition sorts matched dictionary indices by where each phrase
// first occurs in padded text. The matcher reports hits in the order their
// match ends, which differs for overlapping phrases.
func orderByPosition(padded string, found []int, phrases []compiledPhrase) []int {
	type pos struct {
		idx, at int
	}
	ps := make([]pos, 0, len(found))
	for _, idx := range found {
		if idx < 0 || idx >= len(phrases) {
			continue
		}
		ps = append(ps, pos{idx: idx, at: strings.Index(padded, " "+phrases[idx].text+" ")})
	}
	slices.SortFunc(ps, func(a, b pos) int {
		if c := cmp.Compare(a.at, b.at); c != 0 {
			return c
		}
		return cmp.Compare(a.idx, b.idx)
	})
	out := make([]int, len(ps))
	for i, p := range ps {
		out[i] = p.idx
	}
	return out
}

// normalize lower-cases text, maps every rune that is not a letter or digit
// to a space, and collapses whitespace. Apostrophes are dropped so "can't"
// and "cant" match the same entry.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
