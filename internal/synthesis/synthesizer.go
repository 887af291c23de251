// Package synthesis turns a ranked source list into a grouped, budgeted
// context block. Sources about the same topic land in one section,
// contradictory numeric claims are resolved in favour of the more
// authoritative source kind, and assembly stops once the token budget
// is spent.
package synthesis

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/bochiedev/tulia-retrieval/internal/source"
	"github.com/bochiedev/tulia-retrieval/internal/text"
	"github.com/bochiedev/tulia-retrieval/pkg/config"
	"github.com/bochiedev/tulia-retrieval/pkg/metrics"
)

// Section is one topic group of the assembled context.
type Section struct {
	Heading string          `json:"heading"`
	Sources []source.Ranked `json:"sources"`
	Tokens  int             `json:"tokens"`
}

// Conflict records a contradictory claim that was resolved by source
// priority. The losing source is dropped from the context.
type Conflict struct {
	Topic        string   `json:"topic"`
	WinnerID     string   `json:"winner_id"`
	LoserID      string   `json:"loser_id"`
	WinnerValues []string `json:"winner_values"`
	LoserValues  []string `json:"loser_values"`
}

// Context is the synthesized output handed to answer generation.
type Context struct {
	Sections   []Section  `json:"sections"`
	Conflicts  []Conflict `json:"conflicts,omitempty"`
	Omitted    []string   `json:"omitted,omitempty"`
	TokenCount int        `json:"token_count"`

	// NoVerifiedInformation is set when no usable source survived, which
	// tells the caller to say so instead of letting a model guess.
	NoVerifiedInformation bool `json:"no_verified_information"`
}

// Synthesizer groups and budgets ranked sources.
type Synthesizer struct {
	budget    int
	threshold float64
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Synthesizer)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synthesizer) { s.metrics = m }
}

func New(cfg config.RetrievalConfig, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		budget:    cfg.ContextTokenBudget,
		threshold: cfg.SimilarityThreshold,
		logger:    slog.Default().With("component", "synthesizer"),
	}
	if s.budget <= 0 {
		s.budget = 1200
	}
	if s.threshold <= 0 {
		s.threshold = 0.3
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type group struct {
	heading string
	terms   map[string]struct{}
	members []source.Ranked
}

// Build assembles the context from sources already in final ranked order.
// The output depends only on that order, never on timing.
func (s *Synthesizer) Build(sources []source.Ranked) Context {
	if len(sources) == 0 {
		return Context{NoVerifiedInformation: true}
	}

	groups := s.groupByTopic(sources)
	var conflicts []Conflict
	for i := range groups {
		groups[i], conflicts = resolveConflicts(groups[i], conflicts)
	}

	ctx := Context{Conflicts: conflicts}

	// Admission runs over survivors in global rank order, not group order,
	// so a low-ranked member of an early group cannot spend budget ahead
	// of a higher-ranked source leading a later group.
	rankOf := make(map[string]int, len(sources))
	for i, rs := range sources {
		rankOf[rs.ID] = i
	}
	survivors := make([]source.Ranked, 0, len(sources))
	for _, g := range groups {
		survivors = append(survivors, g.members...)
	}
	sort.Slice(survivors, func(i, j int) bool {
		return rankOf[survivors[i].ID] < rankOf[survivors[j].ID]
	})

	admitted := make(map[string]bool, len(survivors))
	overflowed := false
	for _, m := range survivors {
		tokens := m.Tokens()
		// The top source always fits so there is never an empty context
		// when information exists. After the first overflow everything
		// lower ranked is omitted wholesale.
		if overflowed || (len(admitted) > 0 && ctx.TokenCount+tokens > s.budget) {
			overflowed = true
			ctx.Omitted = append(ctx.Omitted, m.ID)
			continue
		}
		admitted[m.ID] = true
		ctx.TokenCount += tokens
	}

	for _, g := range groups {
		sec := Section{Heading: g.heading}
		for _, m := range g.members {
			if !admitted[m.ID] {
				continue
			}
			sec.Sources = append(sec.Sources, m)
			sec.Tokens += m.Tokens()
		}
		if len(sec.Sources) > 0 {
			ctx.Sections = append(ctx.Sections, sec)
		}
	}
	if len(ctx.Sections) == 0 {
		ctx.NoVerifiedInformation = true
	}

	if s.metrics != nil {
		s.metrics.ContextSections.Observe(float64(len(ctx.Sections)))
		for range conflicts {
			s.metrics.ConflictsTotal.Inc()
		}
	}
	if len(conflicts) > 0 {
		s.logger.Info("resolved conflicting claims", "conflicts", len(conflicts))
	}
	return ctx
}

// groupByTopic walks sources in ranked order and attaches each to the
// first existing group whose representative terms are similar enough,
// otherwise starts a new group. Group order therefore follows the rank
// of each group's best source.
func (s *Synthesizer) groupByTopic(sources []source.Ranked) []group {
	var groups []group
	for _, rs := range sources {
		terms := text.TermSet(topicText(rs))
		placed := false
		for i := range groups {
			if similarity(groups[i].terms, terms) >= s.threshold {
				groups[i].members = append(groups[i].members, rs)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, group{
				heading: headingFor(rs),
				terms:   terms,
				members: []source.Ranked{rs},
			})
		}
	}
	return groups
}

// similarity is Jaccard relaxed by containment: a record's short name set
// sitting entirely inside a chunk's larger term set still counts as the
// same topic.
func similarity(a, b map[string]struct{}) float64 {
	j := text.Jaccard(a, b)
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	if len(small) == 0 {
		return j
	}
	inter := 0
	for term := range small {
		if _, ok := large[term]; ok {
			inter++
		}
	}
	if containment := float64(inter) / float64(len(small)); containment > j {
		return containment
	}
	return j
}

// topicText is the text used for similarity, preferring the short
// identifying fields over full content so long chunks do not swamp the
// term set.
func topicText(rs source.Ranked) string {
	switch {
	case rs.Record != nil:
		return rs.Record.Name + " " + rs.Record.Category
	case rs.Chunk != nil:
		head := rs.Chunk.Content
		if len(head) > 200 {
			head = head[:200]
		}
		return rs.Chunk.DocumentName + " " + rs.Chunk.Section + " " + head
	case rs.Snippet != nil:
		return rs.Snippet.Title + " " + rs.Snippet.Text
	default:
		return rs.Content
	}
}

func headingFor(rs source.Ranked) string {
	switch {
	case rs.Record != nil:
		return rs.Record.Name
	case rs.Chunk != nil:
		if rs.Chunk.Section != "" {
			return rs.Chunk.Section
		}
		return rs.Chunk.DocumentName
	case rs.Snippet != nil:
		return rs.Snippet.Title
	default:
		return "General"
	}
}

var numberPattern = regexp.MustCompile(`^\d+(?:[.,]\d+)?`)

// numericClaims maps a context term (the nearest meaningful word next to
// a number, such as "price" or "usd") to the values stated for it. Keying
// claims by context keeps a price of 500 from ever contradicting a weight
// of 2.
func numericClaims(content string) map[string][]string {
	type token struct {
		value string
		isNum bool
	}
	fields := strings.Fields(strings.ToLower(content))
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,:;!?()[]\"'")
		if f == "" {
			continue
		}
		if v := numberPattern.FindString(f); v != "" {
			tokens = append(tokens, token{value: strings.ReplaceAll(v, ",", "."), isNum: true})
			// A trailing unit glued to the number ("2kg") becomes its
			// own context token.
			if rest := f[len(v):]; rest != "" {
				tokens = append(tokens, token{value: rest})
			}
			continue
		}
		tokens = append(tokens, token{value: f})
	}

	claims := make(map[string][]string)
	add := func(contextWord, value string) {
		terms := text.Terms(contextWord)
		if len(terms) == 0 {
			return
		}
		key := terms[0]
		for _, existing := range claims[key] {
			if existing == value {
				return
			}
		}
		claims[key] = append(claims[key], value)
	}
	for i, tok := range tokens {
		if !tok.isNum {
			continue
		}
		if i > 0 && !tokens[i-1].isNum {
			add(tokens[i-1].value, tok.value)
		}
		if i+1 < len(tokens) && !tokens[i+1].isNum {
			add(tokens[i+1].value, tok.value)
		}
	}
	return claims
}

// resolveConflicts checks every group member against the group's most
// authoritative source. A member stating a different value for a context
// the primary also quantifies contradicts it and is dropped; verified
// data always outranks retrieved prose, which outranks the web.
func resolveConflicts(g group, conflicts []Conflict) (group, []Conflict) {
	if len(g.members) < 2 {
		return g, conflicts
	}
	primary := g.members[0]
	primaryIdx := 0
	for i, m := range g.members[1:] {
		if m.Kind.Priority() > primary.Kind.Priority() {
			primary = m
			primaryIdx = i + 1
		}
	}
	primaryClaims := numericClaims(primary.Content)
	if len(primaryClaims) == 0 {
		return g, conflicts
	}

	kept := g.members[:0]
	for i, m := range g.members {
		if i == primaryIdx || m.Kind.Priority() >= primary.Kind.Priority() {
			kept = append(kept, m)
			continue
		}
		winner, loser, clash := disagreement(primaryClaims, numericClaims(m.Content))
		if !clash {
			kept = append(kept, m)
			continue
		}
		conflicts = append(conflicts, Conflict{
			Topic:        g.heading,
			WinnerID:     primary.ID,
			LoserID:      m.ID,
			WinnerValues: winner,
			LoserValues:  loser,
		})
	}
	g.members = kept
	return g, conflicts
}

// disagreement collects the values of every shared claim context where
// the two sources state disjoint numbers. Keys are walked in sorted order
// so the reported values are deterministic.
func disagreement(primary, other map[string][]string) (winner, loser []string, clash bool) {
	keys := make([]string, 0, len(primary))
	for k := range primary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		otherValues, shared := other[k]
		if !shared || overlap(primary[k], otherValues) {
			continue
		}
		winner = append(winner, primary[k]...)
		loser = append(loser, otherValues...)
		clash = true
	}
	return winner, loser, clash
}

func overlap(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
