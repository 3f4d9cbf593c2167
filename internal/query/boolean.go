package query

import (
	"bytes"
	"strconv"

	"github.com/iamNilotpal/lumen/internal/segment"
	"github.com/iamNilotpal/lumen/pkg/errors"
)

// BooleanQuery composes clauses with MUST/SHOULD/FILTER/MUST_NOT occur
// semantics. MinShouldMatch defaults to 1 when
// there is no MUST/FILTER clause (at least one SHOULD must match) and to
// 0 otherwise (SHOULD is optional, scoring-only) — resolved lazily by
// effectiveMinShouldMatch rather than at construction, since rewriting
// can change which clauses are present.
type BooleanQuery struct {
	Clauses        []Clause
	MinShouldMatch int
	Boost          float64

	maxClauses int
}

func NewBooleanQuery(clauses ...Clause) *BooleanQuery {
	return &BooleanQuery{Clauses: clauses, Boost: 1}
}

func (q *BooleanQuery) effectiveMinShouldMatch() int {
	if q.MinShouldMatch > 0 {
		return q.MinShouldMatch
	}
	for _, c := range q.Clauses {
		if c.Occur == Must || c.Occur == Filter {
			return 0
		}
	}
	return 1
}

func (q *BooleanQuery) clausesByOccur(occur Occur) []Query {
	var out []Query
	for _, c := range q.Clauses {
		if c.Occur == occur {
			out = append(out, c.Query)
		}
	}
	return out
}

// rewrite applies eight fixed simplification rules in order; Rewrite
// (query.go) reapplies this until nothing changes.
func (q *BooleanQuery) rewrite() Query {
	if q.maxClauses > 0 && len(q.Clauses) > q.maxClauses {
		// Surfacing TooManyClauses requires an error return, which
		// rewrite()'s signature doesn't carry; CreateWeight re-checks
		// and is where this actually fails a search (see below).
		return q
	}

	// Rule 1: 1-clause trivial collapse.
	if len(q.Clauses) == 1 {
		c := q.Clauses[0]
		switch c.Occur {
		case Should:
			if q.effectiveMinShouldMatch() <= 1 {
				return c.Query
			}
		case Must:
			return c.Query
		case Filter:
			return NewConstantScoreQuery(c.Query)
		case MustNot:
			return NewMatchNoneQuery()
		}
	}

	// Rule 2: recursively rewrite each child; rebuild only if changed.
	changed := false
	newClauses := make([]Clause, len(q.Clauses))
	for i, c := range q.Clauses {
		nq := Rewrite(c.Query, q.maxClauses)
		if nq != c.Query {
			changed = true
		}
		newClauses[i] = Clause{Query: nq, Occur: c.Occur}
	}

	// Rule 3: dedupe FILTER and MUST_NOT sets.
	deduped, dedupChanged := dedupeOccur(newClauses, Filter, MustNot)
	changed = changed || dedupChanged
	newClauses = deduped

	// Rule 4: MUST_NOT intersecting MUST or FILTER -> match-none.
	if mustNotIntersectsRequired(newClauses) {
		return NewMatchNoneQuery()
	}

	// Rule 5: remove FILTER clauses equal to MUST clauses, and remove
	// match-all-docs from FILTER.
	newClauses, removed := removeRedundantFilters(newClauses)
	changed = changed || removed

	// Rule 6: promote a clause that is both SHOULD and FILTER to MUST,
	// decrementing mmsm.
	newMin := q.MinShouldMatch
	newClauses, promoted := promoteShouldFilter(newClauses, &newMin)
	changed = changed || promoted

	// Rule 7: sum boosts of duplicate SHOULD/MUST clauses.
	newClauses, summed := sumDuplicateBoosts(newClauses)
	changed = changed || summed

	if !changed {
		// Rule 8: MUST(match-all) with only FILTERs besides ->
		// constant-score wrapper.
		if cs := constantScoreIfMatchAllMust(q, newMin); cs != nil {
			return cs
		}
		return q
	}
	return &BooleanQuery{Clauses: newClauses, MinShouldMatch: newMin, Boost: q.Boost, maxClauses: q.maxClauses}
}

func dedupeOccur(clauses []Clause, occurs ...Occur) ([]Clause, bool) {
	isTarget := func(o Occur) bool {
		for _, t := range occurs {
			if o == t {
				return true
			}
		}
		return false
	}
	seen := map[string]bool{}
	out := make([]Clause, 0, len(clauses))
	changed := false
	for _, c := range clauses {
		if isTarget(c.Occur) {
			key := queryKey(c.Query)
			if seen[key] {
				changed = true
				continue
			}
			seen[key] = true
		}
		out = append(out, c)
	}
	return out, changed
}

func mustNotIntersectsRequired(clauses []Clause) bool {
	mustNot := map[string]bool{}
	for _, c := range clauses {
		if c.Occur == MustNot {
			mustNot[queryKey(c.Query)] = true
		}
	}
	if len(mustNot) == 0 {
		return false
	}
	for _, c := range clauses {
		if (c.Occur == Must || c.Occur == Filter) && mustNot[queryKey(c.Query)] {
			return true
		}
	}
	return false
}

func removeRedundantFilters(clauses []Clause) ([]Clause, bool) {
	must := map[string]bool{}
	for _, c := range clauses {
		if c.Occur == Must {
			must[queryKey(c.Query)] = true
		}
	}
	out := make([]Clause, 0, len(clauses))
	changed := false
	for _, c := range clauses {
		if c.Occur == Filter {
			if _, ok := c.Query.(*MatchAllQuery); ok {
				changed = true
				continue
			}
			if must[queryKey(c.Query)] {
				changed = true
				continue
			}
		}
		out = append(out, c)
	}
	return out, changed
}

func promoteShouldFilter(clauses []Clause, minShouldMatch *int) ([]Clause, bool) {
	filterKeys := map[string]bool{}
	for _, c := range clauses {
		if c.Occur == Filter {
			filterKeys[queryKey(c.Query)] = true
		}
	}
	out := make([]Clause, 0, len(clauses))
	changed := false
	for _, c := range clauses {
		if c.Occur == Should && filterKeys[queryKey(c.Query)] {
			out = append(out, Clause{Query: c.Query, Occur: Must})
			if *minShouldMatch > 0 {
				*minShouldMatch--
			}
			changed = true
			continue
		}
		out = append(out, c)
	}
	return out, changed
}

func sumDuplicateBoosts(clauses []Clause) ([]Clause, bool) {
	type boostable interface{ boostOf() (float64, bool) }

	index := map[string]int{}
	out := make([]Clause, 0, len(clauses))
	changed := false
	for _, c := range clauses {
		if c.Occur != Should && c.Occur != Must {
			out = append(out, c)
			continue
		}
		key := string(c.Occur) + ":" + queryKey(c.Query)
		if i, ok := index[key]; ok {
			if bq, ok := boostableOf(out[i].Query); ok {
				if other, ok := boostableOf(c.Query); ok {
					bq.setBoost(bq.boost() + other.boost())
					changed = true
					continue
				}
			}
		}
		index[key] = len(out)
		out = append(out, c)
	}
	return out, changed
}

// boostAccessor is satisfied by every leaf query type carrying a Boost
// field, letting sumDuplicateBoosts merge duplicates generically.
type boostAccessor interface {
	boost() float64
	setBoost(float64)
}

func boostableOf(q Query) (boostAccessor, bool) {
	switch v := q.(type) {
	case *TermQuery:
		return termBoost{v}, true
	case *PrefixQuery:
		return prefixBoost{v}, true
	case *NumericRangeQuery:
		return rangeBoost{v}, true
	case *PhraseQuery:
		return phraseBoost{v}, true
	default:
		return nil, false
	}
}

type termBoost struct{ q *TermQuery }

func (t termBoost) boost() float64      { return t.q.Boost }
func (t termBoost) setBoost(b float64)  { t.q.Boost = b }

type prefixBoost struct{ q *PrefixQuery }

func (t prefixBoost) boost() float64     { return t.q.Boost }
func (t prefixBoost) setBoost(b float64) { t.q.Boost = b }

type rangeBoost struct{ q *NumericRangeQuery }

func (t rangeBoost) boost() float64     { return t.q.Boost }
func (t rangeBoost) setBoost(b float64) { t.q.Boost = b }

type phraseBoost struct{ q *PhraseQuery }

func (t phraseBoost) boost() float64     { return t.q.Boost }
func (t phraseBoost) setBoost(b float64) { t.q.Boost = b }

// constantScoreIfMatchAllMust implements rule 8: when the only scoring
// clause is a MUST(match-all) and everything else is FILTER, the query
// contributes no per-term score and can be replaced by a constant-score
// wrapper over the FILTER conjunction.
func constantScoreIfMatchAllMust(q *BooleanQuery, minShouldMatch int) Query {
	var mustAll *Clause
	var filters []Query
	for i := range q.Clauses {
		c := &q.Clauses[i]
		switch c.Occur {
		case Must:
			if _, ok := c.Query.(*MatchAllQuery); !ok {
				return nil
			}
			if mustAll != nil {
				return nil
			}
			mustAll = c
		case Filter:
			filters = append(filters, c.Query)
		case Should, MustNot:
			return nil
		}
	}
	if mustAll == nil || len(filters) == 0 {
		return nil
	}
	inner := Query(NewMatchAllQuery())
	if len(filters) == 1 {
		inner = filters[0]
	} else {
		clauses := make([]Clause, len(filters))
		for i, f := range filters {
			clauses[i] = Clause{Query: f, Occur: Filter}
		}
		bq := NewBooleanQuery(clauses...)
		bq.maxClauses = q.maxClauses
		inner = bq
	}
	return NewConstantScoreQuery(inner)
}

// queryKey is a structural equality key used by the dedup/promote/sum
// rewrite rules; two queries with the same key are considered the same
// clause regardless of boost.
func queryKey(q Query) string {
	switch v := q.(type) {
	case *TermQuery:
		return "term:" + v.Field + ":" + string(v.Term)
	case *PrefixQuery:
		return "prefix:" + v.Field + ":" + string(v.Prefix)
	case *NumericRangeQuery:
		return "range:" + v.Field + ":" + encodeRangeKey(v.Min, v.Max)
	case *PhraseQuery:
		var buf bytes.Buffer
		buf.WriteString("phrase:" + v.Field + ":")
		for _, t := range v.Terms {
			buf.Write(t)
			buf.WriteByte(0)
		}
		return buf.String()
	case *MatchAllQuery:
		return "matchall"
	case *MatchNoneQuery:
		return "matchnone"
	case *ConstantScoreQuery:
		return "constant:" + queryKey(v.Inner)
	case *BooleanQuery:
		var buf bytes.Buffer
		buf.WriteString("bool:")
		for _, c := range v.Clauses {
			buf.WriteByte(byte(c.Occur))
			buf.WriteString(queryKey(c.Query))
		}
		return buf.String()
	default:
		return "unknown"
	}
}

func encodeRangeKey(min, max int64) string {
	return strconv.FormatInt(min, 10) + "-" + strconv.FormatInt(max, 10)
}

func (q *BooleanQuery) CreateWeight(s *Searcher) (Weight, error) {
	if q.maxClauses > 0 && len(q.Clauses) > q.maxClauses {
		return nil, errors.NewTooManyClausesError(len(q.Clauses), q.maxClauses)
	}

	w := &booleanWeight{boost: q.Boost, minShouldMatch: q.effectiveMinShouldMatch()}
	for _, c := range q.Clauses {
		cw, err := c.Query.CreateWeight(s)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case Must:
			w.must = append(w.must, cw)
		case Should:
			w.should = append(w.should, cw)
		case Filter:
			w.filter = append(w.filter, cw)
		case MustNot:
			w.mustNot = append(w.mustNot, cw)
		}
	}
	return w, nil
}

type booleanWeight struct {
	must, should, filter, mustNot []Weight
	minShouldMatch                int
	boost                         float64
}

func (w *booleanWeight) Scorer(r *segment.Reader) (Scorer, error) {
	mustScorers, err := scorersFor(w.must, r)
	if err != nil || (mustScorers == nil && len(w.must) > 0) {
		return nil, err
	}
	filterScorers, err := scorersFor(w.filter, r)
	if err != nil || (filterScorers == nil && len(w.filter) > 0) {
		return nil, err
	}
	shouldScorers, err := scorersForOptional(w.should, r)
	if err != nil {
		return nil, err
	}
	mustNotIters, err := itersFor(w.mustNot, r)
	if err != nil {
		return nil, err
	}

	if len(mustScorers) == 0 && len(filterScorers) == 0 && len(shouldScorers) == 0 {
		return nil, nil
	}
	if len(w.should) > 0 && w.minShouldMatch > len(shouldScorers) {
		// Too few SHOULD clauses matched anything in this segment to
		// ever reach minShouldMatch.
		return nil, nil
	}

	bs, err := newBooleanScorer(mustScorers, filterScorers, shouldScorers, w.minShouldMatch, mustNotIters)
	if err != nil || bs == nil {
		return nil, err
	}
	if w.boost != 1 {
		return &constantScorer{DocIdSetIterator: bs, boost: w.boost}, nil
	}
	return bs, nil
}

func scorersFor(weights []Weight, r *segment.Reader) ([]Scorer, error) {
	out := make([]Scorer, 0, len(weights))
	for _, w := range weights {
		s, err := w.Scorer(r)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, nil
		}
		out = append(out, s)
	}
	return out, nil
}

// scorersForOptional drops clauses that matched nothing instead of
// failing the whole SHOULD group — callers decide separately whether
// the reduced count still satisfies minShouldMatch.
func scorersForOptional(weights []Weight, r *segment.Reader) ([]Scorer, error) {
	out := make([]Scorer, 0, len(weights))
	for _, w := range weights {
		s, err := w.Scorer(r)
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func itersFor(weights []Weight, r *segment.Reader) ([]DocIdSetIterator, error) {
	var out []DocIdSetIterator
	for _, w := range weights {
		s, err := w.Scorer(r)
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// booleanScorer composes a BooleanQuery's four clause groups into a
// single Scorer. MUST and FILTER always drive iteration via one
// conjunction. SHOULD behaves one of two ways depending on
// minShouldMatch: when required clauses are absent (or minShouldMatch
// is explicitly positive), SHOULD also drives — wrapped in an
// mmsmIterator and conjoined with the required group — and only its
// matching sub-scorers are summed. When required clauses are present
// and minShouldMatch is 0, SHOULD is advisory-only: it never restricts
// which docs match, each optional scorer is merely advanced alongside
// the driver and summed into the score when it happens to also be
// positioned on the current doc. MUST_NOT excludes positions the
// driver would otherwise visit.
type booleanScorer struct {
	driver DocIdSetIterator
	must   []Scorer

	// driving SHOULD (minShouldMatch >= 1): summed via matchedIterators.
	should *mmsmIterator

	// advisory SHOULD (minShouldMatch == 0, required clauses present):
	// advanced independently of the driver, scored opportunistically.
	optional []Scorer

	mustNot DocIdSetIterator
}

// advanceOptional moves every advisory SHOULD scorer forward to doc,
// never backward — safe since the driver's doc id is monotonically
// non-decreasing across NextDoc/Advance calls.
func (b *booleanScorer) advanceOptional(doc uint32) error {
	for _, s := range b.optional {
		if s.DocID() >= doc {
			continue
		}
		if _, err := s.Advance(doc); err != nil {
			return err
		}
	}
	return nil
}

func newBooleanScorer(must, filter []Scorer, should []Scorer, shouldMin int, mustNot []DocIdSetIterator) (*booleanScorer, error) {
	var requiredIters []DocIdSetIterator
	for _, s := range must {
		requiredIters = append(requiredIters, s)
	}
	for _, s := range filter {
		requiredIters = append(requiredIters, s)
	}

	advisory := len(requiredIters) > 0 && shouldMin < 1

	var shouldIter DocIdSetIterator
	var mm *mmsmIterator
	if len(should) > 0 && !advisory {
		shouldSubs := make([]DocIdSetIterator, len(should))
		for i, s := range should {
			shouldSubs[i] = s
		}
		min := shouldMin
		if min < 1 {
			min = 1
		}
		var err error
		mm, err = newMmsmIterator(shouldSubs, min)
		if err != nil {
			return nil, err
		}
		shouldIter = mm
	}

	var driver DocIdSetIterator
	switch {
	case len(requiredIters) > 0 && shouldIter != nil:
		ci, err := newConjunctionIterator(append(requiredIters, shouldIter))
		if err != nil {
			return nil, err
		}
		driver = ci
	case len(requiredIters) > 0:
		if len(requiredIters) == 1 {
			driver = requiredIters[0]
		} else {
			ci, err := newConjunctionIterator(requiredIters)
			if err != nil {
				return nil, err
			}
			driver = ci
		}
	case shouldIter != nil:
		driver = shouldIter
	default:
		return nil, nil
	}

	var optional []Scorer
	if advisory {
		// Each optional scorer wraps a freshly opened, unpositioned
		// iterator (e.g. a PostingsEnum whose doc id starts at 0, not
		// NoMoreDocs, before its first NextDoc) — prime it so DocID()
		// reflects a real postings position rather than that zero value
		// before advanceOptional ever compares against it.
		for _, s := range should {
			if _, err := s.NextDoc(); err != nil {
				return nil, err
			}
		}
		optional = should
	}

	var mustNotIter DocIdSetIterator
	if len(mustNot) == 1 {
		mustNotIter = mustNot[0]
	} else if len(mustNot) > 1 {
		di, err := newDisjunctionIterator(mustNot)
		if err != nil {
			return nil, err
		}
		mustNotIter = di
	}

	bs := &booleanScorer{driver: driver, must: must, should: mm, optional: optional, mustNot: mustNotIter}
	if err := bs.skipExcluded(); err != nil {
		return nil, err
	}
	if bs.driver != nil && bs.DocID() != NoMoreDocs {
		if err := bs.advanceOptional(bs.DocID()); err != nil {
			return nil, err
		}
	}
	return bs, nil
}

// skipExcluded advances past any doc id the MUST_NOT group also
// contains, since MUST_NOT never drives iteration — it only vetoes
// positions the driver reaches.
func (b *booleanScorer) skipExcluded() error {
	if b.mustNot == nil {
		return nil
	}
	for b.driver.DocID() != NoMoreDocs {
		excludedDoc, err := b.mustNot.Advance(b.driver.DocID())
		if err != nil {
			return err
		}
		if excludedDoc != b.driver.DocID() {
			return nil
		}
		if _, err := b.driver.NextDoc(); err != nil {
			return err
		}
	}
	return nil
}

func (b *booleanScorer) DocID() uint32 { return b.driver.DocID() }

func (b *booleanScorer) NextDoc() (uint32, error) {
	if _, err := b.driver.NextDoc(); err != nil {
		return NoMoreDocs, err
	}
	if err := b.skipExcluded(); err != nil {
		return NoMoreDocs, err
	}
	if b.DocID() != NoMoreDocs {
		if err := b.advanceOptional(b.DocID()); err != nil {
			return NoMoreDocs, err
		}
	}
	return b.DocID(), nil
}

func (b *booleanScorer) Advance(target uint32) (uint32, error) {
	if _, err := b.driver.Advance(target); err != nil {
		return NoMoreDocs, err
	}
	if err := b.skipExcluded(); err != nil {
		return NoMoreDocs, err
	}
	if b.DocID() != NoMoreDocs {
		if err := b.advanceOptional(b.DocID()); err != nil {
			return NoMoreDocs, err
		}
	}
	return b.DocID(), nil
}

func (b *booleanScorer) Score() (float64, error) {
	var total float64
	for _, s := range b.must {
		if s.DocID() != b.DocID() {
			continue
		}
		v, err := s.Score()
		if err != nil {
			return 0, err
		}
		total += v
	}
	if b.should != nil {
		for _, it := range b.should.matchedIterators() {
			s, ok := it.(Scorer)
			if !ok || s.DocID() != b.DocID() {
				continue
			}
			v, err := s.Score()
			if err != nil {
				return 0, err
			}
			total += v
		}
	}
	for _, s := range b.optional {
		if s.DocID() != b.DocID() {
			continue
		}
		v, err := s.Score()
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}
