package scratchpad

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/hybridmem/pkg/logger"
	"github.com/sipeed/hybridmem/pkg/tokens"
)

const (
	DefaultMaxTokens    = 2000
	DefaultTTL          = 30 * time.Minute
	DefaultInjectBudget = 1500
)

// Store is a process-lifetime, token-budgeted working memory. One mutex
// guards the entry map; compressor and expander calls run outside it.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	seq     uint64

	maxTokens       int
	ttl             time.Duration
	injectBudget    int
	compressor      Compressor
	expander        Expander
	counter         tokens.Counter
	now             func() time.Time
	compressTimeout time.Duration
	expandTimeout   time.Duration
	enrichLimit     int
	redactor        Redactor
}

type Option func(*Store)

func WithMaxTokens(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithInjectBudget(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.injectBudget = n
		}
	}
}

func WithCompressor(c Compressor) Option {
	return func(s *Store) { s.compressor = c }
}

func WithExpander(e Expander) Option {
	return func(s *Store) { s.expander = e }
}

func WithTokenCounter(c tokens.Counter) Option {
	return func(s *Store) {
		if c != nil {
			s.counter = c
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithCompressTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.compressTimeout = d
		}
	}
}

func WithExpandTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.expandTimeout = d
		}
	}
}

// WithEnrichConcurrency bounds parallel expander calls during Read.
func WithEnrichConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.enrichLimit = n
		}
	}
}

// WithRedactor scrubs entry content before it is counted, compressed
// or stored.
func WithRedactor(r Redactor) Option {
	return func(s *Store) { s.redactor = r }
}

func New(opts ...Option) *Store {
	s := &Store{
		entries:         make(map[string]*Entry),
		maxTokens:       DefaultMaxTokens,
		ttl:             DefaultTTL,
		injectBudget:    DefaultInjectBudget,
		counter:         tokens.WordEstimate{},
		now:             time.Now,
		compressTimeout: 10 * time.Second,
		expandTimeout:   15 * time.Second,
		enrichLimit:     4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newID() string {
	return "sp-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Write stores an observation, compressing it first when req.Minimize is
// set. Oldest entries are evicted until the new one fits the token budget.
func (s *Store) Write(ctx context.Context, req WriteRequest) WriteResult {
	if !IsValidPredicate(req.Predicate) {
		return WriteResult{
			Message: fmt.Sprintf("Invalid predicate '%s'. Must be one of: %s",
				req.Predicate, strings.Join(Predicates(), ", ")),
		}
	}

	raw := req.Content
	if s.redactor != nil {
		var hits []string
		if raw, hits = s.redactor.Redact(raw); len(hits) > 0 {
			logger.WarnCF("scratchpad", "Redacted credentials from entry", map[string]interface{}{
				"subject":  req.Subject,
				"patterns": hits,
			})
		}
	}

	content := raw
	originalTokens := s.counter.Count(raw)
	minimizedTokens := originalTokens
	if req.Minimize {
		content, minimizedTokens = s.minimize(ctx, raw, originalTokens)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	if minimizedTokens > s.maxTokens {
		return WriteResult{
			Message: fmt.Sprintf("Entry needs %d tokens, more than the %d token budget", minimizedTokens, s.maxTokens),
		}
	}

	evicted := s.evictLocked(minimizedTokens)
	if evicted > 0 {
		logger.InfoCF("scratchpad", "Evicted entries to stay within budget", map[string]interface{}{
			"evicted": evicted,
			"budget":  s.maxTokens,
		})
	}

	now := s.now()
	s.seq++
	e := &Entry{
		ID:              newID(),
		Subject:         req.Subject,
		Predicate:       req.Predicate,
		Object:          req.Object,
		Content:         content,
		OriginalTokens:  originalTokens,
		MinimizedTokens: minimizedTokens,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
		Metadata:        cloneMeta(req.Metadata),
		seq:             s.seq,
	}
	if req.Minimize && content != raw {
		e.OriginalContent = raw
	}
	s.entries[e.ID] = e

	saved := originalTokens - minimizedTokens
	msg := "Stored entry"
	if saved > 0 {
		msg = fmt.Sprintf("Stored entry (saved %d tokens)", saved)
	}
	out := e.clone()
	return WriteResult{Success: true, Entry: &out, TokensSaved: saved, Message: msg}
}

// minimize returns the compressor output when it is strictly shorter,
// otherwise the truncation fallback.
func (s *Store) minimize(ctx context.Context, text string, originalTokens int) (string, int) {
	if s.compressor != nil {
		cctx, cancel := context.WithTimeout(ctx, s.compressTimeout)
		out, err := s.compressor.Compress(cctx, text)
		cancel()
		if err != nil {
			logger.WarnCF("scratchpad", "Compressor failed, using truncation", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			out = strings.TrimSpace(out)
			if n := s.counter.Count(out); out != "" && n < originalTokens {
				return out, n
			}
		}
	}

	if originalTokens > truncateThreshold {
		cut := truncateWords(text, truncateRatio)
		if n := s.counter.Count(cut); n <= originalTokens {
			return cut, n
		}
	}
	return text, originalTokens
}

// Read returns matching live entries, newest first. With req.Enrich each
// entry is expanded once and the result cached on the entry.
func (s *Store) Read(ctx context.Context, req ReadRequest) ReadResult {
	s.mu.Lock()
	s.sweepLocked()
	var matched []Entry
	for _, e := range s.entries {
		if req.Subject != "" && e.Subject != req.Subject {
			continue
		}
		if req.Predicate != "" && e.Predicate != req.Predicate {
			continue
		}
		matched = append(matched, e.clone())
	}
	s.mu.Unlock()

	sortNewestFirst(matched)

	enriched := 0
	if req.Enrich && len(matched) > 0 {
		enriched = s.enrich(ctx, matched, req.QueryContext)
	}

	return ReadResult{Entries: matched, Total: len(matched), EnrichedCount: enriched}
}

func (s *Store) enrich(ctx context.Context, entries []Entry, queryContext string) int {
	ok := make([]bool, len(entries))
	var g errgroup.Group
	g.SetLimit(s.enrichLimit)

	for i := range entries {
		if entries[i].EnrichedContent != "" {
			ok[i] = true
			continue
		}
		if s.expander == nil {
			continue
		}
		g.Go(func() error {
			ectx, cancel := context.WithTimeout(ctx, s.expandTimeout)
			defer cancel()
			out, err := s.expander.Expand(ectx, entries[i], queryContext)
			if err != nil {
				logger.WarnCF("scratchpad", "Expander failed, returning stored content", map[string]interface{}{
					"entry": entries[i].ID,
					"error": err.Error(),
				})
				return nil
			}
			out = strings.TrimSpace(out)
			if out == "" {
				return nil
			}
			entries[i].EnrichedContent = out
			ok[i] = true
			return nil
		})
	}
	g.Wait()

	count := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range entries {
		if !ok[i] {
			continue
		}
		count++
		if live, found := s.entries[e.ID]; found && live.EnrichedContent == "" {
			live.EnrichedContent = e.EnrichedContent
		}
	}
	return count
}

// Clear removes entries for req.Subject or created more than req.OlderThan
// ago. Without a filter it clears only when req.All is set.
func (s *Store) Clear(req ClearRequest) ClearResult {
	if req.Subject == "" && req.OlderThan <= 0 && !req.All {
		return ClearResult{Message: "No filter given; set all to clear every entry"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var cutoff time.Time
	if req.OlderThan > 0 {
		cutoff = s.now().Add(-req.OlderThan)
	}

	n := 0
	for id, e := range s.entries {
		drop := req.All ||
			(req.Subject != "" && e.Subject == req.Subject) ||
			(!cutoff.IsZero() && e.CreatedAt.Before(cutoff))
		if drop {
			delete(s.entries, id)
			n++
		}
	}
	return ClearResult{ClearedCount: n, Message: fmt.Sprintf("Cleared %d entries", n)}
}

// Stats reports token accounting over live entries.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	st := Stats{
		EntryCount:      len(s.entries),
		TokenBudget:     s.maxTokens,
		PredicateCounts: make(map[string]int),
	}
	var oldest, newest time.Time
	for _, e := range s.entries {
		st.TotalOriginalTokens += e.OriginalTokens
		st.TotalMinimizedTokens += e.MinimizedTokens
		st.PredicateCounts[e.Predicate]++
		if oldest.IsZero() || e.CreatedAt.Before(oldest) {
			oldest = e.CreatedAt
		}
		if newest.IsZero() || e.CreatedAt.After(newest) {
			newest = e.CreatedAt
		}
	}
	st.TokensSaved = st.TotalOriginalTokens - st.TotalMinimizedTokens
	if st.TotalOriginalTokens > 0 {
		pct := float64(st.TokensSaved) / float64(st.TotalOriginalTokens) * 100
		st.SavingsPercentage = math.Round(pct*10) / 10
	}
	st.TokenBudgetUsed = st.TotalMinimizedTokens
	st.TokenBudgetRemaining = s.maxTokens - st.TotalMinimizedTokens
	if len(s.entries) > 0 {
		st.OldestEntry = &oldest
		st.NewestEntry = &newest
	}
	return st
}

// ContextForInjection formats live entries newest first and keeps adding
// lines until the next one would exceed budget. budget <= 0 uses the
// configured inject budget. queryContext is reserved for relevance
// filtering; selection is currently by recency alone.
func (s *Store) ContextForInjection(budget int, queryContext string) ([]string, int) {
	if budget <= 0 {
		budget = s.injectBudget
	}

	s.mu.Lock()
	s.sweepLocked()
	live := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		live = append(live, e.clone())
	}
	s.mu.Unlock()

	sortNewestFirst(live)

	var lines []string
	total := 0
	for _, e := range live {
		line := e.Line()
		n := s.counter.Count(line)
		if total+n > budget {
			break
		}
		lines = append(lines, line)
		total += n
	}
	return lines, total
}

// Sweep drops expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) MaxTokens() int {
	return s.maxTokens
}

func (s *Store) sweepLocked() int {
	now := s.now()
	n := 0
	for id, e := range s.entries {
		if now.After(e.ExpiresAt) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// evictLocked drops oldest entries until needed more tokens fit.
func (s *Store) evictLocked(needed int) int {
	used := 0
	for _, e := range s.entries {
		used += e.MinimizedTokens
	}
	if used+needed <= s.maxTokens {
		return 0
	}

	byAge := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		byAge = append(byAge, e)
	}
	sort.Slice(byAge, func(i, j int) bool { return olderThan(byAge[i], byAge[j]) })

	n := 0
	for _, e := range byAge {
		if used+needed <= s.maxTokens {
			break
		}
		used -= e.MinimizedTokens
		delete(s.entries, e.ID)
		n++
	}
	return n
}

func olderThan(a, b *Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}

func sortNewestFirst(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return olderThan(&entries[j], &entries[i]) })
}

func (e *Entry) clone() Entry {
	out := *e
	out.Metadata = cloneMeta(e.Metadata)
	return out
}

func cloneMeta(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
