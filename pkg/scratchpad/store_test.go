package scratchpad

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sipeed/hybridmem/pkg/tokens"
)

// words builds a text of n distinct whitespace-separated words.
func words(n int, prefix string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func write(t *testing.T, s *Store, subject, predicate, content string) WriteResult {
	t.Helper()
	return s.Write(context.Background(), WriteRequest{
		Subject:   subject,
		Predicate: predicate,
		Object:    "obj",
		Content:   content,
	})
}

func TestWriteRejectsUnknownPredicate(t *testing.T) {
	s := New()
	res := write(t, s, "A", "not_a_real_predicate", "hello")
	assert.False(t, res.Success)
	assert.Nil(t, res.Entry)
	assert.Contains(t, res.Message, "Invalid predicate 'not_a_real_predicate'")
	assert.Contains(t, res.Message, "depends_on")
	assert.Equal(t, 0, s.Len())
}

func TestWriteStoresEntry(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithTTL(10*time.Minute))

	res := s.Write(context.Background(), WriteRequest{
		Subject:   "WRN-1",
		Predicate: Observed,
		Object:    "hydraulic_system",
		Content:   "pressure drops under load",
		Metadata:  map[string]interface{}{"source": "operator"},
	})
	require.True(t, res.Success)
	require.NotNil(t, res.Entry)

	e := res.Entry
	assert.True(t, strings.HasPrefix(e.ID, "sp-"))
	assert.Len(t, e.ID, 15)
	assert.Equal(t, "pressure drops under load", e.Content)
	assert.Empty(t, e.OriginalContent)
	assert.Equal(t, e.OriginalTokens, e.MinimizedTokens)
	assert.Equal(t, clock.Now(), e.CreatedAt)
	assert.Equal(t, clock.Now().Add(10*time.Minute), e.ExpiresAt)
	assert.Equal(t, "operator", e.Metadata["source"])
	assert.Equal(t, 0, res.TokensSaved)
	assert.Equal(t, "Stored entry", res.Message)
}

type redactorFunc func(string) (string, []string)

func (f redactorFunc) Redact(text string) (string, []string) { return f(text) }

func TestWriteRedactsBeforeCompressing(t *testing.T) {
	var seen string
	s := New(
		WithRedactor(redactorFunc(func(text string) (string, []string) {
			return strings.ReplaceAll(text, "hunter2", "[REDACTED]"), []string{"assignment"}
		})),
		WithCompressor(CompressorFunc(func(ctx context.Context, text string) (string, error) {
			seen = text
			return "login uses [REDACTED]", nil
		})),
	)

	res := s.Write(context.Background(), WriteRequest{
		Subject:   "WRN-1",
		Predicate: Observed,
		Object:    "console",
		Content:   "the maintenance console login uses password hunter2 for every unit in the bay",
		Minimize:  true,
	})
	require.True(t, res.Success)
	assert.NotContains(t, seen, "hunter2")
	assert.Equal(t, "login uses [REDACTED]", res.Entry.Content)
	assert.NotContains(t, res.Entry.OriginalContent, "hunter2")
}

func TestWriteEvictsOldestWithinBudget(t *testing.T) {
	clock := newFakeClock()
	s := New(WithMaxTokens(50), WithClock(clock.Now))

	var first string
	for i := 0; i < 3; i++ {
		res := write(t, s, fmt.Sprintf("S%d", i), Observed, words(23, "w"))
		require.True(t, res.Success)
		if i == 0 {
			first = res.Entry.ID
		}
		st := s.Stats()
		assert.LessOrEqual(t, st.TokenBudgetUsed, 50, "budget exceeded after write %d", i)
		clock.Advance(time.Second)
	}

	st := s.Stats()
	assert.Less(t, st.EntryCount, 3)
	assert.LessOrEqual(t, st.TokenBudgetUsed, 50)

	got := s.Read(context.Background(), ReadRequest{})
	for _, e := range got.Entries {
		assert.NotEqual(t, first, e.ID, "oldest entry should be evicted first")
	}
	assert.Equal(t, "S2", got.Entries[0].Subject)
}

func TestWriteEvictionBreaksTiesByInsertionOrder(t *testing.T) {
	clock := newFakeClock()
	s := New(WithMaxTokens(60), WithClock(clock.Now))

	a := write(t, s, "A", Observed, words(20, "a"))
	b := write(t, s, "B", Observed, words(20, "b"))
	require.True(t, a.Success)
	require.True(t, b.Success)
	c := write(t, s, "C", Observed, words(20, "c"))
	require.True(t, c.Success)

	got := s.Read(context.Background(), ReadRequest{})
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "C", got.Entries[0].Subject)
	assert.Equal(t, "B", got.Entries[1].Subject)
}

func TestWriteRejectsOversizedEntry(t *testing.T) {
	s := New(WithMaxTokens(10))
	require.True(t, write(t, s, "A", Observed, "short note").Success)

	res := write(t, s, "B", Observed, words(40, "x"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "token budget")
	assert.Equal(t, 1, s.Len(), "rejected write must not evict")
}

func TestMinimizeTruncatesWithoutCompressor(t *testing.T) {
	s := New()
	text := words(70, "t")

	res := s.Write(context.Background(), WriteRequest{
		Subject: "X", Predicate: Observed, Object: "Y", Content: text, Minimize: true,
	})
	require.True(t, res.Success)

	e := res.Entry
	assert.Equal(t, 91, e.OriginalTokens)
	assert.LessOrEqual(t, e.MinimizedTokens, e.OriginalTokens)
	assert.Equal(t, words(52, "t"), e.Content)
	assert.Equal(t, text, e.OriginalContent)
	assert.Equal(t, e.OriginalTokens-e.MinimizedTokens, res.TokensSaved)
	assert.Equal(t, fmt.Sprintf("Stored entry (saved %d tokens)", res.TokensSaved), res.Message)
}

func TestMinimizeKeepsShortText(t *testing.T) {
	s := New()
	res := s.Write(context.Background(), WriteRequest{
		Subject: "X", Predicate: Observed, Object: "Y", Content: words(10, "t"), Minimize: true,
	})
	require.True(t, res.Success)
	assert.Equal(t, words(10, "t"), res.Entry.Content)
	assert.Empty(t, res.Entry.OriginalContent)
	assert.Equal(t, 0, res.TokensSaved)
}

func TestMinimizeUsesCompressor(t *testing.T) {
	var gotText string
	c := CompressorFunc(func(ctx context.Context, text string) (string, error) {
		gotText = text
		return "  seal worn  ", nil
	})
	s := New(WithCompressor(c))

	text := "the hydraulic seal on the left arm looks quite worn out today"
	res := s.Write(context.Background(), WriteRequest{
		Subject: "X", Predicate: Observed, Object: "Y", Content: text, Minimize: true,
	})
	require.True(t, res.Success)
	assert.Equal(t, text, gotText)
	assert.Equal(t, "seal worn", res.Entry.Content)
	assert.Equal(t, text, res.Entry.OriginalContent)
	assert.Equal(t, 2, res.Entry.MinimizedTokens)
}

func TestMinimizeRejectsLongerCompressorOutput(t *testing.T) {
	c := CompressorFunc(func(ctx context.Context, text string) (string, error) {
		return text + " and then some more words", nil
	})
	s := New(WithCompressor(c))

	res := s.Write(context.Background(), WriteRequest{
		Subject: "X", Predicate: Observed, Object: "Y", Content: "seal worn", Minimize: true,
	})
	require.True(t, res.Success)
	assert.Equal(t, "seal worn", res.Entry.Content)
	assert.Empty(t, res.Entry.OriginalContent)
}

func TestMinimizeFallsBackOnCompressorError(t *testing.T) {
	c := CompressorFunc(func(ctx context.Context, text string) (string, error) {
		return "", errors.New("provider down")
	})
	s := New(WithCompressor(c))

	res := s.Write(context.Background(), WriteRequest{
		Subject: "X", Predicate: Observed, Object: "Y", Content: words(70, "t"), Minimize: true,
	})
	require.True(t, res.Success)
	assert.Equal(t, words(52, "t"), res.Entry.Content)
}

func TestMinimizeTimesOutSlowCompressor(t *testing.T) {
	c := CompressorFunc(func(ctx context.Context, text string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := New(WithCompressor(c), WithCompressTimeout(20*time.Millisecond))

	res := s.Write(context.Background(), WriteRequest{
		Subject: "X", Predicate: Observed, Object: "Y", Content: "seal worn", Minimize: true,
	})
	require.True(t, res.Success)
	assert.Equal(t, "seal worn", res.Entry.Content)
}

func TestReadFiltersAndOrders(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	write(t, s, "P", Observed, "first")
	clock.Advance(time.Second)
	write(t, s, "Q", Inferred, "second")
	clock.Advance(time.Second)
	write(t, s, "P", Inferred, "third")

	got := s.Read(context.Background(), ReadRequest{Subject: "Q"})
	require.Equal(t, 1, got.Total)
	assert.Equal(t, "Q", got.Entries[0].Subject)

	got = s.Read(context.Background(), ReadRequest{Subject: "P"})
	require.Equal(t, 2, got.Total)
	assert.Equal(t, "third", got.Entries[0].Content)
	assert.Equal(t, "first", got.Entries[1].Content)

	got = s.Read(context.Background(), ReadRequest{Predicate: Inferred})
	require.Equal(t, 2, got.Total)
	assert.Equal(t, "third", got.Entries[0].Content)

	got = s.Read(context.Background(), ReadRequest{Subject: "P", Predicate: Observed})
	require.Equal(t, 1, got.Total)
	assert.Equal(t, "first", got.Entries[0].Content)
}

func TestReadEnrichCachesExpansion(t *testing.T) {
	var calls atomic.Int32
	var gotQuery string
	x := ExpanderFunc(func(ctx context.Context, e Entry, q string) (string, error) {
		calls.Add(1)
		gotQuery = q
		return "Expanded: " + e.Content, nil
	})
	s := New(WithExpander(x))
	write(t, s, "P", Observed, "seal worn")

	got := s.Read(context.Background(), ReadRequest{Enrich: true, QueryContext: "leak"})
	require.Equal(t, 1, got.EnrichedCount)
	assert.Equal(t, "Expanded: seal worn", got.Entries[0].EnrichedContent)
	assert.Equal(t, "seal worn", got.Entries[0].Content)
	assert.Equal(t, "leak", gotQuery)

	got = s.Read(context.Background(), ReadRequest{Enrich: true})
	assert.Equal(t, 1, got.EnrichedCount)
	assert.Equal(t, "Expanded: seal worn", got.Entries[0].EnrichedContent)
	assert.EqualValues(t, 1, calls.Load(), "expansion should be cached")

	got = s.Read(context.Background(), ReadRequest{})
	assert.Equal(t, 0, got.EnrichedCount)
	assert.Equal(t, "Expanded: seal worn", got.Entries[0].EnrichedContent)
}

func TestReadEnrichFailureIsNotCounted(t *testing.T) {
	x := ExpanderFunc(func(ctx context.Context, e Entry, q string) (string, error) {
		if e.Subject == "bad" {
			return "", errors.New("rate limited")
		}
		return "more about " + e.Subject, nil
	})
	s := New(WithExpander(x))
	write(t, s, "good", Observed, "one")
	write(t, s, "bad", Observed, "two")

	got := s.Read(context.Background(), ReadRequest{Enrich: true})
	require.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.EnrichedCount)
	for _, e := range got.Entries {
		if e.Subject == "bad" {
			assert.Empty(t, e.EnrichedContent)
			assert.Equal(t, "two", e.Content)
		}
	}
}

func TestReadEnrichWithoutExpander(t *testing.T) {
	s := New()
	write(t, s, "P", Observed, "one")
	got := s.Read(context.Background(), ReadRequest{Enrich: true})
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, 0, got.EnrichedCount)
}

func TestClear(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	write(t, s, "A", Observed, "old a")
	write(t, s, "B", Observed, "old b")
	clock.Advance(20 * time.Minute)
	write(t, s, "A", Observed, "new a")
	write(t, s, "C", Observed, "new c")

	res := s.Clear(ClearRequest{})
	assert.Equal(t, 0, res.ClearedCount)
	assert.Contains(t, res.Message, "No filter")
	assert.Equal(t, 4, s.Len())

	res = s.Clear(ClearRequest{Subject: "A"})
	assert.Equal(t, 2, res.ClearedCount)
	assert.Equal(t, "Cleared 2 entries", res.Message)
	for _, e := range s.Read(context.Background(), ReadRequest{}).Entries {
		assert.NotEqual(t, "A", e.Subject)
	}

	res = s.Clear(ClearRequest{OlderThan: 10 * time.Minute})
	assert.Equal(t, 1, res.ClearedCount)
	left := s.Read(context.Background(), ReadRequest{})
	require.Len(t, left.Entries, 1)
	assert.Equal(t, "C", left.Entries[0].Subject)

	res = s.Clear(ClearRequest{All: true})
	assert.Equal(t, 1, res.ClearedCount)
	assert.Equal(t, 0, s.Len())
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithTTL(5*time.Minute))

	write(t, s, "A", Observed, "short lived")
	clock.Advance(4 * time.Minute)
	write(t, s, "B", Observed, "younger")
	assert.Equal(t, 2, s.Stats().EntryCount)

	clock.Advance(2 * time.Minute)
	got := s.Read(context.Background(), ReadRequest{})
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "B", got.Entries[0].Subject)

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, s.Len(), "expired entries linger until swept")
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Len())
}

func TestStats(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	empty := s.Stats()
	assert.Equal(t, 0, empty.EntryCount)
	assert.Nil(t, empty.OldestEntry)
	assert.Equal(t, 0.0, empty.SavingsPercentage)
	assert.Equal(t, DefaultMaxTokens, empty.TokenBudgetRemaining)

	start := clock.Now()
	s.Write(context.Background(), WriteRequest{
		Subject: "X", Predicate: Observed, Object: "Y", Content: words(70, "t"), Minimize: true,
	})
	clock.Advance(time.Minute)
	write(t, s, "Z", Inferred, words(10, "z"))

	st := s.Stats()
	assert.Equal(t, 2, st.EntryCount)
	assert.Equal(t, 91+13, st.TotalOriginalTokens)
	assert.Equal(t, 67+13, st.TotalMinimizedTokens)
	assert.Equal(t, 24, st.TokensSaved)
	assert.Equal(t, 23.1, st.SavingsPercentage)
	assert.Equal(t, st.TotalMinimizedTokens, st.TokenBudgetUsed)
	assert.Equal(t, DefaultMaxTokens-st.TokenBudgetUsed, st.TokenBudgetRemaining)
	assert.Equal(t, map[string]int{Observed: 1, Inferred: 1}, st.PredicateCounts)
	require.NotNil(t, st.OldestEntry)
	assert.Equal(t, start, *st.OldestEntry)
	assert.Equal(t, start.Add(time.Minute), *st.NewestEntry)
}

func TestContextForInjection(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	write(t, s, "A", Observed, "alpha note")
	clock.Advance(time.Second)
	write(t, s, "B", DependsOn, "beta note")

	lines, _ := s.ContextForInjection(0, "")
	require.Len(t, lines, 2)
	assert.Equal(t, "[depends_on] B -> obj: beta note", lines[0])
	assert.Equal(t, "[observed] A -> obj: alpha note", lines[1])

	first := tokens.WordEstimate{}.Count(lines[0])
	lines, total := s.ContextForInjection(first, "")
	require.Len(t, lines, 1)
	assert.Equal(t, first, total)

	lines, total = s.ContextForInjection(1, "")
	assert.Empty(t, lines)
	assert.Equal(t, 0, total)
}

func TestContextForInjectionNeverExceedsBudget(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithMaxTokens(5000))
	for i := 0; i < 30; i++ {
		write(t, s, fmt.Sprintf("S%d", i), Observed, words(1+i%7*3, "w"))
		clock.Advance(time.Second)
	}

	for _, budget := range []int{1, 5, 17, 40, 100, 333, 5000} {
		lines, total := s.ContextForInjection(budget, "")
		assert.LessOrEqual(t, total, budget)
		sum := 0
		for _, l := range lines {
			sum += tokens.WordEstimate{}.Count(l)
		}
		assert.Equal(t, total, sum)
	}
}

func TestConcurrentWritesKeepBudget(t *testing.T) {
	defer goleak.VerifyNone(t)

	slow := CompressorFunc(func(ctx context.Context, text string) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return strings.Join(strings.Fields(text)[:3], " "), nil
	})
	x := ExpanderFunc(func(ctx context.Context, e Entry, q string) (string, error) {
		return "expanded " + e.ID, nil
	})
	s := New(WithMaxTokens(100), WithCompressor(slow), WithExpander(x))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Write(context.Background(), WriteRequest{
				Subject: fmt.Sprintf("S%d", i), Predicate: Observed, Object: "o",
				Content: words(15, "c"), Minimize: true,
			})
			s.Read(context.Background(), ReadRequest{Enrich: true})
		}()
	}
	wg.Wait()

	st := s.Stats()
	assert.LessOrEqual(t, st.TokenBudgetUsed, 100)
	assert.Positive(t, st.EntryCount)
}
