package numerator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	val int64
	err error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.val
	return nil
}

// fakeSequences mimics the sys_sequences upsert: args are (key, increment).
type fakeSequences struct {
	mu    sync.Mutex
	vals  map[string]int64
	calls int
	err   error
}

func newFakeSequences() *fakeSequences { return &fakeSequences{vals: map[string]int64{}} }

func (f *fakeSequences) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return &fakeRow{err: f.err}
	}
	key, n := args[0].(string), args[1].(int64)
	if strings.Contains(sql, "SET current_val = $2") {
		f.vals[key] = n
	} else {
		f.vals[key] += n
	}
	return &fakeRow{val: f.vals[key]}
}

func (f *fakeSequences) source() QuerierSource {
	return func(context.Context) Querier { return f }
}

var march2026 = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func TestNext_Strict(t *testing.T) {
	seq := newFakeSequences()
	svc := New(seq.source(), Config{})
	ctx := context.Background()

	first, err := svc.Next(ctx, "DSP", march2026)
	require.NoError(t, err)
	second, err := svc.Next(ctx, "DSP", march2026)
	require.NoError(t, err)
	other, err := svc.Next(ctx, "RCT", march2026)
	require.NoError(t, err)

	assert.Equal(t, "DSP-2026-00001", first)
	assert.Equal(t, "DSP-2026-00002", second)
	assert.Equal(t, "RCT-2026-00001", other)
	assert.Equal(t, 3, seq.calls)
}

func TestNext_YearRollsCounter(t *testing.T) {
	seq := newFakeSequences()
	svc := New(seq.source(), Config{})

	_, err := svc.Next(context.Background(), "DSP", march2026)
	require.NoError(t, err)
	n, err := svc.Next(context.Background(), "DSP", march2026.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "DSP-2027-00001", n)
}

func TestNext_CachedReservesRanges(t *testing.T) {
	seq := newFakeSequences()
	svc := New(seq.source(), Config{Strategy: StrategyCached, RangeSize: 10})
	ctx := context.Background()

	var last string
	for i := 0; i < 11; i++ {
		n, err := svc.Next(ctx, "DSP", march2026)
		require.NoError(t, err)
		last = n
	}
	assert.Equal(t, "DSP-2026-00011", last)
	assert.Equal(t, 2, seq.calls)
	assert.Equal(t, int64(20), seq.vals["DSP_2026"])
}

func TestNext_CachedConcurrentUnique(t *testing.T) {
	seq := newFakeSequences()
	svc := New(seq.source(), Config{Strategy: StrategyCached, RangeSize: 7})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.Next(context.Background(), "DSP", march2026)
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestNext_QueryError(t *testing.T) {
	seq := newFakeSequences()
	seq.err = errors.New("connection reset")
	_, err := New(seq.source(), Config{}).Next(context.Background(), "DSP", march2026)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "next DSP number")
}

func TestReset(t *testing.T) {
	seq := newFakeSequences()
	svc := New(seq.source(), Config{Strategy: StrategyCached, RangeSize: 5})
	ctx := context.Background()

	_, err := svc.Next(ctx, "DSP", march2026)
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, "DSP", march2026, 100))

	n, err := svc.Next(ctx, "DSP", march2026)
	require.NoError(t, err)
	assert.Equal(t, "DSP-2026-00101", n)
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, int64(42), ParseNumber("DSP-2026-00042"))
	assert.Equal(t, int64(7), ParseNumber("DSP-00007"))
	assert.Equal(t, int64(-1), ParseNumber("garbage"))
}
