package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/models"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/tablestore"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Warnf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func rankedValues(t *testing.T, table tablestore.Table, userID string) map[string]int32 {
	t.Helper()
	page, err := table.Query(context.Background(), userID)
	require.NoError(t, err)
	out := map[string]int32{}
	for _, e := range page.Entities {
		v, ok := e.GetInt32(PropValue)
		require.True(t, ok)
		out[e.RowKey] = v
	}
	return out
}

func values(scores []models.Score) []int32 {
	out := make([]int32, len(scores))
	for i, s := range scores {
		out[i] = s.Value
	}
	return out
}

func TestSubmit_RanksFreshUser(t *testing.T) {
	table := tablestore.NewMemoryTable()
	e := NewEngine(table, &recordingLogger{}, WithClock(stepClock(t0)))
	ctx := context.Background()

	for _, v := range []int32{10, 20, 5, 30} {
		_, err := e.Submit(ctx, "u1", v)
		require.NoError(t, err)
	}

	require.Equal(t, map[string]int32{"1": 30, "2": 20, "3": 10, "4": 5}, rankedValues(t, table, "u1"))
}

func TestSubmit_KeepsTopTen(t *testing.T) {
	table := tablestore.NewMemoryTable()
	e := NewEngine(table, nil, WithClock(stepClock(t0)))
	ctx := context.Background()

	for v := int32(1); v <= 10; v++ {
		_, err := e.Submit(ctx, "u1", v*10)
		require.NoError(t, err)
	}
	ranked, err := e.Submit(ctx, "u1", 1000)
	require.NoError(t, err)
	require.Len(t, ranked, MaxEntries)
	require.Equal(t, []int32{1000, 100, 90, 80, 70, 60, 50, 40, 30, 20}, values(ranked))

	stored := rankedValues(t, table, "u1")
	require.Len(t, stored, MaxEntries)
	require.Equal(t, int32(1000), stored["1"])
	require.Equal(t, int32(20), stored["10"])
	for _, v := range stored {
		require.NotEqual(t, int32(10), v)
	}

	// a score below the whole list leaves it unchanged
	ranked, err = e.Submit(ctx, "u1", 1)
	require.NoError(t, err)
	require.Equal(t, int32(20), ranked[MaxEntries-1].Value)
	require.Len(t, rankedValues(t, table, "u1"), MaxEntries)
}

func TestSubmit_TieGoesToEarlierScore(t *testing.T) {
	table := tablestore.NewMemoryTable()
	e := NewEngine(table, nil, WithClock(stepClock(t0)))
	ctx := context.Background()

	_, err := e.Submit(ctx, "u1", 50)
	require.NoError(t, err)
	ranked, err := e.Submit(ctx, "u1", 50)
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	require.True(t, ranked[0].TimeOfScore.Before(ranked[1].TimeOfScore))

	scores, err := e.Retrieve(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, t0.Add(time.Second), scores[0].TimeOfScore)
	require.Equal(t, t0.Add(2*time.Second), scores[1].TimeOfScore)
}

func TestHighscores_OrdersAndTrims(t *testing.T) {
	old := []models.Score{
		{Value: 5, TimeOfScore: t0.Add(3 * time.Second)},
		{Value: 7, TimeOfScore: t0.Add(2 * time.Second)},
		{Value: 5, TimeOfScore: t0.Add(1 * time.Second)},
	}
	got := Highscores(old, models.Score{Value: 7, TimeOfScore: t0})
	require.Equal(t, []int32{7, 7, 5, 5}, values(got))
	require.Equal(t, t0, got[0].TimeOfScore)
	require.Equal(t, t0.Add(time.Second), got[2].TimeOfScore)
	// input untouched
	require.Equal(t, int32(5), old[0].Value)
	require.Len(t, old, 3)

	many := make([]models.Score, 0, 15)
	for i := 0; i < 15; i++ {
		many = append(many, models.Score{Value: int32(i)})
	}
	require.Len(t, Highscores(many, models.Score{Value: 99}), MaxEntries)
}

func TestToEntities_AssignsRankKeys(t *testing.T) {
	ents := ToEntities("u9", []models.Score{{Value: 3, TimeOfScore: t0}, {Value: 2, TimeOfScore: t0}})
	require.Len(t, ents, 2)
	require.Equal(t, "1", ents[0].RowKey)
	require.Equal(t, "2", ents[1].RowKey)
	require.Equal(t, "u9", ents[1].PartitionKey)
	require.Equal(t, int32(3), ents[0].Properties[PropValue])
	require.Equal(t, t0, ents[0].Properties[PropTimeOfScore])
}

func TestRetrieve_SkipsCorruptRows(t *testing.T) {
	table := tablestore.NewMemoryTable()
	table.PutRaw("u1", "1", []byte(`{"Value":30,"TimeOfScore":"2024-05-01T12:00:01Z"}`))
	table.PutRaw("u1", "2", []byte(`{"TimeOfScore":"2024-05-01T12:00:02Z"}`))
	table.PutRaw("u1", "3", []byte(`{"Value":10}`))
	table.PutRaw("u1", "4", []byte(`{"Value":"lots","TimeOfScore":"2024-05-01T12:00:04Z"}`))
	table.PutRaw("u1", "5", []byte(`{"Value":5,"TimeOfScore":"2024-05-01T12:00:05Z"}`))

	log := &recordingLogger{}
	e := NewEngine(table, log)
	scores, err := e.Retrieve(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, []int32{30, 5}, values(scores))
	require.Equal(t, "u1", scores[0].UserID)

	require.Len(t, log.lines, 3)
	assert.Contains(t, log.lines, "Value was null for user u1")
	assert.Contains(t, log.lines, "Date was null for user u1")
}

func TestRetrieve_EmptyUser(t *testing.T) {
	e := NewEngine(tablestore.NewMemoryTable(), nil)
	scores, err := e.Retrieve(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, scores)
}

func TestSubmit_IgnoresCorruptRowsWhenMerging(t *testing.T) {
	table := tablestore.NewMemoryTable()
	table.PutRaw("u1", "1", []byte(`{"TimeOfScore":"2024-05-01T12:00:00Z"}`))
	table.PutRaw("u1", "2", []byte(`{"Value":4,"TimeOfScore":"2024-05-01T11:00:00Z"}`))

	e := NewEngine(table, &recordingLogger{}, WithClock(stepClock(t0)))
	ranked, err := e.Submit(context.Background(), "u1", 9)
	require.NoError(t, err)
	require.Equal(t, []int32{9, 4}, values(ranked))
	require.Equal(t, map[string]int32{"1": 9, "2": 4}, rankedValues(t, table, "u1"))
}

// Two interleaved submissions both read the same list; the second batch to
// commit replaces the first one's rows in full.
func TestSubmit_LastWriterWinsRace(t *testing.T) {
	table := tablestore.NewMemoryTable()
	e := NewEngine(table, nil, WithClock(stepClock(t0)))
	ctx := context.Background()

	_, err := e.Submit(ctx, "u1", 1)
	require.NoError(t, err)

	a, err := e.Plan(ctx, "u1", 100)
	require.NoError(t, err)
	b, err := e.Plan(ctx, "u1", 50)
	require.NoError(t, err)

	require.NoError(t, e.Commit(ctx, a))
	require.NoError(t, e.Commit(ctx, b))

	scores, err := e.Retrieve(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []int32{50, 1}, values(scores))
}

func TestConditionalCommit_RejectsStaleBatch(t *testing.T) {
	table := tablestore.NewMemoryTable()
	e := NewEngine(table, nil, WithClock(stepClock(t0)), WithConditionalCommit(3))
	ctx := context.Background()

	a, err := e.Plan(ctx, "u1", 100)
	require.NoError(t, err)
	b, err := e.Plan(ctx, "u1", 50)
	require.NoError(t, err)

	require.NoError(t, e.Commit(ctx, a))
	err = e.Commit(ctx, b)
	require.ErrorIs(t, err, tablestore.ErrPreconditionFailed)
	require.ErrorIs(t, err, ErrPersistence)

	scores, err := e.Retrieve(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []int32{100}, values(scores))
}

// interferingTable commits a competing score right before the first batch of
// the engine under test reaches the store.
type interferingTable struct {
	tablestore.Table
	once  sync.Once
	rival *Engine
}

func (t *interferingTable) SubmitTransaction(ctx context.Context, pk string, ents []tablestore.Entity, ifMatch string) error {
	t.once.Do(func() {
		if _, err := t.rival.Submit(ctx, pk, 77); err != nil {
			panic(err)
		}
	})
	return t.Table.SubmitTransaction(ctx, pk, ents, ifMatch)
}

func TestConditionalCommit_RetriesAndKeepsBoth(t *testing.T) {
	base := tablestore.NewMemoryTable()
	clock := stepClock(t0)
	table := &interferingTable{Table: base, rival: NewEngine(base, nil, WithClock(clock))}
	e := NewEngine(table, nil, WithClock(clock), WithConditionalCommit(3))

	ranked, err := e.Submit(context.Background(), "u1", 40)
	require.NoError(t, err)
	require.Equal(t, []int32{77, 40}, values(ranked))
	require.Equal(t, map[string]int32{"1": 77, "2": 40}, rankedValues(t, base, "u1"))
}

func TestUnconditionalCommit_LosesRivalScore(t *testing.T) {
	base := tablestore.NewMemoryTable()
	clock := stepClock(t0)
	table := &interferingTable{Table: base, rival: NewEngine(base, nil, WithClock(clock))}
	e := NewEngine(table, nil, WithClock(clock))

	ranked, err := e.Submit(context.Background(), "u1", 40)
	require.NoError(t, err)
	require.Equal(t, []int32{40}, values(ranked))
	require.Equal(t, map[string]int32{"1": 40}, rankedValues(t, base, "u1"))
}

type failingTable struct {
	queryErr, submitErr error
}

func (f *failingTable) Query(ctx context.Context, pk string) (tablestore.Page, error) {
	return tablestore.Page{}, f.queryErr
}

func (f *failingTable) SubmitTransaction(ctx context.Context, pk string, ents []tablestore.Entity, ifMatch string) error {
	return f.submitErr
}

func TestSubmit_PersistenceErrors(t *testing.T) {
	boom := errors.New("boom")

	e := NewEngine(&failingTable{submitErr: boom}, nil)
	_, err := e.Submit(context.Background(), "u1", 1)
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, boom)

	e = NewEngine(&failingTable{queryErr: boom}, nil)
	_, err = e.Submit(context.Background(), "u1", 1)
	require.ErrorIs(t, err, ErrPersistence)

	_, err = e.Retrieve(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
}

func TestSubmit_ConditionalGivesUpAfterMaxAttempts(t *testing.T) {
	e := NewEngine(&failingTable{submitErr: tablestore.ErrPreconditionFailed}, nil, WithConditionalCommit(2))
	_, err := e.Submit(context.Background(), "u1", 1)
	require.ErrorIs(t, err, tablestore.ErrPreconditionFailed)
	require.ErrorIs(t, err, ErrPersistence)
}

func TestSubmit_RedisBackend(t *testing.T) {
	m := mr.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()
	table := tablestore.NewRedisTable(client, "")

	e := NewEngine(table, nil, WithClock(stepClock(t0)), WithConditionalCommit(3))
	ctx := context.Background()
	for _, v := range []int32{10, 20, 5, 30} {
		_, err := e.Submit(ctx, "u1", v)
		require.NoError(t, err)
	}
	require.Equal(t, map[string]int32{"1": 30, "2": 20, "3": 10, "4": 5}, rankedValues(t, table, "u1"))

	scores, err := e.Retrieve(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []int32{30, 20, 10, 5}, values(scores))
	require.Equal(t, t0.Add(4*time.Second), scores[0].TimeOfScore)
}
