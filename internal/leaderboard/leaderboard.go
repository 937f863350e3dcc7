// Package leaderboard keeps each user's ten best scores in a partitioned table.
// The partition key is the user id and the row key is the rank, "1" being the
// best score.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/models"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/tablestore"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/pkg/metrics"
)

const (
	// MaxEntries is the number of ranked scores kept per user.
	MaxEntries = 10

	PropValue       = "Value"
	PropTimeOfScore = "TimeOfScore"
)

// ErrPersistence wraps every failure to read or write a user's highscores
// during a submission.
var ErrPersistence = errors.New("leaderboard: failed to save highscores")

// Logger receives diagnostics for rows that cannot be decoded.
type Logger interface {
	Warnf(format string, v ...interface{})
}

// Engine merges submitted scores into the stored top list.
type Engine struct {
	table       tablestore.Table
	log         Logger
	now         func() time.Time
	conditional bool
	maxAttempts int
}

type Option func(*Engine)

// WithClock sets the clock used to timestamp submissions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConditionalCommit makes every batch conditional on the partition being
// unchanged since it was read, retrying the read-compute-write cycle up to
// maxAttempts times. Without it the last batch to commit wins.
func WithConditionalCommit(maxAttempts int) Option {
	return func(e *Engine) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		e.conditional = true
		e.maxAttempts = maxAttempts
	}
}

func NewEngine(table tablestore.Table, log Logger, opts ...Option) *Engine {
	e := &Engine{table: table, log: log, now: time.Now, maxAttempts: 1}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Batch is the replacement computed for one partition: the ranked scores and
// the rows that will be written for them.
type Batch struct {
	UserID   string
	Ranked   []models.Score
	Entities []tablestore.Entity
	etag     string
}

// Plan reads the user's current scores and computes the batch that would
// store them together with a new score stamped with the current time.
func (e *Engine) Plan(ctx context.Context, userID string, value int32) (*Batch, error) {
	page, err := e.table.Query(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %w", ErrPersistence, userID, err)
	}
	old := e.decode(page.Entities)
	ranked := Highscores(old, models.Score{TimeOfScore: e.now().UTC(), Value: value, UserID: userID})
	return &Batch{UserID: userID, Ranked: ranked, Entities: ToEntities(userID, ranked), etag: page.ETag}, nil
}

// Commit writes a planned batch atomically. In conditional mode a partition
// that changed after Plan yields tablestore.ErrPreconditionFailed.
func (e *Engine) Commit(ctx context.Context, b *Batch) error {
	ifMatch := tablestore.ETagAny
	if e.conditional {
		ifMatch = b.etag
	}
	if err := e.table.SubmitTransaction(ctx, b.UserID, b.Entities, ifMatch); err != nil {
		return fmt.Errorf("%w: write %q: %w", ErrPersistence, b.UserID, err)
	}
	return nil
}

// Submit adds a score to the user's top list and returns the committed list.
// Rows beyond the new list are never removed: the list only grows or keeps
// its size, so every previously written rank is overwritten.
func (e *Engine) Submit(ctx context.Context, userID string, value int32) ([]models.Score, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		b, err := e.Plan(ctx, userID, value)
		if err != nil {
			metrics.ScoreSubmissions.WithLabelValues("error").Inc()
			return nil, err
		}
		err = e.Commit(ctx, b)
		if err == nil {
			metrics.ScoreSubmissions.WithLabelValues("committed").Inc()
			return b.Ranked, nil
		}
		lastErr = err
		if !e.conditional || !errors.Is(err, tablestore.ErrPreconditionFailed) {
			break
		}
		metrics.CommitConflicts.Inc()
	}
	metrics.ScoreSubmissions.WithLabelValues("error").Inc()
	return nil, lastErr
}

// Retrieve returns the user's stored scores in rank order. Rows that cannot be
// decoded are logged and skipped.
func (e *Engine) Retrieve(ctx context.Context, userID string) ([]models.Score, error) {
	page, err := e.table.Query(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", userID, err)
	}
	scores := e.decode(page.Entities)
	sortRanked(scores)
	return scores, nil
}

func (e *Engine) decode(entities []tablestore.Entity) []models.Score {
	sorted := append([]tablestore.Entity(nil), entities...)
	sort.SliceStable(sorted, func(i, j int) bool { return rowRank(sorted[i]) < rowRank(sorted[j]) })

	scores := make([]models.Score, 0, len(sorted))
	for _, ent := range sorted {
		if s, ok := EntityToScore(ent, e.log); ok {
			scores = append(scores, s)
		}
	}
	return scores
}

// EntityToScore decodes one stored row. A row without a usable TimeOfScore or
// Value is reported to log and yields false.
func EntityToScore(ent tablestore.Entity, log Logger) (models.Score, bool) {
	at, ok := ent.GetTime(PropTimeOfScore)
	if !ok {
		warn(log, "Date was null for user %s", ent.PartitionKey)
		return models.Score{}, false
	}
	v, ok := ent.GetInt32(PropValue)
	if !ok {
		warn(log, "Value was null for user %s", ent.PartitionKey)
		return models.Score{}, false
	}
	return models.Score{TimeOfScore: at, Value: v, UserID: ent.PartitionKey}, true
}

func warn(log Logger, format string, v ...interface{}) {
	metrics.RowsSkipped.Inc()
	if log != nil {
		log.Warnf(format, v...)
	}
}

// Highscores merges a new score into old and returns at most MaxEntries
// scores ordered best first. old is not modified.
func Highscores(old []models.Score, newScore models.Score) []models.Score {
	all := make([]models.Score, 0, len(old)+1)
	all = append(all, old...)
	all = append(all, newScore)
	sortRanked(all)
	if len(all) > MaxEntries {
		all = all[:MaxEntries]
	}
	return all
}

// sortRanked orders by value descending; the earlier score wins a tie.
func sortRanked(scores []models.Score) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Value != scores[j].Value {
			return scores[i].Value > scores[j].Value
		}
		return scores[i].TimeOfScore.Before(scores[j].TimeOfScore)
	})
}

// ToEntities assigns row keys "1".."K" to ranked scores.
func ToEntities(userID string, ranked []models.Score) []tablestore.Entity {
	out := make([]tablestore.Entity, len(ranked))
	for i, s := range ranked {
		out[i] = tablestore.Entity{
			PartitionKey: userID,
			RowKey:       strconv.Itoa(i + 1),
			Properties: map[string]any{
				PropValue:       s.Value,
				PropTimeOfScore: s.TimeOfScore.UTC(),
			},
		}
	}
	return out
}

func rowRank(e tablestore.Entity) int {
	n, err := strconv.Atoi(e.RowKey)
	if err != nil {
		return MaxEntries + 1
	}
	return n
}
