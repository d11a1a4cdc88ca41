// Package archive keeps an append-only log of rating events in ClickHouse
// and answers cross-model activity queries from it. The log is never a
// source for daily summaries: corrections appear as additional events.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"rating-service/internal/bucketing"
	"rating-service/internal/metrics"
	"rating-service/internal/models"
)

// MaxTrendDays bounds trend queries.
const MaxTrendDays = 365

const createEventsTable = `CREATE TABLE IF NOT EXISTS rating_events (
    event_id UUID,
    model_id String,
    day Date,
    performance Nullable(UInt8),
    speed Nullable(UInt8),
    intelligence Nullable(UInt8),
    reliability Nullable(UInt8),
    issue_tag LowCardinality(String),
    submitted_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
PARTITION BY toYYYYMM(day)
ORDER BY (day, model_id, submitted_at)`

const insertEvents = `INSERT INTO rating_events
    (event_id, model_id, day, performance, speed, intelligence, reliability, issue_tag, submitted_at)`

const selectTrends = `SELECT
    toString(day) AS day,
    uniqExact(model_id) AS models_rated,
    count() AS submissions,
    avgOrNull(performance),
    avgOrNull(speed),
    avgOrNull(intelligence),
    avgOrNull(reliability)
FROM rating_events
WHERE day >= toDate(?)
GROUP BY day
ORDER BY day ASC`

// Conn is the subset of client.ClickHouseClient the store uses.
type Conn interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	QueryRows(ctx context.Context, query string, args ...interface{}) (driver.Rows, error)
	BatchInsert(ctx context.Context, query string, rows [][]interface{}) error
}

type Store struct {
	conn Conn
	now  func() time.Time
}

func NewStore(conn Conn) *Store {
	return &Store{conn: conn, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createEventsTable); err != nil {
		return fmt.Errorf("failed to create rating_events table: %w", err)
	}
	return nil
}

func (s *Store) InsertEvents(ctx context.Context, events []models.RatingEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		rows = append(rows, eventRow(e))
	}

	start := time.Now()
	err := s.conn.BatchInsert(ctx, insertEvents, rows)
	metrics.ArchiveBatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to insert rating events: %w", err)
	}
	metrics.EventsArchived.Add(float64(len(events)))
	return nil
}

// Trends returns one point per day with archived events over the last days
// days, oldest first. days is clamped to 1..MaxTrendDays.
func (s *Store) Trends(ctx context.Context, days int) ([]models.ActivityPoint, error) {
	from := trendStart(s.now(), days)

	rows, err := s.conn.QueryRows(ctx, selectTrends, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer rows.Close()

	var points []models.ActivityPoint
	for rows.Next() {
		var p models.ActivityPoint
		if err := rows.Scan(&p.Day, &p.ModelsRated, &p.Submissions,
			&p.AvgPerformance, &p.AvgSpeed, &p.AvgIntelligence, &p.AvgReliability); err != nil {
			return nil, fmt.Errorf("failed to scan trend row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trends: %w", err)
	}
	return points, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conn.Exec(ctx, "SELECT 1")
}

func trendStart(now time.Time, days int) string {
	if days < 1 {
		days = 1
	}
	if days > MaxTrendDays {
		days = MaxTrendDays
	}
	return bucketing.DayOf(now.AddDate(0, 0, -(days - 1)))
}

func eventRow(e models.RatingEvent) []interface{} {
	id, err := uuid.Parse(e.EventID)
	if err != nil {
		id = uuid.New()
	}
	day, err := bucketing.ParseDay(e.Day)
	if err != nil {
		day = e.SubmittedAt.UTC().Truncate(24 * time.Hour)
	}

	return []interface{}{
		id,
		e.ResourceID,
		day,
		toUint8(e.Ratings.Performance),
		toUint8(e.Ratings.Speed),
		toUint8(e.Ratings.Intelligence),
		toUint8(e.Ratings.Reliability),
		e.IssueTag,
		e.SubmittedAt.UTC(),
	}
}

func toUint8(v *int) *uint8 {
	if v == nil || *v < 0 || *v > 255 {
		return nil
	}
	u := uint8(*v)
	return &u
}
