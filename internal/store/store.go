// Package store is the Postgres backed cache of accepted riddles, read only when
// live generation fails and for place name autocomplete.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mohammad-safakhou/atlast/models"
)

// RecentLimit bounds how many recent rows a random read chooses from.
const RecentLimit = 50

type Store struct {
	DB *sql.DB

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s.rnd.Intn(n)
}

const insertRiddle = `INSERT INTO riddles (id, riddle, answer, difficulty, lat, lng, generator, critic, total_time_ms, accepted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// WriteAccepted inserts one item.
func (s *Store) WriteAccepted(ctx context.Context, item models.ContentItem) error {
	_, err := s.DB.ExecContext(ctx, insertRiddle,
		uuid.NewString(), item.Riddle, item.Answer, item.Difficulty,
		item.Location.Lat, item.Location.Lng,
		item.ProviderStats.Generator, item.ProviderStats.Critic,
		item.ProviderStats.TotalTimeMs, item.ProviderStats.Accepted)
	if err != nil {
		return fmt.Errorf("insert riddle: %w", err)
	}
	return nil
}

const selectRecent = `SELECT riddle, answer, difficulty, lat, lng, generator, critic, total_time_ms, accepted
FROM riddles
WHERE accepted AND ($1 = '' OR difficulty = $1) AND NOT (LOWER(answer) = ANY($2))
ORDER BY created_at DESC
LIMIT $3`

// ReadRandom picks one of the most recent accepted items for the tier, falling
// back to any tier. Names in exclude are skipped. ok is false when nothing matches.
func (s *Store) ReadRandom(ctx context.Context, difficulty models.Difficulty, exclude []string) (models.ContentItem, bool, error) {
	lowered := make([]string, 0, len(exclude))
	for _, n := range exclude {
		lowered = append(lowered, strings.ToLower(n))
	}
	for _, tier := range []string{string(difficulty.Normalize()), ""} {
		items, err := s.recent(ctx, tier, lowered)
		if err != nil {
			return models.ContentItem{}, false, err
		}
		if len(items) > 0 {
			return items[s.intn(len(items))], true, nil
		}
		if tier == "" {
			break
		}
	}
	return models.ContentItem{}, false, nil
}

func (s *Store) recent(ctx context.Context, tier string, exclude []string) ([]models.ContentItem, error) {
	rows, err := s.DB.QueryContext(ctx, selectRecent, tier, pq.Array(exclude), RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("select recent riddles: %w", err)
	}
	defer rows.Close()
	var out []models.ContentItem
	for rows.Next() {
		var it models.ContentItem
		if err := rows.Scan(&it.Riddle, &it.Answer, &it.Difficulty, &it.Location.Lat, &it.Location.Lng,
			&it.ProviderStats.Generator, &it.ProviderStats.Critic, &it.ProviderStats.TotalTimeMs, &it.ProviderStats.Accepted); err != nil {
			return nil, fmt.Errorf("scan riddle: %w", err)
		}
		it.Location.Name = it.Answer
		out = append(out, it)
	}
	return out, rows.Err()
}

const selectNames = `SELECT DISTINCT answer FROM riddles WHERE answer ILIKE $1 ESCAPE '\' ORDER BY answer LIMIT $2`

// SearchNamesByPrefix returns cached answer names starting with query, case-insensitively.
func (s *Store) SearchNamesByPrefix(ctx context.Context, query string, limit int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, selectNames, escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search names: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// PruneOlderThan deletes items created before cutoff.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM riddles WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune riddles: %w", err)
	}
	return res.RowsAffected()
}

// IsUndefinedTable reports whether err is Postgres complaining that the schema is missing.
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}
