package sqlitegraph

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuzumemory/kuzu-memory/internal/storage"
	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// MemoryStore implements storage.MemoryStore on top of a Pool.
type MemoryStore struct {
	pool *Pool
}

var _ storage.MemoryStore = (*MemoryStore)(nil)

// neverExpiresSentinel is what types.NeverExpires (the zero time.Time) is
// stored as, since SQL comparisons against a zero timestamp would otherwise
// treat "never expires" as "already expired".
var neverExpiresSentinel = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

func toStorageValidTo(t time.Time) time.Time {
	if t.IsZero() {
		return neverExpiresSentinel
	}
	return t
}

func fromStorageValidTo(t time.Time) time.Time {
	if t.Equal(neverExpiresSentinel) {
		return types.NeverExpires
	}
	return t
}

// NewMemoryStore opens the database at path and returns a ready MemoryStore.
func NewMemoryStore(path string, cfg Config) (*MemoryStore, error) {
	pool, err := Open(path, cfg)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{pool: pool}, nil
}

// Close releases the underlying connection.
func (s *MemoryStore) Close() error {
	return s.pool.CloseDB()
}

func normalizeHash(content string, foldCase bool) string {
	normalized := strings.Join(strings.Fields(content), " ")
	if foldCase {
		normalized = strings.ToLower(normalized)
	}
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}

// Put implements storage.MemoryStore.Put. It is atomic: the memory row,
// entity rows, and entity_mention edges are written in one transaction, and
// a content-hash collision against a non-expired memory short-circuits the
// whole operation (I1).
func (s *MemoryStore) Put(ctx context.Context, memory *types.Memory, entityNames []string) (storage.PutResult, error) {
	if memory == nil {
		return 0, fmt.Errorf("%w: nil memory", types.ErrInvalidInput)
	}
	if memory.ID == "" {
		memory.ID = uuid.NewString()
	}
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now().UTC()
	}
	if memory.ValidFrom.IsZero() {
		memory.ValidFrom = memory.CreatedAt
	}
	memory.ContentHash = normalizeHash(memory.Content, types.FoldsCase(memory.MemoryType))

	metadataJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return 0, fmt.Errorf("sqlitegraph: marshal metadata: %w", err)
	}

	result := storage.PutInserted

	h, err := s.pool.Open(ctx, "", false)
	if err != nil {
		return 0, err
	}
	defer s.pool.Close(h)

	err = s.pool.Transaction(ctx, h, func(tx storage.Handle) error {
		rows, err := s.pool.Query(ctx, tx,
			`SELECT id FROM memories WHERE content_hash = ? AND valid_to > ? LIMIT 1`,
			memory.ContentHash, time.Now().UTC())
		if err != nil {
			return err
		}
		var existingID string
		hasExisting := rows.Next()
		if hasExisting {
			if err := rows.Scan(&existingID); err != nil {
				rows.Close()
				return err
			}
		}
		rows.Close()
		if hasExisting {
			memory.ID = existingID
			result = storage.PutDuplicate
			return nil
		}

		validTo := toStorageValidTo(memory.ValidTo)

		_, err = s.pool.Exec(ctx, tx, `
			INSERT INTO memories (
				id, content, content_hash, memory_type, importance, confidence,
				created_at, valid_from, valid_to, source, session_id, agent_id,
				metadata, access_count, last_accessed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
			memory.ID, memory.Content, memory.ContentHash, string(memory.MemoryType),
			memory.Importance, memory.Confidence, memory.CreatedAt, memory.ValidFrom,
			validTo, memory.Source, memory.SessionID, memory.AgentID, string(metadataJSON))
		if err != nil {
			return err
		}

		for _, name := range dedupeNames(entityNames) {
			entityID, err := s.upsertEntity(ctx, tx, name)
			if err != nil {
				return err
			}
			if _, err := s.pool.Exec(ctx, tx,
				`INSERT OR IGNORE INTO entity_mentions (memory_id, entity_id) VALUES (?, ?)`,
				memory.ID, entityID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

func dedupeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[strings.ToLower(n)] {
			continue
		}
		seen[strings.ToLower(n)] = true
		out = append(out, n)
	}
	return out
}

// upsertEntity resolves name to an entity ID, creating a row of kind
// EntityKindConcept when the entity is new, with name stored as both name
// and surface. Nothing assigns a more specific kind afterwards.
func (s *MemoryStore) upsertEntity(ctx context.Context, h storage.Handle, name string) (string, error) {
	rows, err := s.pool.Query(ctx, h, `SELECT id FROM entities WHERE name = ? COLLATE NOCASE LIMIT 1`, name)
	if err != nil {
		return "", err
	}
	if rows.Next() {
		var id string
		err := rows.Scan(&id)
		rows.Close()
		return id, err
	}
	rows.Close()

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, h,
		`INSERT INTO entities (id, name, kind, surface) VALUES (?, ?, ?, ?)`,
		id, name, string(types.EntityKindConcept), name)
	return id, err
}

func (f filtersSQL) apply(where *[]string, args *[]any) {
	if f.clause == "" {
		return
	}
	*where = append(*where, f.clause)
	*args = append(*args, f.args...)
}

type filtersSQL struct {
	clause string
	args   []any
}

func buildFilters(filters storage.Filters) filtersSQL {
	var clauses []string
	var args []any
	if filters.AgentID != "" {
		clauses = append(clauses, "agent_id = ?")
		args = append(args, filters.AgentID)
	}
	if filters.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filters.SessionID)
	}
	if filters.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, filters.Source)
	}
	if filters.MemoryType != "" {
		clauses = append(clauses, "memory_type = ?")
		args = append(args, string(filters.MemoryType))
	}
	if len(clauses) == 0 {
		return filtersSQL{}
	}
	return filtersSQL{clause: strings.Join(clauses, " AND "), args: args}
}

const memoryColumns = `id, content, content_hash, memory_type, importance, confidence,
	created_at, valid_from, valid_to, source, session_id, agent_id,
	metadata, access_count, last_accessed_at`

func scanMemory(rows storage.Rows) (*types.Memory, error) {
	var (
		m              types.Memory
		memType        string
		metadataJSON   string
		lastAccessedAt sql.NullTime
	)
	err := rows.Scan(&m.ID, &m.Content, &m.ContentHash, &memType, &m.Importance, &m.Confidence,
		&m.CreatedAt, &m.ValidFrom, &m.ValidTo, &m.Source, &m.SessionID, &m.AgentID,
		&metadataJSON, &m.AccessCount, &lastAccessedAt)
	if err != nil {
		return nil, err
	}
	m.MemoryType = types.MemoryType(memType)
	m.ValidTo = fromStorageValidTo(m.ValidTo)
	if lastAccessedAt.Valid {
		m.LastAccessedAt = lastAccessedAt.Time
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &m.Metadata); err != nil {
			return nil, fmt.Errorf("sqlitegraph: unmarshal metadata: %w", err)
		}
	}
	return &m, nil
}

// GetRecent implements storage.MemoryStore.GetRecent.
func (s *MemoryStore) GetRecent(ctx context.Context, limit int, filters storage.Filters) ([]*types.Memory, error) {
	fs := buildFilters(filters)
	where := []string{"valid_to > ?"}
	args := []any{time.Now().UTC()}
	fs.apply(&where, &args)
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY valid_from DESC LIMIT ?`,
		memoryColumns, strings.Join(where, " AND "))

	return s.queryMemories(ctx, query, args...)
}

func (s *MemoryStore) queryMemories(ctx context.Context, query string, args ...any) ([]*types.Memory, error) {
	h, err := s.pool.Open(ctx, "", true)
	if err != nil {
		return nil, err
	}
	defer s.pool.Close(h)

	rows, err := s.pool.Query(ctx, h, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchByKeywords implements storage.MemoryStore.SearchByKeywords using the
// FTS5 virtual table, scoring by bm25 rank combined with importance.
func (s *MemoryStore) SearchByKeywords(ctx context.Context, tokens []string, limit int, filters storage.Filters) ([]storage.Scored, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	matchQuery := strings.Join(escapeFTSTokens(tokens), " OR ")

	fs := buildFilters(filters)
	where := []string{"m.valid_to > ?"}
	args := []any{matchQuery, time.Now().UTC()}
	fs.apply(&where, &args)
	args = append(args, limit)

	cols := prefixColumns("m")
	query := fmt.Sprintf(`
		SELECT %s, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ? AND %s
		ORDER BY rank ASC, m.importance DESC, m.created_at DESC
		LIMIT ?`, cols, strings.Join(where, " AND "))

	return s.queryScored(ctx, query, func(rank float64) float64 {
		// bm25() returns a negative number, more negative meaning a better
		// match; fold it into a positive 0..1-ish score.
		return 1.0 / (1.0 + math.Abs(rank))
	}, args...)
}

func prefixColumns(alias string) string {
	cols := strings.Split(memoryColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func escapeFTSTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%q", t))
	}
	return out
}

func (s *MemoryStore) queryScored(ctx context.Context, query string, scoreFn func(float64) float64, args ...any) ([]storage.Scored, error) {
	h, err := s.pool.Open(ctx, "", true)
	if err != nil {
		return nil, err
	}
	defer s.pool.Close(h)

	rows, err := s.pool.Query(ctx, h, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Scored
	for rows.Next() {
		var (
			m              types.Memory
			memType        string
			metadataJSON   string
			lastAccessedAt sql.NullTime
			raw            float64
		)
		err := rows.Scan(&m.ID, &m.Content, &m.ContentHash, &memType, &m.Importance, &m.Confidence,
			&m.CreatedAt, &m.ValidFrom, &m.ValidTo, &m.Source, &m.SessionID, &m.AgentID,
			&metadataJSON, &m.AccessCount, &lastAccessedAt, &raw)
		if err != nil {
			return nil, err
		}
		m.MemoryType = types.MemoryType(memType)
		m.ValidTo = fromStorageValidTo(m.ValidTo)
		if lastAccessedAt.Valid {
			m.LastAccessedAt = lastAccessedAt.Time
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &m.Metadata); err != nil {
				return nil, fmt.Errorf("sqlitegraph: unmarshal metadata: %w", err)
			}
		}
		score := scoreFn(raw)*0.7 + m.Importance*0.3
		out = append(out, storage.Scored{Memory: &m, Score: score})
	}
	return out, rows.Err()
}

// SearchByEntities implements storage.MemoryStore.SearchByEntities, scoring
// by the count of matched entities normalized against importance.
func (s *MemoryStore) SearchByEntities(ctx context.Context, entityNames []string, limit int, filters storage.Filters) ([]storage.Scored, error) {
	names := dedupeNames(entityNames)
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(names))
	args := make([]any, 0, len(names)+4)
	for i, n := range names {
		placeholders[i] = "?"
		args = append(args, n)
	}

	fs := buildFilters(filters)
	where := []string{"m.valid_to > ?"}
	whereArgs := []any{time.Now().UTC()}
	fs.apply(&where, &whereArgs)

	cols := prefixColumns("m")
	query := fmt.Sprintf(`
		SELECT %s, COUNT(DISTINCT e.id) AS match_count
		FROM memories m
		JOIN entity_mentions em ON em.memory_id = m.id
		JOIN entities e ON e.id = em.entity_id
		WHERE e.name COLLATE NOCASE IN (%s) AND %s
		GROUP BY m.id
		ORDER BY match_count DESC, m.valid_from DESC
		LIMIT ?`, cols, strings.Join(placeholders, ", "), strings.Join(where, " AND "))

	args = append(args, whereArgs...)
	args = append(args, limit)

	return s.queryScored(ctx, query, func(matchCount float64) float64 {
		return matchCount / float64(len(names))
	}, args...)
}

// SearchByTime implements storage.MemoryStore.SearchByTime, scoring by
// exponential recency decay relative to window.To.
func (s *MemoryStore) SearchByTime(ctx context.Context, window storage.TimeWindow, limit int, filters storage.Filters) ([]storage.Scored, error) {
	fs := buildFilters(filters)
	where := []string{"valid_to > ?", "created_at BETWEEN ? AND ?"}
	args := []any{time.Now().UTC(), window.From, window.To}
	fs.apply(&where, &args)
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY created_at DESC LIMIT ?`,
		memoryColumns, strings.Join(where, " AND "))

	memories, err := s.queryMemories(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	const halfLife = 72 * time.Hour
	out := make([]storage.Scored, 0, len(memories))
	for _, m := range memories {
		age := window.To.Sub(m.CreatedAt)
		if age < 0 {
			age = 0
		}
		decay := decayFactor(age, halfLife)
		out = append(out, storage.Scored{Memory: m, Score: decay*0.7 + m.Importance*0.3})
	}
	return out, nil
}

func decayFactor(age, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	lambda := math.Ln2 / halfLife.Seconds()
	return math.Exp(-lambda * age.Seconds())
}

// Count implements storage.MemoryStore.Count.
func (s *MemoryStore) Count(ctx context.Context, filters storage.Filters) (int, error) {
	fs := buildFilters(filters)
	where := []string{"valid_to > ?"}
	args := []any{time.Now().UTC()}
	fs.apply(&where, &args)

	query := fmt.Sprintf(`SELECT COUNT(*) FROM memories WHERE %s`, strings.Join(where, " AND "))

	h, err := s.pool.Open(ctx, "", true)
	if err != nil {
		return 0, err
	}
	defer s.pool.Close(h)

	rows, err := s.pool.Query(ctx, h, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

// SizeBytes implements storage.MemoryStore.SizeBytes via SQLite's page
// accounting pragmas.
func (s *MemoryStore) SizeBytes(ctx context.Context) (int64, error) {
	h, err := s.pool.Open(ctx, "", true)
	if err != nil {
		return 0, err
	}
	defer s.pool.Close(h)

	var pageCount, pageSize int64
	rows, err := s.pool.Query(ctx, h, "PRAGMA page_count")
	if err != nil {
		return 0, err
	}
	if rows.Next() {
		_ = rows.Scan(&pageCount)
	}
	rows.Close()

	rows, err = s.pool.Query(ctx, h, "PRAGMA page_size")
	if err != nil {
		return 0, err
	}
	if rows.Next() {
		_ = rows.Scan(&pageSize)
	}
	rows.Close()

	return pageCount * pageSize, nil
}

// Expire implements storage.MemoryStore.Expire. The memory delete and its
// entity_mention reconciliation happen inside one transaction so I3 (every
// EntityMention references an extant Memory and Entity row) holds at every
// observable instant, not just after the next Prune.
func (s *MemoryStore) Expire(ctx context.Context) (int, error) {
	h, err := s.pool.Open(ctx, "", false)
	if err != nil {
		return 0, err
	}
	defer s.pool.Close(h)

	var removed int64
	err = s.pool.Transaction(ctx, h, func(tx storage.Handle) error {
		n, err := s.pool.Exec(ctx, tx, `DELETE FROM memories WHERE valid_to <= ?`, time.Now().UTC())
		if err != nil {
			return err
		}
		removed = n

		if _, err := s.pool.Exec(ctx, tx, `
			DELETE FROM entity_mentions
			WHERE memory_id NOT IN (SELECT id FROM memories)`); err != nil {
			return err
		}

		if _, err := s.pool.Exec(ctx, tx, `
			DELETE FROM entities WHERE id NOT IN (SELECT DISTINCT entity_id FROM entity_mentions)`); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

// Prune implements storage.MemoryStore.Prune.
func (s *MemoryStore) Prune(ctx context.Context, strategy storage.PruneStrategy) (storage.PruneReport, error) {
	h, err := s.pool.Open(ctx, "", false)
	if err != nil {
		return storage.PruneReport{}, err
	}
	defer s.pool.Close(h)

	var report storage.PruneReport
	err = s.pool.Transaction(ctx, h, func(tx storage.Handle) error {
		n, err := s.pool.Exec(ctx, tx, `DELETE FROM memories WHERE valid_to <= ?`, time.Now().UTC())
		if err != nil {
			return err
		}
		report.MemoriesRemoved = int(n)

		if strategy == storage.PruneAggressive {
			cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
			n, err := s.pool.Exec(ctx, tx, `
				DELETE FROM memories
				WHERE importance < 0.3
				  AND (last_accessed_at IS NULL OR last_accessed_at < ?)
				  AND memory_type IN (?, ?)`,
				cutoff, string(types.MemoryTypeWorking), string(types.MemoryTypeSensory))
			if err != nil {
				return err
			}
			report.MemoriesRemoved += int(n)
		}

		// Reconcile mention edges against the deletes just performed above,
		// then drop entities with no remaining mentions. Expire already does
		// this for its own deletes; this covers Prune's own.
		if _, err := s.pool.Exec(ctx, tx, `
			DELETE FROM entity_mentions
			WHERE memory_id NOT IN (SELECT id FROM memories)`); err != nil {
			return err
		}

		n, err = s.pool.Exec(ctx, tx, `
			DELETE FROM entities WHERE id NOT IN (SELECT DISTINCT entity_id FROM entity_mentions)`)
		if err != nil {
			return err
		}
		report.EntitiesRemoved = int(n)
		return nil
	})
	if err != nil {
		return storage.PruneReport{}, err
	}
	return report, nil
}

// Stats implements storage.MemoryStore.Stats.
func (s *MemoryStore) Stats(ctx context.Context) (storage.Stats, error) {
	count, err := s.Count(ctx, storage.Filters{})
	if err != nil {
		return storage.Stats{}, err
	}
	size, err := s.SizeBytes(ctx)
	if err != nil {
		return storage.Stats{}, err
	}
	return storage.Stats{MemoryCount: count, SizeBytes: size}, nil
}
