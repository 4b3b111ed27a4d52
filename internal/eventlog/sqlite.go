package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	dbconfig "sessionhub/pkg/database"
	"sessionhub/pkg/interfaces"
	"sessionhub/pkg/types"
)

// SQLiteLog implements the EventLog interface on a local SQLite file
// ARCHITECTURAL DISCOVERY: the single-writer goroutine that SQLite needs for
// write performance is also what makes per-session seq assignment safe - the
// MAX(seq)+1 read and the insert can never interleave with another append
type SQLiteLog struct {
	db          *sql.DB
	config      *dbconfig.Config
	appendCh    chan appendOp
	shutdown    chan struct{}
	wg          sync.WaitGroup
	closed      bool
	mu          sync.RWMutex // protects closed
}

type appendOp struct {
	sessionID string
	event     *types.Event
	result    chan appendResult
}

type appendResult struct {
	seq uint64
	err error
}

// NewSQLiteLog opens the database and starts the append loop
func NewSQLiteLog(config *dbconfig.Config) (*SQLiteLog, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event log config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: pool configuration matters for concurrent history
	// reads; writes all funnel through the append loop regardless
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLitePragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite pragmas: %w", err)
	}

	l := &SQLiteLog{
		db:       db,
		config:   config,
		appendCh: make(chan appendOp, 100),
		shutdown: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.appendLoop()

	return l, nil
}

// appendLoop processes all appends in a single goroutine
func (l *SQLiteLog) appendLoop() {
	defer l.wg.Done()

	for {
		select {
		case op := <-l.appendCh:
			seq, err := l.insertEvent(op.sessionID, op.event)
			if err != nil {
				// Retry once after a short pause. Session locks are held
				// across Append, so the pause stays well under the append
				// timeout.
				log.Printf("Event append failed, retrying: session=%s err=%v", op.sessionID, err)
				time.Sleep(250 * time.Millisecond)
				seq, err = l.insertEvent(op.sessionID, op.event)
				if err != nil {
					log.Printf("Event append failed after retry: session=%s err=%v", op.sessionID, err)
				}
			}
			op.result <- appendResult{seq: seq, err: err}

		case <-l.shutdown:
			log.Println("Event log append loop shutting down")
			return
		}
	}
}

// insertEvent assigns the next seq and inserts within one transaction
func (l *SQLiteLog) insertEvent(sessionID string, event *types.Event) (uint64, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq uint64
	err = tx.QueryRow(
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE session_id = ?", sessionID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO events (session_id, seq, id, kind, from_client, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sessionID, seq, event.ID, event.Kind, event.From, string(payloadJSON), event.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit event: %w", err)
	}

	return seq, nil
}

// Append persists an event and returns its assigned sequence number
func (l *SQLiteLog) Append(ctx context.Context, sessionID string, event *types.Event) (uint64, error) {
	if sessionID == "" {
		return 0, ErrEmptySessionID
	}
	if event == nil {
		return 0, ErrNilEvent
	}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return 0, ErrLogClosed
	}
	l.mu.RUnlock()

	result := make(chan appendResult, 1)

	select {
	case l.appendCh <- appendOp{sessionID: sessionID, event: event, result: result}:
	case <-time.After(l.config.AppendTimeout):
		return 0, fmt.Errorf("%w: %v", interfaces.ErrLogUnavailable, ErrAppendTimeout)
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %v", interfaces.ErrLogUnavailable, ctx.Err())
	case <-l.shutdown:
		return 0, ErrLogClosed
	}

	// The append loop exits on shutdown without draining queued ops, so a
	// bare receive here could block forever if Close wins the race.
	select {
	case res := <-result:
		if res.err != nil {
			return 0, fmt.Errorf("%w: %v", interfaces.ErrLogUnavailable, res.err)
		}
		return res.seq, nil
	case <-l.shutdown:
		return 0, ErrLogClosed
	}
}

// Read returns up to limit events with seq >= fromSeq in ascending order
// ARCHITECTURAL DISCOVERY: reads bypass the append loop - SQLite WAL mode
// allows them to run concurrently with the single writer
func (l *SQLiteLog) Read(ctx context.Context, sessionID string, fromSeq uint64, limit int) ([]*types.Event, bool, error) {
	if limit <= 0 {
		return nil, false, ErrInvalidLimit
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT session_id, seq, id, kind, from_client, payload, timestamp
		FROM events
		WHERE session_id = ? AND seq >= ?
		ORDER BY seq ASC
		LIMIT ?
	`, sessionID, fromSeq, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", interfaces.ErrLogUnavailable, err)
	}

	events, err := scanEvents(rows)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", interfaces.ErrLogUnavailable, err)
	}

	// TECHNICAL DISCOVERY: limit+1 query probes for a following page without
	// a second COUNT round trip
	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	return events, hasMore, nil
}

// ReadBefore returns the newest limit events with seq < beforeSeq, ascending
func (l *SQLiteLog) ReadBefore(ctx context.Context, sessionID string, beforeSeq uint64, limit int) ([]*types.Event, bool, error) {
	if limit <= 0 {
		return nil, false, ErrInvalidLimit
	}
	if beforeSeq == 0 {
		return nil, false, nil
	}
	// database/sql rejects uint64 bind values with the high bit set, and
	// stored seqs never exceed MaxInt64 anyway.
	if beforeSeq > math.MaxInt64 {
		beforeSeq = math.MaxInt64
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT session_id, seq, id, kind, from_client, payload, timestamp
		FROM events
		WHERE session_id = ? AND seq < ?
		ORDER BY seq DESC
		LIMIT ?
	`, sessionID, beforeSeq, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", interfaces.ErrLogUnavailable, err)
	}

	events, err := scanEvents(rows)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", interfaces.ErrLogUnavailable, err)
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}

	// Rows arrive newest-first; callers want log order.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, hasMore, nil
}

// LastSeq returns the highest assigned seq for a session, 0 if none
func (l *SQLiteLog) LastSeq(ctx context.Context, sessionID string) (uint64, error) {
	var seq uint64
	err := l.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id = ?", sessionID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrLogUnavailable, err)
	}
	return seq, nil
}

// HealthCheck validates database connectivity
func (l *SQLiteLog) HealthCheck(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	// QueryRowContext returns the connection to the pool after Scan; a bare
	// Query here would leak one connection per health check.
	var count int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// DB returns the underlying connection for migrations and schema validation
func (l *SQLiteLog) DB() *sql.DB {
	return l.db
}

// Close shuts down the append loop and the database connection
func (l *SQLiteLog) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.shutdown)
	l.wg.Wait()

	if err := l.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]*types.Event, error) {
	defer func() { _ = rows.Close() }()

	var events []*types.Event
	for rows.Next() {
		var event types.Event
		var from sql.NullString
		var payloadJSON string

		err := rows.Scan(
			&event.SessionID,
			&event.Seq,
			&event.ID,
			&event.Kind,
			&from,
			&payloadJSON,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		if from.Valid {
			event.From = from.String
		}
		if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

func applySQLitePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
