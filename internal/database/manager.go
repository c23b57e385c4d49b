package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "chatrelay/pkg/database"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

const (
	// DefaultPresenceLimit applies when a caller asks for zero rows.
	DefaultPresenceLimit = 50
	// MaxPresenceLimit caps a single presence query.
	MaxPresenceLimit = 500

	writeQueueTimeout = 30 * time.Second
)

// ssq builds SQLite statements with ? placeholders.
var ssq = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var presenceColumns = []string{"id", "connection_id", "username", "room", "kind", "occurred_at"}

// Manager implements interfaces.DatabaseManager on SQLite. Reads run on the
// pool; every write goes through one goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       *slog.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the SQLite database at config.DatabasePath.
func NewManager(config *dbconfig.Config, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", dbconfig.DSN(config.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	return NewManagerWithDB(db, config, logger), nil
}

// NewManagerWithDB wraps an already open database.
func NewManagerWithDB(db *sql.DB, config *dbconfig.Config, logger *slog.Logger) *Manager {
	if config == nil {
		config = dbconfig.DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		db:           db,
		config:       config,
		logger:       logger.With("component", "database"),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m
}

// writeLoop runs writes one at a time. A failed write is retried once after
// the configured delay. On shutdown the queue is drained first.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			m.run(op)
		case <-m.shutdown:
			for {
				select {
				case op := <-m.writeChannel:
					m.run(op)
				default:
					m.logger.Debug("database write loop stopped")
					return
				}
			}
		}
	}
}

func (m *Manager) run(op writeOperation) {
	err := op.operation(m.db)
	if err != nil {
		m.logger.Warn("database write failed, retrying", "delay", m.config.RetryDelay, "error", err)
		if m.config.RetryDelay > 0 {
			time.Sleep(m.config.RetryDelay)
		}
		err = op.operation(m.db)
		if err != nil {
			m.logger.Error("database write failed after retry", "error", err)
		}
	}
	op.result <- err
}

// executeWrite queues operation and waits for its result.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	result := make(chan error, 1)

	// The read lock keeps Close from stopping the writer while an operation
	// is being queued.
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	timer := time.NewTimer(writeQueueTimeout)
	defer timer.Stop()
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		m.mu.RUnlock()
	case <-timer.C:
		m.mu.RUnlock()
		return errors.New("write operation timeout")
	case <-ctx.Done():
		m.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StorePresence appends event. Missing ids and timestamps are filled in.
func (m *Manager) StorePresence(ctx context.Context, event *types.PresenceEvent) error {
	if event == nil {
		return errors.New("presence event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	event.OccurredAt = event.OccurredAt.UTC()

	query, args, err := ssq.Insert("presence_events").
		Columns(presenceColumns...).
		Values(event.ID, event.ConnectionID, event.Username, event.Room, event.Kind, event.OccurredAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building presence insert: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert presence event: %w", err)
		}
		return nil
	})
}

// GetRoomPresence returns the latest events for room, newest first.
func (m *Manager) GetRoomPresence(ctx context.Context, room string, limit int) ([]*types.PresenceEvent, error) {
	if limit <= 0 {
		limit = DefaultPresenceLimit
	}
	if limit > MaxPresenceLimit {
		limit = MaxPresenceLimit
	}

	query, args, err := ssq.Select(presenceColumns...).
		From("presence_events").
		Where(sq.Eq{"room": room}).
		OrderBy("occurred_at DESC", "rowid DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building presence query: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query presence events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]*types.PresenceEvent, 0, limit)
	for rows.Next() {
		var event types.PresenceEvent
		if err := rows.Scan(
			&event.ID,
			&event.ConnectionID,
			&event.Username,
			&event.Room,
			&event.Kind,
			&event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan presence row: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating presence rows: %w", err)
	}

	return events, nil
}

// HealthCheck validates connectivity and that the presence table is readable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM presence_events").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying connection for migrations.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close drains pending writes and closes the database. Later calls are no-ops.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.shutdown)
	m.mu.Unlock()

	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
