package deadletter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/ChainDispatch/internal/db"
	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/goran-ethernal/ChainDispatch/internal/migrations"
	"github.com/goran-ethernal/ChainDispatch/pkg/config"
	"github.com/goran-ethernal/ChainDispatch/pkg/registry"
	"github.com/russross/meddler"
)

const tableName = "dead_letters"

// ErrNotFound is returned when no dead letter has the requested id.
var ErrNotFound = errors.New("dead letter not found")

var _ registry.DeadLetterSink = (*Store)(nil)

// Store persists batches the registry abandoned in SQLite.
type Store struct {
	db   *sql.DB
	path string
	log  *logger.Logger
}

// NewStore opens the database described by cfg and applies pending migrations.
func NewStore(cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	sqlDB, err := db.NewSQLiteDBFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if err := migrations.RunMigrationsDB(log, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate dead letter database: %w", err)
	}

	return &Store{
		db:   sqlDB,
		path: cfg.Path,
		log:  log,
	}, nil
}

// Store saves an abandoned batch.
func (s *Store) Store(ctx context.Context, letter registry.DeadLetter) error {
	row := &dbDeadLetter{
		IndexerName: letter.IndexerName,
		TopicID:     letter.TopicID,
		EventName:   letter.EventName,
		Network:     letter.Network,
		Attempts:    letter.Attempts,
		LastError:   letter.LastError,
		BatchSize:   len(letter.Events),
		Payload:     make([]storedLog, 0, len(letter.Events)),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	for i, event := range letter.Events {
		row.Payload = append(row.Payload, toStoredLog(event.Log))

		block := event.TxInformation.BlockNumber
		if i == 0 {
			address := event.TxInformation.Address
			txHash := event.TxInformation.TransactionHash
			row.Address = &address
			row.FirstTxHash = &txHash
			row.FirstBlock = block
		}
		row.FirstBlock = min(row.FirstBlock, block)
		row.LastBlock = max(row.LastBlock, block)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	if err := meddler.Insert(tx, tableName, row); err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dead letter: %w", err)
	}

	s.log.Infow("stored dead letter",
		"id", row.ID,
		"indexer", row.IndexerName,
		"event", row.EventName,
		"batch_size", row.BatchSize,
	)

	return nil
}

// List returns up to limit dead letters, oldest first. A limit of 0 returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT * FROM dead_letters ORDER BY id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []*dbDeadLetter
	if err := meddler.QueryAll(s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}

	return records, nil
}

// Get returns the dead letter with id.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	var row dbDeadLetter
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM dead_letters WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letter %d: %w", id, err)
	}

	record := row.toRecord()
	return &record, nil
}

// Delete removes the dead letter with id, typically after it was replayed.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dead letter %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete dead letter %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	return nil
}

// Size returns the on-disk size of the database including its WAL files.
func (s *Store) Size() (int64, error) {
	return db.DBTotalSize(s.path)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (row *dbDeadLetter) toRecord() Record {
	logs := make([]types.Log, 0, len(row.Payload))
	for _, stored := range row.Payload {
		logs = append(logs, stored.toLog())
	}

	return Record{
		ID:          row.ID,
		IndexerName: row.IndexerName,
		TopicID:     row.TopicID,
		EventName:   row.EventName,
		Network:     row.Network,
		Attempts:    row.Attempts,
		LastError:   row.LastError,
		Address:     row.Address,
		FirstTxHash: row.FirstTxHash,
		FirstBlock:  row.FirstBlock,
		LastBlock:   row.LastBlock,
		BatchSize:   row.BatchSize,
		CreatedAt:   row.CreatedAt,
		Logs:        logs,
	}
}
