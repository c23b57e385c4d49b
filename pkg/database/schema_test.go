package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db)

	err := validator.ValidateTablesExist()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "presence_events")
	assert.Error(t, validator.Validate())
}

func TestSchemaValidator_MigratedDatabase(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationManager(db).ApplyMigrations())

	validator := NewSchemaValidator(db)
	assert.NoError(t, validator.ValidateTablesExist())
	assert.NoError(t, validator.ValidateTableStructure())
	assert.NoError(t, validator.ValidateIndexes())
	assert.NoError(t, validator.ValidateConstraints())

	// The constraint probe must not leave rows behind.
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM presence_events").Scan(&count))
	assert.Zero(t, count)
}

func TestSchemaValidator_WrongColumnType(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`
		CREATE TABLE presence_events (
			id TEXT PRIMARY KEY, connection_id TEXT, username TEXT,
			room TEXT, kind TEXT, occurred_at INTEGER
		)
	`)
	require.NoError(t, err)

	err = NewSchemaValidator(db).ValidateTableStructure()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "occurred_at has type INTEGER")
}

func TestSchemaValidator_MissingConstraint(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`
		CREATE TABLE presence_events (
			id TEXT PRIMARY KEY, connection_id TEXT, username TEXT,
			room TEXT, kind TEXT, occurred_at DATETIME
		)
	`)
	require.NoError(t, err)

	err = NewSchemaValidator(db).ValidateConstraints()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "presence_events.kind")
}

func TestSchemaValidator_MissingIndex(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrationManager(db).ApplyMigrations())
	_, err := db.Exec("DROP INDEX idx_presence_connection")
	require.NoError(t, err)

	err = NewSchemaValidator(db).ValidateIndexes()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idx_presence_connection")
}
