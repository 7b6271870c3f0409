package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSorted(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_schema.sql", names[0])
}

func TestSchemaGuardsCheckoutSessionUniqueness(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "checkout_session_id  TEXT UNIQUE")
	assert.Contains(t, string(sql), "registrations_paid_fields")
}
