package migration

import (
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestEnsureBaseTablesOmitsCorrelationColumns(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:migration_%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, EnsureBaseTables(conn))
	require.NoError(t, EnsureBaseTables(conn))

	m := conn.Migrator()
	assert.True(t, m.HasTable("orders"))
	assert.True(t, m.HasTable("order_status_history"))
	assert.True(t, m.HasColumn("orders", "payment_session_id"))
	assert.False(t, m.HasColumn("orders", "payment_success_indicator"))
	assert.False(t, m.HasColumn("orders", "currency"))
}
