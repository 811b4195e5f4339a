package pgstore

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/storage/docstore/docstoretest"
)

// Runs against a live server when TEST_DATABASE_URL is set (eg. postgres://u:p@localhost/sportshub_test?sslmode=disable).
func TestStore_Contract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, Migrate(db.DB))

	st, err := New(db, dsn, nil)
	require.NoError(t, err)
	defer st.Close()

	docstoretest.Run(t, st, "test-"+strconv.FormatInt(time.Now().UnixNano(), 36))
}

func TestDSN(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Database.Host = "db"
	conf.Database.Port = 5433
	conf.Database.User = "app"
	conf.Database.Password = "s3cret"
	conf.Database.AdminUser = "root"
	conf.Database.AdminPassword = "r00t"
	conf.Database.DisableTLS = true

	assert.Equal(t, "postgres://app:s3cret@db:5433/sportshub?sslmode=disable&timezone=utc", DSN("sportshub", false, conf))
	assert.Equal(t, "postgres://root:r00t@db:5433/postgres?sslmode=disable&timezone=utc", DSN("postgres", true, conf))

	conf.Database.DisableTLS = false
	conf.Database.AdminUser = ""
	assert.Equal(t, "postgres://app:s3cret@db:5433/postgres?sslmode=require&timezone=utc", DSN("postgres", true, conf))
}
