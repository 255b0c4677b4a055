package sqlite3

import (
	"os"
	"testing"

	"github.com/haydenwoodhead/autointern/data"
	"github.com/stretchr/testify/require"
)

func TestSQLite3(t *testing.T) {
	db := GetSQLite3DB("test.sqlite3")
	defer func() {
		// remove test database
		db.Close()
		err := os.Remove("test.sqlite3")
		if err != nil {
			t.Fatalf("SQLite3: failed to delete test database file")
		}
	}()

	require.NoError(t, db.Start())

	// Start must be safe to call against an existing schema
	require.NoError(t, db.Start())

	// iterate over the testing suite and call the function
	for _, f := range data.TestingFuncs {
		f(t, db)
	}
}
