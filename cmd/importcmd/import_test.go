package importcmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"jjcook/budgetdb/cmd/importcmd"
	"jjcook/budgetdb/cmd/root"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportCommand_Metadata(t *testing.T) {
	assert.Equal(t, "import <file|s3://bucket/key>...", importcmd.Cmd.Use)
	assert.Contains(t, importcmd.Cmd.Short, "Import records")
	assert.Contains(t, importcmd.Cmd.Long, "--dry-run")
	assert.NotNil(t, importcmd.Cmd.RunE)
	assert.Error(t, importcmd.Cmd.Args(importcmd.Cmd, nil), "at least one input is required")
	assert.NoError(t, importcmd.Cmd.Args(importcmd.Cmd, []string{"records.txt"}))
}

func TestImportCommand_Flags(t *testing.T) {
	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"dry-run", "n", "false"},
		{"print", "", "false"},
		{"output", "o", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := importcmd.Cmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
			assert.Equal(t, tt.defValue, flag.DefValue)
			assert.NotEmpty(t, flag.Usage)
		})
	}
}

const records = `#accounts|id|name
Account|chk|Checking
#transactions|id|date|description|amount|account_id
Transaction|t1|2013-01-02|GROCER|125.00|chk
`

func TestImportCommand_Execute(t *testing.T) {
	root.Init()
	root.Cmd.AddCommand(importcmd.Cmd)

	dir := t.TempDir()
	input := filepath.Join(dir, "records.txt")
	require.NoError(t, os.WriteFile(input, []byte(records), 0644))
	db := filepath.Join(dir, "budget.db")

	execute := func(args ...string) (string, error) {
		var out bytes.Buffer
		root.Cmd.SetOut(&out)
		root.Cmd.SetErr(&out)
		root.Cmd.SetArgs(args)
		err := root.Cmd.Execute()
		return out.String(), err
	}

	out, err := execute("import", "--database", db, input)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 rows read, 2 saved, 0 import keys renamed")

	out, err = execute("import", "--database", db, "--dry-run", "--print", input)
	require.NoError(t, err, out)
	// chk is already stored, so the dry run resolves to the stored row.
	assert.Contains(t, out, "t1,Transaction,account_id,-> #")
	assert.Contains(t, out, "2 rows read, 0 saved")

	_, err = execute("import", "--database", db, filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
