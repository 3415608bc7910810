package csvio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInputFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadInput(t *testing.T) {
	path := writeInputFile(t, "owner,repo\ngolang,go\ntidwall,gjson\n")

	rows, err := ReadInput(path, ',', []string{"owner", "repo"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"owner": "golang", "repo": "go"}, rows[0])
	assert.Equal(t, map[string]string{"owner": "tidwall", "repo": "gjson"}, rows[1])
}

// Header order need not match the declared parameter order.
func TestReadInputReorderedColumns(t *testing.T) {
	path := writeInputFile(t, "repo,owner\ngo,golang\n")

	rows, err := ReadInput(path, ',', []string{"owner", "repo"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "golang", rows[0]["owner"])
	assert.Equal(t, "go", rows[0]["repo"])
}

func TestReadInputCustomDelimiter(t *testing.T) {
	path := writeInputFile(t, "owner;repo\ngolang;go\n")

	rows, err := ReadInput(path, ';', []string{"owner", "repo"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "go", rows[0]["repo"])
}

func TestReadInputErrors(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expectedError string
	}{
		{
			name:          "Empty File",
			content:       "",
			expectedError: "missing a header row",
		},
		{
			name:          "Unknown Column",
			content:       "owner,repo,extra\ngolang,go,x\n",
			expectedError: "unknown column 'extra'",
		},
		{
			name:          "Missing Column",
			content:       "owner\ngolang\n",
			expectedError: "missing column 'repo'",
		},
		{
			name:          "Empty Value",
			content:       "owner,repo\ngolang,\n",
			expectedError: "row 2",
		},
		{
			name:          "Ragged Row",
			content:       "owner,repo\ngolang\n",
			expectedError: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeInputFile(t, tc.content)
			_, err := ReadInput(path, ',', []string{"owner", "repo"})
			require.Error(t, err)
			if tc.expectedError != "" {
				assert.Contains(t, err.Error(), tc.expectedError)
			}
		})
	}
}

func TestReadInputMissingFile(t *testing.T) {
	_, err := ReadInput(filepath.Join(t.TempDir(), "nope.csv"), ',', []string{"a"})
	assert.Error(t, err)
}

func TestWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	columns := []string{"repo", "license"}

	w, err := NewWriter(path, ',', columns, false)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecords([]map[string]string{
		{"repo": "golang/go", "license": "bsd-3-clause"},
		{"repo": "tidwall/gjson", "license": "mit"},
	}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "repo,license\ngolang/go,bsd-3-clause\ntidwall/gjson,mit\n", string(raw))
}

// A record missing a column writes an empty cell in that position.
func TestWriterMissingField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := NewWriter(path, ',', []string{"repo", "license"}, false)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecords([]map[string]string{{"repo": "x/y"}}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "repo,license\nx/y,\n", string(raw))
}

// Append mode continues an existing table without repeating the header.
func TestWriterAppendMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	columns := []string{"id", "val"}

	w, err := NewWriter(path, ',', columns, false)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecords([]map[string]string{{"id": "1", "val": "a"}}))
	require.NoError(t, w.Close())

	w, err = NewWriter(path, ',', columns, true)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecords([]map[string]string{{"id": "2", "val": "b"}}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,val\n1,a\n2,b\n", string(raw))
}

func TestWriterQuoting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := NewWriter(path, ',', []string{"val"}, false)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecords([]map[string]string{{"val": `has,comma and "quote"`}}))
	require.NoError(t, w.Close())

	rows, err := ReadInput(path, ',', []string{"val"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, `has,comma and "quote"`, rows[0]["val"])
}
