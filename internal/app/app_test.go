package app

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunArgumentErrors(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectedErr error
	}{
		{
			name:        "No Arguments",
			args:        []string{},
			expectedErr: ErrMissingArgs,
		},
		{
			name:        "Missing Output Dir",
			args:        []string{"-input", "in.csv", "-config", "cfg.yaml"},
			expectedErr: ErrMissingArgs,
		},
		{
			name:        "Unknown Flag",
			args:        []string{"-bogus"},
			expectedErr: ErrUsage,
		},
		{
			name:        "Multi Character Delimiter",
			args:        []string{"-input", "in.csv", "-output-dir", "out", "-config", "cfg.yaml", "-delimiter", ";;"},
			expectedErr: ErrUsage,
		},
		{
			name:        "Negative Start Row",
			args:        []string{"-input", "in.csv", "-output-dir", "out", "-config", "cfg.yaml", "-start-row", "-1"},
			expectedErr: ErrUsage,
		},
		{
			name:        "Zero Chunk Size",
			args:        []string{"-input", "in.csv", "-output-dir", "out", "-config", "cfg.yaml", "-chunk-size", "0"},
			expectedErr: ErrUsage,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewAppRunner().Run(tc.args)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.expectedErr), "got: %v", err)
		})
	}
}

func TestRunHelp(t *testing.T) {
	assert.NoError(t, NewAppRunner().Run([]string{"-help"}))
}

func TestRunConfigNotFound(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	err := NewAppRunner().Run([]string{
		"-input", "in.csv",
		"-output-dir", t.TempDir(),
		"-config", filepath.Join(t.TempDir(), "missing.yaml"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
	assert.Contains(t, buf.String(), "[ERROR] Configuration file", "reported through the leveled logger")
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	NewAppRunner().Usage(&buf)
	assert.Contains(t, buf.String(), "api-retriever")
	assert.Contains(t, buf.String(), "-output-dir")
}

// Full pipeline: CSV input through a live test server to CSV output plus
// checkpoint.
func TestRunEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		repo := strings.TrimPrefix(r.URL.Path, "/repos/")
		fmt.Fprintf(w, `{"full_name": %q, "license": {"key": "mit-%s"}}`, repo, repo)
	}))
	defer server.Close()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "repos.csv")
	require.NoError(t, os.WriteFile(inputPath, []byte("repo_name\nalpha\nbeta\n"), 0644))

	configPath := filepath.Join(dir, "licenses.yaml")
	configYAML := fmt.Sprintf(`
name: licenses
input_parameters: [repo_name]
uri_template: "%s/repos/{repo_name}"
delay: [0, 0]
output_parameter_mapping:
  license: [license, key]
`, server.URL)
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0644))

	outputDir := filepath.Join(dir, "out")
	err := NewAppRunner().Run([]string{
		"-input", inputPath,
		"-output-dir", outputDir,
		"-config", configPath,
		"-loglevel", "none",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(outputDir, "licenses.csv"))
	require.NoError(t, err)
	assert.Equal(t, "repo_name,license\nalpha,mit-alpha\nbeta,mit-beta\n", string(raw))

	cpRaw, err := os.ReadFile(filepath.Join(outputDir, "licenses.checkpoint.json"))
	require.NoError(t, err)
	assert.Contains(t, string(cpRaw), `"next_row": 2`)
}

// Resuming with -start-row appends to the existing output table without
// repeating the header.
func TestRunResumeAppends(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/items/")
		fmt.Fprintf(w, `{"val": "v-%s"}`, id)
	}))
	defer server.Close()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "items.csv")
	require.NoError(t, os.WriteFile(inputPath, []byte("id\na\nb\nc\nd\n"), 0644))

	configPath := filepath.Join(dir, "items.yaml")
	configYAML := fmt.Sprintf(`
name: items
input_parameters: [id]
uri_template: "%s/items/{id}"
delay: [0, 0]
output_parameter_mapping:
  val: [val]
`, server.URL)
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0644))

	outputDir := filepath.Join(dir, "out")
	runner := NewAppRunner()
	baseArgs := []string{
		"-input", inputPath,
		"-output-dir", outputDir,
		"-config", configPath,
		"-loglevel", "none",
	}

	require.NoError(t, runner.Run(baseArgs))

	// Re-run the tail as if the first run had stopped after two rows.
	require.NoError(t, runner.Run(append(baseArgs, "-start-row", "2")))

	raw, err := os.ReadFile(filepath.Join(outputDir, "items.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,val\na,v-a\nb,v-b\nc,v-c\nd,v-d\nc,v-c\nd,v-d\n", string(raw),
		"resumed rows append after the first run's output, header written once")
}
