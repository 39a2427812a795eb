package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/extract-label/internal/config"
	"github.com/DeafMist/extract-label/internal/logger"
	"github.com/DeafMist/extract-label/internal/models"
	"github.com/DeafMist/extract-label/internal/processing"
)

// echoLabeler copies the document into the output so tests can tell records apart.
type echoLabeler struct{}

func (echoLabeler) Process(rec models.Record) (models.OutputRecord, error) {
	if rec.Document == nil || rec.Summary == nil {
		return models.OutputRecord{}, processing.ErrMalformedRecord
	}
	return models.OutputRecord{
		Summ:         []string{},
		Document:     rec.Document,
		Sentence:     []string{},
		ExtractLabel: []int{},
	}, nil
}

func testConfig() config.Label {
	return config.Label{
		Limits:         processing.DefaultLimits(),
		Workers:        2,
		DedupeCapacity: 16,
	}
}

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func readRecords(t *testing.T, path string) []models.OutputRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []models.OutputRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec models.OutputRecord
		require.NoError(t, dec.Decode(&rec))
		out = append(out, rec)
	}
	return out
}

func TestRunDirectory(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(in, "train.json"),
		`{"document":["a"],"summary":["x"]}`,
		`{"document":["b"],"summary":["y"]}`,
	)
	writeFile(t, filepath.Join(in, "val.json"), `{"document":["c"],"summ":["z"]}`)
	writeFile(t, filepath.Join(in, "notes.txt"), "ignored")

	opts := runOptions{input: in, output: out, cfg: testConfig()}
	require.NoError(t, run(context.Background(), echoLabeler{}, opts, nil, nil, logger.Discard()))

	train := readRecords(t, filepath.Join(out, "train.json"))
	require.Len(t, train, 2)
	require.Equal(t, []string{"a"}, train[0].Document)
	require.Equal(t, []string{"b"}, train[1].Document)

	val := readRecords(t, filepath.Join(out, "val.json"))
	require.Len(t, val, 1)
	require.Equal(t, []string{"c"}, val[0].Document)

	_, err := os.Stat(filepath.Join(out, "notes.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestRunDirectoryErrors(t *testing.T) {
	in := t.TempDir()
	writeFile(t, filepath.Join(in, "train.json"), `{"document":["a"],"summary":["x"]}`)
	file := filepath.Join(t.TempDir(), "out.json")
	writeFile(t, file, "")

	cases := []struct {
		name   string
		output string
	}{
		{name: "missing output directory", output: filepath.Join(t.TempDir(), "missing")},
		{name: "output is a file", output: file},
		{name: "stdout", output: "-"},
		{name: "same directory", output: in},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := runOptions{input: in, output: tc.output, cfg: testConfig()}
			require.Error(t, run(context.Background(), echoLabeler{}, opts, nil, nil, logger.Discard()))
		})
	}
}

func TestRunFileSkipsBadRecordsAndDedupes(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json")
	out := filepath.Join(dir, "out.json")
	writeFile(t, in,
		`{"document":["a"],"summary":["x"]}`,
		`not json`,
		`{"document":["a"],"summary":["x"]}`,
		`{"document":["b"]}`,
		`{"document":["c"],"summary":["z"]}`,
	)

	cfg := testConfig()
	cfg.Dedupe = true
	opts := runOptions{input: in, output: out, cfg: cfg}
	require.NoError(t, run(context.Background(), echoLabeler{}, opts, nil, nil, logger.Discard()))

	got := readRecords(t, out)
	require.Len(t, got, 2)
	require.Equal(t, []string{"a"}, got[0].Document)
	require.Equal(t, []string{"c"}, got[1].Document)
}

func TestRunRejectsBadOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 0
	opts := runOptions{input: "-", output: "-", cfg: cfg}
	require.Error(t, run(context.Background(), echoLabeler{}, opts, strings.NewReader(""), &bytes.Buffer{}, logger.Discard()))

	opts = runOptions{input: filepath.Join(t.TempDir(), "nope.json"), output: "-", cfg: testConfig()}
	require.Error(t, run(context.Background(), echoLabeler{}, opts, nil, &bytes.Buffer{}, logger.Discard()))
}

func TestRootCommandStdio(t *testing.T) {
	cfg := testConfig()
	cmd := newRootCmd(&cfg, logger.Discard())

	var stdout bytes.Buffer
	cmd.SetIn(strings.NewReader(`{"document":["The bridge opened in 1990 after long delays."],"summary":["It opened in 1990."]}` + "\n"))
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--input", "-", "--output", "-", "--workers", "1"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.JSONEq(t, `{
		"summ": ["It opened in 1990."],
		"document": ["The bridge opened in 1990 after long delays."],
		"sentence": ["The bridge opened in 1990 after long delays."],
		"extract_label": [0]
	}`, stdout.String())
}

func TestRootCommandRequiresFlags(t *testing.T) {
	cfg := testConfig()
	cmd := newRootCmd(&cfg, logger.Discard())
	cmd.SetArgs([]string{"--input", "-"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	require.Error(t, cmd.Execute())
}
