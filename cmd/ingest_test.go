package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonExtraction = `{
  "well_id": "W1",
  "report_date": "2024-01-03",
  "tables": [
    {"name": "common_header", "rows": [["Mud Weight", "12.5", "ppg"]]}
  ]
}`

const yamlExtraction = `well_id: W2
report_date: 2024-01-04
tables:
  - name: common_header
    rows:
      - ["Mud Weight", "11.8", "ppg"]
`

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadExtraction_JSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "w1.json", jsonExtraction)

	raw, err := loadExtraction(path)
	require.NoError(t, err)
	assert.Equal(t, "W1", raw.WellID)
	assert.Equal(t, "2024-01-03", raw.ReportDate)
	require.Len(t, raw.Tables, 1)
	assert.Equal(t, path, raw.Ref)
}

func TestLoadExtraction_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "w2.yaml", yamlExtraction)

	raw, err := loadExtraction(path)
	require.NoError(t, err)
	assert.Equal(t, "W2", raw.WellID)
	require.Len(t, raw.Tables, 1)
	assert.Equal(t, [][]string{{"Mud Weight", "11.8", "ppg"}}, raw.Tables[0].Rows)
}

func TestLoadExtraction_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "bad.json", "{not json")

	_, err := loadExtraction(path)
	require.Error(t, err)
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "b.json", jsonExtraction)
	writeFixture(t, dir, "a.yaml", yamlExtraction)
	writeFixture(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	raws, err := loadBatch(dir, 0)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	// Sorted by file name, so the yaml fixture comes first.
	assert.Equal(t, "W2", raws[0].WellID)
	assert.Equal(t, "W1", raws[1].WellID)
}

func TestLoadBatch_Limit(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.json", jsonExtraction)
	writeFixture(t, dir, "b.yaml", yamlExtraction)

	raws, err := loadBatch(dir, 1)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "W1", raws[0].WellID)
}
