package output

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/homeledger/internal/importer"
	"github.com/rumor-ml/homeledger/internal/pipeline"
)

func sampleReport() *pipeline.Report {
	return &pipeline.Report{
		ScannedFiles: 1,
		Completed:    1,
		Inserted:     2,
		Results: []pipeline.FileResult{
			{
				File:    "statements/march.csv",
				Status:  pipeline.StatusCompleted,
				Summary: &importer.Summary{ImportBatchID: "batch-1", Inserted: 2},
			},
		},
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(sampleReport(), &buf))

	out := buf.String()
	assert.Contains(t, out, `"scannedFiles": 1`)
	assert.Contains(t, out, `"status": "COMPLETED"`)
	assert.True(t, strings.HasPrefix(out, "{\n  "), "expected 2-space indentation")
}

func TestWriteReport_NilReport(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, WriteReport(nil, &buf))
	require.Error(t, WriteReportToFile(nil, WriteOptions{}))
}

func TestWriteReportToFileAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteReportToFile(sampleReport(), WriteOptions{FilePath: path}))

	loaded, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.ScannedFiles)
	require.Len(t, loaded.Results, 1)
	assert.Equal(t, "batch-1", loaded.Results[0].Summary.ImportBatchID)
}

func TestLoadReport_Missing(t *testing.T) {
	_, err := LoadReport(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)

	_, err = LoadReport("")
	require.Error(t, err)
}
