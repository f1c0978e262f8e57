package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/usecase"
)

func init() {
	_ = logger.Init("error", "json")
}

func writeConfig(t *testing.T) string {
	t.Helper()
	csvPath, err := filepath.Abs("../../internal/source/testdata/warehouse.csv")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "pipeline.yaml")
	yaml := "sources:\n" +
		"  - name: warehouse_stock\n" +
		"    type: warehouse_csv\n" +
		"    path: " + csvPath + "\n" +
		"    reliability_score: 0.7\n"
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o600))
	return file
}

func TestRun_PrintsReport(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"--config", writeConfig(t), "--database.driver", "memory", "--resolve-all"}, &out)
	require.NoError(t, err)

	var report struct {
		usecase.RunReport
		ResolveAll *usecase.ResolveReport `json:"resolve_all"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &report), out.String())
	// P003 (negative count) fails validation; two rows are unparseable.
	require.Equal(t, 3, report.Ingest.Accepted)
	require.Equal(t, 3, report.Ingest.Rejected)
	require.Equal(t, []string{"P001", "P002", "P005"}, report.Ingest.AffectedItems)
	require.Equal(t, 3, report.Resolve.Resolved)
	require.NotNil(t, report.ResolveAll)
	require.Equal(t, 3, report.ResolveAll.Unchanged)
}

func TestRun_NoSources(t *testing.T) {
	file := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(file, []byte("log:\n  level: error\n"), 0o600))

	err := run(context.Background(), []string{"--config", file}, &bytes.Buffer{})
	require.ErrorContains(t, err, "no sources configured")
}

func TestRun_BadFlag(t *testing.T) {
	err := run(context.Background(), []string{"--no-such-flag"}, &bytes.Buffer{})
	require.Error(t, err)
}
