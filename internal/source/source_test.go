package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"aura.dev/aura/internal/config"
	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/resolver"
)

type drained struct {
	events   []domain.Event
	rejected []error
	fatal    []error
}

func drain(t *testing.T, src domain.EventSource) drained {
	t.Helper()
	var out drained
	for e, err := range src.Events(context.Background()) {
		switch {
		case err == nil:
			out.events = append(out.events, e)
		case apperrors.HasCode(err, apperrors.CodeMalformedEvent):
			out.rejected = append(out.rejected, err)
		default:
			out.fatal = append(out.fatal, err)
		}
	}
	return out
}

func TestWarehouseCSV(t *testing.T) {
	src := NewWarehouseCSV(WarehouseSourceName, filepath.Join("testdata", "warehouse.csv"), DefaultWarehouseTrust)
	got := drain(t, src)

	require.Empty(t, got.fatal)
	// P003 parses (negative quantities are rejected by event validation),
	// the orphan row and the bad timestamp are rejected here.
	require.Len(t, got.events, 4)
	require.Len(t, got.rejected, 2)

	p1 := got.events[0]
	require.Equal(t, "P001", p1.ItemID)
	require.Equal(t, "Hydraulic Pump", p1.ItemName)
	require.Equal(t, int64(45), p1.Quantity)
	require.Equal(t, domain.EventStockCount, p1.EventType)
	require.Equal(t, domain.SemanticOnShelf, p1.QuantitySemantic)
	require.Equal(t, WarehouseSourceName, p1.SourceSystem)
	require.InDelta(t, 0.7, p1.ReliabilityScore, 1e-9)
	require.Equal(t, "JHB-A", p1.Location)
	require.True(t, p1.EventTimestamp.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)))
	require.True(t, p1.IngestionTimestamp.IsZero())
	require.NoError(t, p1.Validate())

	p2 := got.events[1]
	require.Equal(t, "P002", p2.ItemID)
	require.Equal(t, int64(12), p2.Quantity)

	require.Error(t, got.events[2].Validate(), "negative quantity")

	again := drain(t, src)
	require.Equal(t, got.events[0].EventID, again.events[0].EventID)
}

func TestWarehouseCSV_MissingFile(t *testing.T) {
	got := drain(t, NewWarehouseCSV("wh", filepath.Join(t.TempDir(), "nope.csv"), 0.7))
	require.Len(t, got.fatal, 1)
	require.True(t, apperrors.HasCode(got.fatal[0], apperrors.CodeSourceUnavailable))
}

func TestWarehouseCSV_BadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("sku,count\nP1,4\n"), 0o600))

	got := drain(t, NewWarehouseCSV("wh", path, 0.7))
	require.Empty(t, got.events)
	require.Len(t, got.fatal, 1)
}

func TestWarehouseXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"part_id", "part_name", "qty_on_shelf", "unit_cost_zar", "last_updated", "warehouse_location"},
		{"P001", "Hydraulic Pump", 45, 1250.0, "2026-03-01T08:00:00Z", "JHB-A"},
		{"P002", "Bearing Assembly", "x", 310.5, "2026-03-01T08:00:00Z", "JHB-B"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	got := drain(t, NewWarehouseXLSX(WarehouseSourceName, path, 0.7))
	require.Empty(t, got.fatal)
	require.Len(t, got.events, 1)
	require.Len(t, got.rejected, 1)
	require.Equal(t, int64(45), got.events[0].Quantity)
	require.Equal(t, TypeWarehouseXLSX, NewWarehouseXLSX("x", path, 0.7).Metadata().Type)
}

func TestLogisticsFile(t *testing.T) {
	src := NewLogisticsFile(LogisticsSourceName, filepath.Join("testdata", "logistics.json"), DefaultLogisticsTrust)
	got := drain(t, src)

	require.Empty(t, got.fatal)
	require.Len(t, got.rejected, 1, "SHP-003 fails the schema")
	require.Len(t, got.events, 4)

	byShipment := map[string][]domain.Event{}
	for _, e := range got.events {
		require.NoError(t, e.Validate())
		byShipment[e.ShipmentID] = append(byShipment[e.ShipmentID], e)
	}

	require.Len(t, byShipment["SHP-001"], 2)
	inTransit := byShipment["SHP-001"][0]
	require.Equal(t, domain.EventShipmentInTransit, inTransit.EventType)
	require.Equal(t, domain.ShipmentInTransit, inTransit.Status)
	require.Equal(t, int64(20), inTransit.Quantity)
	require.Equal(t, "Supplier_A", inTransit.Supplier)
	require.Equal(t, "2026-03-04", inTransit.EstimatedArrival)

	delivered := byShipment["SHP-002"][0]
	require.Equal(t, domain.EventGoodsReceipt, delivered.EventType)
	require.Equal(t, domain.SemanticDelivered, delivered.QuantitySemantic)
	require.Equal(t, domain.ShipmentDelivered, delivered.EffectiveStatus())

	dispatched := byShipment["SHP-004"][0]
	require.Equal(t, domain.EventShipmentDispatch, dispatched.EventType)
	require.Empty(t, dispatched.Status)
	require.Empty(t, dispatched.EffectiveStatus())

	appErr, ok := apperrors.IsAppError(got.rejected[0])
	require.True(t, ok)
	require.NotEmpty(t, appErr.FieldErrors)
}

func TestLogisticsFile_CancelledShipmentIsNotInTransit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shipments.json")
	body := `{"shipments":[{"shipment_id":"SHP-009","supplier":"Supplier_A",` +
		`"parts":[{"part_id":"P9","quantity_shipped":40}],` +
		`"status":"cancelled","last_updated":"2026-03-01T11:00:00Z"}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	got := drain(t, NewLogisticsFile(LogisticsSourceName, path, DefaultLogisticsTrust))
	require.Empty(t, got.fatal)
	require.Empty(t, got.rejected)
	require.Len(t, got.events, 1)

	cancelled := got.events[0]
	require.NoError(t, cancelled.Validate())
	require.Empty(t, cancelled.EffectiveStatus())

	fact, err := resolver.New(resolver.DefaultConfig()).Resolve("P9", got.events, nil)
	require.NoError(t, err)
	require.Zero(t, fact.InTransitQty)
	require.Zero(t, fact.EffectiveInventory)
}

func TestLogisticsHTTP(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("testdata", "logistics.json"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shipments" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	got := drain(t, NewLogisticsHTTP(LogisticsSourceName, srv.URL+"/shipments", 0.9, time.Second))
	require.Empty(t, got.fatal)
	require.Len(t, got.events, 4)

	down := drain(t, NewLogisticsHTTP(LogisticsSourceName, srv.URL+"/missing", 0.9, time.Second))
	require.Len(t, down.fatal, 1)
	require.True(t, apperrors.HasCode(down.fatal[0], apperrors.CodeSourceUnavailable))
}

func TestFromConfig(t *testing.T) {
	srcs, err := FromConfig([]config.SourceConfig{
		{Name: "wh", Type: config.SourceWarehouseCSV, Path: "a.csv", ReliabilityScore: 0.7, UpdateFrequency: "unknown"},
		{Name: "wx", Type: config.SourceWarehouseXLSX, Path: "a.xlsx", ReliabilityScore: 0.6},
		{Name: "lf", Type: config.SourceLogisticsFile, Path: "a.json", ReliabilityScore: 0.9, UpdateFrequency: "hourly"},
		{Name: "lh", Type: config.SourceLogisticsHTTP, Endpoint: "http://x", ReliabilityScore: 0.9, Timeout: time.Second},
	})
	require.NoError(t, err)
	require.Len(t, srcs, 4)
	require.Equal(t, "shift_change", srcs[0].Metadata().UpdateFrequency)
	require.Equal(t, "hourly", srcs[2].Metadata().UpdateFrequency)
	require.Equal(t, domain.SourceReliability{"wh": 0.7, "wx": 0.6, "lf": 0.9, "lh": 0.9}, domain.FromSources(srcs...))

	_, err = FromConfig([]config.SourceConfig{{Name: "x", Type: "ftp"}})
	require.Error(t, err)
}
