package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
)

// warehouseRows converts header + data rows into stock count events. Row
// numbers in errors are 1-based including the header.
func warehouseRows(ctx context.Context, meta domain.SourceMetadata, rows iter.Seq2[[]string, error]) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		var index map[string]int
		line := 0
		for row, err := range rows {
			line++
			if err != nil {
				yield(domain.Event{}, apperrors.ErrSourceUnavailablef(meta.Name, err))
				return
			}
			if ctx.Err() != nil {
				yield(domain.Event{}, apperrors.ErrSourceUnavailablef(meta.Name, ctx.Err()))
				return
			}
			if index == nil {
				index, err = headerIndex(row)
				if err != nil {
					yield(domain.Event{}, apperrors.ErrSourceUnavailablef(meta.Name, err))
					return
				}
				continue
			}
			if isBlank(row) {
				continue
			}
			if !yield(warehouseEvent(meta, index, row, line)) {
				return
			}
		}
	}
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, col := range []string{"part_id", "qty_on_shelf", "last_updated"} {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("warehouse header missing columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func warehouseEvent(meta domain.SourceMetadata, index map[string]int, row []string, line int) (domain.Event, error) {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	partID := domain.NormalizeItemID(cell("part_id"))
	recordID := fmt.Sprintf("%s:%d", meta.Name, line)
	if partID == "" {
		return domain.Event{}, malformed(recordID, "part_id", "required", "part_id is empty")
	}
	qty, err := parseQuantity(cell("qty_on_shelf"))
	if err != nil {
		return domain.Event{}, malformed(recordID, "qty_on_shelf", "number", err.Error())
	}
	ts, err := parseTimestamp(cell("last_updated"))
	if err != nil {
		return domain.Event{}, malformed(recordID, "last_updated", "timestamp", err.Error())
	}
	location := cell("warehouse_location")

	return domain.Event{
		EventID:          eventID(meta.Name, partID, ts.Format(time.RFC3339Nano), location),
		EventType:        domain.EventStockCount,
		ItemID:           partID,
		ItemName:         cell("part_name"),
		Quantity:         qty,
		QuantitySemantic: domain.SemanticOnShelf,
		EventTimestamp:   ts,
		SourceSystem:     meta.Name,
		ReliabilityScore: meta.ReliabilityScore,
		Location:         location,
	}, nil
}

// WarehouseCSV reads physical shelf counts from a CSV export with the
// columns part_id, part_name, qty_on_shelf, unit_cost_zar, last_updated and
// warehouse_location. unit_cost_zar is accepted and ignored.
type WarehouseCSV struct {
	meta domain.SourceMetadata
	path string
}

// NewWarehouseCSV creates a CSV warehouse source.
func NewWarehouseCSV(name, path string, reliability float64) *WarehouseCSV {
	return &WarehouseCSV{meta: metadata(name, TypeWarehouseCSV, reliability, "shift_change"), path: path}
}

// Metadata implements domain.EventSource.
func (s *WarehouseCSV) Metadata() domain.SourceMetadata { return s.meta }

// Events implements domain.EventSource.
func (s *WarehouseCSV) Events(ctx context.Context) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(domain.Event{}, apperrors.ErrSourceUnavailablef(s.meta.Name, err))
			return
		}
		defer f.Close()

		for e, err := range warehouseRows(ctx, s.meta, csvRows(f)) {
			if !yield(e, err) {
				return
			}
		}
	}
}

func csvRows(r io.Reader) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// WarehouseXLSX reads the same columns from the first sheet of a workbook.
type WarehouseXLSX struct {
	meta domain.SourceMetadata
	path string
}

// NewWarehouseXLSX creates an XLSX warehouse source.
func NewWarehouseXLSX(name, path string, reliability float64) *WarehouseXLSX {
	return &WarehouseXLSX{meta: metadata(name, TypeWarehouseXLSX, reliability, "shift_change"), path: path}
}

// Metadata implements domain.EventSource.
func (s *WarehouseXLSX) Metadata() domain.SourceMetadata { return s.meta }

// Events implements domain.EventSource.
func (s *WarehouseXLSX) Events(ctx context.Context) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		f, err := excelize.OpenFile(s.path)
		if err != nil {
			yield(domain.Event{}, apperrors.ErrSourceUnavailablef(s.meta.Name, err))
			return
		}
		defer f.Close()

		sheet := f.GetSheetName(0)
		rows, err := f.GetRows(sheet)
		if err != nil {
			yield(domain.Event{}, apperrors.ErrSourceUnavailablef(s.meta.Name, fmt.Errorf("read sheet %q: %w", sheet, err)))
			return
		}

		seq := func(yield func([]string, error) bool) {
			for _, row := range rows {
				if !yield(row, nil) {
					return
				}
			}
		}
		for e, err := range warehouseRows(ctx, s.meta, seq) {
			if !yield(e, err) {
				return
			}
		}
	}
}
