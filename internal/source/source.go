// Package source holds the adapters that turn raw feeds into normalized
// inventory events.
//
// Every adapter implements domain.EventSource. Event IDs are derived from
// record content, so re-reading an unchanged feed yields the same IDs and
// event stores drop the duplicates.
package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
)

// Source type identifiers, matching config.SourceConfig.Type.
const (
	TypeWarehouseCSV  = "warehouse_csv"
	TypeWarehouseXLSX = "warehouse_xlsx"
	TypeLogisticsFile = "logistics_file"
	TypeLogisticsHTTP = "logistics_http"
)

// Default source names and reliability scores.
const (
	WarehouseSourceName   = "warehouse_stock"
	LogisticsSourceName   = "logistics_shipments"
	DefaultWarehouseTrust = 0.7
	DefaultLogisticsTrust = 0.9
)

// eventNamespace seeds the deterministic event IDs.
var eventNamespace = uuid.MustParse("6f1d3c52-2a8e-4d47-9a43-0b6f0a5d7e21")

func eventID(parts ...string) string {
	return uuid.NewSHA1(eventNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimestamp accepts RFC 3339 and the common naive layouts. Naive
// values are taken as UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseQuantity accepts integers and integral decimals such as "45.0".
func parseQuantity(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return int64(f), nil
}

func malformed(recordID string, field, code, msg string) error {
	return apperrors.ErrMalformedEventf(recordID, []apperrors.FieldError{{
		Field:   field,
		Code:    code,
		Message: msg,
	}})
}

func metadata(name, typ string, reliability float64, frequency string) domain.SourceMetadata {
	return domain.SourceMetadata{
		Name:             name,
		Type:             typ,
		ReliabilityScore: reliability,
		UpdateFrequency:  frequency,
	}
}
