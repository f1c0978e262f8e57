package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"aura.dev/aura/internal/domain"
	apperrors "aura.dev/aura/internal/pkg/errors"
)

const shipmentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["shipment_id", "parts", "status", "last_updated"],
  "properties": {
    "shipment_id": {"type": "string", "minLength": 1},
    "supplier": {"type": "string"},
    "status": {"type": "string", "minLength": 1},
    "estimated_arrival": {"type": "string"},
    "last_updated": {"type": "string", "minLength": 1},
    "parts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["part_id", "quantity_shipped"],
        "properties": {
          "part_id": {"type": "string", "minLength": 1},
          "quantity_shipped": {"type": "integer", "minimum": 0},
          "unit_cost_usd": {"type": "number"}
        }
      }
    }
  }
}`

var compiledShipmentSchema = jsonschema.MustCompileString("shipment.json", shipmentSchema)

type feedDocument struct {
	Shipments []json.RawMessage `json:"shipments"`
}

type shipmentRecord struct {
	ShipmentID       string `json:"shipment_id"`
	Supplier         string `json:"supplier"`
	Status           string `json:"status"`
	EstimatedArrival string `json:"estimated_arrival"`
	LastUpdated      string `json:"last_updated"`
	Parts            []struct {
		PartID          string `json:"part_id"`
		QuantityShipped int64  `json:"quantity_shipped"`
	} `json:"parts"`
}

// LogisticsFeed reads the nested shipment document
//
//	{"shipments": [{"shipment_id", "supplier", "status", "estimated_arrival",
//	  "last_updated", "parts": [{"part_id", "quantity_shipped"}]}]}
//
// from a file or an HTTP endpoint and yields one event per part. Each
// shipment is checked against a JSON schema; a shipment that fails is
// rejected on its own.
type LogisticsFeed struct {
	meta     domain.SourceMetadata
	path     string
	endpoint string
	client   *http.Client
}

// NewLogisticsFile creates a feed read from a local JSON file.
func NewLogisticsFile(name, path string, reliability float64) *LogisticsFeed {
	return &LogisticsFeed{meta: metadata(name, TypeLogisticsFile, reliability, "realtime"), path: path}
}

// NewLogisticsHTTP creates a feed fetched with GET from endpoint.
func NewLogisticsHTTP(name, endpoint string, reliability float64, timeout time.Duration) *LogisticsFeed {
	return &LogisticsFeed{
		meta:     metadata(name, TypeLogisticsHTTP, reliability, "realtime"),
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Metadata implements domain.EventSource.
func (s *LogisticsFeed) Metadata() domain.SourceMetadata { return s.meta }

// Events implements domain.EventSource.
func (s *LogisticsFeed) Events(ctx context.Context) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		raw, err := s.fetch(ctx)
		if err != nil {
			yield(domain.Event{}, apperrors.ErrSourceUnavailablef(s.meta.Name, err))
			return
		}
		var doc feedDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			yield(domain.Event{}, apperrors.ErrSourceUnavailablef(s.meta.Name, fmt.Errorf("decode feed: %w", err)))
			return
		}
		for i, rawShipment := range doc.Shipments {
			for e, err := range s.shipmentEvents(i, rawShipment) {
				if !yield(e, err) {
					return
				}
			}
		}
	}
}

func (s *LogisticsFeed) fetch(ctx context.Context) ([]byte, error) {
	if s.endpoint == "" {
		return os.ReadFile(s.path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", s.endpoint, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *LogisticsFeed) shipmentEvents(index int, raw json.RawMessage) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		recordID := fmt.Sprintf("%s:shipment[%d]", s.meta.Name, index)

		var payload any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			yield(domain.Event{}, malformed(recordID, "shipment", "json", err.Error()))
			return
		}
		if err := compiledShipmentSchema.Validate(payload); err != nil {
			yield(domain.Event{}, apperrors.ErrMalformedEventf(recordID, schemaFieldErrors(err)))
			return
		}

		var rec shipmentRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			yield(domain.Event{}, malformed(recordID, "shipment", "json", err.Error()))
			return
		}
		ts, err := parseTimestamp(rec.LastUpdated)
		if err != nil {
			yield(domain.Event{}, malformed(rec.ShipmentID, "last_updated", "timestamp", err.Error()))
			return
		}
		eventType, semantic, status := classifyShipment(rec.Status)

		for _, part := range rec.Parts {
			partID := domain.NormalizeItemID(part.PartID)
			e := domain.Event{
				EventID:          eventID(s.meta.Name, rec.ShipmentID, partID, rec.Status, ts.Format(time.RFC3339Nano)),
				EventType:        eventType,
				ItemID:           partID,
				Quantity:         part.QuantityShipped,
				QuantitySemantic: semantic,
				EventTimestamp:   ts,
				SourceSystem:     s.meta.Name,
				ReliabilityScore: s.meta.ReliabilityScore,
				Status:           status,
				Supplier:         rec.Supplier,
				ShipmentID:       rec.ShipmentID,
				EstimatedArrival: rec.EstimatedArrival,
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// classifyShipment maps a feed status to event type, quantity semantic and
// normalized shipment status. Any other status (dispatched, cancelled,
// returned) becomes a dispatch with no status, which resolution ignores.
func classifyShipment(status string) (domain.EventType, domain.QuantitySemantic, domain.ShipmentStatus) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(domain.ShipmentInTransit):
		return domain.EventShipmentInTransit, domain.SemanticInTransit, domain.ShipmentInTransit
	case string(domain.ShipmentDelivered):
		return domain.EventGoodsReceipt, domain.SemanticDelivered, domain.ShipmentDelivered
	}
	return domain.EventShipmentDispatch, domain.SemanticInTransit, ""
}

func schemaFieldErrors(err error) []apperrors.FieldError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []apperrors.FieldError{{Field: "shipment", Code: "schema", Message: err.Error()}}
	}
	var out []apperrors.FieldError
	var walk func(v *jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			field := v.InstanceLocation
			if field == "" {
				field = "shipment"
			}
			out = append(out, apperrors.FieldError{Field: field, Code: "schema", Message: v.Message})
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}
