package source

import (
	"fmt"

	"aura.dev/aura/internal/config"
	"aura.dev/aura/internal/domain"
)

// FromConfig builds one adapter per configured source.
func FromConfig(cfgs []config.SourceConfig) ([]domain.EventSource, error) {
	out := make([]domain.EventSource, 0, len(cfgs))
	for _, c := range cfgs {
		src, err := fromConfig(c)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func fromConfig(c config.SourceConfig) (domain.EventSource, error) {
	var meta *domain.SourceMetadata
	var src domain.EventSource
	switch c.Type {
	case TypeWarehouseCSV:
		s := NewWarehouseCSV(c.Name, c.Path, c.ReliabilityScore)
		src, meta = s, &s.meta
	case TypeWarehouseXLSX:
		s := NewWarehouseXLSX(c.Name, c.Path, c.ReliabilityScore)
		src, meta = s, &s.meta
	case TypeLogisticsFile:
		s := NewLogisticsFile(c.Name, c.Path, c.ReliabilityScore)
		src, meta = s, &s.meta
	case TypeLogisticsHTTP:
		s := NewLogisticsHTTP(c.Name, c.Endpoint, c.ReliabilityScore, c.Timeout)
		src, meta = s, &s.meta
	default:
		return nil, fmt.Errorf("source %q: unsupported type %q", c.Name, c.Type)
	}
	if c.UpdateFrequency != "" && c.UpdateFrequency != "unknown" {
		meta.UpdateFrequency = c.UpdateFrequency
	}
	return src, nil
}
