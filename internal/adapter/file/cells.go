package file

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/couchcryptid/service-request-etl/internal/domain"
	h3 "github.com/uber/h3-go/v3"
)

// GeoJSON reference cell export. Each feature's properties carry the H3
// index as a hex string plus its resolution; geometry is ignored since only
// membership matters here.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties cellProperties `json:"properties"`
}

type cellProperties struct {
	Index      string `json:"index"`
	Resolution int    `json:"resolution"`
}

// ReadCellSet loads the authoritative cell universe from a GeoJSON
// FeatureCollection. Only features at the pipeline's fixed resolution enter
// the set, so a mixed-resolution export (8-10) yields the same set as the
// pre-filtered resolution-8 file.
func ReadCellSet(path string) (domain.CellSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cell set: %w", err)
	}

	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse cell set %s: %w", path, err)
	}

	indexes := make([]uint64, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Properties.Resolution != domain.HexResolution {
			continue
		}
		idx := parseHexCell(f.Properties.Index)
		if idx == 0 {
			return nil, fmt.Errorf("cell set %s: invalid index %q", path, f.Properties.Index)
		}
		indexes = append(indexes, idx)
	}

	if len(indexes) == 0 {
		return nil, fmt.Errorf("cell set %s: no resolution-%d cells", path, domain.HexResolution)
	}
	return domain.NewCellSet(indexes), nil
}

// parseHexCell converts an H3 hex string (e.g. "88ad361801fffff") to its
// uint64 index. Returns 0 for anything unparseable.
func parseHexCell(s string) uint64 {
	idx := h3.FromString(s)
	if !h3.IsValid(idx) {
		return 0
	}
	return uint64(idx)
}
