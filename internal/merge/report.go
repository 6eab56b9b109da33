package merge

import (
	"github.com/dreamware/ncmerge/internal/container"
)

// Skip records a definition or payload the merge left out.
type Skip struct {
	Part   string `json:"part,omitempty"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// DimensionConflict records a source dimension that disagreed with the
// same-named destination dimension. The destination keeps its definition.
type DimensionConflict struct {
	Part    string              `json:"part,omitempty"`
	Kept    container.Dimension `json:"kept"`
	Ignored container.Dimension `json:"ignored"`
}

// SchemaReport describes one MergeSchema pass.
type SchemaReport struct {
	Defined            []string
	Skipped            []Skip
	DroppedLayouts     []Skip
	DimensionConflicts []DimensionConflict
	AttributeFailures  []Skip
}

// DataReport describes one CopyData pass.
type DataReport struct {
	Copied  []string
	Skipped []Skip
}

// FormatMismatch records differing part formats. The destination uses A's.
type FormatMismatch struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Report summarizes a whole merge.
type Report struct {
	Format             string              `json:"format"`
	Mismatch           *FormatMismatch     `json:"format_mismatch,omitempty"`
	Skipped            []Skip              `json:"skipped,omitempty"`
	DroppedLayouts     []Skip              `json:"dropped_layouts,omitempty"`
	DimensionConflicts []DimensionConflict `json:"dimension_conflicts,omitempty"`
	AttributeFailures  []Skip              `json:"attribute_failures,omitempty"`
	PayloadSkips       []Skip              `json:"payload_skips,omitempty"`
}

func tag(part string, skips []Skip) []Skip {
	for i := range skips {
		skips[i].Part = part
	}
	return skips
}

func (r *Report) addSchema(part string, s *SchemaReport) {
	if s == nil {
		return
	}
	r.Skipped = append(r.Skipped, tag(part, s.Skipped)...)
	r.DroppedLayouts = append(r.DroppedLayouts, tag(part, s.DroppedLayouts)...)
	r.AttributeFailures = append(r.AttributeFailures, tag(part, s.AttributeFailures)...)
	for _, c := range s.DimensionConflicts {
		c.Part = part
		r.DimensionConflicts = append(r.DimensionConflicts, c)
	}
}

func (r *Report) addData(part string, d *DataReport) {
	if d == nil {
		return
	}
	r.PayloadSkips = append(r.PayloadSkips, tag(part, d.Skipped)...)
}

// SkippedVariables returns the names of variables missing from the merged
// schema or whose payload was not copied, in report order without duplicates.
func (r *Report) SkippedVariables() []string {
	seen := make(map[string]bool)
	var names []string
	for _, list := range [][]Skip{r.Skipped, r.PayloadSkips} {
		for _, s := range list {
			if !seen[s.Name] {
				seen[s.Name] = true
				names = append(names, s.Name)
			}
		}
	}
	return names
}
