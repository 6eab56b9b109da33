package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dreamware/ncmerge/internal/container"
)

// writeCDL prints a description in the header notation of ncdump.
func writeCDL(w io.Writer, d container.Description) error {
	var b strings.Builder
	fmt.Fprintf(&b, "// format: %s\n", d.Format)
	if len(d.Dimensions) > 0 {
		b.WriteString("dimensions:\n")
		for _, dim := range d.Dimensions {
			if dim.Unlimited {
				fmt.Fprintf(&b, "\t%s = UNLIMITED ; // (%d currently)\n", dim.Name, dim.Length)
				continue
			}
			fmt.Fprintf(&b, "\t%s = %d ;\n", dim.Name, dim.Length)
		}
	}
	if len(d.Variables) > 0 {
		b.WriteString("variables:\n")
		for _, v := range d.Variables {
			if len(v.Dimensions) == 0 {
				fmt.Fprintf(&b, "\t%s %s ;\n", v.Type, v.Name)
			} else {
				fmt.Fprintf(&b, "\t%s %s(%s) ;\n", v.Type, v.Name, strings.Join(v.Dimensions, ", "))
			}
			for _, a := range v.Attributes {
				fmt.Fprintf(&b, "\t\t%s:%s = %s ;\n", v.Name, a.Name, cdlValue(a.Value))
			}
		}
	}
	if len(d.Attributes) > 0 {
		b.WriteString("\n// global attributes:\n")
		for _, a := range d.Attributes {
			fmt.Fprintf(&b, "\t\t:%s = %s ;\n", a.Name, cdlValue(a.Value))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func cdlValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return strings.ReplaceAll(strings.Trim(fmt.Sprint(v), "[]"), " ", ", ")
}
