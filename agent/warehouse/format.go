package warehouse

import (
	"fmt"
	"strings"
)

// FormatResult renders rows as a compact pipe-separated table, the shape the
// SQL agent feeds back to the model as an observation.
func FormatResult(res Result) string {
	if len(res.Columns) == 0 {
		return "(no columns)"
	}
	var b strings.Builder
	b.WriteString(strings.Join(res.Columns, " | "))
	if len(res.Rows) == 0 {
		b.WriteString("\n(0 rows)")
		return b.String()
	}
	for _, row := range res.Rows {
		b.WriteByte('\n')
		for i, v := range row {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(formatValue(v))
		}
	}
	if res.Truncated {
		fmt.Fprintf(&b, "\n(truncated to %d rows)", len(res.Rows))
	}
	return b.String()
}

// FormatTable renders a table definition followed by its sample rows.
func FormatTable(t Table, sample Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.Name)
	for i, c := range t.Columns {
		null := ""
		if strings.EqualFold(c.Nullable, "NO") {
			null = " NOT NULL"
		}
		fmt.Fprintf(&b, "\t%s %s%s", c.Name, c.DataType, null)
		if i < len(t.Columns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(")")
	if len(sample.Rows) > 0 {
		fmt.Fprintf(&b, "\n\n/*\n%d rows from %s table:\n%s\n*/", len(sample.Rows), t.Name, FormatResult(sample))
	}
	return b.String()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
