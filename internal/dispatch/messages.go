package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/klytics/sheetkit/internal/query"
)

const helpText = `**AI Agent Commands**

**Data**
• "Show sheet data": Table
• "Search acme": Find rows
• "Count records": Stats
• "Export data": CSV

**Analysis**
• "Generate summary": Insights & recs

**Email**
• "Create email to a@b.com subject Weekly Update": Draft

**Natural language**
Ask anything about the data; I'll route it.`

func unknownText(command string) string {
	return fmt.Sprintf("I received: %q\n\nTry:\n• \"Show sheet data\"\n• \"Search {term}\"\n• \"Generate summary\"\n• \"Export data\"\n• \"Help\"", command)
}

func statsText(s query.Summary, actor string) string {
	var b strings.Builder
	b.WriteString("**Sheet Statistics**\n\n")
	fmt.Fprintf(&b, "**Total Records:** %d\n", s.Records)
	fmt.Fprintf(&b, "**Columns:** %d (%s)\n", len(s.Columns), strings.Join(s.Columns, ", "))
	fmt.Fprintf(&b, "**Admin:** %s\n", actor)
	fmt.Fprintf(&b, "**Last Updated:** %s", s.GeneratedAt.Format(TimestampLayout))

	numeric := s.NumericFields()
	if len(numeric) > 0 {
		b.WriteString("\n\n**Numeric Columns:**")
		for _, f := range numeric {
			n := f.Numeric
			fmt.Fprintf(&b, "\n• %s: min %s, max %s, mean %s, median %s, sum %s",
				f.Name, formatNumber(n.Min), formatNumber(n.Max), formatNumber(n.Mean),
				formatNumber(n.Median), formatNumber(n.Sum))
		}
	}
	return b.String()
}

// formatNumber prints whole numbers without decimals and everything else
// rounded to two places.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
