package shopping

import (
	"fmt"
	"math"
	"strings"
)

// FormatText renders list as plain text for sharing.
func FormatText(list *List) string {
	var sb strings.Builder
	sb.WriteString("📋 Shopping List for the Week\n\n")
	if list == nil {
		list = NewList()
	}

	for _, cat := range list.Order {
		fmt.Fprintf(&sb, "🛒 %s:\n", cat)
		for _, it := range list.Categories[cat] {
			mark := "◻"
			if it.Checked {
				mark = "✓"
			}
			sb.WriteString(mark + " " + it.Name)
			if it.Measure != "" {
				fmt.Fprintf(&sb, " (%s)", it.Measure)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	percent := int(math.Round(list.Progress() * 100))
	fmt.Fprintf(&sb, "\nProgress: %d/%d items (%d%%)", list.CheckedItems, list.TotalItems, percent)
	return sb.String()
}
