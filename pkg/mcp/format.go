package mcp

import (
	"fmt"
	"strings"
)

// FormatCatalog formats the tool catalog as a text table.
func FormatCatalog() string {
	if len(registry) == 0 {
		return "No tools registered."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-28s %-6s %-40s %s\n", "Tool", "Remote", "Required", "Description")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	for _, t := range registry {
		remote := "no"
		if t.remote {
			remote = "yes"
		}
		required := strings.Join(t.schema.Required(), ",")
		if required == "" {
			required = "-"
		}
		if len(required) > 40 {
			required = required[:37] + "..."
		}
		fmt.Fprintf(&b, "%-28s %-6s %-40s %s\n", t.name, remote, required, t.description)
	}
	return b.String()
}
