package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ksefmcp/ksef-mcp/pkg/mcp"
)

func newToolsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools exposed over MCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !asJSON {
				fmt.Print(mcp.FormatCatalog())
				return nil
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(mcp.ToolsListResult{Tools: mcp.Definitions()})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tools/list payload as JSON")
	return cmd
}
