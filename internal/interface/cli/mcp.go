package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexustext/nxagent/cmd/nxagent/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Start MCP server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server exposing analysis
sessions as tools: start runs, check status, and browse the archive.

Configure in your assistant's MCP config:
  {
    "mcpServers": {
      "nxagent": {
        "command": "nxagent",
        "args": ["serve-mcp"]
      }
    }
  }
`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := mcp.StartServer(cfg, dbPath); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
