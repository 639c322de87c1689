package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	trkmcp "github.com/mfeld/trk/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents query and update the issue board natively,
with the same duplicate check the CLI applies. Configure with:

  {
    "mcpServers": {
      "trk": { "command": "trk", "args": ["mcp"] }
    }
  }

Available tools: trk_list_issues, trk_create_issue, trk_check_duplicates,
trk_update_status, trk_list_users`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		srv := trkmcp.NewServer(s, viper.GetBool("dedupe.enabled"))
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
