package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/tabsync/internal/config"
)

// loadConfig honors the root --config flag (an explicit file, bypassing
// the default system/user/project search path) if set, falling back to
// config.Load otherwise.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
