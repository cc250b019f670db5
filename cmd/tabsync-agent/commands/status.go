package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tabsync/errors"
	"github.com/teranos/tabsync/internal/state"
)

// StatusCmd reports the agent's persisted sync state: device identity,
// lamport clock, and last-sync clock. Tracked windows, queue depth, and
// the scheduler's error streak are runtime-only (owned by a live
// internal/agent.Agent) and so are not shown here; this command reads
// what survives a restart. Grounded on the teacher's "db stats" command
// shape (cmd/qntx/commands/db.go): load config, open the database,
// print a summary.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted device identity and sync state",
	RunE:  runStatus,
}

func init() {
	StatusCmd.Flags().BoolP("json", "j", false, "Output status as JSON")
}

type statusOutput struct {
	DeviceID      string `json:"device_id"`
	LamportClock  string `json:"lamport_clock"`
	LastSyncClock string `json:"last_sync_clock"`
	StatePath     string `json:"state_path"`
	ServerURL     string `json:"server_url"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	db, err := state.OpenWithMigrations(cfg.State.Path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to open state database")
	}
	defer db.Close()

	loaded, err := state.New(db, nil).Load()
	if err != nil {
		return errors.Wrap(err, "failed to load persisted state")
	}

	out := statusOutput{
		DeviceID:      stringOrPlaceholder(loaded.DeviceID, "<not yet assigned>"),
		LamportClock:  stringOrPlaceholder(loaded.LamportClock, "0"),
		LastSyncClock: stringOrPlaceholder(loaded.LastSyncClock, "<never synced>"),
		StatePath:     cfg.State.Path,
		ServerURL:     cfg.Server.URL,
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to format JSON")
		}
		fmt.Println(string(enc))
		return nil
	}

	pterm.DefaultSection.Println("tabsync-agent status")
	pterm.Printf("Device ID:        %s\n", out.DeviceID)
	pterm.Printf("Lamport Clock:    %s\n", out.LamportClock)
	pterm.Printf("Last Sync Clock:  %s\n", out.LastSyncClock)
	pterm.Printf("State Path:       %s\n", out.StatePath)
	pterm.Printf("Server URL:       %s\n", out.ServerURL)
	return nil
}

func stringOrPlaceholder(s *string, placeholder string) string {
	if s == nil {
		return placeholder
	}
	return *s
}
