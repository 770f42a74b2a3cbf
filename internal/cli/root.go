// Package cli implements the guidancectl commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-guidance/internal/guidance"
)

var (
	dbPath     string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "guidancectl",
	Short: "Plan a student's study week",
	Long:  "Offline study planner. Load a topic catalog, record weekly slots and progress, and plan or commit a week. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $GUIDANCE_DB or ~/.pai-guidance/guidance.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("GUIDANCE_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pai-guidance", "guidance.db")
}

// openService opens the SQLite store and wires a service over it. The
// caller closes the store.
func openService() (*guidance.Service, *guidance.SQLiteStore, error) {
	s, err := guidance.NewSQLiteStore(getDBPath())
	if err != nil {
		return nil, nil, err
	}
	svc := guidance.NewService(guidance.ServiceConfig{
		Catalog:  s,
		Progress: s,
		Slots:    s,
		Events:   s,
	})
	return svc, s, nil
}

func textOutput() bool {
	return formatFlag == "text"
}

func printJSON(cmd *cobra.Command, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
