package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/diane-assistant/filevault/internal/api"
)

// Version is set by the caller when creating the root command
var cliVersion string

// NewRootCmd creates the root command with all subcommands.
// The client is used for all API calls to the filevault daemon.
func NewRootCmd(client *api.Client, version string) *cobra.Command {
	cliVersion = version

	rootCmd := &cobra.Command{
		Use:   "filevault",
		Short: "Filevault file store and assistant control utility",
		Long: titleStyle.Render("Filevault") + " " + dimStyle.Render(version) + "\n" +
			"  A deduplicating file store with a conversational assistant.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	}

	rootCmd.AddCommand(newHealthCmd(client))
	rootCmd.AddCommand(newStatsCmd(client))
	rootCmd.AddCommand(newFilesCmd(client))
	rootCmd.AddCommand(newChatCmd(client))
	rootCmd.AddCommand(newSessionsCmd(client))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// --- Utility commands that are simple enough to live here ---

func newHealthCmd(client *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check if the filevault daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Health(cmd.Context()); err != nil {
				PrintError(fmt.Sprintf("Filevault is not running: %v", err))
				os.Exit(1)
			}
			PrintSuccess("Filevault is running")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("filevault %s\n", cliVersion)
		},
	}
}

// --- JSON output helper ---

// tryJSON returns true if --json was set and data was printed
func tryJSON(cmd *cobra.Command, v interface{}) bool {
	jsonFlag, _ := cmd.Flags().GetBool("json")
	if !jsonFlag {
		return false
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return false
	}
	fmt.Println(string(out))
	return true
}
