package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/diane-assistant/filevault/internal/api"
)

func newSessionsCmd(client *api.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage chat sessions",
	}

	cmd.AddCommand(newSessionsListCmd(client))
	cmd.AddCommand(newSessionsShowCmd(client))
	cmd.AddCommand(newSessionsRenameCmd(client))
	cmd.AddCommand(newSessionsDeleteCmd(client))

	return cmd
}

func newSessionsListCmd(client *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := client.ListSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			if tryJSON(cmd, sessions) {
				return nil
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions found. Use 'filevault chat <message>' to start one.")
				return nil
			}

			fmt.Println(titleStyle.Render("Sessions"))
			for _, s := range sessions {
				age := formatDuration(time.Since(s.UpdatedAt))
				fmt.Printf("  %s %s  %s\n", headerStyle.Render(s.Title), dimStyle.Render(s.ID), dimStyle.Render(age+" ago"))
			}
			return nil
		},
	}
}

func newSessionsShowCmd(client *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := client.GetSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}
			if tryJSON(cmd, detail) {
				return nil
			}

			fmt.Println(titleStyle.Render(detail.Title))
			for _, m := range detail.Messages {
				fmt.Printf("%s %s\n", RoleBadge(m.Role), m.Content)
				if len(m.FileAttachments) > 0 {
					fmt.Printf("  %s\n", dimStyle.Render(fmt.Sprintf("%d attachment(s)", len(m.FileAttachments))))
				}
			}
			return nil
		},
	}
}

func newSessionsRenameCmd(client *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.RenameSession(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("failed to rename session: %w", err)
			}
			PrintSuccess(fmt.Sprintf("Session renamed to %q", args[1]))
			return nil
		},
	}
}

func newSessionsDeleteCmd(client *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a session and its messages",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.DeleteSession(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			PrintSuccess(fmt.Sprintf("Session %s deleted", args[0]))
			return nil
		},
	}
}

// formatDuration formats a duration as human-readable
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
