package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diane-assistant/filevault/internal/api"
	"github.com/diane-assistant/filevault/internal/orchestrator"
)

func newChatCmd(client *api.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Talk to the file assistant",
		Long: "Send a message to the assistant. Without a message, reads one\n" +
			"message per line from stdin and keeps the same session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			attach, _ := cmd.Flags().GetStringSlice("attach")

			send := func(message string) error {
				resp, err := client.Chat(cmd.Context(), orchestrator.Request{
					Message:           message,
					AttachmentFileIDs: attach,
					SessionID:         sessionID,
				})
				if err != nil {
					return fmt.Errorf("chat failed: %w", err)
				}
				sessionID = resp.SessionID
				attach = nil
				if tryJSON(cmd, resp) {
					return nil
				}
				fmt.Printf("%s %s\n", RoleBadge("assistant"), resp.Response)
				return nil
			}

			if len(args) > 0 {
				if err := send(strings.Join(args, " ")); err != nil {
					return err
				}
				if jsonFlag, _ := cmd.Flags().GetBool("json"); !jsonFlag {
					fmt.Println(dimStyle.Render("session " + sessionID))
				}
				return nil
			}

			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				line := strings.TrimSpace(sc.Text())
				if line == "" {
					continue
				}
				if err := send(line); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}

	cmd.Flags().String("session", "", "Continue an existing session")
	cmd.Flags().StringSlice("attach", nil, "IDs of stored files to attach to the first message")

	return cmd
}
