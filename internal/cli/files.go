package cli

import (
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/diane-assistant/filevault/internal/api"
	"github.com/diane-assistant/filevault/internal/formatter"
)

func newStatsCmd(client *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage and deduplication statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			if tryJSON(cmd, st) {
				return nil
			}

			fmt.Println(titleStyle.Render("Storage"))
			fmt.Printf("  Total files:    %d\n", st.TotalFiles)
			fmt.Printf("  Unique files:   %d\n", st.UniqueFiles)
			fmt.Printf("  Total size:     %s\n", formatter.HumanSize(st.TotalSizeBytes))
			fmt.Printf("  Physical size:  %s\n", formatter.HumanSize(st.PhysicalSizeBytes))
			fmt.Printf("  Space saved:    %s (%.1f%% duplicates)\n", formatter.HumanSize(st.SavedSizeBytes), st.DuplicatePercentage)
			return nil
		},
	}
}

func newFilesCmd(client *api.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage stored files",
	}

	cmd.AddCommand(newFilesListCmd(client))
	cmd.AddCommand(newFilesShowCmd(client))
	cmd.AddCommand(newFilesUploadCmd(client))
	cmd.AddCommand(newFilesDeleteCmd(client))
	cmd.AddCommand(newFilesSmallCmd(client))

	return cmd
}

func newFilesListCmd(client *api.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored files",
		RunE: func(cmd *cobra.Command, args []string) error {
			fileType, _ := cmd.Flags().GetString("type")
			query, _ := cmd.Flags().GetString("search")

			var (
				files []api.FileResponse
				err   error
			)
			switch {
			case query != "":
				files, err = client.SearchFiles(cmd.Context(), query)
			case fileType != "":
				files, err = client.FilesByType(cmd.Context(), fileType)
			default:
				files, err = client.ListFiles(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("failed to list files: %w", err)
			}

			if tryJSON(cmd, files) {
				return nil
			}
			if len(files) == 0 {
				fmt.Println("No files found. Use 'filevault files upload <path>' to add one.")
				return nil
			}

			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{
					f.ID,
					f.OriginalFilename,
					f.FileType,
					formatter.HumanSize(f.Size),
					fmt.Sprintf("%d", f.ReferenceCount),
					f.UploadedAt.Local().Format(time.DateTime),
				})
			}
			RenderTable([]string{"ID", "NAME", "TYPE", "SIZE", "REFS", "UPLOADED"}, rows)
			return nil
		},
	}

	cmd.Flags().StringP("type", "t", "", "Filter by type (pdf, image, txt, or a media type)")
	cmd.Flags().StringP("search", "s", "", "Filter by name")

	return cmd
}

func newFilesShowCmd(client *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show file details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := client.GetFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get file: %w", err)
			}
			if tryJSON(cmd, f) {
				return nil
			}

			fmt.Println(titleStyle.Render(f.OriginalFilename))
			fmt.Printf("  ID:          %s\n", f.ID)
			fmt.Printf("  Type:        %s\n", f.FileType)
			fmt.Printf("  Size:        %s\n", formatter.HumanSize(f.Size))
			fmt.Printf("  Hash:        %s\n", f.Hash)
			fmt.Printf("  References:  %d\n", f.ReferenceCount)
			fmt.Printf("  Uploaded:    %s\n", f.UploadedAt.Local().Format(time.DateTime))
			return nil
		},
	}
}

func newFilesUploadCmd(client *api.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mediaType, _ := cmd.Flags().GetString("type")

			var results []*api.UploadResponse
			for _, path := range args {
				mt := mediaType
				if mt == "" {
					mt = mime.TypeByExtension(filepath.Ext(path))
				}
				up, err := client.UploadFile(cmd.Context(), path, mt)
				if err != nil {
					return fmt.Errorf("failed to upload %s: %w", path, err)
				}
				results = append(results, up)
			}

			if tryJSON(cmd, results) {
				return nil
			}
			for _, up := range results {
				if up.IsDuplicate {
					PrintSuccess(fmt.Sprintf("%s %s (%s, %d references)", dupBadge.Render("DUPLICATE"), up.OriginalFilename, up.ID, up.ReferenceCount))
					continue
				}
				PrintSuccess(fmt.Sprintf("Uploaded %s (%s, %s)", up.OriginalFilename, up.ID, formatter.HumanSize(up.Size)))
			}
			return nil
		},
	}

	cmd.Flags().StringP("type", "t", "", "Media type (guessed from the extension when empty)")

	return cmd
}

func newFilesDeleteCmd(client *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete files",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := client.DeleteFile(cmd.Context(), id); err != nil {
					if api.IsNotFound(err) {
						PrintWarning(fmt.Sprintf("File %s not found", id))
						continue
					}
					return fmt.Errorf("failed to delete %s: %w", id, err)
				}
				PrintSuccess(fmt.Sprintf("Deleted %s", id))
			}
			return nil
		},
	}
}

func newFilesSmallCmd(client *api.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "small",
		Short: "List files at or below a size, smallest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			maxMB, _ := cmd.Flags().GetFloat64("max-size")
			if maxMB < 0 {
				return fmt.Errorf("--max-size must not be negative")
			}

			files, err := client.SmallFiles(cmd.Context(), maxMB)
			if err != nil {
				return fmt.Errorf("failed to list small files: %w", err)
			}
			if tryJSON(cmd, files) {
				return nil
			}
			if len(files) == 0 {
				fmt.Printf("No files of %g MB or less.\n", maxMB)
				return nil
			}
			for _, f := range files {
				fmt.Printf("%s - %.2f MB (%s)\n", f.OriginalFilename, float64(f.Size)/(1024*1024), f.FileType)
			}
			return nil
		},
	}

	cmd.Flags().Float64("max-size", 10, "Maximum size in MB")

	return cmd
}
