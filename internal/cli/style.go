package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Styles
var (
	// Colors
	highlight  = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special    = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning    = lipgloss.AdaptiveColor{Light: "#F29F05", Dark: "#F29F05"}
	errorColor = lipgloss.AdaptiveColor{Light: "#E05252", Dark: "#E05252"}

	// Text styles
	titleStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	// Status dots
	okDot   = lipgloss.NewStyle().Foreground(special).SetString("●")
	warnDot = lipgloss.NewStyle().Foreground(warning).SetString("●")
	errDot  = lipgloss.NewStyle().Foreground(errorColor).SetString("●")

	// Badges
	badgeStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#ffffff")).
			Bold(true)

	userBadge      = badgeStyle.Background(lipgloss.Color("#3C8AFF")) // Blue
	assistantBadge = badgeStyle.Background(lipgloss.Color("#8E44AD")) // Purple
	dupBadge       = badgeStyle.Background(lipgloss.Color("#7F8C8D")) // Grey
)

// Helper functions for common output patterns

func PrintSuccess(msg string) {
	fmt.Printf("%s %s\n", okDot.String(), msg)
}

func PrintError(msg string) {
	fmt.Printf("%s %s\n", errDot.String(), msg)
}

func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", warnDot.String(), msg)
}

func RenderTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Print(headerStyle.Width(widths[i] + 2).Render(h))
	}
	fmt.Println()

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Print(lipgloss.NewStyle().Width(widths[i]+2).Padding(0, 1).Render(cell))
			}
		}
		fmt.Println()
	}
}

// RoleBadge renders a chat message role.
func RoleBadge(role string) string {
	switch role {
	case "user":
		return userBadge.Render("YOU")
	case "assistant":
		return assistantBadge.Render("ASSISTANT")
	default:
		return badgeStyle.Background(lipgloss.Color("#95A5A6")).Render(role)
	}
}
