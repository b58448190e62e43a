package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"

	"jniscan/internal/scanner"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	libStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	archStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	countStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// renderSummary lists one line per library followed by the facts directory.
func renderSummary(reports []*scanner.Report, outDir string) string {
	var b strings.Builder
	scanned := 0
	for _, rep := range reports {
		b.WriteString(libStyle.Render(filepath.Base(rep.Lib)))
		b.WriteString(" ")
		if rep.Skipped != "" {
			b.WriteString(skipStyle.Render("skipped: " + rep.Skipped))
			b.WriteString("\n")
			continue
		}
		scanned++
		b.WriteString(archStyle.Render("[" + rep.Arch.String() + "]"))
		fmt.Fprintf(&b, " %s entry points, %s strings, %s attributed, %s names, %s method types",
			countStyle.Render(fmt.Sprint(rep.EntryPoints)),
			countStyle.Render(fmt.Sprint(rep.Strings)),
			countStyle.Render(fmt.Sprint(rep.Correlated)),
			countStyle.Render(fmt.Sprint(rep.Names)),
			countStyle.Render(fmt.Sprint(rep.MethodTypes)))
		if rep.JNIEnv.Any() {
			b.WriteString(skipStyle.Render(" (JNIEnv lookups)"))
		}
		b.WriteString("\n")
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("%d of %d libraries scanned, facts in %s", scanned, len(reports), outDir)))
	return b.String()
}
