package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/harvx/reddit-etl/internal/etl"
	"github.com/harvx/reddit-etl/internal/integrity"
)

var (
	suspectHeadingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	cleanHeadingStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
)

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Probe monthly archives for corrupted zstd frames (C10)",
	RunE:  runIntegrity,
}

func init() {
	flags := integrityCmd.Flags()
	flags.Bool("full", false, "stream every file end to end instead of sampling (slower, catches checksum mismatches)")
	flags.Int64("sample-bytes", 0, "quick-mode sample size; 0 selects the default")
}

func runIntegrity(cmd *cobra.Command, args []string) error {
	opts := resolved.Options
	flags := cmd.Flags()

	full, _ := flags.GetBool("full")
	sampleBytes, _ := flags.GetInt64("sample-bytes")

	mode := integrity.Quick
	if full {
		mode = integrity.Full
	}

	e := etl.NewEngine()
	suspects, err := e.CheckIntegrity(cmd.Context(), integrity.Options{
		BaseDir:     opts.BaseDir,
		Sources:     opts.SourceKind(),
		Window:      opts.DateRange(),
		Mode:        mode,
		SampleBytes: sampleBytes,
	})

	if len(suspects) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), suspectHeadingStyle.Render(fmt.Sprintf("%d suspect file(s) found", len(suspects))))
		tw := tablewriter.NewWriter(cmd.OutOrStdout())
		tw.SetHeader([]string{"PATH", "REASON"})
		tw.SetBorder(true)
		tw.SetAutoWrapText(false)
		for _, s := range suspects {
			tw.Append([]string{s.Path, string(s.Reason)})
		}
		tw.Render()
	} else if err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), cleanHeadingStyle.Render("integrity check passed, no suspect files"))
	}

	return err
}
