package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tobitege/tiny-clips-mac/internal/trim"
)

var trimOpts struct {
	start time.Duration
	end   time.Duration
}

var trimCmd = &cobra.Command{
	Use:   "trim <file.mp4>",
	Short: "Trim a finished recording to a time range",
	Long: `Re-encodes the [--start, --end) range of a finished MP4 into a new
"<name> (trimmed).mp4" next to it. The original is deleted only after the
trimmed file is written successfully.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := trim.NewVideoExporter()
		if err != nil {
			return err
		}
		path, err := exporter.Export(cmd.Context(), args[0], trim.Range{
			Start: trimOpts.start,
			End:   trimOpts.end,
		})
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trimCmd)

	f := trimCmd.Flags()
	f.DurationVar(&trimOpts.start, "start", 0, "range start on the recording timeline")
	f.DurationVar(&trimOpts.end, "end", 0, "range end (exclusive)")
	trimCmd.MarkFlagRequired("end")
}
