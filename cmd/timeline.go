package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"narrator/common"
	"narrator/pipelines/narration"
	"narrator/pipelines/timeline"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline <script> [scene]",
	Short: "Print the extracted timeline and planned narration as JSON",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTimelineCommand,
}

type timelineReport struct {
	Scene     string                    `json:"scene"`
	TotalWait float64                   `json:"total_wait"`
	Steps     []common.TimelineStep     `json:"steps"`
	Segments  []common.NarrationSegment `json:"segments"`
}

func runTimelineCommand(cmd *cobra.Command, args []string) error {
	script, scene, err := readScript(args)
	if err != nil {
		return err
	}
	steps := timeline.Extract(script, scene)
	report := timelineReport{
		Scene:     scene,
		TotalWait: timeline.TotalWait(steps),
		Steps:     steps,
		Segments:  narration.NewPlanner().Plan(steps),
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
