package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"narrator/pipelines/narration"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <script> [scene]",
	Short: "Write a copy of the script with narration comments above each step",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAnnotateCommand,
}

var annotateOutput string

func init() {
	annotateCmd.Flags().StringVarP(&annotateOutput, "output", "o", "", "Output file (default <script>_annotated.py)")
}

func runAnnotateCommand(cmd *cobra.Command, args []string) error {
	script, scene, err := readScript(args)
	if err != nil {
		return err
	}

	annotated, added := narration.Annotate(script, scene, narration.NewPlanner())

	out := annotateOutput
	if out == "" {
		ext := filepath.Ext(args[0])
		out = strings.TrimSuffix(args[0], ext) + "_annotated" + ext
	}
	if err := os.WriteFile(out, []byte(annotated), 0644); err != nil {
		return fmt.Errorf("write annotated script: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %d annotations to %s, wrote %s\n", added, scene, out)
	return nil
}
