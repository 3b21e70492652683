package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"narrator/common"
	"narrator/pipelines/narrated"
)

var renderCmd = &cobra.Command{
	Use:   "render <script> [scene]",
	Short: "Render a scene and narrate it",
	Long:  "Render the scene (the first scene class when omitted), synthesize the narration and mux both into the output directory.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runRenderCommand,
}

var (
	renderTopic   string
	renderLevel   string
	renderQuality string
)

func init() {
	renderCmd.Flags().StringVar(&renderTopic, "topic", "", "Topic hint for generated narration")
	renderCmd.Flags().StringVar(&renderLevel, "level", "", "Audience level for generated narration")
	renderCmd.Flags().StringVarP(&renderQuality, "quality", "q", "", "Render quality: low, medium or high")
}

func runRenderCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, closeFn, err := narrated.New(ctx, cfg, common.NewExecRunner())
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := pipeline.Process(ctx, renderRequest(args))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// renderRequest leaves the scene empty when none is given; the pipeline picks the
// first scene class or, with none, renders a silent fallback video.
func renderRequest(args []string) narrated.Request {
	req := narrated.Request{
		ScriptPath: args[0],
		Topic:      renderTopic,
		Level:      renderLevel,
		Quality:    renderQuality,
	}
	if len(args) > 1 {
		req.SceneName = args[1]
	}
	return req
}
