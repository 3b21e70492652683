package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"narrator/common"
	"narrator/pipelines/timeline"
)

var (
	configPath string
	logLevel   string
	cfg        *common.PipelineConfig
)

var rootCmd = &cobra.Command{
	Use:   "narrator",
	Short: "Turn animation scripts into narrated videos",
	Long: `narrator renders an animation scene, writes narration for each step of its timeline,
fits synthesized speech to the on-screen pauses and muxes the two into one video.
When the renderer fails it falls back to a slideshow and then to a plain text card.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := common.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		common.SetupLogging(loaded.LogLevel)
		cfg = loaded
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(annotateCmd)
}

// readScript loads the script named by args[0] and picks the scene from args[1],
// or the first scene class in the file.
func readScript(args []string) (script, scene string, err error) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("read script: %w", err)
	}
	script = string(data)
	if len(args) > 1 {
		return script, args[1], nil
	}
	scenes := timeline.FindScenes(script)
	if len(scenes) == 0 {
		return "", "", fmt.Errorf("%s: %w", args[0], common.ErrSceneNotFound)
	}
	return script, scenes[0], nil
}
