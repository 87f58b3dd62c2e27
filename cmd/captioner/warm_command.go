package main

import (
	"github.com/spf13/cobra"

	"captioner/internal/engine"
)

type warmResult struct {
	Model     string        `json:"model"`
	Precision string        `json:"precision"`
	Loaded    []engine.Info `json:"loaded"`
}

func newWarmCommand(ctx *commandContext) *cobra.Command {
	var size string

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Load a transcription model without running a job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd.Context(), func(p *pipeline) error {
				key, precision, err := p.orchestrator.Warm(cmd.Context(), size)
				if err != nil {
					return err
				}
				result := warmResult{Model: key.Model, Precision: precision, Loaded: p.pool.Loaded()}
				return ctx.emit(cmd, result, func() string { return renderEngines(result.Loaded) })
			})
		},
	}

	cmd.Flags().StringVar(&size, "size", "", "Model size to load (defaults to the configured model)")
	return cmd
}

func renderEngines(infos []engine.Info) string {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		lang := info.Language
		if lang == "" {
			lang = "-"
		}
		rows = append(rows, []string{string(info.Kind), info.Model, lang, info.Device, info.Precision})
	}
	return renderTable([]string{"Kind", "Model", "Language", "Device", "Precision"}, rows, nil)
}
