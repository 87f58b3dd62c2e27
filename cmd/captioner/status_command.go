package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"captioner/internal/engine/sidecar"
	"captioner/internal/preflight"
	"captioner/internal/staging"
)

type statusReport struct {
	Checks     []preflight.Result `json:"checks"`
	Workspaces int                `json:"workspaces"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check directories, ffmpeg and the inference sidecar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			client := sidecar.New(cfg.Engines.SidecarURL, cfg.EngineTimeout(), logger)
			report := statusReport{Checks: preflight.RunAll(cmd.Context(), cfg, client)}
			if dirs, err := staging.ListDirectories(cfg.Paths.StagingDir); err == nil {
				report.Workspaces = len(dirs)
			}

			if err := ctx.emit(cmd, report, func() string { return renderStatus(report) }); err != nil {
				return err
			}
			return preflight.Err(report.Checks)
		},
	}
}

func renderStatus(report statusReport) string {
	rows := make([][]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		rows = append(rows, []string{check.Name, checkLabel(check), check.Detail})
	}
	var b strings.Builder
	b.WriteString(renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Job workspaces on disk: %d", report.Workspaces)
	return b.String()
}

func checkLabel(check preflight.Result) string {
	switch {
	case check.Passed:
		return "OK"
	case check.Optional:
		return "WARN"
	default:
		return "FAIL"
	}
}
