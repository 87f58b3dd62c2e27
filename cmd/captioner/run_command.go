package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"captioner/internal/delivery"
	"captioner/internal/media"
	"captioner/internal/workflow"
)

type runFlags struct {
	language string
	speakers int
	size     string
	callback string
	id       string
	output   string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run SOURCE",
		Short: "Caption a local file or an http(s) URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := sourceFromArg(args[0])
			if err != nil {
				return err
			}
			job := workflow.Job{
				ID:    strings.TrimSpace(flags.id),
				Input: source,
				Options: workflow.Options{
					Language:     flags.language,
					SpeakerCount: flags.speakers,
					Size:         flags.size,
				},
				CallbackURL: strings.TrimSpace(flags.callback),
			}
			return ctx.withPipeline(cmd.Context(), func(p *pipeline) error {
				if err := p.preflight(cmd.Context()); err != nil {
					return err
				}
				report := p.orchestrator.Run(cmd.Context(), job)
				return emitReport(cmd, report, flags.output, ctx.jsonOutput(cmd))
			})
		},
	}

	cmd.Flags().StringVarP(&flags.language, "language", "l", "", "Language hint (ISO 639-1 code or auto)")
	cmd.Flags().IntVarP(&flags.speakers, "speakers", "s", 0, "Exact number of speakers, 0 to detect")
	cmd.Flags().StringVar(&flags.size, "size", "", "Transcription model size")
	cmd.Flags().StringVar(&flags.callback, "callback", "", "URL that receives the job result")
	cmd.Flags().StringVar(&flags.id, "id", "", "Job identifier (generated when empty)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write the SRT document to this file")
	return cmd
}

// sourceFromArg treats http(s) arguments as URLs and everything else as a
// local path.
func sourceFromArg(arg string) (media.Source, error) {
	arg = strings.TrimSpace(arg)
	if parsed, err := url.Parse(arg); err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") {
		return media.Source{URL: arg}, nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return media.Source{}, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return media.Source{}, fmt.Errorf("source %s: %w", arg, err)
	}
	if info.IsDir() {
		return media.Source{}, fmt.Errorf("source %s is a directory", arg)
	}
	return media.Source{Path: abs, Filename: filepath.Base(abs)}, nil
}

// emitReport writes the SRT file when requested, prints the report and turns
// a failed job into a non-zero exit.
func emitReport(cmd *cobra.Command, report workflow.Report, outputPath string, asJSON bool) error {
	outputPath = strings.TrimSpace(outputPath)
	if outputPath != "" && report.SRT != "" {
		if err := os.WriteFile(outputPath, []byte(report.SRT), 0o644); err != nil {
			return fmt.Errorf("write subtitles: %w", err)
		}
	}
	if asJSON {
		if err := writeJSON(cmd, report); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintln(cmd.OutOrStdout(), renderReport(report, outputPath == "")); err != nil {
		return err
	}
	if report.Status == delivery.StatusFailed {
		return fmt.Errorf("job %s failed: %s", report.JobID, report.Error)
	}
	return nil
}

func renderReport(report workflow.Report, includeSRT bool) string {
	fields := [][2]string{
		{"Job", report.JobID},
		{"Status", string(report.Status)},
		{"Model", report.Meta.Model},
		{"Language", languageLabel(report.Meta)},
		{"Duration", formatSeconds(report.Meta.DurationSec)},
		{"Device", strings.TrimSpace(report.Meta.Device + " " + report.Meta.Precision)},
		{"Aligned", yesNo(report.Meta.Aligned)},
		{"Diarized", yesNo(report.Meta.Diarized)},
		{"Segments", strconv.Itoa(len(report.Segments))},
		{"Elapsed", formatSeconds(report.Meta.TotalSec)},
	}
	if report.Health != nil {
		fields = append(fields,
			[2]string{"Average CPS", strconv.FormatFloat(report.Health.AvgCPS, 'f', 2, 64)},
			[2]string{"Duplicates", strconv.Itoa(report.Health.Duplicates)},
			[2]string{"Speakers", strconv.Itoa(report.Health.SpeakerCount)},
		)
	}
	if report.Delivery != nil {
		fields = append(fields, [2]string{"Delivery", deliveryLabel(*report.Delivery)})
	}
	if report.Error != "" {
		fields = append(fields, [2]string{"Error", report.Error})
	}

	var b strings.Builder
	b.WriteString(renderFields(fields))
	if report.Health != nil && len(report.Health.Issues) > 0 {
		b.WriteString("\n\nIssues:\n")
		for _, issue := range report.Health.Issues {
			b.WriteString("  - ")
			b.WriteString(issue)
			b.WriteString("\n")
		}
	}
	if includeSRT && report.SRT != "" {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(report.SRT, "\n"))
	}
	return b.String()
}

func languageLabel(meta workflow.Meta) string {
	if meta.DetectedLanguage != "" && meta.DetectedLanguage != meta.Language {
		return fmt.Sprintf("%s (detected %s)", meta.Language, meta.DetectedLanguage)
	}
	return meta.Language
}

func deliveryLabel(outcome delivery.Outcome) string {
	switch {
	case outcome.Delivered:
		return fmt.Sprintf("delivered (HTTP %d, %d attempt(s))", outcome.StatusCode, outcome.Attempts)
	case outcome.Pending:
		return "pending resume"
	default:
		return fmt.Sprintf("failed after %d attempt(s): %s", outcome.Attempts, outcome.Error)
	}
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 1, 64) + "s"
}
