package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"captioner/internal/media"
	"captioner/internal/services"
	"captioner/internal/workflow"
)

// envelope is the queue-worker request shape: {id, input: {...}}.
type envelope struct {
	ID    string        `json:"id"`
	Input envelopeInput `json:"input"`

	// raw keeps every input field for the callback echo.
	raw map[string]any
}

// envelopeInput accepts audio_url and num_speakers as aliases of url and
// speaker_count.
type envelopeInput struct {
	URL          string          `json:"url"`
	AudioURL     string          `json:"audio_url"`
	NumSpeakers  int             `json:"num_speakers"`
	File         string          `json:"file"`
	Filename     string          `json:"filename"`
	Language     string          `json:"language"`
	Settings     envelopeOptions `json:"settings"`
	SpeakerCount int             `json:"speaker_count"`
	Model        string          `json:"model"`
	CallbackURL  string          `json:"callback_url"`
	Ping         bool            `json:"ping"`
	Warm         json.RawMessage `json:"warm"`
}

type envelopeOptions struct {
	Language string `json:"language"`
}

type pingResponse struct {
	OK   bool `json:"ok"`
	Pong bool `json:"pong"`
}

type warmResponse struct {
	OK        bool   `json:"ok"`
	Warmed    string `json:"warmed"`
	Precision string `json:"precision"`
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "job FILE",
		Short: "Process a JSON job envelope (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := readEnvelope(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if env.Input.Ping {
				return writeJSON(cmd, pingResponse{OK: true, Pong: true})
			}
			warm, warmRequested, err := env.warmSize()
			if err != nil {
				return err
			}
			var job workflow.Job
			if !warmRequested {
				if job, err = env.job(); err != nil {
					return err
				}
			}

			return ctx.withPipeline(cmd.Context(), func(p *pipeline) error {
				if warmRequested {
					key, precision, err := p.orchestrator.Warm(cmd.Context(), warm)
					if err != nil {
						return err
					}
					return writeJSON(cmd, warmResponse{OK: true, Warmed: key.Model, Precision: precision})
				}
				report := p.orchestrator.Run(cmd.Context(), job)
				return emitReport(cmd, report, output, true)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the SRT document to this file")
	return cmd
}

func readEnvelope(stdin io.Reader, name string) (envelope, error) {
	var data []byte
	var err error
	if strings.TrimSpace(name) == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return envelope{}, fmt.Errorf("read job envelope: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, services.Wrap(services.ErrValidation, "intake", "decode envelope", "invalid job JSON", err)
	}
	var raw struct {
		Input map[string]any `json:"input"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err == nil {
		env.raw = raw.Input
	}
	return env, nil
}

// warmSize reports whether the envelope asks for a warm-up and which model.
// A null or empty value selects the configured default.
func (e envelope) warmSize() (string, bool, error) {
	raw := bytes.TrimSpace(e.Input.Warm)
	if len(raw) == 0 {
		return "", false, nil
	}
	if bytes.Equal(raw, []byte("null")) {
		return "", true, nil
	}
	var size string
	if err := json.Unmarshal(raw, &size); err != nil {
		return "", true, services.Wrap(services.ErrValidation, "intake", "decode envelope", "input.warm must be a model name", err)
	}
	return strings.TrimSpace(size), true, nil
}

func (e envelope) job() (workflow.Job, error) {
	in := e.Input
	source := media.Source{URL: firstNonEmpty(in.URL, in.AudioURL), Filename: strings.TrimSpace(in.Filename)}
	if source.URL == "" && strings.TrimSpace(in.File) != "" {
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(in.File))
		if err != nil {
			return workflow.Job{}, services.Wrap(services.ErrValidation, "intake", "decode envelope", "input.file must be base64", err)
		}
		source.Data = data
	}
	lang := firstNonEmpty(in.Language, in.Settings.Language)
	speakers := in.SpeakerCount
	if speakers == 0 {
		speakers = in.NumSpeakers
	}
	return workflow.Job{
		ID:    strings.TrimSpace(e.ID),
		Input: source,
		Options: workflow.Options{
			Language:     lang,
			SpeakerCount: speakers,
			Size:         in.Model,
		},
		CallbackURL: strings.TrimSpace(in.CallbackURL),
		Echo:        e.raw,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
