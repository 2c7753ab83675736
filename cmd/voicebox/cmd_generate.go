package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/book-expert/voicebox/internal/audio"
	"github.com/book-expert/voicebox/internal/core"
	"github.com/book-expert/voicebox/internal/fsutil"
	"github.com/book-expert/voicebox/internal/synthesis"
)

const (
	defaultOutputFile = "output.wav"
	outputPermissions = 0o644
)

// generateOptions holds the flags of the generate command.
type generateOptions struct {
	voice    string
	refAudio string
	refText  string
	text     string
	textFile string
	speed    float64
	output   string
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	genOpts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Speak text in a saved voice or an ad-hoc reference clip",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts, genOpts)
		},
	}

	cmd.Flags().StringVar(&genOpts.voice, "voice", "", "Saved voice to speak with")
	cmd.Flags().StringVar(&genOpts.refAudio, "ref-audio", "", "Reference clip (overrides --voice)")
	cmd.Flags().StringVar(&genOpts.refText, "ref-text", "", "Transcript of the reference clip")
	cmd.Flags().StringVar(&genOpts.text, "text", "", "Text to speak")
	cmd.Flags().StringVar(&genOpts.textFile, "text-file", "", "File holding the text to speak")
	cmd.Flags().Float64Var(&genOpts.speed, "speed", 0, "Speed multiplier, 0.3-2.0 (default model.default_speed)")
	cmd.Flags().StringVarP(&genOpts.output, "output", "o", defaultOutputFile, "Output WAV file")
	cmd.MarkFlagsMutuallyExclusive("text", "text-file")

	return cmd
}

func runGenerate(cmd *cobra.Command, opts *rootOptions, genOpts *generateOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	req, err := buildRequest(a, genOpts)
	if err != nil {
		return err
	}

	waveform, err := a.orchestrator.Generate(cmd.Context(), req)
	if err != nil {
		return err
	}

	err = writeWAV(genOpts.output, waveform)
	if err != nil {
		return err
	}

	info := audio.Describe(waveform)
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s at %d Hz)\n", genOpts.output, info.Duration, info.SampleRate)

	return nil
}

// buildRequest resolves the reference clip the same way the HTTP API does: an explicit
// clip wins over a saved voice, and an explicit transcript wins over the saved one.
func buildRequest(a *app, genOpts *generateOptions) (synthesis.Request, error) {
	req := synthesis.Request{
		ReferenceAudio: genOpts.refAudio,
		ReferenceText:  genOpts.refText,
		TargetText:     genOpts.text,
		Speed:          genOpts.speed,
	}

	if req.Speed == 0 {
		req.Speed = a.cfg.Model.DefaultSpeed
	}

	if genOpts.textFile != "" {
		data, err := os.ReadFile(genOpts.textFile)
		if err != nil {
			return synthesis.Request{}, fmt.Errorf("failed to read text file: %w", err)
		}

		req.TargetText = string(data)
	}

	if req.ReferenceAudio == "" && genOpts.voice != "" {
		audioPath, transcript, ok, err := a.orchestrator.ResolveVoiceSelection(genOpts.voice)
		if err != nil {
			return synthesis.Request{}, err
		}

		if !ok {
			return synthesis.Request{}, fmt.Errorf("%w: voice '%s' not found", core.ErrNotFound, genOpts.voice)
		}

		req.ReferenceAudio = audioPath

		if req.ReferenceText == "" {
			req.ReferenceText = transcript
		}
	}

	return req, nil
}

func writeWAV(path string, waveform core.Waveform) error {
	data, err := audio.RenderWAV(waveform)
	if err != nil {
		return err
	}

	err = fsutil.WriteFileAtomic(path, outputPermissions, func(w io.Writer) error {
		_, writeErr := w.Write(data)

		return writeErr
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
