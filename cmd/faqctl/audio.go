package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okdaichi/townvoice/internal/config"
	"github.com/okdaichi/townvoice/internal/synth"
)

func newAudioCmd() *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Backfill speech audio for snapshot entries that lack it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
				return fmt.Errorf("GEMINI_API_KEY is required for audio")
			}

			entries, _, err := readSnapshotStrict(snapshotPath)
			if err != nil {
				return err
			}

			synthesizer := newSynthesizer(cfg)
			ctx := cmd.Context()
			filled := 0
			for i := range entries {
				if entries[i].AudioBase64 != "" || entries[i].AnswerText == "" {
					continue
				}
				audio, err := synthesizeBase64(ctx, synthesizer, entries[i].AnswerText)
				if err != nil {
					return fmt.Errorf("synthesize %q: %w", entries[i].Question, err)
				}
				entries[i].AudioBase64 = audio
				filled++
				fmt.Fprintf(cmd.OutOrStdout(), "audio added: %s\n", entries[i].Question)
			}

			if filled == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "all entries already have audio")
				return nil
			}
			if err := writeSnapshot(snapshotPath, entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot updated: %s (%d entries backfilled)\n", snapshotPath, filled)
			return nil
		},
	}

	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "data/faq_cache.json", "snapshot file to update")
	return cmd
}

func newSynthesizer(cfg config.Config) synth.Synthesizer {
	return synth.NewGoogleTTS(synth.GoogleTTSConfig{
		APIKey:       cfg.GeminiAPIKey,
		Voice:        cfg.TTSVoice,
		LanguageCode: cfg.TTSLanguageCode,
		SpeakingRate: cfg.TTSSpeakingRate,
	})
}

func synthesizeBase64(ctx context.Context, s synth.Synthesizer, text string) (string, error) {
	audio, err := s.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(audio), nil
}
