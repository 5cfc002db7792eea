package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okdaichi/townvoice/internal/answercache"
	"github.com/okdaichi/townvoice/internal/brain"
	"github.com/okdaichi/townvoice/internal/config"
	"github.com/okdaichi/townvoice/internal/policy"
	"github.com/okdaichi/townvoice/internal/textnorm"
)

func newWarmCmd() *cobra.Command {
	var (
		questionsPath string
		outPath       string
		withAudio     bool
	)

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Pre-generate answers for a list of expected questions",
		Long: `Reads a question list (one per line, # starts a comment), generates an
answer for each question not already present in the snapshot, and writes
the merged snapshot. Requires GEMINI_API_KEY.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
				return fmt.Errorf("GEMINI_API_KEY is required for warm")
			}

			questions, err := readQuestions(questionsPath)
			if err != nil {
				return err
			}
			existing, err := answercache.LoadPrimary(outPath)
			if err != nil {
				return err
			}
			known := make(map[string]struct{}, len(existing))
			for _, e := range existing {
				known[textnorm.Normalize(e.Question)] = struct{}{}
			}

			persona, err := brain.LoadPersona(cfg.PersonaPath)
			if err != nil {
				return err
			}
			denylist, err := policy.LoadDenylist(cfg.DenylistPath)
			if err != nil {
				return err
			}
			generator := brain.NewGeminiGenerator(brain.GeminiConfig{
				APIKey: cfg.GeminiAPIKey,
				Model:  cfg.GenerationModel,
			}, persona, denylist, nil)

			synthesizer := newSynthesizer(cfg)

			ctx := cmd.Context()
			rejections := policy.NewRejectionSet(cfg.RejectionPhrases)
			added := 0
			for _, q := range questions {
				key := textnorm.Normalize(q)
				if key == "" {
					continue
				}
				if _, ok := known[key]; ok {
					continue
				}

				reply, err := generator.Generate(ctx, q, "")
				if err != nil {
					return fmt.Errorf("generate %q: %w", q, err)
				}
				if rejections.Matches(reply.Text) {
					fmt.Fprintf(cmd.OutOrStdout(), "skip (rejection phrase): %s\n", q)
					continue
				}

				entry := answercache.Entry{
					Question:   q,
					AnswerText: reply.Text,
					Emotion:    reply.Emotion,
					CreatedAt:  time.Now().UTC(),
				}
				if withAudio {
					audio, err := synthesizeBase64(ctx, synthesizer, reply.Text)
					if err != nil {
						return fmt.Errorf("synthesize %q: %w", q, err)
					}
					entry.AudioBase64 = audio
				}
				existing = append(existing, entry)
				known[key] = struct{}{}
				added++
				fmt.Fprintf(cmd.OutOrStdout(), "warmed: %s\n", q)
			}

			if err := writeSnapshot(outPath, existing); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot written: %s (%d entries, %d new)\n", outPath, len(existing), added)
			return nil
		},
	}

	cmd.Flags().StringVarP(&questionsPath, "questions", "q", "data/faq_questions.txt", "question list, one per line")
	cmd.Flags().StringVarP(&outPath, "out", "o", "data/faq_cache.json", "snapshot file to write")
	cmd.Flags().BoolVar(&withAudio, "audio", false, "also synthesize audio for new entries")
	return cmd
}

func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open questions: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\uFEFF"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return out, nil
}

func writeSnapshot(path string, entries []answercache.Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func readSnapshotStrict(path string) ([]answercache.Entry, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot: %w", err)
	}
	entries, err := answercache.LoadPrimary(path)
	if err != nil {
		return nil, raw, err
	}
	return entries, raw, nil
}
