package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okdaichi/townvoice/internal/policy"
	"github.com/okdaichi/townvoice/internal/textnorm"
)

func newVerifyCmd() *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a snapshot for structural problems",
		Long: `Verifies that the snapshot parses, that every entry has a question and
an answer, and that no two entries collide on the same normalized key.
Warns about a UTF-8 BOM, missing audio, and answers containing rejection
phrases.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, raw, err := readSnapshotStrict(snapshotPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) {
				fmt.Fprintln(out, "warning: snapshot starts with a UTF-8 BOM")
			}

			rejections := policy.NewRejectionSet(nil)
			seen := make(map[string]string, len(entries))
			problems := 0
			missingAudio := 0
			for i, e := range entries {
				if e.Question == "" {
					fmt.Fprintf(out, "entry %d: empty question\n", i)
					problems++
					continue
				}
				if e.AnswerText == "" {
					fmt.Fprintf(out, "entry %d (%s): empty answer\n", i, e.Question)
					problems++
				}
				key := textnorm.Normalize(e.Question)
				if key == "" {
					fmt.Fprintf(out, "entry %d (%s): question normalizes to empty key\n", i, e.Question)
					problems++
					continue
				}
				if prev, dup := seen[key]; dup {
					fmt.Fprintf(out, "entry %d (%s): duplicate key with %q\n", i, e.Question, prev)
					problems++
				}
				seen[key] = e.Question

				if e.AudioBase64 == "" {
					missingAudio++
				}
				if rejections.Matches(e.AnswerText) {
					fmt.Fprintf(out, "warning: entry %d (%s): answer contains a rejection phrase\n", i, e.Question)
				}
			}

			fmt.Fprintf(out, "%d entries, %d without audio\n", len(entries), missingAudio)
			if problems > 0 {
				return fmt.Errorf("snapshot has %d problem(s)", problems)
			}
			fmt.Fprintln(out, "snapshot ok")
			return nil
		},
	}

	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "data/faq_cache.json", "snapshot file to verify")
	return cmd
}
