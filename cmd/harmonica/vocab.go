package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cognicore/harmonica/pkg/harmonica/config"
	"github.com/cognicore/harmonica/pkg/harmonica/dataset"
	"github.com/cognicore/harmonica/pkg/harmonica/ingest"
)

func newVocabCmd() *cobra.Command {
	var (
		data     string
		out      string
		maxVocab int
		stoplist []string
	)
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Build a vocabulary from a training split",
		RunE: func(cmd *cobra.Command, args []string) error {
			if data == "" || out == "" {
				return errors.New("--data and --out are required")
			}
			ds, err := dataset.Load(data)
			if err != nil {
				return err
			}
			vocab := config.BuildVocab(ingest.NewTokenizer(stoplist), ds, maxVocab)
			if err := vocab.Save(out); err != nil {
				return fmt.Errorf("save vocabulary: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s tokens from %s sentences to %s\n",
				humanize.Comma(int64(vocab.Len())), humanize.Comma(int64(ds.Len())), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "training split (.tsv or .jsonl)")
	cmd.Flags().StringVar(&out, "out", "", "output vocabulary YAML")
	cmd.Flags().IntVar(&maxVocab, "max-vocab", config.Default().Data.MaxVocab, "maximum number of tokens kept")
	cmd.Flags().StringSliceVar(&stoplist, "stoplist", nil, "tokens to drop before counting")
	return cmd
}
