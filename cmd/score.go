package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/crewbase/lifecycle-engine/internal/model"
	"github.com/crewbase/lifecycle-engine/internal/risk"
)

var scoreFile string

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Preview a risk score from a factors file without persisting",
	Long:  "Reads factor inputs as JSON ([{\"key\":...,\"value\":...}]) from a file or stdin and prints the computed assessment.",
	RunE: func(cmd *cobra.Command, args []string) error {
		pol, err := loadPolicy()
		if err != nil {
			return err
		}

		var r io.Reader = cmd.InOrStdin()
		if scoreFile != "" && scoreFile != "-" {
			f, err := os.Open(scoreFile)
			if err != nil {
				return eris.Wrapf(err, "open %s", scoreFile)
			}
			defer f.Close() //nolint:errcheck
			r = f
		}

		var inputs []model.FactorInput
		if err := json.NewDecoder(r).Decode(&inputs); err != nil {
			return eris.Wrap(err, "parse factor inputs")
		}

		assessment, err := risk.Score(pol.Risk, inputs)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(assessment)
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFile, "file", "-", "factors JSON file (- for stdin)")
	rootCmd.AddCommand(scoreCmd)
}
