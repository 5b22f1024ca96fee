package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/crewbase/lifecycle-engine/internal/engine"
	"github.com/crewbase/lifecycle-engine/internal/model"
)

var (
	recordContractor string
	recordKind       string
	recordItemKind   string
	recordItemType   string
	recordDocument   string
	recordExpires    string
	recordSizeBytes  int64
	recordMimeType   string
	recordFactors    []string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one contractor fact",
	Long:  "Applies a single fact (step completion, skip, document upload, or risk factor update) and prints the resulting transition and notifications.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fact, err := buildFact()
		if err != nil {
			return err
		}

		env, err := initEngine(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Engine.RecordFact(cmd.Context(), recordContractor, fact)
		if errors.Is(err, engine.ErrInvalidTransition) {
			fmt.Fprintf(cmd.OutOrStdout(), "no-op: %v\n", err)
			return nil
		}
		if err != nil {
			return err
		}

		env.deliver(cmd.Context(), res.Notifications)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func buildFact() (model.Fact, error) {
	switch model.FactKind(recordKind) {
	case model.FactStepCompleted, model.FactStepSkipped:
		if recordItemType == "" {
			return model.Fact{}, eris.New("--item-type is required for step facts")
		}
		kind := model.ItemKind(recordItemKind)
		if recordKind == string(model.FactStepCompleted) {
			return model.StepCompleted(kind, recordItemType), nil
		}
		return model.StepSkipped(kind, recordItemType), nil

	case model.FactDocumentUploaded:
		if recordDocument == "" {
			return model.Fact{}, eris.New("--document is required for document facts")
		}
		var expires *time.Time
		if recordExpires != "" {
			t, err := time.Parse(time.RFC3339, recordExpires)
			if err != nil {
				return model.Fact{}, eris.Wrap(err, "parse --expires")
			}
			expires = &t
		}
		return model.DocumentUploaded(recordDocument, expires, recordSizeBytes, recordMimeType), nil

	case model.FactRiskFactorsUpdated:
		inputs, err := parseFactorFlags(recordFactors)
		if err != nil {
			return model.Fact{}, err
		}
		return model.RiskFactorsUpdated(inputs), nil

	default:
		return model.Fact{}, eris.Errorf("unknown fact kind %q", recordKind)
	}
}

// parseFactorFlags turns repeated key=value flags into factor inputs.
func parseFactorFlags(flags []string) ([]model.FactorInput, error) {
	if len(flags) == 0 {
		return nil, eris.New("at least one --factor key=value is required")
	}
	inputs := make([]model.FactorInput, 0, len(flags))
	for _, f := range flags {
		key, raw, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, eris.Errorf("malformed --factor %q, want key=value", f)
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "parse --factor %q", f)
		}
		inputs = append(inputs, model.FactorInput{Key: key, Value: val})
	}
	return inputs, nil
}

func init() {
	recordCmd.Flags().StringVar(&recordContractor, "contractor", "", "contractor ID (required)")
	recordCmd.Flags().StringVar(&recordKind, "fact", "", "fact kind: step_completed, step_skipped, document_uploaded, risk_factors_updated")
	recordCmd.Flags().StringVar(&recordItemKind, "item-kind", string(model.KindOnboardingStep), "item kind for step facts: onboarding_step or offboarding_task")
	recordCmd.Flags().StringVar(&recordItemType, "item-type", "", "step or task type")
	recordCmd.Flags().StringVar(&recordDocument, "document", "", "document type for upload facts")
	recordCmd.Flags().StringVar(&recordExpires, "expires", "", "document expiry (RFC3339, optional)")
	recordCmd.Flags().Int64Var(&recordSizeBytes, "size-bytes", 0, "document size in bytes")
	recordCmd.Flags().StringVar(&recordMimeType, "mime-type", "application/pdf", "document MIME type")
	recordCmd.Flags().StringArrayVar(&recordFactors, "factor", nil, "risk factor key=value (repeatable)")
	_ = recordCmd.MarkFlagRequired("contractor")
	_ = recordCmd.MarkFlagRequired("fact")
	rootCmd.AddCommand(recordCmd)
}
