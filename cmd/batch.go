package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crewbase/lifecycle-engine/internal/engine"
	"github.com/crewbase/lifecycle-engine/internal/model"
)

var (
	batchFile  string
	batchLimit int
)

// batchFact is one NDJSON line: a contractor ID plus the fact to apply.
type batchFact struct {
	ContractorID string     `json:"contractor_id"`
	Fact         model.Fact `json:"fact"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Apply facts from an NDJSON file concurrently",
	Long:  "Reads newline-delimited JSON records ({\"contractor_id\":...,\"fact\":{...}}) and applies them with bounded concurrency. Facts for the same contractor are serialized by the engine's per-contractor lock.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		var r io.Reader = cmd.InOrStdin()
		if batchFile != "" && batchFile != "-" {
			f, err := os.Open(batchFile)
			if err != nil {
				return eris.Wrapf(err, "open %s", batchFile)
			}
			defer f.Close() //nolint:errcheck
			r = f
		}

		facts, err := readBatchFacts(r, batchLimit)
		if err != nil {
			return err
		}

		return processBatch(ctx, env, facts, cfg.Batch.MaxConcurrentContractors)
	},
}

func readBatchFacts(r io.Reader, limit int) ([]batchFact, error) {
	var facts []batchFact
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var bf batchFact
		if err := json.Unmarshal(raw, &bf); err != nil {
			return nil, eris.Wrapf(err, "parse line %d", line)
		}
		if bf.ContractorID == "" {
			return nil, eris.Errorf("line %d: contractor_id is required", line)
		}
		facts = append(facts, bf)
		if limit > 0 && len(facts) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "read batch input")
	}
	return facts, nil
}

// processBatch applies facts concurrently. Individual failures are counted
// and logged but never abort the batch.
func processBatch(ctx context.Context, env *engineEnv, facts []batchFact, concurrency int) error {
	if len(facts) == 0 {
		zap.L().Info("no facts to process")
		return nil
	}

	zap.L().Info("processing batch",
		zap.Int("facts", len(facts)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var applied, noops, failed atomic.Int64

	for _, bf := range facts {
		g.Go(func() error {
			log := zap.L().With(
				zap.String("contractor_id", bf.ContractorID),
				zap.String("fact_kind", string(bf.Fact.Kind)),
			)

			res, err := env.Engine.RecordFact(gctx, bf.ContractorID, bf.Fact)
			if err != nil {
				if errors.Is(err, engine.ErrInvalidTransition) {
					noops.Add(1)
					log.Warn("fact conflicts with terminal state, skipped", zap.Error(err))
					return nil
				}
				failed.Add(1)
				log.Error("fact failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			if res.Transition.Occurred {
				applied.Add(1)
			} else {
				noops.Add(1)
			}
			env.deliver(gctx, res.Notifications)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("applied", applied.Load()),
		zap.Int64("noops", noops.Load()),
		zap.Int64("failed", failed.Load()),
	)
	if failed.Load() > 0 {
		return fmt.Errorf("%d of %d facts failed", failed.Load(), len(facts))
	}
	return nil
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "-", "NDJSON facts file (- for stdin)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max facts to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}
