package backtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"algotrader/internal/domain"
	"algotrader/internal/strategy"
)

// Grid maps a strategy parameter to the values a sweep tries.
type Grid map[string][]float64

// ParseGrid builds a Grid from "key=expr" strings, where expr is either a
// comma list ("10,20,50") or an inclusive range "start:end:step".
func ParseGrid(specs []string) (Grid, error) {
	g := Grid{}
	for _, s := range specs {
		k, expr, ok := strings.Cut(s, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" || expr == "" {
			return nil, fmt.Errorf("invalid grid %q, want key=a,b,c or key=start:end:step", s)
		}
		values, err := parseGridValues(expr)
		if err != nil {
			return nil, fmt.Errorf("grid %s: %w", k, err)
		}
		g[k] = values
	}
	return g, nil
}

func parseGridValues(expr string) ([]float64, error) {
	if parts := strings.Split(expr, ":"); len(parts) == 3 {
		var nums [3]float64
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", p)
			}
			nums[i] = f
		}
		start, end, step := nums[0], nums[1], nums[2]
		if step <= 0 || end < start {
			return nil, fmt.Errorf("invalid range %q", expr)
		}
		// Half a step past end keeps end itself despite float accumulation.
		return lo.RangeWithSteps(start, end+step/2, step), nil
	}

	var out []float64
	for _, p := range strings.Split(expr, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out = append(out, f)
	}
	return out, nil
}

// Combinations expands the grid into every parameter set. Keys are expanded
// in sorted order so the result is deterministic.
func (g Grid) Combinations() []strategy.Params {
	if len(g) == 0 {
		return nil
	}
	keys := lo.Keys(map[string][]float64(g))
	slices.Sort(keys)

	combos := []strategy.Params{{}}
	for _, k := range keys {
		combos = lo.FlatMap(combos, func(base strategy.Params, _ int) []strategy.Params {
			return lo.Map(g[k], func(v float64, _ int) strategy.Params {
				p := base.Clone()
				p[k] = v
				return p
			})
		})
	}
	return combos
}

// SweepResult is one run of a parameter sweep.
type SweepResult struct {
	Params strategy.Params         `json:"parameters"`
	Result *domain.BacktestResult `json:"result"`
}

// Sweep runs req.Strategy once per grid combination, layered over
// req.Params, in parallel on independent engines. Combinations the strategy
// rejects or whose run fails are logged and skipped. Results are ordered by
// Sharpe ratio, best first, ties broken by total return.
func (r *Runner) Sweep(ctx context.Context, req Request, grid Grid) ([]SweepResult, error) {
	if !r.registry.Has(req.Strategy) {
		return nil, fmt.Errorf("%w: %q", strategy.ErrUnknownStrategy, req.Strategy)
	}
	combos := grid.Combinations()
	if len(combos) == 0 {
		return nil, errors.New("backtest: empty sweep grid")
	}

	results := make([]*SweepResult, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for i, combo := range combos {
		g.Go(func() error {
			one := req
			one.Params = req.Params.Clone()
			for k, v := range combo {
				one.Params[k] = v
			}
			res, err := r.Run(gctx, one)
			if err != nil {
				r.logger.Warn("sweep run failed", "strategy", req.Strategy, "params", combo, "error", err)
				return nil
			}
			results[i] = &SweepResult{Params: combo, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]SweepResult, 0, len(results))
	for _, sr := range results {
		if sr != nil {
			out = append(out, *sr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Result, out[j].Result
		if a.SharpeRatio != b.SharpeRatio {
			return a.SharpeRatio > b.SharpeRatio
		}
		return a.TotalReturn > b.TotalReturn
	})
	r.logger.Info("sweep completed", "strategy", req.Strategy, "runs", len(combos), "succeeded", len(out))
	return out, nil
}
