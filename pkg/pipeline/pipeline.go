// Package pipeline runs the backend stages for one unit (build, resolve,
// allocate, linearize, lay out the frame) and compiles many units in
// parallel.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/raymyers/ralph-bt/pkg/cfg"
	"github.com/raymyers/ralph-bt/pkg/cfggen"
	"github.com/raymyers/ralph-bt/pkg/linear"
	"github.com/raymyers/ralph-bt/pkg/linearize"
	"github.com/raymyers/ralph-bt/pkg/regalloc"
	"github.com/raymyers/ralph-bt/pkg/resolve"
	"github.com/raymyers/ralph-bt/pkg/stacking"
	"github.com/raymyers/ralph-bt/pkg/target"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Options configures a compilation
type Options struct {
	Target *target.Target
	Policy regalloc.Policy // nil selects furthest-next-use
	Prune  bool            // drop unreachable blocks before allocation

	// Workers bounds the units compiled at once by CompileAll; 0 or less
	// means no limit.
	Workers int
	// FailFast stops CompileAll at the first failing unit.
	FailFast bool

	Logger *slog.Logger
	// Progress, when set, is called once per finished unit, possibly from
	// several goroutines at once.
	Progress func()
}

// Artifact collects the output of every stage for one unit. Fields after a
// failing stage are nil.
type Artifact struct {
	Unit   *vir.Unit
	Graph  *cfg.Graph // resolved, virtual registers
	Alloc  *regalloc.Result
	Linear *linear.Function
	Frame  *stacking.FrameLayout
	Err    error
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Compile runs every stage on one unit. The context is checked between
// stages.
func Compile(ctx context.Context, u *vir.Unit, opts Options) *Artifact {
	art := &Artifact{Unit: u}
	art.Err = compile(ctx, art, &opts)
	return art
}

func compile(ctx context.Context, art *Artifact, opts *Options) error {
	if opts.Target == nil {
		return fmt.Errorf("%s: no target", art.Unit.Name)
	}
	log := opts.logger().With("unit", art.Unit.Name)

	lg, labels := cfggen.BuildUnit(art.Unit)
	g, err := resolve.Resolve(lg, labels)
	if err != nil {
		return err
	}
	if opts.Prune {
		g = cfg.PruneUnreachable(g)
	}
	art.Graph = g
	log.Debug("resolved", "blocks", len(g.Blocks), "instrs", g.NumInstrs())
	if err := ctx.Err(); err != nil {
		return err
	}

	var allocOpts []regalloc.Option
	if opts.Policy != nil {
		allocOpts = append(allocOpts, regalloc.WithPolicy(opts.Policy))
	}
	res, err := regalloc.Allocate(g, opts.Target, allocOpts...)
	if err != nil {
		return err
	}
	art.Alloc = res
	log.Debug("allocated", "blocks", len(res.Graph.Blocks), "spilled", len(res.Spilled),
		"slots", res.NumSlots, "policy", res.Policy)
	if err := ctx.Err(); err != nil {
		return err
	}

	art.Linear = linearize.Transform(res.Graph)
	frame, err := stacking.ComputeLayout(art.Linear, opts.Target)
	if err != nil {
		return err
	}
	art.Frame = frame
	log.Debug("laid out", "slots", frame.NumSlots, "frame", frame.TotalSize)
	return nil
}

// CompileAll compiles units concurrently and returns one artifact per unit
// in input order. Units share no mutable state. The returned error is the
// first unit failure when FailFast is set, or the context error; otherwise
// failures are only reported through Artifact.Err.
func CompileAll(ctx context.Context, units []vir.Unit, opts Options) ([]*Artifact, error) {
	arts := make([]*Artifact, len(units))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				arts[i] = &Artifact{Unit: &units[i], Err: err}
				return nil
			}
			arts[i] = Compile(gctx, &units[i], opts)
			if opts.Progress != nil {
				opts.Progress()
			}
			if arts[i].Err != nil {
				opts.logger().Debug("unit failed", "unit", units[i].Name, "err", arts[i].Err)
				if opts.FailFast {
					return fmt.Errorf("%s: %w", units[i].Name, arts[i].Err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return arts, err
	}
	return arts, ctx.Err()
}
