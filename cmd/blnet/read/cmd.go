// One-shot device queries. With tele enabled results are also forwarded to broker.
package read

import (
	"context"
	"flag"

	"github.com/juju/errors"
	"github.com/temoto/blnet/cmd/blnet/subcmd"
	"github.com/temoto/blnet/hardware/blnet"
	"github.com/temoto/blnet/internal/state"
	"github.com/temoto/blnet/internal/tele"
)

const (
	resolveName = "resolve"
	latestName  = "latest"
	drainName   = "drain"
)

var ResolveMod = subcmd.Mod{Name: resolveName, Usage: "print mode, memory geometry and stored record count", Main: ResolveMain}
var LatestMod = subcmd.Mod{Name: latestName, Usage: "[-retries N] print current values", Main: LatestMain}
var DrainMod = subcmd.Mod{Name: drainName, Usage: "[-max N] [-reset] print and consume stored records", Main: DrainMain}

func ResolveMain(ctx context.Context, config *state.Config, args []string) error {
	if err := flag.NewFlagSet(resolveName, flag.ContinueOnError).Parse(args); err != nil {
		return errors.Trace(err)
	}
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "init")
	}
	dev, err := g.Client.Resolve(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	return subcmd.GetPrinter(ctx).Device(dev)
}

func LatestMain(ctx context.Context, config *state.Config, args []string) error {
	fs := flag.NewFlagSet(latestName, flag.ContinueOnError)
	retries := fs.Int("retries", config.Blnet.MaxRetriesOrDefault(), "attempts per request")
	if err := fs.Parse(args); err != nil {
		return errors.Trace(err)
	}
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "init")
	}
	dev, err := g.Client.Resolve(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	l, err := g.Client.Latest(ctx, dev, *retries)
	if err != nil {
		return errors.Trace(err)
	}
	if err := subcmd.GetPrinter(ctx).Latest(l); err != nil {
		return errors.Trace(err)
	}
	return errors.Annotate(g.Tele.SendAll(tele.LatestMessages(l)), "tele")
}

func DrainMain(ctx context.Context, config *state.Config, args []string) error {
	fs := flag.NewFlagSet(drainName, flag.ContinueOnError)
	max := fs.Int("max", config.Poll.MaxDatasets, "stop after N records, 0 = all")
	reset := fs.Bool("reset", config.Blnet.Reset, "clear device memory after successful read")
	if err := fs.Parse(args); err != nil {
		return errors.Trace(err)
	}
	config.Blnet.Reset = *reset
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "init")
	}
	dev, err := g.Client.Resolve(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	p := subcmd.GetPrinter(ctx)
	n, err := g.Client.Drain(ctx, dev, *max, func(r blnet.Record) error {
		if err := p.Record(r); err != nil {
			return errors.Trace(err)
		}
		// failed forward must not commit reset
		return errors.Annotate(g.Tele.SendAll(tele.RecordMessages(r)), "tele")
	})
	p.Line("records=%d", n)
	return errors.Trace(err)
}
