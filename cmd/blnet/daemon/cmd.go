// Poll loop service: periodically reads device and forwards datasets via tele.
package daemon

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/blnet/cmd/blnet/subcmd"
	"github.com/temoto/blnet/hardware/blnet"
	"github.com/temoto/blnet/helpers"
	"github.com/temoto/blnet/internal/state"
	"github.com/temoto/blnet/internal/tele"
)

const modName = "daemon"

var Mod = subcmd.Mod{Name: modName, Usage: "poll device every poll.interval_sec, forward via tele", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	if err := flag.NewFlagSet(modName, flag.ContinueOnError).Parse(args); err != nil {
		return errors.Trace(err)
	}
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "init")
	}
	if !g.Tele.Enabled() {
		g.Log.Errorf("config: tele disabled, datasets are only logged")
	}

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigch)
	go func() {
		select {
		case sig := <-sigch:
			g.Log.Infof("signal=%v stopping", sig)
			g.Stop()
		case <-g.Alive.StopChan():
		}
	}()

	if _, err := subcmd.SdNotify(daemon.SdNotifyReady); err != nil {
		g.Log.Error(err)
	}
	g.Log.Infof("daemon running mode=%s interval=%v", config.Poll.ModeOrDefault(), config.Poll.Interval())
	Loop(ctx)
	_, _ = subcmd.SdNotify(daemon.SdNotifyStopping)
	g.Log.Infof("daemon stopped errors=%d tele %s", g.ErrorCount(), g.Tele.Stat().String())
	return nil
}

// Loop polls until Global.Alive is stopped.
// Failed cycle is retried sooner with backoff limited by poll interval.
func Loop(ctx context.Context) {
	g := state.GetGlobal(ctx)
	if !g.Alive.Add(1) {
		return
	}
	defer g.Alive.Done()

	interval := g.Config.Poll.Interval()
	backoff := helpers.Backoff{Min: time.Second, Max: interval, K: 2}
	stopch := g.Alive.StopChan()
	for g.Alive.IsRunning() {
		n, err := PollOnce(ctx)
		delay := interval
		if err != nil {
			g.Error(err, "poll")
			delay = backoff.DelayAfter(false)
		} else {
			backoff.DelayAfter(true)
			g.Log.Debugf("poll sent=%d tele %s", n, g.Tele.Stat().String())
		}
		select {
		case <-time.After(delay):
		case <-stopch:
		}
	}
}

// PollOnce reads device according to poll.mode, returns number of forwarded datasets.
func PollOnce(ctx context.Context) (int, error) {
	g := state.GetGlobal(ctx)
	dev, err := g.Client.Resolve(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}

	switch g.Config.Poll.ModeOrDefault() {
	case state.PollModeDrain:
		sent := 0
		_, err = g.Client.Drain(ctx, dev, g.Config.Poll.MaxDatasets, func(r blnet.Record) error {
			ms := tele.RecordMessages(r)
			for _, m := range ms {
				g.Log.Debugf("record seq=%d address=%06x frame=%d %s", r.Seq, r.Address, m.Frame+1, m.Dataset.String())
			}
			if err := g.Tele.SendAll(ms); err != nil {
				return errors.Annotate(err, "tele")
			}
			sent += len(ms)
			return nil
		})
		return sent, errors.Trace(err)

	default:
		l, err := g.Client.Latest(ctx, dev, 0)
		if err != nil {
			return 0, errors.Trace(err)
		}
		for _, f := range l.Frames {
			if f.Timeout {
				g.Log.Errorf("latest frame=%d timeout", f.Index+1)
			}
		}
		ms := tele.LatestMessages(l)
		return len(ms), errors.Annotate(g.Tele.SendAll(ms), "tele")
	}
}
