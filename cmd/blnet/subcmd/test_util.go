package subcmd

import (
	"bytes"
	"context"
	"testing"

	blnet_config "github.com/temoto/blnet/hardware/blnet/config"
	"github.com/temoto/blnet/internal/state"
	"github.com/temoto/blnet/internal/tele"
	"github.com/temoto/blnet/log2"
)

type TestEnv struct {
	Ctx    context.Context
	Global *state.Global
	Config *state.Config
	Out    *bytes.Buffer
	Tele   *tele.TransportMock
}

// NewTestEnv prepares context for Mod.Main, caller calls Main which does Global.Init.
func NewTestEnv(t testing.TB, conf blnet_config.Config, format string) *TestEnv {
	log := log2.NewTest(t, log2.LDebug)
	log.SetFlags(log2.LTestFlags)
	env := &TestEnv{
		Config: state.NewConfig(),
		Out:    new(bytes.Buffer),
		Tele:   tele.NewTransportMock(),
	}
	env.Config.Blnet = conf
	env.Config.Tele.Enabled = true
	env.Ctx, env.Global = state.NewContext(log, tele.NewWithTransporter(env.Tele))
	p, err := NewPrinter(env.Out, format)
	if err != nil {
		t.Fatal(err)
	}
	env.Ctx = WithPrinter(env.Ctx, p)
	t.Cleanup(func() {
		env.Global.Stop()
		env.Global.Close()
	})
	return env
}

// Published drains messages sent so far.
func (self *TestEnv) Published() []tele.MockPublished {
	var ps []tele.MockPublished
	for {
		select {
		case p := <-self.Tele.Published():
			ps = append(ps, p)
		default:
			return ps
		}
	}
}
