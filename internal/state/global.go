package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/blnet/hardware/blnet"
	"github.com/temoto/blnet/internal/tele"
	"github.com/temoto/blnet/log2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Client       *blnet.Client
	Log          *log2.Log
	Tele         *tele.Tele

	errorCount uint32

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log, t *tele.Tele) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}
	if t == nil {
		t = tele.New()
	}

	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  t,
	}
	log.SetErrorFunc(func(error) { atomic.AddUint32(&g.errorCount, 1) })
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)

	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if err := cfg.Validate(); err != nil {
		return errors.Trace(err)
	}
	g.Log.Debugf("config: blnet address=%s port=%d poll mode=%s interval=%v",
		cfg.Blnet.Address, cfg.Blnet.PortOrDefault(), cfg.Poll.ModeOrDefault(), cfg.Poll.Interval())

	g.Client = blnet.NewClient(cfg.Blnet, g.Log)

	if err := g.Tele.Init(ctx, g.Log, cfg.Tele); err != nil {
		return errors.Annotate(err, "tele init")
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Errorf(errors.ErrorStack(err))
	}
}

// ErrorCount is number of errors logged via Global.Log since NewContext.
func (g *Global) ErrorCount() uint32 { return atomic.LoadUint32(&g.errorCount) }

// Stop is safe to call more than once.
func (g *Global) Stop() {
	g.Alive.Stop()
}

// Close releases telemetry after poll loop is done.
func (g *Global) Close() {
	g.Tele.Close()
}
