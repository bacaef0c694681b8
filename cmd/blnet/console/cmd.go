// Interactive console for manual protocol debugging.
package console

import (
	"context"
	"encoding/hex"
	"flag"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/blnet/cmd/blnet/subcmd"
	"github.com/temoto/blnet/crc"
	"github.com/temoto/blnet/hardware/blnet"
	"github.com/temoto/blnet/helpers"
	"github.com/temoto/blnet/helpers/cli"
	"github.com/temoto/blnet/internal/engine"
	"github.com/temoto/blnet/internal/state"
	"github.com/temoto/blnet/log2"
)

const modName = "console"

const usage = `syntax: commands separated by whitespace
(main)
- mode       detect device mode
- header     read header, resolve memory geometry
- latest     read current values, latest(N) with N attempts per request
- drain      read all stored records, drain(N) at most N records
- start      begin memory walk, prints record count
- fetch      read one record of memory walk
- end        END_READ, finishes memory walk without reset
- commit     END_READ and reset if blnet.reset=true
- info       mode header
- poll       latest drain
- @XX...     send bytes from hex XX..., checksum appended when longer than one byte
- sN         pause N milliseconds

(meta)
- log=yes    enable protocol debug logging
- log=no     disable protocol debug logging
- loop=N     repeat N times all commands on this line
`

var Mod = subcmd.Mod{Name: modName, Usage: "interactive protocol console, `help` inside", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	if err := flag.NewFlagSet(modName, flag.ContinueOnError).Parse(args); err != nil {
		return errors.Trace(err)
	}
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "init")
	}
	c := New(ctx, subcmd.GetPrinter(ctx))
	return cli.MainLoop("blnet", func(line string) {
		if err := c.Exec(ctx, line); err != nil {
			g.Log.Errorf(errors.ErrorStack(err))
		}
	}, c.Complete)
}

// Console keeps resolved device and walk session between lines.
type Console struct {
	g       *state.Global
	e       *engine.Engine
	p       *subcmd.Printer
	dev     *blnet.Device
	session *blnet.Session
}

func New(ctx context.Context, p *subcmd.Printer) *Console {
	g := state.GetGlobal(ctx)
	self := &Console{g: g, e: engine.NewEngine(g.Log), p: p}

	self.e.RegisterNewFunc("help", func(ctx context.Context) error {
		g.Log.Infof("%s\nactions: %s", usage, strings.Join(engine.GetGlobal(ctx).List(), " "))
		return nil
	})
	self.register("mode", self.doMode)
	self.register("header", self.doHeader)
	self.register("latest", func(ctx context.Context) error { return self.doLatest(ctx, 0) })
	self.e.Register("latest(?)", engine.FuncArg{Name: "latest", F: func(ctx context.Context, arg engine.Arg) error {
		return self.doLatest(ctx, int(arg))
	}})
	self.register("drain", func(ctx context.Context) error { return self.doDrain(ctx, 0) })
	self.e.Register("drain(?)", engine.FuncArg{Name: "drain", F: func(ctx context.Context, arg engine.Arg) error {
		return self.doDrain(ctx, int(arg))
	}})
	self.register("start", self.doStart)
	self.register("fetch", self.doFetch)
	self.register("end", func(ctx context.Context) error { return self.doEnd(ctx, false) })
	self.register("commit", func(ctx context.Context) error { return self.doEnd(ctx, true) })
	self.e.RegisterNewSeq("info", self.e.Resolve("mode"), self.e.Resolve("header"))
	if err := self.e.RegisterParse("poll", "latest drain"); err != nil {
		panic("code error console poll scenario: " + err.Error())
	}
	self.e.Register("log=yes", engine.Func0{Name: "log=yes", F: func() error {
		g.Client.Log.SetLevel(log2.LDebug)
		return nil
	}})
	self.e.Register("log=no", engine.Func0{Name: "log=no", F: func() error {
		g.Client.Log.SetLevel(log2.LInfo)
		return nil
	}})
	return self
}

// register device action, validated before any action of the line runs
func (self *Console) register(name string, f func(context.Context) error) {
	self.e.Register(name, engine.Func{Name: name, F: f, V: self.validateAddress})
}

func (self *Console) validateAddress() error {
	if self.g.Config == nil || self.g.Config.Blnet.Address == "" {
		return errors.NotValidf("blnet.address empty")
	}
	return nil
}

func (self *Console) Exec(ctx context.Context, line string) error {
	d, err := self.ParseLine(line)
	if err != nil {
		return errors.Trace(err)
	}
	ctx = engine.WithEngine(ctx, self.e)
	tbegin := time.Now()
	err = self.e.ValidateExec(ctx, d)
	self.g.Log.Debugf("duration=%v", time.Since(tbegin))
	return err
}

func (self *Console) Complete(d prompt.Document) []prompt.Suggest {
	actions := self.e.List()
	suggests := make([]prompt.Suggest, 0, len(actions)+3)
	for _, a := range actions {
		suggests = append(suggests, prompt.Suggest{Text: a})
	}
	suggests = append(suggests,
		prompt.Suggest{Text: "sN", Description: "pause for N ms"},
		prompt.Suggest{Text: "loop=N", Description: "repeat line N times"},
		prompt.Suggest{Text: "@XX", Description: "send raw command, show response"},
	)
	return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
}

func (self *Console) ParseLine(line string) (engine.Doer, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return engine.Nothing{}, nil
	}

	// pre-parse special commands
	loopn := uint(0)
	wordsRest := make([]string, 0, len(words))
	for _, word := range words {
		switch {
		case strings.HasPrefix(word, "loop="):
			if loopn != 0 {
				return nil, errors.Errorf("multiple loop commands, expected at most one")
			}
			i, err := strconv.ParseUint(word[5:], 10, 32)
			if err != nil {
				return nil, errors.Annotatef(err, "word=%s", word)
			}
			loopn = uint(i)
		default:
			wordsRest = append(wordsRest, word)
		}
	}

	// registered actions go through engine text parser, raw bytes and pauses are console syntax
	tx := engine.NewSeq("input: " + line)
	errs := make([]error, 0, len(wordsRest))
	plain := make([]string, 0, len(wordsRest))
	flush := func() {
		if len(plain) == 0 {
			return
		}
		text := strings.Join(plain, " ")
		plain = plain[:0]
		seq, err := self.e.ParseText(text, text)
		if err != nil {
			errs = append(errs, errors.Annotate(err, "invalid command"))
			return
		}
		tx.Append(seq)
	}
	for _, word := range wordsRest {
		d, ok, err := self.parseSpecial(word)
		if !ok {
			plain = append(plain, word)
			continue
		}
		flush()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tx.Append(d)
	}
	flush()
	if len(errs) != 0 {
		return nil, helpers.FoldErrors(errs)
	}

	if loopn != 0 {
		return engine.RepeatN{N: loopn, D: tx}, nil
	}
	return tx, nil
}

// parseSpecial returns ok=false for words left to engine.
func (self *Console) parseSpecial(word string) (engine.Doer, bool, error) {
	switch {
	case word[0] == '@':
		b, err := hex.DecodeString(word[1:])
		if err != nil {
			return nil, true, errors.Annotatef(err, "word=%s", word)
		}
		if len(b) == 0 {
			return nil, true, errors.NotValidf("word=%s empty command", word)
		}
		if len(b) > 1 {
			b = crc.Append(b)
		}
		return engine.Func{Name: word, V: self.validateAddress, F: func(ctx context.Context) error { return self.doRaw(ctx, b) }}, true, nil
	case word[0] == 's' && len(word) > 1 && word[1] >= '0' && word[1] <= '9':
		i, err := strconv.ParseUint(word[1:], 10, 32)
		if err != nil {
			return nil, true, errors.Annotatef(err, "word=%s", word)
		}
		return engine.Sleep{Duration: time.Duration(i) * time.Millisecond}, true, nil
	}
	return nil, false, nil
}

func (self *Console) device(ctx context.Context) (*blnet.Device, error) {
	if self.dev != nil {
		return self.dev, nil
	}
	return self.resolve(ctx)
}

func (self *Console) resolve(ctx context.Context) (*blnet.Device, error) {
	dev, err := self.g.Client.Resolve(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	self.dev = dev
	return dev, nil
}

func (self *Console) doMode(ctx context.Context) error {
	v, err := self.g.Client.DetectMode(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	self.p.Line("mode=%s", v.String())
	return nil
}

func (self *Console) doHeader(ctx context.Context) error {
	dev, err := self.resolve(ctx)
	if err != nil {
		return err
	}
	return self.p.Device(dev)
}

func (self *Console) doLatest(ctx context.Context, retries int) error {
	dev, err := self.device(ctx)
	if err != nil {
		return err
	}
	l, err := self.g.Client.Latest(ctx, dev, retries)
	if err != nil {
		return errors.Trace(err)
	}
	self.p.Line("date=%s requests=%d", l.Date.Format(time.RFC3339), len(l.Info))
	return self.p.Latest(l)
}

func (self *Console) doDrain(ctx context.Context, max int) error {
	dev, err := self.resolve(ctx)
	if err != nil {
		return err
	}
	n, err := self.g.Client.Drain(ctx, dev, max, self.p.Record)
	self.p.Line("records=%d", n)
	return errors.Trace(err)
}

func (self *Console) doStart(ctx context.Context) error {
	dev, err := self.resolve(ctx)
	if err != nil {
		return err
	}
	self.session = self.g.Client.NewSession(dev)
	count, err := self.session.StartRead(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	self.p.Line("count=%d state=%s", count, self.session.State().String())
	return nil
}

func (self *Console) doFetch(ctx context.Context) error {
	if self.session == nil {
		return errors.Errorf("no memory walk, use start")
	}
	r, err := self.session.FetchData(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	cur := self.session.Cursor()
	self.p.Line("next=%06x remaining=%d", cur.Address, cur.Remaining)
	return self.p.Record(r)
}

func (self *Console) doEnd(ctx context.Context, commit bool) error {
	s := self.session
	self.session = nil
	if s != nil && (s.State() == blnet.StateCounting || s.State() == blnet.StateReading) {
		return errors.Trace(s.EndRead(ctx, commit))
	}
	return errors.Trace(self.g.Client.EndRead(ctx, commit && self.g.Client.Config.Reset))
}

func (self *Console) doRaw(ctx context.Context, cmd []byte) error {
	var g *blnet.Geometry
	if self.dev != nil {
		g = &self.dev.Geometry
	}
	b, err := self.g.Client.Raw(ctx, cmd, blnet.ExpectedLength(cmd[0], g))
	if err != nil {
		return errors.Trace(err)
	}
	self.p.Line("> %x\n< (%d) %x", cmd, len(b), b)
	return nil
}
