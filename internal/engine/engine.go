// Package engine runs console command lines: whitespace separated words
// resolved to registered actions, `name(N)` passes integer argument.
package engine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/blnet/log2"
)

type ErrNotResolved struct{ msg string }

func NewErrNotResolved(action string) ErrNotResolved {
	return ErrNotResolved{msg: fmt.Sprintf("action=%s not resolved", action)}
}
func (e ErrNotResolved) Error() string { return e.msg }

type Engine struct {
	Log     *log2.Log
	lk      sync.RWMutex
	actions map[string]Doer
}

func NewEngine(log *log2.Log) *Engine {
	self := &Engine{
		Log:     log,
		actions: make(map[string]Doer, 32),
	}
	self.actions["ignore(?)"] = FuncArg{
		Name: "ignore(?)",
		F:    func(context.Context, Arg) error { return nil }}
	return self
}

func (self *Engine) Register(action string, d Doer) {
	self.lk.Lock()
	self.actions[action] = d
	self.lk.Unlock()
}

func (self *Engine) RegisterNewFunc(name string, fun func(context.Context) error) {
	self.Register(name, Func{
		Name: name,
		F:    fun,
	})
}

func (self *Engine) RegisterNewSeq(name string, ds ...Doer) {
	tx := NewSeq(name)
	for _, d := range ds {
		tx.Append(d)
	}
	self.Register(name, tx)
}

func (self *Engine) RegisterParse(name, scenario string) error {
	d, err := self.ParseText(name, scenario)
	if err != nil {
		err = errors.Annotatef(err, "engine.RegisterParse() name=%s scenario=%s", name, scenario)
		return err
	}
	self.Register(name, d)
	return nil
}

var reActionArg = regexp.MustCompile(`^(.+)\((\d+|\?)\)$`)

type token struct {
	tag  string
	norm string
	arg  string
	ok   bool
}

func parseArg(s string) token {
	match := reActionArg.FindStringSubmatch(s)
	if match == nil {
		return token{tag: s}
	}
	return token{
		tag:  match[1],
		norm: match[1] + "(?)",
		arg:  match[2],
		ok:   true,
	}
}

func (self *Engine) resolve(action string) (Doer, error) {
	self.lk.RLock()
	defer self.lk.RUnlock()

	d, ok := self.actions[action]
	if ok {
		return d, nil
	}

	tok := parseArg(action)
	if !tok.ok {
		return nil, NewErrNotResolved(action)
	}

	d, ok = self.actions[tok.norm]
	if !ok {
		self.Log.Debugf("resolve action=%s normalized=%s not found", action, tok.norm)
		err := NewErrNotResolved(tok.norm)
		err.msg = fmt.Sprintf(FmtErrContext, action) + err.msg
		return nil, err
	}
	if tok.arg != "?" {
		argn, err := strconv.Atoi(tok.arg)
		if err != nil {
			return nil, errors.Annotatef(err, FmtErrContext, action)
		}
		var applied bool
		d, applied, err = ArgApply(d, Arg(argn))
		if err != nil {
			return nil, errors.Annotatef(err, FmtErrContext, action)
		}
		if !applied {
			self.Log.Debugf("resolve action=%s arg=%v not applied", action, tok.arg)
			return nil, errors.Annotatef(ErrArgNotApplied, FmtErrContext, action)
		}
	}
	return d, nil
}

// Resolve never returns nil, unknown action becomes Fail.
func (self *Engine) Resolve(action string) Doer {
	d, err := self.resolve(action)
	if err != nil {
		self.Log.Debugf("engine.Resolve action=%s err=%v", action, err)
		return Fail{E: err}
	}
	return d
}

func (self *Engine) List() []string {
	self.lk.RLock()
	r := make([]string, 0, len(self.actions))
	for k := range self.actions {
		r = append(r, k)
	}
	self.lk.RUnlock()
	sort.Strings(r)
	return r
}

var reNotSpace = regexp.MustCompile(`\S+`)

// ParseText resolves every word now, registering actions later does not affect result.
func (self *Engine) ParseText(tag, text string) (*Seq, error) {
	words := reNotSpace.FindAllString(text, -1)

	tx := NewSeq(tag)
	for _, word := range words {
		d, err := self.resolve(word)
		if err != nil {
			return nil, errors.Annotatef(err, "scenario=%s unparsed=%s", text, word)
		}
		tx.Append(d)
	}
	return tx, nil
}

func (self *Engine) Exec(ctx context.Context, d Doer) error { return self.exec(ctx, d, false) }
func (self *Engine) ValidateExec(ctx context.Context, d Doer) error {
	return self.exec(ctx, d, true)
}

func (self *Engine) exec(ctx context.Context, d Doer, validate bool) (err error) {
	if validate {
		err = d.Validate()
	}
	if err == nil {
		self.Log.Debugf("engine exec %s", d.String())
		err = d.Do(ctx)
	}
	return err
}

// Test `error` or `Doer` against ErrNotResolved
func IsNotResolved(x interface{}) bool {
	if x == nil {
		return false
	}
	e, _ := x.(error)
	if e == nil {
		if f, ok := x.(Fail); ok {
			e = f.E
		}
	}
	if e == nil {
		return false
	}
	e = errors.Cause(e)
	_, ok := e.(ErrNotResolved)
	return ok
}
