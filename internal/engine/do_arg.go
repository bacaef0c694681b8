package engine

import (
	"context"
	"fmt"

	"github.com/juju/errors"
)

var ErrArgNotApplied = errors.Errorf("Argument is not applied")
var ErrArgOverwrite = errors.Errorf("Argument already applied")

func ArgApply(d Doer, arg Arg) (Doer, bool, error) {
	if aa, ok := d.(ArgApplier); ok {
		return aa.Apply(arg)
	}
	return d, false, nil
}

type Arg int32
type ArgApplier interface {
	Apply(a Arg) (Doer, bool, error)
}

type FuncArg struct {
	Name string
	F    func(context.Context, Arg) error
	V    ValidateFunc
	arg  Arg
	set  bool
}

func (fa FuncArg) Validate() error {
	if !fa.set {
		return errors.Annotatef(ErrArgNotApplied, FmtErrContext, fa.Name)
	}
	return useValidator(fa.V)
}
func (fa FuncArg) Do(ctx context.Context) error {
	if !fa.set {
		return errors.Annotatef(ErrArgNotApplied, FmtErrContext, fa.Name)
	}
	return fa.F(ctx, fa.arg)
}
func (fa FuncArg) String() string {
	if !fa.set {
		return fmt.Sprintf("%s:Arg?", fa.Name)
	}
	return fmt.Sprintf("%s:%v", fa.Name, fa.arg)
}

func (fa FuncArg) Apply(a Arg) (Doer, bool, error) {
	if fa.set {
		return nil, false, errors.Annotatef(ErrArgOverwrite, FmtErrContext, fa.Name)
	}
	// value receiver, fa is a copy already
	fa.arg = a
	fa.set = true
	return fa, true, nil
}

// Apply makes copy of Seq, applying `arg` to exactly one (first) placeholder.
func (seq *Seq) Apply(arg Arg) (Doer, bool, error) {
	result := seq.cloneEmpty()
	found := false
	places := uint(0)
	for _, child := range seq.items {
		if found {
			result.Append(child)
			continue
		}
		new, applied, err := ArgApply(child, arg)
		switch errors.Cause(err) {
		case nil: // success path
			if applied {
				places++
				found = true
				result.Append(new)
			} else {
				result.Append(child)
			}

		case ErrArgOverwrite:
			places++
			result.Append(child)

		default:
			return nil, false, errors.Annotatef(err, FmtErrContext, seq.String())
		}
	}
	if !found && places > 0 {
		return nil, false, errors.Annotatef(ErrArgNotApplied, FmtErrContext, seq.String())
	}
	return result, found, nil
}

type IgnoreArg struct{ Doer }

func (self IgnoreArg) Apply(Arg) (Doer, bool, error) { return self.Doer, true, nil }

// compile-time interface checks
var _ ArgApplier = &Seq{}
var _ ArgApplier = FuncArg{}
var _ ArgApplier = IgnoreArg{}
