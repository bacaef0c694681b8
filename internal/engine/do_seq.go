package engine

import (
	"context"

	"github.com/juju/errors"
	"github.com/temoto/blnet/helpers"
)

const seqBuffer uint = 8

// Sequence executor.
// Error in one action aborts whole group.
// Build with NewSeq().Append()
type Seq struct {
	name  string
	_b    [seqBuffer]Doer
	items []Doer
}

func NewSeq(name string) *Seq {
	seq := &Seq{name: name}
	seq.items = seq._b[:0]
	return seq
}

func (seq *Seq) Append(d Doer) *Seq {
	seq.items = append(seq.items, d)
	return seq
}

func (seq *Seq) Len() int { return len(seq.items) }

func (seq *Seq) Validate() error {
	errs := make([]error, 0, len(seq.items))

	for _, d := range seq.items {
		if err := d.Validate(); err != nil {
			err = errors.Annotatef(err, "seq=%s node=%s validate", seq.String(), d.String())
			errs = append(errs, err)
		}
	}

	return helpers.FoldErrors(errs)
}

func (seq *Seq) Do(ctx context.Context) error {
	for _, d := range seq.items {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		if err := d.Do(ctx); err != nil {
			return errors.Annotatef(err, FmtErrContext, d.String())
		}
	}
	return nil
}

func (seq *Seq) String() string {
	return seq.name
}

func (seq *Seq) cloneEmpty() *Seq {
	new := NewSeq(seq.name)
	if n := len(seq.items); n > cap(new.items) {
		new.items = make([]Doer, 0, len(seq.items))
	}
	return new
}
