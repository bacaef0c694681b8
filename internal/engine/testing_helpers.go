package engine

import (
	"context"
	"testing"

	"github.com/juju/errors"
)

// TestDo parses text as one console line and runs it with validation.
func (e *Engine) TestDo(t testing.TB, ctx context.Context, text string) {
	t.Helper()
	d, err := e.ParseText("test: "+text, text)
	if err != nil {
		t.Fatalf("parse text=%s err=%s", text, errors.ErrorStack(err))
	}
	if err := e.ValidateExec(WithEngine(ctx, e), d); err != nil {
		t.Fatalf("exec text=%s err=%s", text, errors.ErrorStack(err))
	}
}
