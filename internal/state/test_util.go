package state

import (
	"context"
	"testing"

	"github.com/temoto/blnet/internal/tele"
	"github.com/temoto/blnet/log2"
)

// NewTestContext reads confString as inline config.
// Tele transport is replaced with mock, enable it via `tele { enable = true }`.
func NewTestContext(t testing.TB, confString string) (context.Context, *Global, *tele.TransportMock) {
	fs := NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	log := log2.NewTest(t, log2.LDebug)
	log.SetFlags(log2.LTestFlags)
	mock := tele.NewTransportMock()
	ctx, g := NewContext(log, tele.NewWithTransporter(mock))
	g.MustInit(ctx, MustReadConfig(log, fs, "test-inline"))
	t.Cleanup(g.Close)

	return ctx, g, mock
}
