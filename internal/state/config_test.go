package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	blnet_config "github.com/temoto/blnet/hardware/blnet/config"
	"github.com/temoto/blnet/internal/tele"
	"github.com/temoto/blnet/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, context.Context)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, ctx context.Context) {
			g := GetGlobal(ctx)
			assert.Equal(t, blnet_config.DefaultPort, g.Config.Blnet.PortOrDefault())
			assert.Equal(t, PollModeLatest, g.Config.Poll.ModeOrDefault())
			assert.Equal(t, DefaultPollInterval, g.Config.Poll.Interval())
			assert.False(t, g.Tele.Enabled())
			assert.NotNil(t, g.Client)
		}, ""},

		{"blnet",
			`blnet { address = "10.0.0.7" port = 40001 reset = true io_timeout_sec = 3 }`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, "10.0.0.7", g.Config.Blnet.Address)
				assert.Equal(t, 40001, g.Config.Blnet.PortOrDefault())
				assert.True(t, g.Config.Blnet.Reset)
				assert.Equal(t, 3*time.Second, g.Config.Blnet.IOTimeout())
				assert.Equal(t, g.Config.Blnet, g.Client.Config)
			},
			"",
		},

		{"poll",
			`poll { interval_sec = 15 mode = "drain" max_datasets = 100 }`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, 15*time.Second, g.Config.Poll.Interval())
				assert.Equal(t, PollModeDrain, g.Config.Poll.ModeOrDefault())
				assert.Equal(t, 100, g.Config.Poll.MaxDatasets)
			},
			"",
		},

		{"tele",
			`tele { enable = true transport = "nats" topic_prefix = "home" }`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.True(t, g.Tele.Enabled())
				assert.Equal(t, "nats", g.Config.Tele.Transport)
				assert.Equal(t, "home", g.Config.Tele.TopicPrefixOrDefault())
			},
			"",
		},

		{"include-normalize", `
poll { interval_sec = 1 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "port-7" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, 7, g.Config.Blnet.Port)
			}, ""},

		{"include-overwrites", `
blnet { port = 1 }
include "port-7" {}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, 7, g.Config.Blnet.Port)
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-poll-mode", `poll { mode = "sometimes" }`, nil, "config: poll.mode=sometimes not valid"},
		{"error-port", `blnet { port = 70000 }`, nil, "config: blnet.port=70000 not valid"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			ctx, g := NewContext(log, tele.NewWithTransporter(tele.NewTransportMock()))

			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"empty":        "",
				"port-7":       "blnet{port=7}",
				"error-syntax": "hello",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if err == nil {
				err = g.Init(ctx, cfg)
				defer g.Close()
			}
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, ctx)
				}
			} else {
				require.Error(t, err)
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, mkCheck(c))
	}
}

func TestReadConfigNoNames(t *testing.T) {
	t.Parallel()
	_, err := ReadConfig(log2.NewTest(t, log2.LDebug), NewMockFullReader(nil))
	assert.Error(t, err)
}

func TestNewTestContext(t *testing.T) {
	t.Parallel()
	ctx, g, mock := NewTestContext(t, `tele { enable = true }`)
	assert.Equal(t, g, GetGlobal(ctx))
	assert.Equal(t, g.Log, log2.ContextValueLogger(ctx))
	require.NoError(t, g.Tele.Send(tele.NewMessage(tele.SourceLatest, 0, time.Now(), nil)))
	p := <-mock.Published()
	assert.Equal(t, tele.TopicDataset, p.Topic)
}

func TestErrorCount(t *testing.T) {
	t.Parallel()
	_, g, _ := NewTestContext(t, "")
	assert.Equal(t, uint32(0), g.ErrorCount())
	g.Log.Infof("not counted")
	g.Error(nil)
	assert.Equal(t, uint32(0), g.ErrorCount())
	g.Error(errors.New("header"), "resolve")
	g.Log.Errorf("checksum")
	assert.Equal(t, uint32(2), g.ErrorCount())
}

func TestGetGlobalPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { GetGlobal(context.Background()) })
	ctx := context.WithValue(context.Background(), ContextKey, "junk")
	assert.Panics(t, func() { GetGlobal(ctx) })
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../../blnet.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadConfig(log, NewOsFullReader(), "../../blnet.hcl")
	assert.Equal(t, "192.168.1.177", c.Blnet.Address)
	assert.Equal(t, PollModeLatest, c.Poll.ModeOrDefault())
}
