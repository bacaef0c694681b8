package read

import (
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/blnet/cmd/blnet/subcmd"
	"github.com/temoto/blnet/hardware/blnet"
	"github.com/temoto/blnet/helpers"
	"github.com/temoto/blnet/internal/tele"
	"gopkg.in/yaml.v3"
)

const sampleHex = "7d20b522662203227e218e221621e020ff20f320f82000003d2101000060e221000080000000002c00a4280600446849821d044365c000"

func record(day byte) [][]byte {
	return [][]byte{append(helpers.MustHex(sampleHex), 0, 30, 12, day, 10, 26)}
}

func lines(s string) []string { return strings.Split(strings.TrimSpace(s), "\n") }

func TestResolveMain(t *testing.T) {
	t.Parallel()
	m := blnet.NewMockDevice(t, blnet.VariantDL, 1)
	m.Store(0, record(1), record(2))
	env := subcmd.NewTestEnv(t, m.Config(), subcmd.FormatText)

	require.NoError(t, ResolveMain(env.Ctx, env.Config, nil))
	assert.True(t, strings.HasPrefix(env.Out.String(), "mode=DL "), env.Out.String())
	assert.Contains(t, env.Out.String(), "count=2")
	assert.Empty(t, env.Published())

	assert.Error(t, ResolveMain(env.Ctx, env.Config, []string{"-bogus"}))
}

func TestLatestMain(t *testing.T) {
	t.Parallel()
	m := blnet.NewMockDevice(t, blnet.VariantCAN, 2)
	m.With(func(m *blnet.MockDevice) {
		m.Live[0] = helpers.MustHex(sampleHex)
		m.Live[1] = helpers.MustHex(sampleHex)
		// zero seconds wait on every attempt
		m.Waits[2] = []byte{0, 0}
	})
	env := subcmd.NewTestEnv(t, m.Config(), subcmd.FormatText)

	require.NoError(t, LatestMain(env.Ctx, env.Config, []string{"-retries", "2"}))
	out := lines(env.Out.String())
	require.Len(t, out, 2)
	assert.True(t, strings.HasPrefix(out[0], "frame=1 analog=12.5,"), out[0])
	assert.Equal(t, "frame=2 timeout", out[1])

	ps := env.Published()
	require.Len(t, ps, 2)
	s, err := tele.UnmarshalMessage(ps[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "latest", s.Fields["source"].GetStringValue())
	s, err = tele.UnmarshalMessage(ps[1].Payload)
	require.NoError(t, err)
	assert.True(t, s.Fields["timeout"].GetBoolValue())
}

func TestDrainMainReset(t *testing.T) {
	t.Parallel()
	m := blnet.NewMockDevice(t, blnet.VariantDL, 1)
	m.Store(0, record(1), record(2), record(3))
	env := subcmd.NewTestEnv(t, m.Config(), subcmd.FormatText)

	require.NoError(t, DrainMain(env.Ctx, env.Config, []string{"-reset"}))
	out := lines(env.Out.String())
	require.Len(t, out, 4)
	// newest first
	assert.Contains(t, out[0], "seq=0 address=000080 frame=1 ")
	assert.Contains(t, out[0], "time=2026-10-03T12:30:00")
	assert.Contains(t, out[2], "time=2026-10-01T12:30:00")
	assert.Equal(t, "records=3", out[3])
	assert.Len(t, env.Published(), 3)

	resets := 0
	m.With(func(m *blnet.MockDevice) { resets = m.Resets })
	assert.Equal(t, 1, resets)
}

func TestDrainMainMaxYAML(t *testing.T) {
	t.Parallel()
	m := blnet.NewMockDevice(t, blnet.VariantDL, 1)
	m.Store(0, record(1), record(2), record(3))
	env := subcmd.NewTestEnv(t, m.Config(), subcmd.FormatYAML)

	require.NoError(t, DrainMain(env.Ctx, env.Config, []string{"-max", "2"}))
	dec := yaml.NewDecoder(env.Out)
	var docs []subcmd.RecordYAML
	for {
		var r subcmd.RecordYAML
		if err := dec.Decode(&r); err != nil {
			break
		}
		docs = append(docs, r)
	}
	require.Len(t, docs, 2)
	assert.Equal(t, "000080", docs[0].Address)
	assert.Equal(t, "000040", docs[1].Address)
	require.Len(t, docs[1].Frames, 1)
	assert.Equal(t, 12.5, docs[1].Frames[0].Analog[1])

	resets := -1
	m.With(func(m *blnet.MockDevice) { resets = m.Resets })
	assert.Equal(t, 0, resets)
}

func TestDrainMainTeleFailureKeepsMemory(t *testing.T) {
	t.Parallel()
	m := blnet.NewMockDevice(t, blnet.VariantDL, 1)
	m.Store(0, record(1), record(2))
	env := subcmd.NewTestEnv(t, m.Config(), subcmd.FormatText)
	env.Tele.SetFail(errors.New("broker down"))

	err := DrainMain(env.Ctx, env.Config, []string{"-reset"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Contains(t, env.Out.String(), "records=1")

	resets, last := -1, []byte(nil)
	m.With(func(m *blnet.MockDevice) { resets = m.Resets })
	h := m.History()
	last = h[len(h)-1]
	assert.Equal(t, 0, resets)
	assert.Equal(t, []byte{blnet.CmdEndRead}, last)
}

func TestResolveMainNoAddress(t *testing.T) {
	t.Parallel()
	m := blnet.NewMockDevice(t, blnet.VariantDL, 1)
	conf := m.Config()
	conf.Address = ""
	env := subcmd.NewTestEnv(t, conf, subcmd.FormatText)
	err := ResolveMain(env.Ctx, env.Config, nil)
	assert.True(t, errors.IsNotValid(errors.Cause(err)), "err=%v", err)
}

func TestMods(t *testing.T) {
	t.Parallel()
	mods := []subcmd.Mod{ResolveMod, LatestMod, DrainMod}
	assert.Equal(t, "resolve, latest, drain", subcmd.Names(mods))
	for _, mod := range mods {
		mod, err := subcmd.Parse(mod.Name, mods)
		require.NoError(t, err)
		assert.NotNil(t, mod.Main, mod.Name)
	}
}
