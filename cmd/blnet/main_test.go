package main

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/blnet/hardware/blnet"
)

func TestRun(t *testing.T) {
	m := blnet.NewMockDevice(t, blnet.VariantDL, 1)
	m.Store(0, nil, nil)
	conf := m.Config()
	port := strconv.Itoa(conf.Port)

	assert.Equal(t, 0, run([]string{"-address", conf.Address, "-port", port, "-format", "yaml", "resolve"}))
	assert.Equal(t, 2, run([]string{"-address", conf.Address, "fly"}))
	assert.Equal(t, 2, run([]string{}))
	assert.Equal(t, 2, run([]string{"-format", "xml", "resolve"}))
	assert.Equal(t, 1, run([]string{"-config", "/nonexistent/blnet.hcl", "resolve"}))
	assert.Equal(t, 1, run([]string{"resolve"})) // no address
	assert.Equal(t, 0, run([]string{"-config", "../../blnet.hcl", "-address", conf.Address, "-port", port, "drain", "-max", "1"}))
}
