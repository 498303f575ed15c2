// cmd/bladectl/commands_test.go
package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tamzrod/chassis-manager/internal/ipmi"
)

type sample struct {
	Slot byte   `json:"slot" yaml:"slot" cbor:"slot"`
	Name string `json:"name" yaml:"name" cbor:"name"`
}

func TestRenderers(t *testing.T) {
	in := sample{Slot: 4, Name: "blade-4"}

	for _, format := range []string{"json", "yaml", "cbor"} {
		t.Run(format, func(t *testing.T) {
			r, err := newRenderer(format)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, r(&buf, in))

			var out sample
			switch format {
			case "json":
				require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
			case "yaml":
				require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
			case "cbor":
				require.NoError(t, cbor.Unmarshal(buf.Bytes(), &out))
			}
			assert.Equal(t, in, out)
		})
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := newRenderer("xml")
	assert.Error(t, err)
}

func TestParseAction(t *testing.T) {
	a, err := parseAction("Cycle")
	require.NoError(t, err)
	assert.Equal(t, ipmi.ControlPowerCycle, a)

	a, err = parseAction("soft-off")
	require.NoError(t, err)
	assert.Equal(t, ipmi.ControlSoftOff, a)

	_, err = parseAction("diag")
	assert.Error(t, err)
}

func TestParseByte(t *testing.T) {
	v, err := parseByte("slot", "0x10")
	require.NoError(t, err)
	assert.Equal(t, byte(0x10), v)

	_, err = parseByte("slot", "300")
	assert.Error(t, err)
}

func TestRootRejectsBadFormat(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "sdr", "1"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestIsSection(t *testing.T) {
	assert.True(t, isSection(" Power "))
	assert.False(t, isSection("disks"))
}
