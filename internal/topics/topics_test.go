package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidMacAddress(t *testing.T) {
	cases := map[string]bool{
		"aa:bb:cc:dd:ee:ff": true,
		"AA:BB:CC:DD:EE:FF": true,
		"AA:12:34:45:67:89": true,
		"aabbccddeeff":      false,
		"aa:bb:cc:dd:ee:gg": false,
		"aa:bb:cc:dd:ee":    false,
		"":                  false,
	}
	for mac, valid := range cases {
		assert.Equal(t, valid, ValidMacAddress(mac), mac)
	}
}

func TestJoin(t *testing.T) {
	levels := Levels{L("switch"), L("switchbot"), MacAddress}.With("set")
	assert.Equal(t, "homeassistant/switch/switchbot/aa:bb:cc:dd:ee:ff/set",
		Join(DefaultPrefix, levels, "aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, "homeassistant/switch/switchbot/+/set", Join(DefaultPrefix, levels, "+"))
	assert.Equal(t, "switch/switchbot/+/set", Join("", levels, "+"))
}

func TestWithDoesNotAlias(t *testing.T) {
	base := make(Levels, 0, 8)
	base = append(base, L("cover"), MacAddress)
	a := base.With("set")
	b := base.With("state")
	assert.Equal(t, "cover/x/set", Join("", a, "x"))
	assert.Equal(t, "cover/x/state", Join("", b, "x"))
}

func TestParse(t *testing.T) {
	set := Levels{L("switchbot"), MacAddress, L("set")}
	cases := []struct {
		levels Levels
		topic  string
		mac    string
	}{
		{set, "switchbot/aa:bb:cc:dd:ee:ff/set", "aa:bb:cc:dd:ee:ff"},
		{set, "switchbot//set", ""},
		{Levels{L("prefix"), MacAddress}, "prefix/aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff"},
		{Levels{MacAddress}, "00:11:22:33:44:55", "00:11:22:33:44:55"},
	}
	for _, c := range cases {
		mac, err := Parse("", c.topic, c.levels)
		require.NoError(t, err, c.topic)
		assert.Equal(t, c.mac, mac, c.topic)
	}
}

func TestParseWithPrefix(t *testing.T) {
	set := Levels{L("switchbot"), MacAddress, L("set")}
	mac, err := Parse(DefaultPrefix, "homeassistant/switchbot/aa:bb:cc:dd:ee:ff/set", set)
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", mac)

	_, err = Parse(DefaultPrefix, "switchbot/aa:bb:cc:dd:ee:ff/set", set)
	assert.Error(t, err)
}

func TestParseFailure(t *testing.T) {
	set := Levels{L("switchbot"), MacAddress, L("set")}
	for _, topic := range []string{
		"switchbot/aa:bb:cc:dd:ee:ff",
		"switchbot/aa:bb:cc:dd:ee:ff/change",
		"switchbot/aa:bb:cc:dd:ee:ff/set/suffix",
	} {
		_, err := Parse("", topic, set)
		assert.Error(t, err, topic)
	}
}
