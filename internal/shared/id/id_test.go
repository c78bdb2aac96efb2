package id

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixes(t *testing.T) {
	alert := NewAlertID()
	packet := NewPacketID()

	assert.True(t, strings.HasPrefix(alert.String(), "alr_"))
	assert.True(t, strings.HasPrefix(packet.String(), "pkt_"))
}

func TestUniqueness(t *testing.T) {
	seen := make(map[AlertID]bool)
	for i := 0; i < 100; i++ {
		id := NewAlertID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestDeterministicEntropy(t *testing.T) {
	g := NewGeneratorWithEntropy(rand.New(rand.NewSource(42)))
	a := g.Generate()
	b := g.Generate()
	assert.NotEqual(t, a, b)
	assert.Len(t, a.String(), 26)
}
