package protoinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "protocol_numbers.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveKnownProtocols(t *testing.T) {
	path := writeTable(t, `{
		"6":  {"libc": "IPPROTO_TCP", "name": "TCP"},
		"17": {"libc": "IPPROTO_UDP", "name": "UDP"}
	}`)
	r := NewResolver(path)
	require.NoError(t, r.Check())

	tcp := r.Resolve(6)
	assert.Equal(t, int64(6), tcp.ID)
	assert.Equal(t, "IPPROTO_TCP", tcp.LibcName)
	assert.Equal(t, "TCP", tcp.Name)

	udp := r.Resolve(17)
	assert.Equal(t, "UDP", udp.Name)
}

func TestResolveUnknownProtocol(t *testing.T) {
	r := NewResolver(writeTable(t, `{"6": {"libc": "IPPROTO_TCP", "name": "TCP"}}`))

	info := r.Resolve(254)
	assert.Equal(t, int64(254), info.ID)
	assert.Equal(t, "N/A", info.LibcName)
	assert.Equal(t, "N/A", info.Name)
}

func TestCheckFailsOnMissingFile(t *testing.T) {
	r := NewResolver(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, r.Check())
}

func TestCheckFailsOnBadJSON(t *testing.T) {
	assert.Error(t, NewResolver(writeTable(t, `{"6": `)).Check())
	assert.Error(t, NewResolver(writeTable(t, `{"six": {"libc": "x", "name": "y"}}`)).Check())
}

func TestLoadHappensOnce(t *testing.T) {
	path := writeTable(t, `{"1": {"libc": "IPPROTO_ICMP", "name": "ICMP"}}`)
	r := NewResolver(path)
	require.NoError(t, r.Check())

	// Rewriting the file after the first load changes nothing.
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	assert.Equal(t, "ICMP", r.Resolve(1).Name)
}
