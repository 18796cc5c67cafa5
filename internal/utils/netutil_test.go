package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIPv4(t *testing.T) {
	ip, ok := ParseIPv4(" 192.168.1.10 # nas ")
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.10", ip)

	_, ok = ParseIPv4("server.lan")
	assert.False(t, ok)
	_, ok = ParseIPv4("# only a comment")
	assert.False(t, ok)
	_, ok = ParseIPv4("fe80::1")
	assert.False(t, ok)
}

func TestParseDefaultGateway(t *testing.T) {
	out := "default via 172.17.0.1 dev eth0 \n172.17.0.0/16 dev eth0 proto kernel scope link src 172.17.0.2\n"
	assert.Equal(t, "172.17.0.1", ParseDefaultGateway(out))
	assert.Equal(t, "", ParseDefaultGateway("10.0.0.0/8 dev eth0"))
}

func TestIsBridgeAddress(t *testing.T) {
	assert.True(t, IsBridgeAddress("172.18.0.4"))
	assert.False(t, IsBridgeAddress("192.168.0.4"))
}
