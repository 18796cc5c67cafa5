package utils

import (
	"bytes"
	"testing"

	"github.com/iancoleman/orderedmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hostRow struct {
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Failures int      `json:"failures"`
	Tags     []string `json:"tags"`
}

func TestStructToOrderedMapKeepsFieldOrder(t *testing.T) {
	m, err := StructToOrderedMap(hostRow{Name: "web1", Status: "connected", Failures: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "status", "failures", "tags"}, m.Keys())
	v, ok := m.Get("name")
	require.True(t, ok)
	assert.Equal(t, "web1", v)
}

func TestWriteFormat(t *testing.T) {
	var buf bytes.Buffer
	WriteFormat(&buf, nil)
	assert.Equal(t, "No data\n", buf.String())

	a, err := StructToOrderedMap(hostRow{Name: "web1", Status: "connected", Tags: []string{"x"}})
	require.NoError(t, err)
	b, err := StructToOrderedMap(&hostRow{Name: "db1", Status: "failed", Failures: 4})
	require.NoError(t, err)

	buf.Reset()
	WriteFormat(&buf, []*orderedmap.OrderedMap{a, b})
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "web1")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, `["x"]`)
}
