package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryProfile(t *testing.T) {
	m := MemoryProfile("test")
	assert.Greater(t, m.HeapInUse, uint64(0))
	assert.Contains(t, m.String(), "heap=")
	assert.Contains(t, Memory{HeapInUse: 2048}.String(), "heap=2.0 KiB")
}
