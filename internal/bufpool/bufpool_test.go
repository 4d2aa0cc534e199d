package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_GetReleaseReusesSlot(t *testing.T) {
	p := New(16)
	b := p.Get(16)
	assert.Equal(t, 1, p.Outstanding())
	b.Release()
	assert.Equal(t, 0, p.Outstanding())

	b2 := p.Get(16)
	assert.Equal(t, 1, p.Outstanding())
	b2.Release()
}

func TestPool_Get_OversizedRequestBypassesFreeList(t *testing.T) {
	p := New(4)
	b := p.Get(1024)
	assert.Len(t, b.Bytes(), 1024)
	b.Release()
	assert.Equal(t, 0, p.Outstanding())
}

func TestRefBuffer_RetainDelaysReturnUntilAllReleased(t *testing.T) {
	p := New(8)
	b := p.Get(8)
	b.Retain()
	assert.Equal(t, 1, p.Outstanding())

	b.Release()
	assert.Equal(t, 1, p.Outstanding(), "one reference still held")

	b.Release()
	assert.Equal(t, 0, p.Outstanding())
}

func TestRefBuffer_Trim(t *testing.T) {
	p := New(16)
	b := p.Get(16)
	copy(b.Bytes(), []byte("hello world12345"))
	b.Trim(5)
	assert.Equal(t, []byte("hello"), b.Bytes())
}

func TestPool_Capacity(t *testing.T) {
	p := New(42)
	assert.Equal(t, 42, p.Capacity())
}
