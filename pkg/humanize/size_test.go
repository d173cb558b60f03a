package humanize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSize(t *testing.T) {
	v, u := Size(512)
	assert.Equal(t, 512.0, v)
	assert.Equal(t, "B", u)

	v, u = Size(2048)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, "KB", u)

	v, u = Size(3 * 1024 * 1024)
	assert.Equal(t, 3.0, v)
	assert.Equal(t, "MB", u)

	assert.Equal(t, "1.50GB", String(3*512*1024*1024))
}
