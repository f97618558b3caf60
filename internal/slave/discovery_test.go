package slave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	max := 10 * time.Second

	assert.Equal(t, 2*time.Second, nextBackoff(1*time.Second, max))
	assert.Equal(t, 8*time.Second, nextBackoff(4*time.Second, max))
	assert.Equal(t, max, nextBackoff(8*time.Second, max))
}

func TestJitter_StaysWithinBound(t *testing.T) {
	d := 10 * time.Second
	for i := 0; i < 50; i++ {
		j := jitter(d)
		assert.InDelta(t, float64(d), float64(j), float64(d)*0.2+1)
	}
}

func TestNetworkPrefix(t *testing.T) {
	assert.Equal(t, "192.168.1", networkPrefix("192.168.1.42"))
	assert.Equal(t, "10.0.0", networkPrefix("10.0.0.1"))
}
