package startup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoffCapsAtThirtySeconds(t *testing.T) {
	d := 2 * time.Second
	var seen []time.Duration
	for i := 0; i < 6; i++ {
		d = nextBackoff(d)
		seen = append(seen, d)
	}
	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second}, seen)
}
