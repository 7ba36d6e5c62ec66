package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	s := NewExponential(time.Second, 30*time.Second)

	assert.Equal(t, time.Second, s.Delay(0))
	assert.Equal(t, time.Second, s.Delay(1))
	assert.Equal(t, 2*time.Second, s.Delay(2))
	assert.Equal(t, 16*time.Second, s.Delay(5))
	assert.Equal(t, 30*time.Second, s.Delay(6))
	assert.Equal(t, 30*time.Second, s.Delay(100))
}

func TestExponentialWithJitter_Bounds(t *testing.T) {
	s := NewExponentialWithJitter(100*time.Millisecond, time.Second)

	for attempt := 1; attempt <= 10; attempt++ {
		upper := NewExponential(100*time.Millisecond, time.Second).Delay(attempt)
		for range 50 {
			d := s.Delay(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, upper)
		}
	}
}

func TestJitter(t *testing.T) {
	for range 100 {
		d := Jitter(time.Second, 0.2)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}

	assert.Equal(t, time.Second, Jitter(time.Second, 0))
	assert.Equal(t, time.Duration(0), Jitter(0, 0.5))
}
