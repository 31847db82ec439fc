package nonce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	assert.Equal(t, 31*time.Second, TTL(now, now.Add(30*time.Second)))
	assert.Equal(t, time.Second, TTL(now, now))
	assert.Equal(t, time.Second, TTL(now, now.Add(-time.Minute)))
}
