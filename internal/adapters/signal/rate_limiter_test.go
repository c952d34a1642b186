package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMsgRateLimiter_BlocksOverLimit(t *testing.T) {
	req := require.New(t)
	rl := newMsgRateLimiter(2, 100*time.Millisecond)

	req.True(rl.Allow("c1"))
	req.True(rl.Allow("c1"))
	req.False(rl.Allow("c1"))

	// another connection has its own window
	req.True(rl.Allow("c2"))
}

func TestMsgRateLimiter_WindowSlides(t *testing.T) {
	req := require.New(t)
	rl := newMsgRateLimiter(1, 30*time.Millisecond)

	req.True(rl.Allow("c1"))
	req.False(rl.Allow("c1"))

	time.Sleep(40 * time.Millisecond)
	req.True(rl.Allow("c1"))
}

func TestMsgRateLimiter_Forget(t *testing.T) {
	req := require.New(t)
	rl := newMsgRateLimiter(1, time.Minute)

	req.True(rl.Allow("c1"))
	req.False(rl.Allow("c1"))

	rl.Forget("c1")
	req.True(rl.Allow("c1"))
}
