package stamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWarnLimiterDisabled(t *testing.T) {
	l := newWarnLimiter(0, time.Second)
	assert.Nil(t, l)

	ok, swallowed := l.Allow(warnKey{src: [4]byte{1, 2, 3, 4}}, time.Now())
	assert.True(t, ok)
	assert.Zero(t, swallowed)
	assert.Zero(t, l.Suppressed())
}

func TestWarnLimiterPerSourceAndStage(t *testing.T) {
	l := newWarnLimiter(2, time.Minute)
	now := time.Now()
	a := warnKey{src: [4]byte{10, 0, 0, 1}, stage: StageExtend}
	b := warnKey{src: [4]byte{10, 0, 0, 2}, stage: StageExtend}
	aLin := warnKey{src: a.src, stage: StageLinearize}

	for _, want := range []bool{true, true, false} {
		ok, _ := l.Allow(a, now)
		assert.Equal(t, want, ok)
	}
	ok, _ := l.Allow(b, now)
	assert.True(t, ok)
	ok, _ = l.Allow(aLin, now)
	assert.True(t, ok, "another stage of the same source has its own budget")
	assert.Equal(t, int64(1), l.Suppressed())
}

func TestWarnLimiterReportsSwallowedOnRotation(t *testing.T) {
	l := newWarnLimiter(1, time.Second)
	now := time.Now()
	k := warnKey{src: [4]byte{192, 168, 0, 1}, stage: StageExtend}

	ok, swallowed := l.Allow(k, now)
	assert.True(t, ok)
	assert.Zero(t, swallowed)
	for i := 0; i < 3; i++ {
		ok, _ = l.Allow(k, now.Add(500*time.Millisecond))
		assert.False(t, ok)
	}

	ok, swallowed = l.Allow(k, now.Add(time.Second))
	assert.True(t, ok)
	assert.Equal(t, int64(3), swallowed)

	_, swallowed = l.Allow(k, now.Add(1100*time.Millisecond))
	assert.Zero(t, swallowed, "the count is handed back once")
	assert.Equal(t, int64(4), l.Suppressed())
}
