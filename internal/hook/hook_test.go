package hook

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/florianl/go-nfqueue"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/gtpstamp/internal/config"
	"firestige.xyz/gtpstamp/internal/core"
	"firestige.xyz/gtpstamp/internal/core/stamp"
	"firestige.xyz/gtpstamp/internal/core/stamp/stamptest"
	"firestige.xyz/gtpstamp/internal/metrics"
)

type mockQueue struct {
	mock.Mock
	hook  nfqueue.HookFunc
	errfn nfqueue.ErrorFunc
}

func (m *mockQueue) SetVerdict(id uint32, verdict int) error {
	return m.Called(id, verdict).Error(0)
}

func (m *mockQueue) SetVerdictModPacket(id uint32, verdict int, packet []byte) error {
	return m.Called(id, verdict, packet).Error(0)
}

func (m *mockQueue) RegisterWithErrorFunc(ctx context.Context, fn nfqueue.HookFunc, errfn nfqueue.ErrorFunc) error {
	m.hook, m.errfn = fn, errfn
	return m.Called(ctx).Error(0)
}

func (m *mockQueue) Close() error {
	return m.Called().Error(0)
}

func newStamper() *stamp.Stamper {
	return stamp.New(stamp.Options{
		NodeID:       5,
		Clock:        stamp.ClockFunc(func() uint64 { return 42 }),
		StrictLength: true,
	})
}

func attr(id uint32, payload []byte) nfqueue.Attribute {
	return nfqueue.Attribute{PacketID: &id, Payload: &payload}
}

func TestHandleFlaggedPacketIsModified(t *testing.T) {
	h := New(config.QueueConfig{}, newStamper())
	pkt := stamptest.GTPU(t, 0x01)
	orig := append([]byte(nil), pkt...)

	q := &mockQueue{}
	q.On("SetVerdictModPacket", uint32(7), nfqueue.NfAccept, mock.MatchedBy(func(b []byte) bool {
		return len(b) == len(orig)+core.TrailerEntryLen && b[len(b)-core.TrailerEntryLen] == 5
	})).Return(nil).Once()

	before := testutil.ToFloat64(metrics.VerdictsTotal.WithLabelValues("accept"))
	assert.Equal(t, 0, h.handle(q, attr(7, pkt)))

	q.AssertExpectations(t)
	q.AssertNotCalled(t, "SetVerdict", mock.Anything, mock.Anything)
	assert.Equal(t, orig, pkt, "receive buffer must stay untouched")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.VerdictsTotal.WithLabelValues("accept")))
}

func TestHandlePassThrough(t *testing.T) {
	tests := []struct {
		name string
		pkt  func(t *testing.T) []byte
	}{
		{"NotTunneled", func(t *testing.T) []byte { return stamptest.UDP(t, 53, []byte("query")) }},
		{"NoFlag", func(t *testing.T) []byte { return stamptest.GTPU(t, 0x30) }},
		{"Garbage", func(t *testing.T) []byte { return []byte{0x45, 0x00} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(config.QueueConfig{}, newStamper())
			q := &mockQueue{}
			q.On("SetVerdict", uint32(9), nfqueue.NfAccept).Return(nil).Once()

			h.handle(q, attr(9, tt.pkt(t)))
			q.AssertExpectations(t)
		})
	}
}

func TestHandleDropsWhenPacketCannotGrow(t *testing.T) {
	pkt := stamptest.GTPU(t, 0x01)
	h := New(config.QueueConfig{MaxPacketLen: len(pkt) + 1}, newStamper())

	q := &mockQueue{}
	q.On("SetVerdict", uint32(3), nfqueue.NfDrop).Return(nil).Once()

	before := testutil.ToFloat64(metrics.VerdictsTotal.WithLabelValues("drop"))
	h.handle(q, attr(3, pkt))

	q.AssertExpectations(t)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.VerdictsTotal.WithLabelValues("drop")))
}

func TestHandleMissingFields(t *testing.T) {
	h := New(config.QueueConfig{}, newStamper())
	q := &mockQueue{}

	assert.Equal(t, 0, h.handle(q, nfqueue.Attribute{}))
	q.AssertNotCalled(t, "SetVerdict", mock.Anything, mock.Anything)

	id := uint32(11)
	q.On("SetVerdict", id, nfqueue.NfAccept).Return(nil).Once()
	h.handle(q, nfqueue.Attribute{PacketID: &id})
	q.AssertExpectations(t)
}

func TestHandleVerdictErrorKeepsRunning(t *testing.T) {
	h := New(config.QueueConfig{}, newStamper())
	q := &mockQueue{}
	q.On("SetVerdict", uint32(1), nfqueue.NfAccept).Return(errors.New("netlink: busy")).Once()

	assert.Equal(t, 0, h.handle(q, attr(1, stamptest.UDP(t, 53, nil))))
	q.AssertExpectations(t)
}

func TestStartOpensEveryQueue(t *testing.T) {
	cfg := config.QueueConfig{Num: 10, Count: 3, MaxQueueLen: 128, FailOpen: true}
	h := New(cfg, newStamper())

	var opened []*nfqueue.Config
	queues := map[uint16]*mockQueue{}
	h.open = func(c *nfqueue.Config) (queue, error) {
		opened = append(opened, c)
		q := &mockQueue{}
		q.On("RegisterWithErrorFunc", mock.Anything).Return(nil)
		q.On("Close").Return(nil).Once()
		queues[c.NfQueue] = q
		return q, nil
	}

	require.NoError(t, h.Start(context.Background()))
	assert.Error(t, h.Start(context.Background()))

	require.Len(t, opened, 3)
	for i, c := range opened {
		assert.Equal(t, uint16(10+i), c.NfQueue)
		assert.Equal(t, uint32(core.IPv4MaxTotalLen), c.MaxPacketLen)
		assert.Equal(t, uint32(128), c.MaxQueueLen)
		assert.Equal(t, uint8(nfqueue.NfQnlCopyPacket), c.Copymode)
		assert.Equal(t, uint32(nfqueue.NfQaCfgFlagFailOpen), c.Flags)
	}

	// callbacks registered on a queue answer on that queue
	q := queues[11]
	require.NotNil(t, q.hook)
	q.On("SetVerdict", uint32(2), nfqueue.NfAccept).Return(nil).Once()
	q.hook(attr(2, stamptest.GTPU(t, 0x00)))

	h.Stop()
	h.Stop()
	for _, q := range queues {
		q.AssertExpectations(t)
	}
}

func TestStartClosesOpenedQueuesOnFailure(t *testing.T) {
	h := New(config.QueueConfig{Num: 0, Count: 3}, newStamper())

	first := &mockQueue{}
	first.On("RegisterWithErrorFunc", mock.Anything).Return(nil)
	first.On("Close").Return(nil).Once()

	calls := 0
	h.open = func(c *nfqueue.Config) (queue, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("operation not permitted")
		}
		return first, nil
	}

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open queue 1")
	first.AssertExpectations(t)

	h.Stop()
}

func TestStartRegisterFailure(t *testing.T) {
	h := New(config.QueueConfig{Num: 4}, newStamper())

	q := &mockQueue{}
	q.On("RegisterWithErrorFunc", mock.Anything).Return(errors.New("bind failed"))
	q.On("Close").Return(nil).Once()
	h.open = func(*nfqueue.Config) (queue, error) { return q, nil }

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register queue 4")
	q.AssertExpectations(t)
}

func TestQueueErrorCounting(t *testing.T) {
	h := New(config.QueueConfig{}, newStamper())
	counter := metrics.QueueErrorsTotal.WithLabelValues("99")
	before := testutil.ToFloat64(counter)

	assert.Equal(t, 0, h.queueError(context.Background(), "99", errors.New("receive: no buffer space")))
	assert.Equal(t, 1, h.queueError(context.Background(), "99", net.ErrClosed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 0, h.queueError(ctx, "99", errors.New("late")))
	assert.Equal(t, 0, h.queueError(ctx, "99", net.ErrClosed))

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestNewClampsPacketLength(t *testing.T) {
	assert.Equal(t, core.IPv4MaxTotalLen, New(config.QueueConfig{MaxPacketLen: 1 << 20}, newStamper()).maxLen)
	assert.Equal(t, 1500, New(config.QueueConfig{MaxPacketLen: 1500}, newStamper()).maxLen)
	assert.Equal(t, 1, New(config.QueueConfig{}, newStamper()).cfg.Count)
}
