// Package hook attaches the stamper to netfilter through NFQUEUE.
//
// Packets reach the hook through a rule such as
//
//	iptables -t raw -A PREROUTING -p udp --dport 2152 -j NFQUEUE --queue-num 0
//
// Every queued packet gets exactly one verdict. Modified packets are
// returned to the kernel with SetVerdictModPacket.
package hook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/florianl/go-nfqueue"
	"github.com/mdlayher/netlink"

	"firestige.xyz/gtpstamp/internal/config"
	"firestige.xyz/gtpstamp/internal/core"
	"firestige.xyz/gtpstamp/internal/core/buffer"
	"firestige.xyz/gtpstamp/internal/core/stamp"
	"firestige.xyz/gtpstamp/internal/log"
	"firestige.xyz/gtpstamp/internal/metrics"
)

const writeTimeout = 15 * time.Millisecond

// verdicter is the verdict half of a queue handle.
type verdicter interface {
	SetVerdict(id uint32, verdict int) error
	SetVerdictModPacket(id uint32, verdict int, packet []byte) error
}

// queue is the subset of *nfqueue.Nfqueue the hook uses.
type queue interface {
	verdicter
	RegisterWithErrorFunc(ctx context.Context, fn nfqueue.HookFunc, errfn nfqueue.ErrorFunc) error
	Close() error
}

type opener func(cfg *nfqueue.Config) (queue, error)

func openNfqueue(cfg *nfqueue.Config) (queue, error) {
	return nfqueue.Open(cfg)
}

// Hook consumes one or more NFQUEUE queues.
type Hook struct {
	cfg     config.QueueConfig
	stamper *stamp.Stamper
	open    opener
	maxLen  int

	mu      sync.Mutex
	queues  []queue
	cancel  context.CancelFunc
	started bool
}

// New creates a Hook. Nothing is opened until Start.
func New(cfg config.QueueConfig, st *stamp.Stamper) *Hook {
	maxLen := cfg.MaxPacketLen
	if maxLen <= 0 || maxLen > core.IPv4MaxTotalLen {
		maxLen = core.IPv4MaxTotalLen
	}
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	return &Hook{
		cfg:     cfg,
		stamper: st,
		open:    openNfqueue,
		maxLen:  maxLen,
	}
}

// Start opens queues num..num+count-1 and registers a packet callback on
// each. It fails without leaving any queue open.
func (h *Hook) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return errors.New("hook already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	queues := make([]queue, 0, h.cfg.Count)
	fail := func(err error) error {
		cancel()
		for _, q := range queues {
			_ = q.Close()
		}
		return err
	}

	for i := 0; i < h.cfg.Count; i++ {
		num := uint16(h.cfg.Num + i)
		q, err := h.open(h.nfqueueConfig(num))
		if err != nil {
			return fail(fmt.Errorf("open queue %d: %w", num, err))
		}
		queues = append(queues, q)

		if o, ok := q.(interface {
			SetOption(netlink.ConnOption, bool) error
		}); ok {
			if err := o.SetOption(netlink.NoENOBUFS, true); err != nil {
				log.GetLogger().WithError(err).WithField("queue", num).Warn("cannot disable ENOBUFS")
			}
		}

		label := strconv.Itoa(int(num))
		err = q.RegisterWithErrorFunc(ctx,
			func(a nfqueue.Attribute) int { return h.handle(q, a) },
			func(e error) int { return h.queueError(ctx, label, e) },
		)
		if err != nil {
			return fail(fmt.Errorf("register queue %d: %w", num, err))
		}
		log.GetLogger().WithField("queue", num).Info("queue attached")
	}

	h.queues = queues
	h.cancel = cancel
	h.started = true
	return nil
}

// Stop detaches from every queue. Packets still queued in the kernel are
// handled according to queue.fail_open.
func (h *Hook) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	h.cancel()
	for i, q := range h.queues {
		if err := q.Close(); err != nil {
			log.GetLogger().WithError(err).WithField("queue", h.cfg.Num+i).Warn("close queue")
		}
	}
	h.queues = nil
	h.started = false
	log.GetLogger().Info("hook stopped")
}

func (h *Hook) nfqueueConfig(num uint16) *nfqueue.Config {
	cfg := &nfqueue.Config{
		NfQueue:      num,
		MaxPacketLen: uint32(h.maxLen),
		MaxQueueLen:  uint32(h.cfg.MaxQueueLen),
		Copymode:     nfqueue.NfQnlCopyPacket,
		WriteTimeout: writeTimeout,
	}
	if h.cfg.FailOpen {
		cfg.Flags = nfqueue.NfQaCfgFlagFailOpen
	}
	return cfg
}

// handle issues exactly one verdict per packet. The return value keeps the
// receive loop running.
func (h *Hook) handle(v verdicter, a nfqueue.Attribute) int {
	if a.PacketID == nil {
		return 0
	}
	id := *a.PacketID

	if a.Payload == nil {
		h.verdict(v, id, core.Accept, nil)
		return 0
	}

	// Cap the slice so growth never writes into the receive buffer.
	p := *a.Payload
	buf := buffer.NewLinear(p[:len(p):len(p)], h.maxLen)

	res, err := h.stamper.Process(buf, 0)
	if err != nil && res.Verdict == core.Drop {
		log.GetLogger().WithError(err).WithField("id", id).Debug("dropping packet")
	}

	var mod []byte
	if res.Modified {
		mod = buf.Bytes()
	}
	h.verdict(v, id, res.Verdict, mod)
	return 0
}

func (h *Hook) verdict(v verdicter, id uint32, verdict core.Verdict, mod []byte) {
	metrics.RecordVerdict(verdict)

	code := nfqueue.NfAccept
	if verdict == core.Drop {
		code = nfqueue.NfDrop
	}

	var err error
	if mod != nil {
		err = v.SetVerdictModPacket(id, code, mod)
	} else {
		err = v.SetVerdict(id, code)
	}
	if err != nil {
		log.GetLogger().WithError(err).WithField("id", id).Warn("set verdict")
	}
}

// queueError logs receive errors. Errors caused by shutdown are ignored; a
// socket closed underneath a running hook ends that queue's receive loop.
func (h *Hook) queueError(ctx context.Context, label string, e error) int {
	if ctx.Err() != nil {
		return 0
	}
	if ne, ok := e.(net.Error); ok && ne.Timeout() {
		return 0
	}
	if isClosed(e) {
		metrics.QueueErrorsTotal.WithLabelValues(label).Inc()
		log.GetLogger().WithError(fmt.Errorf("queue %s: %w", label, core.ErrQueueClosed)).Error("queue receive loop ended")
		return 1
	}
	metrics.QueueErrorsTotal.WithLabelValues(label).Inc()
	log.GetLogger().WithError(e).WithField("queue", label).Error("queue receive error")
	return 0
}

func isClosed(e error) bool {
	return errors.Is(e, os.ErrClosed) || errors.Is(e, net.ErrClosed) || errors.Is(e, syscall.EBADF)
}
