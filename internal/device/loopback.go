package device

import (
	"sync"
	"time"
)

// Loopback is a QueueCount-wide array of mutex-guarded FIFOs: frames
// transmitted on queue i are immediately available to receive on queue i.
//
// Grounded on the teacher's backend/mem.go sharded-locking pattern (one
// mutex per shard instead of one global lock) and on
// original_source/src/phy/loopback.rs, which holds a single VecDeque<Vec<u8>>
// per loopback instance; this generalizes that to one FIFO per queue so
// QUEUE_COUNT workers never contend with each other.
type Loopback struct {
	mu     []sync.Mutex
	queues [][][]byte
	mtu    int
}

// NewLoopback creates a loopback device with queueCount independent FIFOs.
// mtu is only reported through Capabilities; frame lengths are not checked
// against it.
func NewLoopback(queueCount, mtu int) *Loopback {
	if queueCount < 1 {
		queueCount = 1
	}
	return &Loopback{
		mu:     make([]sync.Mutex, queueCount),
		queues: make([][][]byte, queueCount),
		mtu:    mtu,
	}
}

func (l *Loopback) Capabilities() Capabilities {
	return Capabilities{
		MaxTransmissionUnit: l.mtu,
		Medium:              MediumEthernet,
		Checksum:            DefaultChecksumPolicy,
		QueueCount:          len(l.queues),
	}
}

type loopbackRx struct {
	frame []byte
}

func (t *loopbackRx) Consume(fn func(frame []byte) error) error {
	return fn(t.frame)
}

type loopbackTx struct {
	l       *Loopback
	queueID int
	mtu     int
}

func (t *loopbackTx) Consume(length int, fn func(frame []byte) error) error {
	buf := make([]byte, length)
	if err := fn(buf); err != nil {
		return err
	}
	t.l.mu[t.queueID].Lock()
	t.l.queues[t.queueID] = append(t.l.queues[t.queueID], buf)
	t.l.mu[t.queueID].Unlock()
	return nil
}

func (l *Loopback) Receive(now time.Time, queueID int) (RxToken, TxToken, bool) {
	l.mu[queueID].Lock()
	q := l.queues[queueID]
	if len(q) == 0 {
		l.mu[queueID].Unlock()
		return nil, nil, false
	}
	frame := q[0]
	l.queues[queueID] = q[1:]
	l.mu[queueID].Unlock()

	rx := &loopbackRx{frame: frame}
	tx := &loopbackTx{l: l, queueID: queueID, mtu: l.mtu}
	return rx, tx, true
}

func (l *Loopback) Transmit(now time.Time, queueID int) (TxToken, bool) {
	return &loopbackTx{l: l, queueID: queueID, mtu: l.mtu}, true
}

// Len reports the number of queued frames on queueID, for tests.
func (l *Loopback) Len(queueID int) int {
	l.mu[queueID].Lock()
	defer l.mu[queueID].Unlock()
	return len(l.queues[queueID])
}
