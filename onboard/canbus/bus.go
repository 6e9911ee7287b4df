package canbus

import (
	"sync"
)

const txQueueLength = 64

// CANBusInterface is the transport used by hardware nodes.
type CANBusInterface interface {
	AddListener(nodeId uint32, rxchan chan CANMsg)
	SendMsg(msg CANMsg) error
	Close() error
}

// listeners routes received frames to the channel registered for their node.
// Delivery never blocks the reader; frames for a full channel are dropped.
type listeners struct {
	mu      sync.RWMutex
	rx      map[uint32]chan CANMsg
	dropped uint64
}

func (l *listeners) AddListener(nodeId uint32, rxchan chan CANMsg) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rx == nil {
		l.rx = make(map[uint32]chan CANMsg)
	}
	l.rx[nodeId] = rxchan
}

func (l *listeners) route(msg CANMsg) {
	// our own frames, or another host's
	if msg.IsHost() {
		return
	}

	l.mu.RLock()
	c, ok := l.rx[msg.ID]
	l.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case c <- msg:
	default:
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
	}
}

// Dropped returns the number of frames discarded because a listener was full.
func (l *listeners) Dropped() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dropped
}
