package hardware

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const statusPayloadLength = 5

type signalKey struct {
	id     uint32
	signal Signal
}

type sample struct {
	value float64
	at    time.Time
}

// StatusCache keeps the latest value streamed by every node so that reads
// inside the control tick are a map lookup rather than a bus round trip.
type StatusCache struct {
	mu         sync.RWMutex
	values     map[signalKey]sample
	staleAfter time.Duration
	now        func() time.Time
}

func NewStatusCache(staleAfter time.Duration) *StatusCache {
	return &StatusCache{
		values:     make(map[signalKey]sample),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (s *StatusCache) Update(id uint32, signal Signal, value float64) {
	s.mu.Lock()
	s.values[signalKey{id, signal}] = sample{value: value, at: s.now()}
	s.mu.Unlock()
}

func (s *StatusCache) Read(id uint32, signal Signal) Reading {
	s.mu.RLock()
	smp, ok := s.values[signalKey{id, signal}]
	s.mu.RUnlock()

	if !ok {
		return Reading{Stale: true}
	}
	return Reading{
		Value: smp.value,
		Stale: s.now().Sub(smp.at) > s.staleAfter,
	}
}

func encodeStatus(signal Signal, value float64) []byte {
	data := make([]byte, statusPayloadLength)
	data[0] = byte(signal)
	binary.LittleEndian.PutUint32(data[1:5], math.Float32bits(float32(value)))
	return data
}

func decodeStatus(data []byte) (Signal, float64, error) {
	if len(data) < statusPayloadLength {
		return 0, 0, errors.Errorf("status payload of %d bytes", len(data))
	}
	signal := Signal(data[0])
	if signal < SignalPosition || signal > SignalAbsolute {
		return 0, 0, errors.Errorf("unknown signal %d", signal)
	}
	return signal, float64(math.Float32frombits(binary.LittleEndian.Uint32(data[1:5]))), nil
}
