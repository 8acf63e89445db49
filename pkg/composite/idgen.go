package composite

import (
	"fmt"
	"sync"
	"time"
)

// Identifier layout: 41 bits of Unix milliseconds, 10 bits of instance id and
// 12 bits of sequence. The top bit stays clear, so InvalidObjectID is never
// produced.
const (
	instanceBits = 10
	sequenceBits = 12

	// MaxInstanceID is the largest instance id that fits the layout.
	MaxInstanceID = 1<<instanceBits - 1

	sequenceMask  = 1<<sequenceBits - 1
	timestampMask = 1<<41 - 1
)

type idGenerator struct {
	mu       sync.Mutex
	instance uint64
	last     int64
	seq      uint64
	now      func() time.Time
}

func newIDGenerator(instance uint64, now func() time.Time) (*idGenerator, error) {
	if instance > MaxInstanceID {
		return nil, fmt.Errorf("instance id %d exceeds %d", instance, MaxInstanceID)
	}
	return &idGenerator{instance: instance, now: now}, nil
}

// next returns a new identifier. Within one generator identifiers strictly
// increase; when the sequence runs out the clock is borrowed from.
func (g *idGenerator) next() ObjectID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last
		g.seq = (g.seq + 1) & sequenceMask
		if g.seq == 0 {
			ms++
		}
	} else {
		g.seq = 0
	}
	g.last = ms

	return ObjectID((uint64(ms)&timestampMask)<<(instanceBits+sequenceBits) |
		g.instance<<sequenceBits |
		g.seq)
}
