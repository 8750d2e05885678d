package protocol

import (
	"math/rand"
	"strconv"
	"sync"

	"github.com/benbjohnson/clock"
)

// IDGenerator produces numeric message ids that are unique per device:
// (machine % 1000) * 1e12 + unixMillis * 1e4 + random(1e4).
// Ids never repeat within a process even when the clock stalls.
type IDGenerator struct {
	mu      sync.Mutex
	machine int64
	clock   clock.Clock
	entropy func() int64
	last    int64
}

// NewIDGenerator derives the machine component from the device id.
func NewIDGenerator(deviceID string, clk clock.Clock) *IDGenerator {
	if clk == nil {
		clk = clock.New()
	}
	return &IDGenerator{
		machine: MachineValue(deviceID),
		clock:   clk,
		entropy: func() int64 { return rand.Int63n(10000) },
	}
}

// MachineValue is the sum of the device id's character codes, reduced mod 1000.
func MachineValue(deviceID string) int64 {
	var sum int64
	for _, r := range deviceID {
		sum += int64(r)
	}
	return sum % 1000
}

// Next returns a fresh id.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.machine*1_000_000_000_000 + g.clock.Now().UnixMilli()*10_000 + g.entropy()
	if v <= g.last {
		v = g.last + 1
	}
	g.last = v
	return strconv.FormatInt(v, 10)
}
