// Package cache models a configurable set-associative cache hierarchy using
// Akita cache components.
//
// Data caches chain linearly (L1 -> L2 -> ... -> memory) through the Level
// interface; the instruction cache sits directly on memory. Each level owns
// its own access and hit counters. Eviction uses fill-order recency: a line's
// recency stamp is taken when it is filled and is not refreshed by later
// hits, so the victim is the least-recently-filled line of the set, not the
// least-recently-used one. This is the reference behavior; changing it to
// true LRU changes observable hit ratios.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// AccessResult describes one access at one level.
type AccessResult struct {
	// Hit indicates a tag match at this level.
	Hit bool
	// Latency is the total cycle cost of the access, including any
	// next-level traffic it caused.
	Latency uint64
	// Data is the bytes read (read accesses only).
	Data []byte
}

// Level is one step of the memory hierarchy: a cache or the terminal
// memory adapter.
type Level interface {
	// Read returns length bytes starting at addr.
	Read(addr uint64, length int) (AccessResult, error)
	// Write stores data starting at addr.
	Write(addr uint64, data []byte) (AccessResult, error)
	// Invalidate removes any resident copy of addr's line at this level
	// and every level below, flushing dirty write-back lines down first.
	Invalidate(addr uint64)
	// Capacity is the level's total data capacity in bytes.
	Capacity() uint64
	// LineSize is the level's line size in bytes.
	LineSize() int
}

// Statistics holds one level's counters.
type Statistics struct {
	Accesses   uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// Cache is one set-associative cache level.
type Cache struct {
	config Config

	// Akita cache directory for tag and recency bookkeeping. Blocks are
	// visited only when filled, which turns the directory's LRU order
	// into fill order.
	directory *akitacache.DirectoryImpl

	// Data storage, indexed by setID*associativity + wayID.
	dataStore [][]byte

	next     Level
	readOnly bool

	stats Statistics
}

// NewDataCache creates a read-write cache level on top of next. It fails
// fast on an invalid geometry or a geometry incompatible with the next
// level: the line size must not exceed the next level's capacity, and the
// next level's line size must be at least this level's.
func NewDataCache(config Config, next Level) (*Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if uint64(config.LineSize) > next.Capacity() {
		return nil, fmt.Errorf(
			"line size %d exceeds next level capacity %d",
			config.LineSize, next.Capacity())
	}
	if config.LineSize > next.LineSize() {
		return nil, fmt.Errorf(
			"line size %d exceeds next level line size %d",
			config.LineSize, next.LineSize())
	}

	return newCache(config, next, false), nil
}

func newCache(config Config, next Level, readOnly bool) *Cache {
	numSets := config.NumSets()

	dataStore := make([][]byte, config.NumLines)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.LineSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.LineSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		next:      next,
		readOnly:  readOnly,
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns the counters accumulated since the last Clear.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// AccessTime returns the configured per-access latency.
func (c *Cache) AccessTime() uint64 {
	return c.config.AccessTime
}

// Capacity implements Level.
func (c *Cache) Capacity() uint64 {
	return c.config.Capacity()
}

// LineSize implements Level.
func (c *Cache) LineSize() int {
	return c.config.LineSize
}

// Clear resets the counters and empties all entries. It does not touch the
// levels below.
func (c *Cache) Clear() {
	c.directory.Reset()
	c.stats = Statistics{}
}

// Read returns length bytes starting at addr, consulting the next level on
// a miss. An access that spans several lines is performed line by line and
// counted once per line touched.
func (c *Cache) Read(addr uint64, length int) (AccessResult, error) {
	result := AccessResult{Data: make([]byte, 0, length)}

	for length > 0 {
		n := c.chunkLen(addr, length)

		chunk, err := c.readLine(addr, n)
		if err != nil {
			return AccessResult{}, err
		}
		result.Hit = chunk.Hit
		result.Latency += chunk.Latency
		result.Data = append(result.Data, chunk.Data...)

		addr += uint64(n)
		length -= n
	}

	return result, nil
}

// readLine handles one access confined to a single line.
func (c *Cache) readLine(addr uint64, length int) (AccessResult, error) {
	c.stats.Accesses++

	lineAddr := c.lineAddr(addr)
	block := c.directory.Lookup(0, lineAddr)

	if block != nil && block.IsValid {
		c.stats.Hits++

		data := make([]byte, length)
		copy(data, c.lineData(block)[addr-lineAddr:])
		return AccessResult{Hit: true, Latency: c.config.AccessTime, Data: data}, nil
	}

	c.stats.Misses++

	block, latency, err := c.fill(lineAddr)
	if err != nil {
		return AccessResult{}, err
	}

	data := make([]byte, length)
	copy(data, c.lineData(block)[addr-lineAddr:])
	return AccessResult{Latency: c.config.AccessTime + latency, Data: data}, nil
}

// Write stores data starting at addr. An access that spans several lines is
// performed line by line.
func (c *Cache) Write(addr uint64, data []byte) (AccessResult, error) {
	if c.readOnly {
		return AccessResult{}, fmt.Errorf("write to read-only cache at %#x", addr)
	}

	var result AccessResult
	for len(data) > 0 {
		n := c.chunkLen(addr, len(data))

		chunk, err := c.writeLine(addr, data[:n])
		if err != nil {
			return AccessResult{}, err
		}
		result.Hit = chunk.Hit
		result.Latency += chunk.Latency

		addr += uint64(n)
		data = data[n:]
	}

	return result, nil
}

// writeLine handles one write confined to a single line.
func (c *Cache) writeLine(addr uint64, data []byte) (AccessResult, error) {
	c.stats.Accesses++

	lineAddr := c.lineAddr(addr)
	block := c.directory.Lookup(0, lineAddr)

	if block != nil && block.IsValid {
		c.stats.Hits++
		return c.writeHit(block, addr, data)
	}

	c.stats.Misses++
	return c.writeMiss(lineAddr, addr, data)
}

func (c *Cache) writeHit(
	block *akitacache.Block,
	addr uint64,
	data []byte,
) (AccessResult, error) {
	lineAddr := c.lineAddr(addr)
	copy(c.lineData(block)[addr-lineAddr:], data)

	latency := c.config.AccessTime

	switch c.config.OnHit {
	case WriteBack:
		block.IsDirty = true
	case WriteThrough:
		next, err := c.next.Write(addr, data)
		if err != nil {
			return AccessResult{}, err
		}
		latency += next.Latency
	}

	return AccessResult{Hit: true, Latency: latency}, nil
}

// writeMiss sends the write straight to the next level. Deeper resident
// copies are purged first so that no level keeps a stale line; under
// write-allocate the now-current line is then pulled in.
func (c *Cache) writeMiss(
	lineAddr, addr uint64,
	data []byte,
) (AccessResult, error) {
	c.next.Invalidate(addr)

	next, err := c.next.Write(addr, data)
	if err != nil {
		return AccessResult{}, err
	}
	latency := c.config.AccessTime + next.Latency

	if c.config.OnMiss == WriteAllocate {
		_, fillLatency, err := c.fill(lineAddr)
		if err != nil {
			return AccessResult{}, err
		}
		latency += fillLatency
	}

	return AccessResult{Latency: latency}, nil
}

// fill fetches lineAddr's full line from the next level and installs it,
// evicting the least-recently-filled line of the set if all ways are
// occupied. A dirty victim is flushed to the next level first.
func (c *Cache) fill(lineAddr uint64) (*akitacache.Block, uint64, error) {
	next, err := c.next.Read(lineAddr, c.config.LineSize)
	if err != nil {
		return nil, 0, err
	}
	latency := next.Latency

	victim := c.directory.FindVictim(lineAddr)
	victimData := c.lineData(victim)

	if victim.IsValid {
		c.stats.Evictions++

		if victim.IsDirty {
			c.stats.Writebacks++
			wb, err := c.next.Write(victim.Tag, victimData)
			if err != nil {
				return nil, 0, err
			}
			latency += wb.Latency
		}
	}

	copy(victimData, next.Data)
	victim.Tag = lineAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim) // fill stamp; hits never re-visit

	return victim, latency, nil
}

// Invalidate implements Level. It drops this level's copy of addr's line
// (flushing it down first when dirty) and recurses into the levels below.
func (c *Cache) Invalidate(addr uint64) {
	lineAddr := c.lineAddr(addr)
	block := c.directory.Lookup(0, lineAddr)

	if block != nil && block.IsValid {
		if block.IsDirty {
			c.stats.Writebacks++
			// The line is being superseded; push its bytes down so the
			// next level stays current before the copy is dropped.
			_, _ = c.next.Write(block.Tag, c.lineData(block))
		}
		block.IsValid = false
		block.IsDirty = false
	}

	c.next.Invalidate(addr)
}

func (c *Cache) lineAddr(addr uint64) uint64 {
	lineSize := uint64(c.config.LineSize)
	return addr / lineSize * lineSize
}

func (c *Cache) lineData(block *akitacache.Block) []byte {
	return c.dataStore[block.SetID*c.config.Associativity+block.WayID]
}

// chunkLen bounds an access at addr to its line.
func (c *Cache) chunkLen(addr uint64, remaining int) int {
	lineSize := uint64(c.config.LineSize)
	room := int(lineSize - addr%lineSize)
	if remaining < room {
		return remaining
	}
	return room
}

// Decompose splits addr into the (tag, set, offset) triple the geometry
// implies. tag*(lineSize*numSets) + set*lineSize + offset reassembles addr
// exactly.
func (c *Cache) Decompose(addr uint64) (tag, set, offset uint64) {
	lineSize := uint64(c.config.LineSize)
	numSets := uint64(c.config.NumSets())

	tag = addr / (lineSize * numSets)
	set = (addr / lineSize) % numSets
	offset = addr % lineSize
	return tag, set, offset
}
