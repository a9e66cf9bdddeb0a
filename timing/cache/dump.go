package cache

import (
	"fmt"
	"strings"
)

// DumpString renders the resident lines as a table for presentation
// layers: one row per valid way, with the line's set, way, base address,
// tag, dirty flag, and data bytes.
func (c *Cache) DumpString() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-5s %-4s %-10s %-8s %-5s %s\n",
		"set", "way", "address", "tag", "dirty", "data")

	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if !block.IsValid {
				continue
			}

			tag, _, _ := c.Decompose(block.Tag)
			fmt.Fprintf(&b, "%-5d %-4d 0x%08x %-8d %-5t % x\n",
				block.SetID, block.WayID, block.Tag, tag,
				block.IsDirty, c.lineData(block))
		}
	}

	return b.String()
}
