package extmem

import "fmt"

// BID names a block on a disk: which disk, what byte offset on it, and
// how many bytes the block spans. It carries no data of its own.
type BID struct {
	Disk   int
	Offset int64
	Size   int64
}

// Valid reports whether b names an addressable block.
func (b BID) Valid() bool {
	return b.Disk >= 0 && b.Offset >= 0 && b.Size > 0
}

func (b BID) String() string {
	return fmt.Sprintf("BID{disk=%d off=%d size=%d}", b.Disk, b.Offset, b.Size)
}
