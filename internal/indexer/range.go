package indexer

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// NextBlock returns the first block missing from the indexed prefix
// [floor, cursor]. cursor is model.NoBlock when nothing is indexed.
func NextBlock(cursor int64, floor uint64) uint64 {
	if cursor < 0 {
		return floor
	}
	if next := uint64(cursor) + 1; next > floor {
		return next
	}
	return floor
}

// SplitRange splits [from, to] into consecutive ranges of at most size blocks.
// Both the processor batches and the bridge log-query chunks use it.
func SplitRange(from, to, size uint64) ([]BlockRange, error) {
	if size == 0 {
		return nil, fmt.Errorf("range size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/size+1)
	for start := from; ; start += size {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
	}
	return ranges, nil
}
