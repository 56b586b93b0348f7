package engine

import "time"

// Block is a run of consecutive events separated by less than the merge threshold.
type Block struct {
	Events []Event
	Start  time.Time
	End    time.Time
}

// MergeBlocks groups events, which must be sorted by start time, into blocks.
// An event joins the current block when the gap between the block's end and
// the event's start is strictly less than threshold; overlapping events give a
// negative gap and therefore always join.
func MergeBlocks(events []Event, threshold time.Duration) []Block {
	var blocks []Block
	for _, ev := range events {
		if n := len(blocks); n > 0 && ev.Start.Sub(blocks[n-1].End) < threshold {
			cur := &blocks[n-1]
			cur.Events = append(cur.Events, ev)
			if ev.End.After(cur.End) {
				cur.End = ev.End
			}
			continue
		}
		blocks = append(blocks, Block{
			Events: []Event{ev},
			Start:  ev.Start,
			End:    ev.End,
		})
	}
	return blocks
}
