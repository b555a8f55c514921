package scanner

import "github.com/cwsl/sdrcore/internal/store"

// Range is one scan range, in the same units as a device center frequency.
type Range struct {
	StartHz uint64
	EndHz   uint64
}

// buildSweepSteps walks each range in increments of sampleRateHz (one
// "slice" per step), using the midpoint of each slice. A range shorter
// than one slice contributes a single center at the range midpoint.
func buildSweepSteps(ranges []Range, sampleRateHz uint32) []uint64 {
	slice := uint64(sampleRateHz)
	var steps []uint64
	for _, r := range ranges {
		if r.EndHz <= r.StartHz || slice == 0 {
			continue
		}
		span := r.EndHz - r.StartHz
		if span <= slice {
			steps = append(steps, r.StartHz+span/2)
			continue
		}
		for start := r.StartHz; start < r.EndHz; start += slice {
			end := start + slice
			if end > r.EndHz {
				end = r.EndHz
			}
			steps = append(steps, start+(end-start)/2)
		}
	}
	return steps
}

// priorityPlanner interleaves a round-robin priority channel after every
// priorityInterval normal sweep steps.
type priorityPlanner struct {
	steps            []uint64
	priorityInterval int

	stepIdx     int
	normalCount int
	priorityIdx int
}

func newPriorityPlanner(steps []uint64, priorityInterval int) *priorityPlanner {
	if priorityInterval < 1 {
		priorityInterval = 3
	}
	return &priorityPlanner{steps: steps, priorityInterval: priorityInterval}
}

// next returns the next center frequency to tune to, given the current
// enabled priority channel list (ordered priority asc, frequency asc, as
// store.ListChannels already returns it).
func (p *priorityPlanner) next(priorityChannels []store.Channel) uint64 {
	if len(priorityChannels) > 0 && p.normalCount >= p.priorityInterval {
		p.normalCount = 0
		ch := priorityChannels[p.priorityIdx%len(priorityChannels)]
		p.priorityIdx++
		return ch.Frequency
	}
	if len(p.steps) == 0 {
		return 0
	}
	p.normalCount++
	f := p.steps[p.stepIdx%len(p.steps)]
	p.stepIdx++
	return f
}
