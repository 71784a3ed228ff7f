package kheap

import "math"

type Statistics struct {
	HeapCount       int
	AllocationCount int
	HeapBytes       int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.HeapCount = 0
	s.AllocationCount = 0
	s.HeapBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.HeapCount += other.HeapCount
	s.AllocationCount += other.AllocationCount
	s.HeapBytes += other.HeapBytes
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics extends Statistics with free-region detail. Strategies
// can always enumerate their free memory, so the detail here is limited to
// what every strategy can report without a per-allocation ledger.
type DetailedStatistics struct {
	Statistics
	FreeRegionCount   int
	FreeRegionSizeMin int
	FreeRegionSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeRegionCount = 0
	s.FreeRegionSizeMin = math.MaxInt
	s.FreeRegionSizeMax = 0
}

func (s *DetailedStatistics) AddFreeRegion(size int) {
	s.FreeRegionCount++

	if size < s.FreeRegionSizeMin {
		s.FreeRegionSizeMin = size
	}

	if size > s.FreeRegionSizeMax {
		s.FreeRegionSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeRegionCount += other.FreeRegionCount

	if other.FreeRegionSizeMin < s.FreeRegionSizeMin {
		s.FreeRegionSizeMin = other.FreeRegionSizeMin
	}

	if other.FreeRegionSizeMax > s.FreeRegionSizeMax {
		s.FreeRegionSizeMax = other.FreeRegionSizeMax
	}
}
