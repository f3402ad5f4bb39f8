package metadata

func GetAlignedRange(offset, size, granularity uint64) MemoryRange {
	return MemoryRange{
		Offset: GetAligned(offset, granularity),
		Size:   GetAligned(size, granularity),
	}
}

func GetAligned(operand, granularity uint64) uint64 {
	return (operand + (granularity - 1)) &^ (granularity - 1)
}

// IsAligned reports whether operand sits on a granularity boundary.
// Granularity must be a power of two.
func IsAligned(operand, granularity uint64) bool {
	return operand&(granularity-1) == 0
}
