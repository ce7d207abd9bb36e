package ecs

// Each2 iterates over actors that have both component A and B.
// It iterates over the smaller store and checks the larger one.
func Each2[A, B any](sa *PtrComponentStore[A], sb *PtrComponentStore[B], fn func(ActorID, *A, *B)) {
	if sa.Len() <= sb.Len() {
		for id, a := range sa.data {
			if b, ok := sb.data[id]; ok {
				fn(id, a, b)
			}
		}
		return
	}
	for id, b := range sb.data {
		if a, ok := sa.data[id]; ok {
			fn(id, a, b)
		}
	}
}

// Count2 returns how many actors carry both components.
func Count2[A, B any](sa *PtrComponentStore[A], sb *PtrComponentStore[B]) int {
	n := 0
	Each2(sa, sb, func(ActorID, *A, *B) { n++ })
	return n
}
