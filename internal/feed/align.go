package feed

import "time"

// NextBoundary returns the first epoch-aligned bucket boundary strictly
// after t for the given bucket width.
//
// Boundaries are anchored at the Unix epoch, not at the first observed
// timestamp, so that independently started aggregators over the same period
// agree on bucket edges. An instant that falls exactly on a boundary belongs
// to the bucket that ends one full period later.
func NextBoundary(t time.Time, period time.Duration) time.Time {
	ns := t.UnixNano()
	p := int64(period)
	rem := ns % p
	if rem < 0 {
		rem += p
	}
	return time.Unix(0, ns-rem+p).In(t.Location())
}
