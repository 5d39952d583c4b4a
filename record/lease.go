package record

import "time"

// DefaultLease is the booking duration used when the caller does not
// supply one.
const DefaultLease = 10 * time.Minute

// Reclaimable reports whether rec's claim may be taken over by another
// worker at the given instant. A Solved record is never reclaimable. A
// Booked record is reclaimable iff its lease has fully elapsed.
//
// A lease shorter than an experiment's true runtime trades faster crash
// recovery for the chance that the original worker finishes after a
// usurper has re-claimed the key. The policy makes no attempt to prevent
// that collision; whichever worker writes Solved first stands, and the
// other's completion is rejected by the store's conditional write.
func Reclaimable(rec *Record, now time.Time, lease time.Duration) bool {
	if rec == nil || rec.Status != StatusBooked {
		return false
	}
	return now.Sub(rec.BookedAt) >= lease
}
