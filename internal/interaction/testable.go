//go:build testable

package interaction

// The entry points in this file exist for deterministic test fixtures only
// and are compiled in solely with the testable build tag. Production code
// must treat the timestamp and receipt time as immutable.

// ReplaceTimestamp overwrites the author timestamp.
func (i *Interaction) ReplaceTimestamp(timestamp uint64) {
	i.timestamp = timestamp
}

// ReplaceReceivedAtTimestamp overwrites the local receipt time.
func (i *Interaction) ReplaceReceivedAtTimestamp(receivedAt uint64) {
	i.receivedAt = receivedAt
}
