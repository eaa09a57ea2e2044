package lifecycle

// Sink is the broadcast side-channel for lifecycle signals. It reaches
// listeners that are not direct observers, such as other services mirroring
// epoch activity. Implementations must be safe for concurrent use.
type Sink interface {
	EpochActivated(id int64)
	EpochClosed(id int64)
	EpochFinalized(id int64)
}

// nopSink discards every signal. Used when no sink is injected.
type nopSink struct{}

func (nopSink) EpochActivated(int64) {}
func (nopSink) EpochClosed(int64)    {}
func (nopSink) EpochFinalized(int64) {}
