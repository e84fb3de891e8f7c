package discuss

import "fmt"

type StatsDelta struct {
	Total        int
	TopLevel     int
	Replies      int
	Participants int
}

func (d StatsDelta) Inverse() StatsDelta {
	return StatsDelta{
		Total:        -d.Total,
		TopLevel:     -d.TopLevel,
		Replies:      -d.Replies,
		Participants: -d.Participants,
	}
}

func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}

// StatsAggregator keeps the derived counts of one scope. The server is
// authoritative; deltas only bridge the time until the next Reconcile.
// It is not safe for concurrent use; CommentStore serializes access.
type StatsAggregator struct {
	stats      CommentStats
	version    uint64
	reconciles uint64
}

func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{}
}

func (a *StatsAggregator) Get() CommentStats {
	return a.stats
}

// ApplyDelta adjusts the counts in place, clamping each at zero, and returns
// the delta that was actually applied.
func (a *StatsAggregator) ApplyDelta(delta StatsDelta) StatsDelta {
	applied := StatsDelta{
		Total:        clampedDelta(a.stats.Total, delta.Total),
		TopLevel:     clampedDelta(a.stats.TopLevel, delta.TopLevel),
		Replies:      clampedDelta(a.stats.Replies, delta.Replies),
		Participants: clampedDelta(a.stats.Participants, delta.Participants),
	}

	a.stats.Total += applied.Total
	a.stats.TopLevel += applied.TopLevel
	a.stats.Replies += applied.Replies
	a.stats.Participants += applied.Participants

	a.version++

	return applied
}

// Reconcile replaces the counts with server values. Input that breaks
// Total == TopLevel + Replies is normalized and reported.
func (a *StatsAggregator) Reconcile(stats CommentStats) error {
	var err error

	if stats.Total != stats.TopLevel+stats.Replies {
		err = &ConsistencyError{
			Reason: fmt.Sprintf(
				"server stats total %d does not match top level %d plus replies %d",
				stats.Total,
				stats.TopLevel,
				stats.Replies,
			),
		}

		stats.Total = stats.TopLevel + stats.Replies
	}

	a.stats = stats
	a.version++
	a.reconciles++

	return err
}

// Reconciles counts the Reconcile calls so far.
func (a *StatsAggregator) Reconciles() uint64 {
	return a.reconciles
}

// restore puts stats back verbatim.
func (a *StatsAggregator) restore(stats CommentStats) {
	a.stats = stats
	a.version++
}

func clampedDelta(current, delta int) int {
	if current+delta < 0 {
		return -current
	}

	return delta
}
