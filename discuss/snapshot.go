package discuss

import (
	"github.com/nasermirzaei89/threads/reactions"
)

// MutationSnapshot is the state a mutation touches, taken right before its
// speculative write. A nil entity means the id was absent.
type MutationSnapshot struct {
	entities  map[string]*Comment
	reactions map[string]reactions.Reaction
	stats     CommentStats

	// statsApplied is the delta the speculative write applied and statsVersion
	// the aggregator version right after it. statsReconciles is the reconcile
	// count when the snapshot was taken.
	statsApplied    StatsDelta
	statsVersion    uint64
	statsReconciles uint64
}

// takeSnapshot copies the records and reactions of ids. The caller holds the
// store lock.
func (s *CommentStore) takeSnapshot(ids ...string) *MutationSnapshot {
	snapshot := &MutationSnapshot{
		entities:  make(map[string]*Comment, len(ids)),
		reactions: s.reactions.Snapshot(ids...),
		stats:     s.stats.Get(),

		statsReconciles: s.stats.Reconciles(),
	}

	for _, id := range ids {
		comment, ok := s.entities.Get(id)
		if !ok {
			snapshot.entities[id] = nil

			continue
		}

		snapshot.entities[id] = comment
	}

	return snapshot
}

// applyStats applies delta speculatively and records how to undo it.
func (s *CommentStore) applyStats(snapshot *MutationSnapshot, delta StatsDelta) {
	snapshot.statsApplied = s.stats.ApplyDelta(delta)
	snapshot.statsVersion = s.stats.version
}

// restoreSnapshot writes snapshot back and reports whether the stats must be
// reconciled with the server. The caller holds the store lock.
//
// Stats go back verbatim when nothing else touched them since the speculative
// write. When server stats arrived in between they never counted this
// mutation, so its delta is already gone and they are left for a fresh
// reconcile. Otherwise only this mutation's delta is reverted and a
// concurrent mutation on another comment keeps its effect.
func (s *CommentStore) restoreSnapshot(snapshot *MutationSnapshot) bool {
	for id, comment := range snapshot.entities {
		if comment == nil {
			s.entities.Remove(id)

			continue
		}

		s.entities.Upsert(comment)
	}

	s.reactions.Restore(snapshot.reactions)

	if snapshot.statsApplied.IsZero() {
		return false
	}

	if s.stats.Reconciles() != snapshot.statsReconciles {
		return true
	}

	if s.stats.version == snapshot.statsVersion {
		s.stats.restore(snapshot.stats)

		return false
	}

	s.stats.ApplyDelta(snapshot.statsApplied.Inverse())

	return false
}
