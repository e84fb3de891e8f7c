package discuss

// EntityStore is the normalized id → comment mapping of one scope. It holds
// copies, so callers never alias stored records. It is not safe for concurrent
// use; CommentStore serializes access.
type EntityStore struct {
	entities map[string]*Comment
}

func NewEntityStore() *EntityStore {
	return &EntityStore{entities: make(map[string]*Comment)}
}

// Upsert inserts or fully replaces the record with comment.ID.
func (s *EntityStore) Upsert(comment *Comment) {
	if comment == nil {
		return
	}

	s.entities[comment.ID] = comment.Clone()
}

// Refresh replaces the record only if it is still present. It reports whether
// it did.
func (s *EntityStore) Refresh(comment *Comment) bool {
	if comment == nil {
		return false
	}

	if _, ok := s.entities[comment.ID]; !ok {
		return false
	}

	s.entities[comment.ID] = comment.Clone()

	return true
}

// Patch shallow-merges patch into the record. Unknown ids are ignored.
func (s *EntityStore) Patch(id string, patch CommentPatch) {
	comment, ok := s.entities[id]
	if !ok {
		return
	}

	patch.apply(comment)
}

// Remove deletes the record. Children are left in place; the tree builder
// excludes them as orphans. Unknown ids are ignored.
func (s *EntityStore) Remove(id string) {
	delete(s.entities, id)
}

func (s *EntityStore) Get(id string) (*Comment, bool) {
	comment, ok := s.entities[id]
	if !ok {
		return nil, false
	}

	return comment.Clone(), true
}

// All returns copies of every record in no particular order.
func (s *EntityStore) All() []*Comment {
	comments := make([]*Comment, 0, len(s.entities))

	for _, comment := range s.entities {
		comments = append(comments, comment.Clone())
	}

	return comments
}

func (s *EntityStore) Len() int {
	return len(s.entities)
}

// ReplaceConfirmed drops every record with a server id and inserts comments.
// Speculative records survive so in-flight creates stay visible.
func (s *EntityStore) ReplaceConfirmed(comments []*Comment) {
	for id := range s.entities {
		if !IsTemporaryID(id) {
			delete(s.entities, id)
		}
	}

	for _, comment := range comments {
		s.Upsert(comment)
	}
}

// hasAuthor reports whether any record other than exceptID is by authorID.
func (s *EntityStore) hasAuthor(authorID, exceptID string) bool {
	for id, comment := range s.entities {
		if id != exceptID && comment.AuthorID == authorID {
			return true
		}
	}

	return false
}
