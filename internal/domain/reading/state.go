package reading

// ItemState is a partial read/starred change of one item.
// A nil field leaves that flag untouched.
type ItemState struct {
	RemoteID string
	Read     *bool
	Starred  *bool
}

// NewItemState copies the given flags into a new ItemState.
func NewItemState(remoteID string, read, starred *bool) ItemState {
	s := ItemState{RemoteID: remoteID}
	if read != nil {
		v := *read
		s.Read = &v
	}
	if starred != nil {
		v := *starred
		s.Starred = &v
	}
	return s
}

// Empty reports whether the state changes nothing.
func (s ItemState) Empty() bool {
	return s.Read == nil && s.Starred == nil
}

// Merge overlays the non-nil flags of other onto s.
func (s ItemState) Merge(other ItemState) ItemState {
	read, starred := s.Read, s.Starred
	if other.Read != nil {
		read = other.Read
	}
	if other.Starred != nil {
		starred = other.Starred
	}
	return NewItemState(s.RemoteID, read, starred)
}

// Equal reports whether both states carry the same flags.
func (s ItemState) Equal(other ItemState) bool {
	return s.RemoteID == other.RemoteID && sameFlag(s.Read, other.Read) && sameFlag(s.Starred, other.Starred)
}

// Differs reports whether applying s to an item with the given flags changes it.
func (s ItemState) Differs(isRead, isStarred bool) bool {
	if s.Read != nil && *s.Read != isRead {
		return true
	}
	return s.Starred != nil && *s.Starred != isStarred
}

func sameFlag(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// StateSnapshot is the complete remote read/starred state of an account.
// Items absent from Unread are read; items absent from Starred are not starred.
type StateSnapshot struct {
	Unread  []string
	Starred []string
}

// SnapshotIndex answers membership queries against a StateSnapshot.
type SnapshotIndex struct {
	unread  map[string]struct{}
	starred map[string]struct{}
}

// Index builds a lookup index for the snapshot.
func (s StateSnapshot) Index() SnapshotIndex {
	idx := SnapshotIndex{
		unread:  make(map[string]struct{}, len(s.Unread)),
		starred: make(map[string]struct{}, len(s.Starred)),
	}
	for _, id := range s.Unread {
		idx.unread[id] = struct{}{}
	}
	for _, id := range s.Starred {
		idx.starred[id] = struct{}{}
	}
	return idx
}

// StateFor computes the target state of an item.
func (idx SnapshotIndex) StateFor(remoteID string) ItemState {
	_, isUnread := idx.unread[remoteID]
	_, isStarred := idx.starred[remoteID]
	read := !isUnread
	return NewItemState(remoteID, &read, &isStarred)
}

// StateChanges groups pending item states by the upstream call that pushes them.
type StateChanges struct {
	Read   []string
	Unread []string
	Star   []string
	Unstar []string
}

// Empty reports whether there is nothing to push.
func (c StateChanges) Empty() bool {
	return len(c.Read) == 0 && len(c.Unread) == 0 && len(c.Star) == 0 && len(c.Unstar) == 0
}

// GroupStates splits pending states into push batches.
func GroupStates(states []ItemState) StateChanges {
	var c StateChanges
	for _, s := range states {
		if s.Read != nil {
			if *s.Read {
				c.Read = append(c.Read, s.RemoteID)
			} else {
				c.Unread = append(c.Unread, s.RemoteID)
			}
		}
		if s.Starred != nil {
			if *s.Starred {
				c.Star = append(c.Star, s.RemoteID)
			} else {
				c.Unstar = append(c.Unstar, s.RemoteID)
			}
		}
	}
	return c
}
