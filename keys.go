package quotacache

import "strings"

// KeySpace classifies keys. A key is tracked (indexed and evictable) when it starts
// with TrackedPrefix and is not the IndexKey itself; everything else is untracked.
type KeySpace struct {
	TrackedPrefix string
	IndexKey      string
}

func (ks KeySpace) Tracked(key string) bool {
	return key != ks.IndexKey && strings.HasPrefix(key, ks.TrackedPrefix)
}

func (ks KeySpace) check(key string) error {
	switch {
	case key == "":
		return ErrEmptyKey
	case key == ks.IndexKey:
		return ErrReservedKey
	}
	return nil
}
