package redis

const (
	// KeyPrefixBookmark is the prefix for bookmark value keys
	KeyPrefixBookmark = "tabmarks:bookmark:"
	// KeyPrefixOwnerIndex is the prefix for the per-owner ordered index
	KeyPrefixOwnerIndex = "tabmarks:owner:"
	// KeyPrefixSession is the prefix for session keys
	KeyPrefixSession = "tabmarks:session:"
	// ChannelPrefixEvents is the prefix for per-owner change channels
	ChannelPrefixEvents = "tabmarks:events:"
)

// BookmarkKey returns the Redis key holding a bookmark's JSON value
func BookmarkKey(id string) string {
	return KeyPrefixBookmark + id
}

// OwnerIndexKey returns the Redis key of the owner's ZSET index,
// scored by creation timestamp
func OwnerIndexKey(owner string) string {
	return KeyPrefixOwnerIndex + owner + ":bookmarks"
}

// SessionKey returns the Redis key for a session
func SessionKey(id string) string {
	return KeyPrefixSession + id
}

// EventsChannel returns the pub/sub channel carrying an owner's
// change notifications
func EventsChannel(owner string) string {
	return ChannelPrefixEvents + owner
}
