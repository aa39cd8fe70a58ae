package cache

import "fmt"

// Key semantics:
// - lockKey(entityID, field): cell lock (String, value = holder userId, TTL)
// - memberKey(userID):        presence entry JSON {id,name,color} (String, TTL)
// - onlineKey():              room membership (Set<userId>)
//
// All keys carry the room prefix so this feature owns its own namespace
// inside a shared redis.

const (
	// Room is the single shared editing room for the stream table.
	Room = "streams"

	keyLockFmt   = "collab:%s:lock:%d:%s"  // String<holder userId> with TTL
	keyLockScan  = "collab:%s:lock:*"      // SCAN pattern for the disconnect sweep
	keyMemberFmt = "collab:%s:presence:%d" // String<JSON> with TTL
	keyOnlineFmt = "collab:%s:online"      // Set<userId>
)

func lockKey(entityID uint64, field string) string {
	return fmt.Sprintf(keyLockFmt, Room, entityID, field)
}

func lockScanPattern() string { return fmt.Sprintf(keyLockScan, Room) }

func memberKey(userID uint64) string { return fmt.Sprintf(keyMemberFmt, Room, userID) }

func onlineKey() string { return fmt.Sprintf(keyOnlineFmt, Room) }
