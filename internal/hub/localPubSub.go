package hub

import (
	"sync"
)

// LocalPubSub fans events out to the sessions subscribed to a room. Rooms
// are keyed by channel ID in decimal form.
type LocalPubSub struct {
	mutex   sync.RWMutex
	hashMap map[string][]int64
}

func (ps *LocalPubSub) Setup() {
	ps.hashMap = make(map[string][]int64)
}

func (ps *LocalPubSub) Subscribe(key string, sessionID int64) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	for _, id := range ps.hashMap[key] {
		if id == sessionID {
			return
		}
	}
	ps.hashMap[key] = append(ps.hashMap[key], sessionID)
}

func (ps *LocalPubSub) Unsubscribe(key string, sessionID int64) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	ps.unsubscribeLocked(key, sessionID)
}

func (ps *LocalPubSub) unsubscribeLocked(key string, sessionID int64) {
	sessionIDs := ps.hashMap[key]

	// this won't run in case the room doesn't exist since length will be 0
	for i := range sessionIDs {
		if sessionIDs[i] == sessionID {
			sessionIDs[i] = sessionIDs[len(sessionIDs)-1]
			ps.hashMap[key] = sessionIDs[:len(sessionIDs)-1]
			break
		}
	}

	// delete room from map if no session is subscribed to it
	if len(ps.hashMap[key]) == 0 {
		delete(ps.hashMap, key)
	}
}

func (ps *LocalPubSub) UnsubscribeFromAll(sessionID int64) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	for key := range ps.hashMap {
		ps.unsubscribeLocked(key, sessionID)
	}
}

// Publish delivers message bytes to every subscribed session. A session
// whose send buffer is full is skipped rather than blocking the publisher.
func (ps *LocalPubSub) Publish(key string, message []byte) {
	ps.mutex.RLock()
	sessionIDs := append([]int64(nil), ps.hashMap[key]...)
	ps.mutex.RUnlock()

	for _, sessionID := range sessionIDs {
		client, exists := GetClient(sessionID)
		if !exists {
			sugar.Warnf("Session ID [%d] is supposed to be available", sessionID)
			continue
		}
		client.deliver(message)
	}
}
