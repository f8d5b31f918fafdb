package hub

import (
	"sync"
)

// LocalPubSub is the in-process stand-in for redis pub/sub used in
// self-contained deployments: a map of key -> subscribed connection
// IDs.
type LocalPubSub struct {
	mutex   sync.RWMutex
	hashMap map[string][]string
}

func (ps *LocalPubSub) Setup() {
	ps.hashMap = make(map[string][]string)
}

func (ps *LocalPubSub) Subscribe(key string, connID string) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	for _, existing := range ps.hashMap[key] {
		if existing == connID {
			return
		}
	}

	ps.hashMap[key] = append(ps.hashMap[key], connID)
}

func (ps *LocalPubSub) Unsubscribe(key string, connID string) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	ps.unsubscribeLocked(key, connID)
}

func (ps *LocalPubSub) unsubscribeLocked(key string, connID string) {
	connIDs := ps.hashMap[key]

	// this won't run in case the key doesn't exist since length will be 0
	for i := range connIDs {
		if connIDs[i] == connID {
			connIDs[i] = connIDs[len(connIDs)-1]
			ps.hashMap[key] = connIDs[:len(connIDs)-1]
			break
		}
	}

	// delete the key from the map if nobody is subscribed to it
	if len(ps.hashMap[key]) == 0 {
		delete(ps.hashMap, key)
	}
}

func (ps *LocalPubSub) UnsubscribeFromAll(connID string) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	for key := range ps.hashMap {
		ps.unsubscribeLocked(key, connID)
	}
}

func (ps *LocalPubSub) Publish(key string, frame string) {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	connIDs := ps.hashMap[key]
	for i := range connIDs {
		client, exists := GetClient(connIDs[i])
		if !exists {
			sugar.Warnf("Connection %s is supposed to be available", connIDs[i])
			continue
		}

		select {
		case client.LocalChannel <- frame:
		default:
			// a client that can't keep up misses pushes; the polling
			// loop re-fetches what it missed
		}
	}
}
