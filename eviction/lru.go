// This file implements LRU eviction.

package eviction

// lruNode represents ONE key inside the recency list.
type lruNode struct {
	key string

	// prev points towards the head (more recently used)
	prev *lruNode

	// next points towards the tail (less recently used)
	next *lruNode
}

// LRU orders keys by last use. Head is the most recently used key, tail the least.
// Every write or read moves the key to the head, so the order is total and
// the tail is always the oldest use.
type LRU struct {
	// nodes maps keys to their list node so moves are O(1).
	nodes map[string]*lruNode

	head *lruNode
	tail *lruNode
}

// NewLRU returns an empty LRU policy.
func NewLRU() *LRU {
	return &LRU{nodes: make(map[string]*lruNode)}
}

// OnGet marks k as most recently used. Unknown keys are ignored.
func (l *LRU) OnGet(k string) {
	if n, ok := l.nodes[k]; ok {
		l.moveToFront(n)
	}
}

// OnPut tracks k as most recently used, whether it is new or overwritten.
func (l *LRU) OnPut(k string) {
	if n, ok := l.nodes[k]; ok {
		l.moveToFront(n)
		return
	}
	n := &lruNode{key: k}
	l.nodes[k] = n
	l.addFront(n)
}

// Evict removes and returns the least recently used key.
func (l *LRU) Evict() string {
	if l.tail == nil {
		return ""
	}

	k := l.tail.key
	l.remove(l.tail)
	delete(l.nodes, k)
	return k
}

// Remove forgets k. Unknown keys are ignored.
func (l *LRU) Remove(k string) {
	if n, ok := l.nodes[k]; ok {
		l.remove(n)
		delete(l.nodes, k)
	}
}

// Len returns the number of tracked keys.
func (l *LRU) Len() int {
	return len(l.nodes)
}

// Keys returns tracked keys from most to least recently used.
func (l *LRU) Keys() []string {
	keys := make([]string, 0, len(l.nodes))
	for n := l.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

func (l *LRU) addFront(n *lruNode) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n

	// If the list was empty, head and tail are the same
	if l.tail == nil {
		l.tail = n
	}
}

// remove unlinks n and fixes head/tail when n was at either end.
func (l *LRU) remove(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (l *LRU) moveToFront(n *lruNode) {
	if l.head == n {
		return
	}
	l.remove(n)
	l.addFront(n)
}

var _ Policy = (*LRU)(nil)
