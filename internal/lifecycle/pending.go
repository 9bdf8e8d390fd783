package lifecycle

// PendingDisconnectQueue retries driver-level forced disconnects that
// failed (§4.5). It does not touch ClientRegistry itself: the Running
// handlers keep I6 (a client in this queue is never also in
// ClientRegistry) by removing a client from one before adding it to the
// other. Insertion order is preserved so retries are processed
// deterministically.
type PendingDisconnectQueue struct {
	order  []Client
	reason map[Client]RejectReason
}

// NewPendingDisconnectQueue returns an empty queue.
func NewPendingDisconnectQueue() *PendingDisconnectQueue {
	return &PendingDisconnectQueue{reason: make(map[Client]RejectReason)}
}

// Add enqueues a client for retry, recording why it was disconnected.
// Re-adding an already-queued client just refreshes the reason.
func (q *PendingDisconnectQueue) Add(c Client, reason RejectReason) {
	if _, ok := q.reason[c]; !ok {
		q.order = append(q.order, c)
	}
	q.reason[c] = reason
}

// Remove drops a client from the queue, e.g. because it re-associated
// (§4.5: "re-association must remove from here first"). Reports whether it
// was present.
func (q *PendingDisconnectQueue) Remove(c Client) bool {
	if _, ok := q.reason[c]; !ok {
		return false
	}
	delete(q.reason, c)
	for i, existing := range q.order {
		if existing == c {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether a client is currently queued for retry.
func (q *PendingDisconnectQueue) Contains(c Client) bool {
	_, ok := q.reason[c]
	return ok
}

// Clear empties the queue (on Running exit).
func (q *PendingDisconnectQueue) Clear() {
	q.order = nil
	q.reason = make(map[Client]RejectReason)
}

// Len reports the number of queued clients.
func (q *PendingDisconnectQueue) Len() int {
	return len(q.order)
}

// Entries returns (client, reason) pairs in insertion order.
func (q *PendingDisconnectQueue) Entries() []struct {
	Client Client
	Reason RejectReason
} {
	out := make([]struct {
		Client Client
		Reason RejectReason
	}, len(q.order))
	for i, c := range q.order {
		out[i] = struct {
			Client Client
			Reason RejectReason
		}{Client: c, Reason: q.reason[c]}
	}
	return out
}
