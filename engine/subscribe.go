package engine

// Subscribe returns a channel that receives job snapshots whenever a job is
// created or mutated. The caller is responsible for calling Unsubscribe when
// done. The returned channel is buffered to prevent blocking writers.
func (s *Store) Subscribe() chan *Job {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the store.
// The channel is NOT closed by this method - callers should close it
// themselves after unsubscribing if needed. This prevents double-close panics.
func (s *Store) Unsubscribe(ch chan *Job) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends job snapshots to all subscribers.
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (s *Store) notifySubscribers(job *Job) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- job:
		default:
			// Channel full, skip
		}
	}
}
