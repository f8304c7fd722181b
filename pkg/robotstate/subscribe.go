// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package robotstate

// Subscribe registers for snapshots pushed by Publish. The channel holds up
// to buffer snapshots; a subscriber that falls behind misses snapshots rather
// than blocking the publisher. Call the returned function to unsubscribe; it
// closes the channel.
func (s *State) Subscribe(buffer int) (<-chan FirmwareState, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan FirmwareState, buffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Publish pushes the current snapshot to every subscriber.
func (s *State) Publish() {
	snap := s.Snapshot()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (s *State) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}
