package calculator

import "sync"

// Session owns one calculator. Events from concurrent senders are applied
// one batch at a time.
type Session struct {
	mu    sync.Mutex
	state State
}

func NewSession() *Session {
	return &Session{state: New()}
}

// Send applies events in order and returns the resulting view.
func (s *Session) Send(events ...Event) UiState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = ReduceAll(s.state, events...)
	return s.state.View()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) View() UiState {
	return s.State().View()
}
