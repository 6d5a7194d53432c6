package chat

// Suggestion visibility follows three states: empty log (visible), recent
// activity (hidden, timer armed) and idle timeout (visible). All helpers here
// expect m.mu to be held.

// RecordActivity re-arms the idle timer after user input.
func (m *Manager) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activityLocked()
}

// SuggestionsVisible reports whether conversation starters should be shown.
func (m *Manager) SuggestionsVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suggestionsVisible
}

// activityLocked hides suggestions and restarts the debounce window.
func (m *Manager) activityLocked() {
	m.cancelIdleLocked()
	m.setSuggestionsLocked(false)
	if len(m.messages) > 0 {
		m.armIdleLocked()
	}
}

// resetIdleLocked is used after a reload or removal: an empty log shows
// suggestions right away, otherwise the timer decides.
func (m *Manager) resetIdleLocked() {
	m.cancelIdleLocked()
	if len(m.messages) == 0 {
		m.setSuggestionsLocked(true)
		return
	}
	m.setSuggestionsLocked(false)
	m.armIdleLocked()
}

func (m *Manager) armIdleLocked() {
	m.idleGen++
	gen := m.idleGen
	m.idleTimer = m.clock.AfterFunc(m.idleDelay, func() {
		m.onIdle(gen)
	})
}

func (m *Manager) cancelIdleLocked() {
	// bumping the generation also invalidates a callback that already started
	m.idleGen++
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

func (m *Manager) onIdle(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.idleGen {
		return
	}
	m.idleTimer = nil
	m.setSuggestionsLocked(true)
}

func (m *Manager) setSuggestionsLocked(visible bool) {
	if m.suggestionsVisible == visible {
		return
	}
	m.suggestionsVisible = visible
	m.publish(EventSuggestions, SuggestionsEvent{Visible: visible})
}
