package session

import "context"

// The activity monitor enforces the idle timeout independently of any
// particular screen interaction: a fixed-cadence tick calls CheckSession
// while authenticated. It is started on the transition into authenticated
// and stopped, before state is cleared, on the transition to anonymous.

func (m *Manager) startMonitorLocked() {
	if m.monitorStop != nil {
		return // already running
	}
	tick, stop := m.newTicker(m.config.GetActivityCheckInterval())
	stopCh := make(chan struct{})
	m.monitorStop = stopCh

	go func() {
		defer stop()
		for {
			select {
			case <-stopCh:
				return
			case <-tick:
				m.CheckSession(context.Background())
			}
		}
	}()
}

// stopMonitorLocked signals the monitor goroutine to exit. It does not
// wait for it: a tick that triggered the logout would otherwise deadlock
// stopping itself. A straggling tick only calls CheckSession, which is a
// no-op on an anonymous session.
func (m *Manager) stopMonitorLocked() {
	if m.monitorStop == nil {
		return
	}
	close(m.monitorStop)
	m.monitorStop = nil
}
