// Package network tracks whether the remote system of record is reachable.
package network

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOffline возвращается операциями, которые требуют сети, когда монитор в состоянии OFFLINE
var ErrOffline = errors.New("offline")

// Callback вызывается при переходе между состояниями
type Callback func()

// CallbackID identifies a registered callback for removal.
type CallbackID uint64

// Prober проверяет доступность сервера
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// Monitor - единственный источник правды о состоянии сети: ONLINE или OFFLINE.
// Колбэки вызываются ровно один раз на каждый реальный переход.
type Monitor struct {
	logger    *slog.Logger
	onOnline  map[CallbackID]Callback
	onOffline map[CallbackID]Callback
	nextID    CallbackID
	mu        sync.Mutex
	online    bool
}

// New creates a Monitor in the given initial state.
func New(initial bool, logger *slog.Logger) *Monitor {
	return &Monitor{
		logger:    logger,
		online:    initial,
		onOnline:  make(map[CallbackID]Callback),
		onOffline: make(map[CallbackID]Callback),
	}
}

// IsOnline returns the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline регистрирует колбэк перехода в ONLINE
func (m *Monitor) OnOnline(cb Callback) CallbackID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.onOnline[m.nextID] = cb
	return m.nextID
}

// OnOffline регистрирует колбэк перехода в OFFLINE
func (m *Monitor) OnOffline(cb Callback) CallbackID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.onOffline[m.nextID] = cb
	return m.nextID
}

func (m *Monitor) RemoveOnlineCallback(id CallbackID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.onOnline, id)
}

func (m *Monitor) RemoveOfflineCallback(id CallbackID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.onOffline, id)
}

// SetOnline переводит монитор в состояние online. Повторная установка
// того же состояния ничего не делает. Колбэки вызываются вне блокировки,
// так что им разрешено обращаться к монитору.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	source := m.onOffline
	if online {
		source = m.onOnline
	}
	callbacks := make([]Callback, 0, len(source))
	for _, cb := range source {
		callbacks = append(callbacks, cb)
	}
	m.mu.Unlock()

	if online {
		m.logger.Info("Network is online")
	} else {
		m.logger.Warn("Network is offline")
	}

	for _, cb := range callbacks {
		cb()
	}
}

// Run опрашивает prober каждые interval, пока не отменен ctx.
// Монитор уходит в OFFLINE после threshold подряд неудачных проверок
// и возвращается в ONLINE после первой удачной.
func (m *Monitor) Run(ctx context.Context, prober Prober, interval time.Duration, threshold int) {
	if threshold < 1 {
		threshold = 1
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		if err := prober.Probe(probeCtx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			m.logger.Debug("Health probe failed", "failures", failures, slog.Any("error", err))
			if failures >= threshold {
				m.SetOnline(false)
			}
			return
		}
		failures = 0
		m.SetOnline(true)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
