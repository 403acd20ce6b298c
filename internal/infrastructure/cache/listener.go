// Package cache holds the process-level caches: generated statements in Redis
// and in-memory tables invalidated through PostgreSQL LISTEN/NOTIFY.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"boigordo/pkg/logger"
)

// NotifyHandler receives the payload of one notification.
type NotifyHandler func(ctx context.Context, payload string)

// Listener holds a dedicated connection in LISTEN and dispatches notifications
// to the handlers of their channel. It reconnects until stopped.
type Listener struct {
	pool *pgxpool.Pool

	mu       sync.RWMutex
	handlers map[string][]NotifyHandler

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewListener creates a listener on pool.
func NewListener(pool *pgxpool.Pool) *Listener {
	return &Listener{pool: pool, handlers: make(map[string][]NotifyHandler)}
}

// Subscribe registers h for channel. Subscriptions made after Start apply on
// the next reconnect.
func (l *Listener) Subscribe(channel string, h NotifyHandler) {
	l.mu.Lock()
	l.handlers[channel] = append(l.handlers[channel], h)
	l.mu.Unlock()
}

// Start begins listening in the background.
func (l *Listener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
	logger.Info(l.ctx, "notification listener started", "channels", len(l.channels()))
}

// Stop ends the listener and waits for it to release its connection.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
}

func (l *Listener) channels() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.handlers))
	for ch := range l.handlers {
		out = append(out, ch)
	}
	return out
}

func (l *Listener) listenLoop() {
	defer l.wg.Done()

	for l.ctx.Err() == nil {
		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			logger.Error(l.ctx, "acquire connection for LISTEN", "error", err)
			l.pause()
			continue
		}

		ok := true
		for _, ch := range l.channels() {
			if _, err := conn.Exec(l.ctx, `LISTEN "`+ch+`"`); err != nil {
				logger.Error(l.ctx, "LISTEN failed", "channel", ch, "error", err)
				ok = false
				break
			}
		}
		if ok {
			l.wait(conn)
		}
		conn.Release()
		if !ok {
			l.pause()
		}
	}
}

func (l *Listener) pause() {
	select {
	case <-l.ctx.Done():
	case <-time.After(time.Second):
	}
}

func (l *Listener) wait(conn *pgxpool.Conn) {
	for {
		ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
		n, err := conn.Conn().WaitForNotification(ctx)
		cancel()
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if ctx.Err() != nil {
				continue
			}
			logger.Warn(l.ctx, "notification wait failed, reconnecting", "error", err)
			return
		}
		l.dispatch(n.Channel, n.Payload)
	}
}

func (l *Listener) dispatch(channel, payload string) {
	l.mu.RLock()
	handlers := l.handlers[channel]
	l.mu.RUnlock()

	logger.Debug(l.ctx, "notification received", "channel", channel, "payload", payload)
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(l.ctx, "notification handler panic", "channel", channel, "panic", r)
				}
			}()
			h(l.ctx, payload)
		}()
	}
}
