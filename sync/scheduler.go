// ABOUTME: Background scheduling for the sync orchestrator
// ABOUTME: Periodic push, retry polling, reconnect flush and auth-triggered resync
package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/studysync/models"
)

type runner interface {
	Run(ctx context.Context)
}

// Start subscribes to remote auth events, restores an existing session and
// launches the periodic loops. Calling Start twice is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.spawnMu.Lock()
	o.stopped = false
	o.spawnMu.Unlock()

	if o.remote != nil {
		o.unsubscribe = o.remote.SubscribeAuth(func(ev models.AuthEvent) {
			o.spawn(func() {
				o.HandleAuthEvent(ctx, ev)
			})
		})
	}

	if r, ok := o.conn.(runner); ok {
		o.spawn(func() { r.Run(ctx) })
	}
	if o.cfg.AutoSync {
		o.spawn(func() { o.periodicLoop(ctx) })
	}
	o.spawn(func() { o.retryLoop(ctx) })
	o.spawn(func() { o.connectivityLoop(ctx) })

	if o.cfg.IsConfigured() && o.remote != nil {
		o.spawn(func() {
			user, err := o.resolveUser(ctx)
			if err != nil {
				o.logger.Warn("session restore failed", zap.Error(err))
				return
			}
			if user == nil {
				return
			}
			o.logger.Info("session restored", zap.String("user", user.ID))
			o.HandleAuthEvent(ctx, models.AuthEvent{Kind: models.AuthSessionRestore, User: user})
		})
	}
}

// Stop cancels the loops and waits for in-flight work to finish.
func (o *Orchestrator) Stop() {
	o.runMu.Lock()
	cancel := o.cancel
	unsubscribe := o.unsubscribe
	o.cancel = nil
	o.unsubscribe = nil
	o.runMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	o.spawnMu.Lock()
	o.stopped = true
	o.spawnMu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
}

func (o *Orchestrator) spawn(fn func()) bool {
	o.spawnMu.Lock()
	defer o.spawnMu.Unlock()
	if o.stopped {
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
	return true
}

func (o *Orchestrator) periodicLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SyncEvery())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.cachedUser() == nil || !o.conn.Online() {
				continue
			}
			res := o.PushToRemote(ctx, TriggerPeriodic)
			o.logResult(res)
		}
	}
}

func (o *Orchestrator) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.RetryEvery())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.queue.Len() == 0 || !o.conn.Online() {
				continue
			}
			o.logResult(o.FlushRetryQueue(ctx))
		}
	}
}

func (o *Orchestrator) connectivityLoop(ctx context.Context) {
	changes := o.conn.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-changes:
			if !ok {
				return
			}
			if !online || o.queue.Len() == 0 {
				continue
			}
			o.logResult(o.flush(ctx, TriggerConnectivity))
		}
	}
}

func (o *Orchestrator) logResult(res SyncResult) {
	fields := []zap.Field{
		zap.String("op", res.Op),
		zap.String("trigger", res.Trigger),
		zap.String("status", string(res.Status)),
	}
	if res.Reason != "" {
		fields = append(fields, zap.String("reason", res.Reason))
	}
	switch res.Status {
	case StatusError:
		o.logger.Warn("background sync failed", fields...)
	case StatusQueued:
		o.logger.Info("background sync queued", fields...)
	default:
		o.logger.Debug("background sync", fields...)
	}
}
