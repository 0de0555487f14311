package maturation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"dispatch-server/internal/control"
	"dispatch-server/internal/dispatch"
	"dispatch-server/internal/gateway"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/progress"
	"dispatch-server/internal/store"

	"github.com/google/uuid"
)

// warmupTexts is the rotating message pool exchanged between instances during
// a warm-up run. Innocuous conversational filler keeps the traffic organic.
var warmupTexts = []string{
	"Oi, tudo bem?",
	"Bom dia! Como vai?",
	"Oi! Viu as novidades de hoje?",
	"Tudo certo por aí?",
	"Boa tarde, como estão as coisas?",
	"Oi, conseguiu ver minha mensagem anterior?",
	"Olá! Passando pra dar um alô.",
	"E aí, como foi o dia?",
}

// EngineStore defines the database operations required by the maturation engine
type EngineStore interface {
	GetInstanceByID(ctx context.Context, instanceID uuid.UUID) (store.GatewayInstance, error)
	UpdateScheduleStatusFrom(ctx context.Context, scheduleID uuid.UUID, status string, from ...string) (store.Schedule, error)
}

// Engine runs instance warm-up jobs: pairs of the operator's own instances
// exchange messages with randomized pacing to build sender reputation before
// a campaign goes out through them.
type Engine struct {
	store    EngineStore
	registry *gateway.Registry
	typing   *dispatch.TypingSimulator
	retry    dispatch.RetryPolicy
	control  control.Signal
	progress progress.Store
	timeout  time.Duration
	logger   *observability.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func NewEngine(
	engineStore EngineStore,
	registry *gateway.Registry,
	typing *dispatch.TypingSimulator,
	retry dispatch.RetryPolicy,
	controlSignal control.Signal,
	progressStore progress.Store,
	gatewayTimeout time.Duration,
	logger *observability.Logger,
) *Engine {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    engineStore,
		registry: registry,
		typing:   typing,
		retry:    retry,
		control:  controlSignal,
		progress: progressStore,
		timeout:  gatewayTimeout,
		logger:   logger,
		baseCtx:  baseCtx,
		cancel:   cancel,
		running:  make(map[uuid.UUID]struct{}),
	}
}

// Launch starts a warm-up run for a promoted maturation schedule. A schedule
// that already has a running job is left alone.
func (e *Engine) Launch(schedule store.Schedule) {
	e.mu.Lock()
	if _, ok := e.running[schedule.ID]; ok {
		e.mu.Unlock()
		return
	}
	e.running[schedule.ID] = struct{}{}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.running, schedule.ID)
			e.mu.Unlock()
		}()
		e.run(schedule)
	}()
}

// Shutdown cancels all running warm-up jobs and waits for them to exit or for
// ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (e *Engine) run(schedule store.Schedule) {
	ctx := observability.WithFields(e.baseCtx,
		observability.Field{Key: "schedule_id", Value: schedule.ID},
	)

	cfg := schedule.Maturation
	if cfg == nil {
		e.logger.Warn(ctx, "maturation schedule has no configuration, canceling")
		e.finish(ctx, schedule.ID, store.ScheduleStatusCanceled)
		return
	}

	instances := e.loadConnected(ctx, cfg.InstanceIDs)
	if len(instances) < 2 {
		e.logger.Warn(ctx, fmt.Sprintf("maturation needs at least two connected instances, got %d", len(instances)))
		e.finish(ctx, schedule.ID, store.ScheduleStatusCanceled)
		return
	}

	key := schedule.ID.String()
	e.updateProgress(ctx, key, progress.Update{
		Status:    strPtr(store.ScheduleStatusRunning),
		Total:     intPtr(cfg.MessageCount),
		AppendLog: strPtr(fmt.Sprintf("warm-up started across %d instances", len(instances))),
	})

	sent := 0
	failed := 0
	for i := 0; i < cfg.MessageCount; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		halted, err := e.checkControl(ctx, schedule.ID)
		if err != nil {
			e.logger.Error(ctx, "failed to read control flag", err)
		}
		if halted {
			return
		}

		sender := instances[i%len(instances)]
		receiver := instances[(i+1)%len(instances)]
		text := warmupTexts[i%len(warmupTexts)]

		e.updateProgress(ctx, key, progress.Update{
			CurrentRecipient: strPtr(receiver.Name),
			CurrentInstance:  strPtr(sender.Name),
		})

		if err := e.typing.Simulate(ctx, sender, receiver.Name, len(text)); err != nil {
			return
		}

		sendErr := e.retry.Do(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()
			return e.registry.Send(callCtx, sender, receiver.Name, text)
		})
		if sendErr != nil {
			failed++
			e.logger.Error(ctx, fmt.Sprintf("warm-up message %d failed (%s -> %s)", i+1, sender.Name, receiver.Name), sendErr)
			e.updateProgress(ctx, key, progress.Update{
				Failed:    intPtr(failed),
				AppendLog: strPtr(fmt.Sprintf("message %d failed: %s -> %s: %v", i+1, sender.Name, receiver.Name, sendErr)),
			})
		} else {
			sent++
			e.updateProgress(ctx, key, progress.Update{
				Sent:      intPtr(sent),
				AppendLog: strPtr(fmt.Sprintf("message %d: %s -> %s", i+1, sender.Name, receiver.Name)),
			})
		}

		if i < cfg.MessageCount-1 {
			if halted := e.pause(ctx, key, cfg); halted {
				return
			}
		}
	}

	e.updateProgress(ctx, key, progress.Update{
		Status:           strPtr(store.ScheduleStatusCompleted),
		ClearNextMessage: true,
		AppendLog:        strPtr(fmt.Sprintf("warm-up completed: %d sent, %d failed", sent, failed)),
	})
	e.finish(ctx, schedule.ID, store.ScheduleStatusCompleted)
	e.logger.Info(ctx, fmt.Sprintf("warm-up completed: %d sent, %d failed", sent, failed))
}

// pause sleeps a uniformly random delay from the configured range. Returns
// true when interrupted by shutdown.
func (e *Engine) pause(ctx context.Context, key string, cfg *store.MaturationConfig) bool {
	span := cfg.MaxDelayMs - cfg.MinDelayMs
	delayMs := cfg.MinDelayMs
	if span > 0 {
		delayMs += rand.Intn(span + 1)
	}
	delay := time.Duration(delayMs) * time.Millisecond

	nextAt := time.Now().Add(delay).UnixMilli()
	e.updateProgress(ctx, key, progress.Update{NextMessageAt: &nextAt})

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
	}

	e.updateProgress(ctx, key, progress.Update{ClearNextMessage: true})
	return false
}

func (e *Engine) checkControl(ctx context.Context, scheduleID uuid.UUID) (bool, error) {
	raised, err := e.control.IsSet(ctx, scheduleID.String())
	if err != nil || !raised {
		return false, err
	}
	if err := e.control.Clear(ctx, scheduleID.String()); err != nil {
		e.logger.Error(ctx, "failed to clear control flag", err)
	}
	e.updateProgress(ctx, scheduleID.String(), progress.Update{
		ClearNextMessage: true,
		AppendLog:        strPtr("warm-up halted by control flag"),
	})
	e.logger.Info(ctx, "warm-up halted by control flag")
	return true, nil
}

// loadConnected resolves the configured instance ids, keeping only connected
// ones and preserving the configured order.
func (e *Engine) loadConnected(ctx context.Context, ids []uuid.UUID) []store.GatewayInstance {
	instances := make([]store.GatewayInstance, 0, len(ids))
	for _, id := range ids {
		instance, err := e.store.GetInstanceByID(ctx, id)
		if err != nil {
			e.logger.Error(ctx, fmt.Sprintf("failed to load instance %s", id), err)
			continue
		}
		if instance.Status != store.InstanceStatusConnected {
			e.logger.Warn(ctx, fmt.Sprintf("instance %s is %s, excluded from warm-up", instance.Name, instance.Status))
			continue
		}
		instances = append(instances, instance)
	}
	return instances
}

func (e *Engine) finish(ctx context.Context, scheduleID uuid.UUID, status string) {
	if _, err := e.store.UpdateScheduleStatusFrom(ctx, scheduleID, status, store.ScheduleStatusRunning); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Error(ctx, "failed to finalize maturation schedule", err)
	}
}

func (e *Engine) updateProgress(ctx context.Context, key string, update progress.Update) {
	if err := e.progress.Update(ctx, key, update); err != nil {
		e.logger.Error(ctx, "failed to update progress", err)
	}
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
