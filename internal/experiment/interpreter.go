package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liquisense/liquisense-core/internal/weight"
)

// Actuator command strings issued by the interpreter.
const (
	cmdModeIdle    = "MODE:IDLE"
	cmdModeInject  = "MODE:INJECT"
	cmdModeDrain   = "MODE:DRAIN"
	cmdModeAcquire = "MODE:ACQUIRE"
	cmdModePrefix  = "MODE:"
	cmdGasPumpOn   = "GAS:ON"
	cmdGasPumpOff  = "GAS:OFF"
	cmdInject      = "INJ:%d:%.3f:%.3f" // channel, distance_mm, flow_rate
)

// gasPumpChannelID attributes gas pump runtime in the consumable
// ledger.
const gasPumpChannelID = "gas-pump"

// runWorker executes the program on the dedicated worker goroutine
// and commits the terminal state when it unwinds. The physical system
// is restored to idle mode unconditionally, on every exit path, so a
// failed experiment never leaves actuators mid-motion.
func (e *Engine) runWorker(ctx context.Context, program *Program) {
	var pumpOnAt time.Time

	err := e.executeSteps(ctx, program, program.Steps, 0, &pumpOnAt)

	// Idle restoration happens before the terminal commit and
	// regardless of how the run ended.
	e.sendCommand(cmdModeIdle)
	e.settleGasPump(&pumpOnAt)

	e.commitTerminal(err)
}

// commitTerminal writes the terminal state. The worker always wins
// the race with the command path's Aborting marker.
func (e *Engine) commitTerminal(err error) {
	e.mu.Lock()
	stopped := e.stopRequested
	var terminal State
	switch {
	case err != nil && (errors.Is(err, errStopRequested) || errors.Is(err, context.Canceled)):
		terminal = StateAborted
	case err != nil:
		terminal = StateError
		e.run.lastError = err.Error()
	case stopped:
		terminal = StateAborted
	default:
		terminal = StateCompleted
		e.run.stepIndex = e.run.totalSteps
	}
	e.state = terminal
	e.mu.Unlock()

	switch terminal {
	case StateCompleted:
		e.logger.Info("experiment completed")
		e.pipeline.Publish(EventExperimentCompleted, "experiment completed", "", nil)
	case StateAborted:
		e.logger.Info("experiment aborted")
		e.pipeline.Publish(EventExperimentStopped, "experiment aborted", "", nil)
	case StateError:
		e.logger.Error("experiment failed", "error", err)
		e.pipeline.Publish(EventExperimentError, err.Error(), "", nil)
	}
}

// checkpoint is the combined stop-or-pause test. It runs before every
// step and at bounded intervals inside long waits. A pause blocks
// here until resumed or stopped; combining the two into one function
// closes the race where a stop arrives while paused.
func (e *Engine) checkpoint(ctx context.Context) error {
	if e.stopWanted() {
		return errStopRequested
	}
	if err := ctx.Err(); err != nil {
		return errStopRequested
	}

	e.pauseMu.Lock()
	for e.paused {
		e.pauseCond.Wait()
	}
	e.pauseMu.Unlock()

	if e.stopWanted() {
		return errStopRequested
	}
	return nil
}

func (e *Engine) stopWanted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopRequested
}

// executeSteps walks one step sequence. Depth 0 is the top-level
// list, whose index drives the progress figure; loop bodies recurse
// with depth+1 and update only the step name.
func (e *Engine) executeSteps(ctx context.Context, program *Program, steps []Step, depth int, pumpOnAt *time.Time) error {
	for i, step := range steps {
		if err := e.checkpoint(ctx); err != nil {
			return err
		}

		e.mu.Lock()
		if depth == 0 {
			e.run.stepIndex = i
		}
		e.run.stepName = step.Name
		e.mu.Unlock()

		e.pipeline.Publish(EventStepStarted, fmt.Sprintf("step %s started", step.Name), step.Name, nil)

		if err := e.executeStep(ctx, program, step, depth, pumpOnAt); err != nil {
			return err
		}

		e.pipeline.Publish(EventStepCompleted, fmt.Sprintf("step %s completed", step.Name), step.Name, nil)

		if depth == 0 {
			e.mu.Lock()
			e.run.stepIndex = i + 1
			e.mu.Unlock()
		}
	}
	return nil
}

// executeStep dispatches one step to its handler.
func (e *Engine) executeStep(ctx context.Context, program *Program, step Step, depth int, pumpOnAt *time.Time) error {
	switch {
	case step.Inject != nil:
		return e.handleInject(ctx, program, step.Name, step.Inject)
	case step.Wait != nil:
		return e.handleTermination(ctx, step.Name, step.Wait.Duration, step.Wait.Cycles, step.Wait.Empty, 0)
	case step.Drain != nil:
		return e.handleDrain(ctx, step.Name, step.Drain)
	case step.Acquire != nil:
		return e.handleAcquire(ctx, step.Name, step.Acquire)
	case step.Mode != nil:
		e.sendCommand(cmdModePrefix + step.Mode.Mode)
		return nil
	case step.GasPump != nil:
		return e.handleGasPump(ctx, step.GasPump, pumpOnAt)
	case step.Loop != nil:
		return e.handleLoop(ctx, program, step.Name, step.Loop, depth, pumpOnAt)
	case step.Phase != nil:
		e.handlePhase(step.Name, step.Phase)
		return nil
	default:
		// Validation guarantees one action; a bare step is a no-op.
		return nil
	}
}

// ─── Step handlers ───

// handleInject drives an injection: switch to injection mode, start
// per-channel motion computed from the liquid-to-channel map and the
// component ratios, poll weight feedback until the measured mass
// reaches target − tolerance or the stabilization timeout elapses
// (soft), restore idle mode, and record consumption per channel.
func (e *Engine) handleInject(ctx context.Context, program *Program, stepName string, action *InjectAction) error {
	targetMass := action.TargetMassG
	if targetMass == 0 {
		// 1 ml of aqueous mixture weighs 1 g.
		targetMass = action.TargetVolumeML
	}

	e.sendCommand(cmdModeInject)

	startTared := e.feedback.Status().Tared
	for _, comp := range action.Components {
		channel := program.Channels[comp.LiquidID]
		distance := e.feedback.DistanceForMass(targetMass * comp.Ratio)
		e.sendCommand(fmt.Sprintf(cmdInject, channel, distance, action.FlowRate))
	}

	err := e.awaitInjectedMass(ctx, startTared, targetMass, action.ToleranceG, action.StabilizationTimeout)

	e.sendCommand(cmdModeIdle)

	if err != nil {
		if errors.Is(err, weight.ErrWaitTimeout) {
			// Soft timeout: the wait ends, not the experiment.
			e.logger.Warn("injection stabilization timed out, continuing",
				"step", stepName, "target_g", targetMass)
			e.pipeline.Log(fmt.Sprintf("step %s: injection stabilization timed out", stepName))
		} else {
			return err
		}
	}

	e.recordConsumption(ctx, program, action)
	return nil
}

// awaitInjectedMass polls the feedback subsystem until the tared
// weight gain reaches target − tolerance.
func (e *Engine) awaitInjectedMass(ctx context.Context, startTared, targetMass, tolerance float64, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := e.checkpoint(ctx); err != nil {
			return err
		}

		if e.feedback.Status().Tared-startTared >= targetMass-tolerance {
			return nil
		}
		if time.Now().After(deadline) {
			return weight.ErrWaitTimeout
		}
		if err := e.tick(ctx); err != nil {
			return err
		}
	}
}

// recordConsumption attributes dispensed volume to each component's
// channel. Ledger failures are logged, never fatal.
func (e *Engine) recordConsumption(ctx context.Context, program *Program, action *InjectAction) {
	if e.consumables == nil {
		return
	}
	for _, comp := range action.Components {
		channel := program.Channels[comp.LiquidID]
		volume := action.TargetVolumeML * comp.Ratio
		if err := e.consumables.AddConsumption(ctx, channel, volume); err != nil {
			e.logger.Warn("recording consumption failed",
				"channel", channel, "volume_ml", volume, "error", err)
		}
	}
}

// handleDrain switches to drain mode, resolves the termination
// condition, and restores idle mode.
func (e *Engine) handleDrain(ctx context.Context, stepName string, action *DrainAction) error {
	e.sendCommand(cmdModeDrain)
	err := e.handleTermination(ctx, stepName, action.Duration, action.Cycles, action.Empty, 0)
	e.sendCommand(cmdModeIdle)
	return err
}

// handleAcquire drives the acquisition phase. MaxDuration always wins
// if the primary condition never fires.
func (e *Engine) handleAcquire(ctx context.Context, stepName string, action *AcquireAction) error {
	e.sendCommand(cmdModeAcquire)
	err := e.handleTermination(ctx, stepName, action.Duration, action.Cycles, nil, action.MaxDuration)
	e.sendCommand(cmdModeIdle)
	return err
}

// handleTermination resolves a duration/cycles/empty condition with
// checkpointed polling. Empty-wait timeouts are soft.
func (e *Engine) handleTermination(ctx context.Context, stepName string, duration time.Duration, cycles int, empty *EmptyWait, maxDuration time.Duration) error {
	if cycles > 0 {
		duration = time.Duration(cycles) * e.cyclePeriod
	}
	if maxDuration > 0 && (duration <= 0 || duration > maxDuration) {
		duration = maxDuration
	}

	if empty != nil {
		_, err := e.feedback.WaitForEmpty(ctx, weight.EmptyWaitParams{
			Tolerance:       empty.ToleranceG,
			Timeout:         empty.Timeout,
			StabilityWindow: empty.StabilityWindow,
			Checkpoint:      e.checkpoint,
		})
		if errors.Is(err, weight.ErrWaitTimeout) {
			e.logger.Warn("empty wait timed out, continuing", "step", stepName)
			e.pipeline.Log(fmt.Sprintf("step %s: empty wait timed out", stepName))
			return nil
		}
		return err
	}

	return e.sleepCheckpointed(ctx, duration)
}

// sleepCheckpointed waits a duration in poll-interval slices, testing
// the stop-or-pause checkpoint at each tick. Time spent paused does
// not count against the duration.
func (e *Engine) sleepCheckpointed(ctx context.Context, duration time.Duration) error {
	remaining := duration
	for remaining > 0 {
		if err := e.checkpoint(ctx); err != nil {
			return err
		}
		slice := e.pollInterval
		if slice > remaining {
			slice = remaining
		}
		start := time.Now()
		select {
		case <-ctx.Done():
			return errStopRequested
		case <-time.After(slice):
		}
		remaining -= time.Since(start)
	}
	return nil
}

// tick waits one poll interval.
func (e *Engine) tick(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errStopRequested
	case <-time.After(e.pollInterval):
		return nil
	}
}

// handleGasPump switches the pump and attributes wall-clock runtime
// to consumable wear on pump-off.
func (e *Engine) handleGasPump(ctx context.Context, action *GasPumpAction, pumpOnAt *time.Time) error {
	if action.On {
		if pumpOnAt.IsZero() {
			*pumpOnAt = time.Now()
		}
		e.sendCommand(cmdGasPumpOn)
		return nil
	}

	e.sendCommand(cmdGasPumpOff)
	if !pumpOnAt.IsZero() {
		e.recordPumpRuntime(ctx, time.Since(*pumpOnAt))
		*pumpOnAt = time.Time{}
	}
	return nil
}

// settleGasPump attributes runtime for a pump left on when the run
// ends.
func (e *Engine) settleGasPump(pumpOnAt *time.Time) {
	if pumpOnAt.IsZero() {
		return
	}
	e.sendCommand(cmdGasPumpOff)
	e.recordPumpRuntime(context.Background(), time.Since(*pumpOnAt))
	*pumpOnAt = time.Time{}
}

func (e *Engine) recordPumpRuntime(ctx context.Context, elapsed time.Duration) {
	if e.consumables == nil {
		return
	}
	if err := e.consumables.AddRuntime(ctx, gasPumpChannelID, elapsed.Seconds()); err != nil {
		e.logger.Warn("recording gas pump runtime failed", "error", err)
	}
}

// handleLoop iterates the body Count times, updating the single
// shared iteration/total pair on each pass. Nested loops overwrite
// the pair: only the innermost active loop's progress is externally
// visible.
func (e *Engine) handleLoop(ctx context.Context, program *Program, stepName string, action *LoopAction, depth int, pumpOnAt *time.Time) error {
	for i := 1; i <= action.Count; i++ {
		if err := e.checkpoint(ctx); err != nil {
			return err
		}

		e.mu.Lock()
		e.run.loopIteration = i
		e.run.loopTotal = action.Count
		e.mu.Unlock()

		e.pipeline.Publish(EventLoopIteration,
			fmt.Sprintf("loop %s iteration %d/%d", stepName, i, action.Count), stepName,
			map[string]any{"iteration": i, "total": action.Count})

		if err := e.executeSteps(ctx, program, action.Steps, depth+1, pumpOnAt); err != nil {
			return err
		}
	}
	return nil
}

// handlePhase emits the phase boundary event. No physical action.
func (e *Engine) handlePhase(stepName string, marker *PhaseMarker) {
	eventType := EventPhaseStarted
	message := fmt.Sprintf("phase %s started", marker.Label)
	if marker.End {
		eventType = EventPhaseEnded
		message = fmt.Sprintf("phase %s ended", marker.Label)
	}
	e.pipeline.Publish(eventType, message, stepName, map[string]any{"phase": marker.Label})
}

// sendCommand dispatches an actuator command, logging failures.
// Dispatch is fire-and-forget.
func (e *Engine) sendCommand(command string) {
	if e.actuator == nil {
		e.logger.Debug("actuator command dropped, no link", "command", command)
		return
	}
	if err := e.actuator.SendCommand(command); err != nil {
		e.logger.Error("actuator command dispatch failed", "command", command, "error", err)
	}
}
