package instrument

import (
	"encoding/json"
	"fmt"

	"github.com/liquisense/liquisense-core/internal/experiment"
	"github.com/liquisense/liquisense-core/internal/infrastructure/mqtt"
	"github.com/liquisense/liquisense-core/internal/weight"
)

// Control command verbs accepted on the control topic.
const (
	ctrlLoad      = "load"
	ctrlStart     = "start"
	ctrlStop      = "stop"
	ctrlPause     = "pause"
	ctrlResume    = "resume"
	ctrlStatus    = "status"
	ctrlTare      = "tare"
	ctrlCalStart  = "calibration_start"
	ctrlCalZero   = "calibration_zero"
	ctrlCalRef    = "calibration_reference"
	ctrlCalSave   = "calibration_save"
	ctrlCalCancel = "calibration_cancel"
	ctrlPumpCal   = "pump_calibration"
)

// ExperimentEngine is the engine surface the control adapter drives.
// Satisfied by *experiment.Engine.
type ExperimentEngine interface {
	LoadProgram(program *experiment.Program) error
	Start() experiment.StatusReport
	Pause() experiment.StatusReport
	Resume() experiment.StatusReport
	Stop() experiment.StatusReport
	Status() experiment.StatusReport
}

// WeightControl is the weight-subsystem surface the control adapter
// drives. Satisfied by *weight.Controller.
type WeightControl interface {
	Status() weight.Status
	Tare()
	StartCalibration()
	SetZeroPoint()
	SetReferenceWeight(mass float64) error
	SaveCalibration()
	CancelCalibration()
	CalibrationState() weight.SessionState
	SetPumpCalibration(slope, offset float64) error
}

// controlRequest is the JSON document received on the control topic.
type controlRequest struct {
	RequestID string              `json:"request_id"`
	Command   string              `json:"command"`
	Program   *experiment.Program `json:"program,omitempty"`
	Mass      float64             `json:"mass,omitempty"`
	Slope     float64             `json:"slope,omitempty"`
	Offset    float64             `json:"offset,omitempty"`
}

// controlReply is the JSON document published on the per-request
// reply topic.
type controlReply struct {
	RequestID   string                   `json:"request_id"`
	OK          bool                     `json:"ok"`
	Error       string                   `json:"error,omitempty"`
	Experiment  *experiment.StatusReport `json:"experiment,omitempty"`
	Weight      *weight.Status           `json:"weight,omitempty"`
	Calibration string                   `json:"calibration_state,omitempty"`
}

// ControlAdapter maps JSON control messages on the control topic onto
// engine and weight-subsystem operations. Every request carrying a
// request_id receives a reply on liquisense/control/reply/{request_id};
// requests without one are executed silently.
//
// The heavyweight remote surface (program validation UI, RPC) lives
// outside this core; this adapter exists so the shipped binary is
// operable over the broker alone.
type ControlAdapter struct {
	broker Broker
	engine ExperimentEngine
	scale  WeightControl
	qos    byte
	logger Logger
}

// NewControlAdapter creates a control adapter.
//
// Parameters:
//   - broker: MQTT client for the control subscription and replies
//   - engine: Experiment engine receiving lifecycle commands
//   - scale: Weight controller receiving tare/calibration commands
//   - qos: QoS for the subscription and replies
//   - logger: Logger instance (nil falls back to a no-op logger)
func NewControlAdapter(broker Broker, engine ExperimentEngine, scale WeightControl, qos byte, logger Logger) *ControlAdapter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ControlAdapter{
		broker: broker,
		engine: engine,
		scale:  scale,
		qos:    qos,
		logger: logger,
	}
}

// Start subscribes to the control topic.
func (a *ControlAdapter) Start() error {
	return a.broker.Subscribe(mqtt.Topics{}.Control(), a.qos, a.handleMessage)
}

// Stop removes the control subscription.
func (a *ControlAdapter) Stop() error {
	return a.broker.Unsubscribe(mqtt.Topics{}.Control())
}

// handleMessage parses and dispatches one control request.
func (a *ControlAdapter) handleMessage(_ string, payload []byte) error {
	var req controlRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		a.logger.Warn("Dropping malformed control message", "error", err)
		return nil
	}

	reply := a.dispatch(req)
	a.sendReply(req.RequestID, reply)

	if reply.OK {
		a.logger.Info("Control command handled", "command", req.Command, "request_id", req.RequestID)
	} else {
		a.logger.Warn("Control command failed", "command", req.Command, "request_id", req.RequestID, "error", reply.Error)
	}
	return nil
}

// dispatch executes the requested command and builds the reply.
func (a *ControlAdapter) dispatch(req controlRequest) controlReply {
	reply := controlReply{RequestID: req.RequestID, OK: true}

	switch req.Command {
	case ctrlLoad:
		if req.Program == nil {
			return a.fail(req, "load requires a program document")
		}
		if err := a.engine.LoadProgram(req.Program); err != nil {
			return a.fail(req, err.Error())
		}
		reply.Experiment = reportPtr(a.engine.Status())

	case ctrlStart:
		reply.Experiment = reportPtr(a.engine.Start())

	case ctrlStop:
		reply.Experiment = reportPtr(a.engine.Stop())

	case ctrlPause:
		reply.Experiment = reportPtr(a.engine.Pause())

	case ctrlResume:
		reply.Experiment = reportPtr(a.engine.Resume())

	case ctrlStatus:
		reply.Experiment = reportPtr(a.engine.Status())
		reply.Weight = statusPtr(a.scale.Status())
		reply.Calibration = string(a.scale.CalibrationState())

	case ctrlTare:
		a.scale.Tare()
		reply.Weight = statusPtr(a.scale.Status())

	case ctrlCalStart:
		a.scale.StartCalibration()
		reply.Calibration = string(a.scale.CalibrationState())

	case ctrlCalZero:
		a.scale.SetZeroPoint()
		reply.Calibration = string(a.scale.CalibrationState())

	case ctrlCalRef:
		if err := a.scale.SetReferenceWeight(req.Mass); err != nil {
			return a.fail(req, err.Error())
		}
		reply.Calibration = string(a.scale.CalibrationState())

	case ctrlCalSave:
		a.scale.SaveCalibration()
		reply.Calibration = string(a.scale.CalibrationState())

	case ctrlCalCancel:
		a.scale.CancelCalibration()
		reply.Calibration = string(a.scale.CalibrationState())

	case ctrlPumpCal:
		if err := a.scale.SetPumpCalibration(req.Slope, req.Offset); err != nil {
			return a.fail(req, err.Error())
		}

	default:
		return a.fail(req, fmt.Sprintf("unknown command %q", req.Command))
	}

	return reply
}

// fail builds an error reply.
func (a *ControlAdapter) fail(req controlRequest, message string) controlReply {
	return controlReply{RequestID: req.RequestID, OK: false, Error: message}
}

// sendReply publishes the reply on the per-request reply topic.
// Requests without a request_id get no reply.
func (a *ControlAdapter) sendReply(requestID string, reply controlReply) {
	if requestID == "" {
		return
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		a.logger.Error("Marshalling control reply", "error", err)
		return
	}

	topic := mqtt.Topics{}.ControlReply(requestID)
	if err := a.broker.Publish(topic, payload, a.qos, false); err != nil {
		a.logger.Warn("Publishing control reply", "request_id", requestID, "error", err)
	}
}

func reportPtr(report experiment.StatusReport) *experiment.StatusReport {
	return &report
}

func statusPtr(status weight.Status) *weight.Status {
	return &status
}
