// Package instrument connects the orchestration core to the physical
// instrument over MQTT.
//
// The firmware link is a serial-to-MQTT gateway: it subscribes to
// liquisense/command/actuator for raw command strings and publishes
// load-cell readings on liquisense/sample/loadcell. This package holds
// the adapters on the core's side of that contract:
//
//   - ActuatorLink publishes actuator command strings. It satisfies
//     the CommandSender interfaces of the weight and experiment
//     packages.
//   - SampleFeed consumes raw load-cell samples, drives the weight
//     controller and republishes the filtered status.
//   - ControlAdapter maps JSON control messages onto engine and
//     calibration operations, replying on a per-request topic.
//   - Recorder observes the engine event pipeline, republishes events
//     to liquisense/event/{type} and records history to InfluxDB.
//
// All adapters take narrow interfaces so they can be tested against
// in-memory fakes without a broker.
package instrument
