// Package augerbot relays teleoperation commands from a network control
// endpoint to a ground robot's microcontroller.
//
// Command batches arrive as JSON over TCP or a websocket, update a shared
// robot state, and are sent on a fixed interval as "<code,v1,v2,...>" frames
// over a serial link. Encoder and button telemetry is polled back the same
// way. When the control link drops, every command is zeroed and pushed to the
// controller before the engine reconnects or stops.
//
// # Installation
//
//	go install github.com/gwillem/augerbot/cmd/augerbot@latest
//
// # Usage
//
// Find the controller's serial port and store it in augerbot.toml:
//
//	augerbot ports --save
//
// Then start the engine, optionally with the live dashboard:
//
//	augerbot run --tui
//
// Send a batch by hand, or simulate a link loss:
//
//	augerbot send --set left_speed=-40 --set right_speed=25
//	augerbot send --empty
//
// # Packages
//
//   - cmd/augerbot: CLI with run, ports and send commands
//   - pkg/robot: robot state, variant field tables, limits and configuration
//   - pkg/netmsg: JSON batch framing for the control channel
//   - pkg/serialmsg: delimited frames for the serial link
//   - pkg/serialport: serial transport and port discovery
//   - pkg/link: control channel connections and the receive task
//   - pkg/teleop: transmission loop, failsafe and reconnect policy
//   - pkg/telemetry: MQTT telemetry publisher
//   - pkg/observability: logging and Prometheus metrics
//   - pkg/timer: interval gate
package augerbot
