// Package bus implements the in-process agent bus: fan-out delivery of
// agent messages under point-to-point, broadcast and pub-sub modes, with
// per-mode ring buffers, lag recovery policies and drop strategies for
// backpressure. The bus exclusively owns its channel sinks; agents address
// each other by id and never share channel handles.
package bus
