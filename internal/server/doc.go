// Package server implements the MCP (Model Context Protocol) facade of the
// plotting server.
//
// It speaks JSON-RPC 2.0 and turns tool calls into render jobs: arguments
// are validated by plot.Validator, queued on a Submitter (normally a
// dispatch.Dispatcher) and the finished figure is returned as MCP content.
//
// # Transports
//
// The same message handling backs three transports:
//   - stdio: one JSON message per line on the reader passed to Run
//   - HTTP: one message per POST /mcp request; notifications get 202
//   - WebSocket: GET /ws, one message per text frame
//
// On stdio and WebSocket tool calls run concurrently, so responses may come
// back out of order. A client may abandon a call with
// notifications/cancelled; closing the stream or connection abandons all
// calls still running.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - render_plot: draw a chart or map from records or CSV
//   - generate_plot: CSV data plus json_kwargs, in the style of pandas plotting
//   - list_datasets: report reference dataset status
//
// # Error Handling
//
// A tool that fails returns a normal result with isError set. Its
// structuredContent carries the failure:
//
//	{"error_kind": "overloaded", "detail": "...", "retryable": true}
//
// JSON-RPC errors are reserved for protocol faults: unparsable messages
// (-32700), bad envelopes (-32600), unknown methods (-32601) and unknown
// tools or malformed params (-32602).
package server
