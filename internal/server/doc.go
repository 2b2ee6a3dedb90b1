// Package server implements the MCP (Model Context Protocol) server for score
// conversion.
//
// This package provides a JSON-RPC 2.0 server that exposes the sheet music
// pipeline through the MCP protocol, so that an assistant can inspect each
// stage of a conversion as well as run it end to end.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Individual stages:
//   - score_detect_staffs: Segment the page into staff systems
//   - score_detect_lines: Locate the five lines of each staff
//   - score_detect_symbols: Match and merge note heads per staff
//
// Whole pipeline:
//   - score_convert: Convert a page to notes and write MIDI
//   - score_overlay: Render the debug overlay
//
// History:
//   - score_history: List or fetch past conversions
//
// # Lazy Setup
//
// Templates and the duration classifier are loaded on the first tool call
// that needs them and reused afterwards. A missing template directory is
// reported by that call, not at startup.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// Problems confined to a staff or symbol are not errors; score_convert
// returns them alongside the notes.
//
// # Usage
//
//	srv := server.New(cfg, server.WithHistory(history))
//	defer srv.Close()
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
