// Package acp implements Agent Client Protocol (ACP) support for ccbridge.
// It lets editors like Zed drive the adapter by exchanging newline-delimited
// JSON-RPC messages over stdio.
//
// The implementation supports the following ACP methods:
// - initialize: returns agent capabilities
// - session/new: creates a new conversation transcript
// - session/load: reloads a saved transcript and replays its history
// - session/prompt: runs one model call and streams the reply
//
// The implementation sends the following notifications:
// - session/update: streams model output as agent_message_chunk updates
package acp
