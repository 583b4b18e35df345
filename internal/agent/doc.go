// Package agent runs the per-request workflow graph: classify the prompt,
// branch to one action step, call the remote data service through the
// JSON-RPC envelope, record every call and response, and summarize the
// result.
package agent
