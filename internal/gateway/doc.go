// Package gateway implements the inbound request gateway that sits between
// the peer-to-peer transport and the agent pipeline.
//
// Every request walks the same sequence: buyer authorization, admission
// against the concurrency ceiling, translation of the chat completion body
// into a single user turn, dispatch through the pipeline bridge, response
// building and finally the audit log. The admission slot taken in the second
// step is released exactly once on every exit path, and every failure is
// resolved to a JSON error envelope before Handle returns.
package gateway
