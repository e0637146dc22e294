// Package session runs uploads. An Orchestrator validates the selected
// files, picks a transport strategy and drives one Session per selection
// through the lifecycle
//
//	validating → reading → optimizing → transmitting → serverProcessing → verifying → complete | failed
//
// with every attempt wrapped by the retry engine. Batch sessions carry one
// task per file and send all pending files in a single call per attempt.
//
// Component health, the ledger and the activity governor are shared by all
// sessions of an Orchestrator and are only mutated through their own APIs.
package session
