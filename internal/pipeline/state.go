// Package pipeline runs captured audio through transcription, command
// resolution and execution, emitting one acknowledgement per utterance.
package pipeline

import "fmt"

// Stage names one step of the utterance lifecycle. Transitions are
// strictly forward: an utterance never revisits a stage.
type Stage string

const (
	StageCaptured     Stage = "captured"
	StageTranscribing Stage = "transcribing"
	StageResolving    Stage = "resolving"
	StageExecuting    Stage = "executing"
	StageAcknowledged Stage = "acknowledged"
	StageFailed       Stage = "failed"
)

// AckStatus classifies the outcome reported for one utterance.
type AckStatus string

const (
	AckOK        AckStatus = "ok"
	AckAmbiguous AckStatus = "ambiguous"
	AckFailed    AckStatus = "failed"
)

// Ack is the terminal record for one utterance: what was heard, what was
// done, and the phrase to speak back.
type Ack struct {
	UtteranceID string         `json:"utterance_id"`
	Status      AckStatus      `json:"status"`
	Message     string         `json:"message"`
	Transcript  string         `json:"transcript,omitempty"`
	Command     string         `json:"command,omitempty"`
	Error       string         `json:"error,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

func (a *Ack) String() string {
	return fmt.Sprintf("%s %s: %s", a.UtteranceID, a.Status, a.Message)
}
