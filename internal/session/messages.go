package session

import "fmt"

const (
	messageSessionAlreadyActive = "A call is already in progress. End it before starting a new one."
	messageMicrophoneDenied     = "Microphone access was denied. Allow access and try again."
	messageMicrophoneMissing    = "No microphone is available."
	messageCaptureStopped       = "The microphone stopped delivering audio. The call continues without a recording."
	messageCredentialFailed     = "Could not get a session credential for the agent."
	messageConnectFailed        = "Could not connect to the agent."
	messageClosedBeforeConnect  = "The agent closed the connection before the call started."
	messageTransportError       = "The connection to the agent failed. Saving what was captured so far."
	messageSaveFailed           = "The call ended but its record could not be saved."

	messageSavedFormat = "Call saved as %s."
)

func savedMessage(recordID string) string {
	return fmt.Sprintf(messageSavedFormat, recordID)
}
