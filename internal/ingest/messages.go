package ingest

// CELMessage is the bus envelope the telephony engine publishes for each
// AMI CEL event.
type CELMessage struct {
	Data CELEventData `json:"data"`
}

// CELEventData is the part of the CEL event the pipeline cares about.
// LINKEDID_END is the regeneration trigger: it fires once per logical
// call, when the last channel of the linked-id hangs up.
type CELEventData struct {
	EventName string `json:"EventName"`
	LinkedID  string `json:"LinkedID"`
}
