package ingest

import "strings"

// Route describes which handler should process a message.
type Route struct {
	Handler string
}

// ParseTopic maps an MQTT topic to a handler. Only the trailing segment
// matters so deployments can use any prefix ("pbx/ami/cel",
// "site1/asterisk/cel"). Unknown topics return nil.
func ParseTopic(topic string) *Route {
	segments := strings.Split(topic, "/")
	if len(segments) < 2 {
		return nil
	}

	switch segments[len(segments)-1] {
	case "cel", "CEL":
		return &Route{Handler: "cel"}
	}
	return nil
}
