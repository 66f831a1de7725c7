package ingest

import "testing"

func TestParseTopic(t *testing.T) {
	tests := []struct {
		topic   string
		handler string
		nilOK   bool
	}{
		{topic: "pbx/ami/cel", handler: "cel"},
		{topic: "pbx/ami/CEL", handler: "cel"},
		{topic: "site1/asterisk/events/cel", handler: "cel"},
		{topic: "pbx/cel", handler: "cel"},
		{topic: "cel", nilOK: true},
		{topic: "pbx/ami/status", nilOK: true},
		{topic: "", nilOK: true},
		{topic: "pbx/ami/celx", nilOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			route := ParseTopic(tt.topic)
			if tt.nilOK {
				if route != nil {
					t.Errorf("ParseTopic(%q) = %+v, want nil", tt.topic, route)
				}
				return
			}
			if route == nil {
				t.Fatalf("ParseTopic(%q) = nil, want handler %q", tt.topic, tt.handler)
			}
			if route.Handler != tt.handler {
				t.Errorf("ParseTopic(%q).Handler = %q, want %q", tt.topic, route.Handler, tt.handler)
			}
		})
	}
}
