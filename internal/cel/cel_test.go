package cel

import "testing"

func TestProtocolInterface(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    string
	}{
		{name: "sip", channel: "SIP/as2mkq-0000001f", want: "SIP/as2mkq"},
		{name: "pjsip", channel: "PJSIP/rgcZLNGE-00000028", want: "PJSIP/rgcZLNGE"},
		{name: "trunk_with_dash", channel: "SIP/dev_37_0-0000001a", want: "SIP/dev_37_0"},
		{name: "local_half_one", channel: "Local/1645@default-00000001;1", want: "Local/1645@default"},
		{name: "local_half_two", channel: "Local/1645@default-00000001;2", want: "Local/1645@default"},
		{name: "no_suffix", channel: "SIP/as2mkq", want: "SIP/as2mkq"},
		{name: "empty", channel: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProtocolInterface(tt.channel); got != tt.want {
				t.Fatalf("ProtocolInterface(%q) = %q, want %q", tt.channel, got, tt.want)
			}
		})
	}
}

func TestLineIdentity(t *testing.T) {
	if got := LineIdentity("SIP/As2MKQ-0000001f"); got != "sip/as2mkq" {
		t.Fatalf("LineIdentity = %q, want %q", got, "sip/as2mkq")
	}
}

func TestInterfaceName(t *testing.T) {
	tests := []struct {
		channel string
		want    string
	}{
		{"SIP/as2mkq-0000001f", "as2mkq"},
		{"PJSIP/rgcZLNGE-00000028", "rgcZLNGE"},
		{"noslash", "noslash"},
	}
	for _, tt := range tests {
		if got := InterfaceName(tt.channel); got != tt.want {
			t.Fatalf("InterfaceName(%q) = %q, want %q", tt.channel, got, tt.want)
		}
	}
}

func TestIsLocal(t *testing.T) {
	if !IsLocal("Local/s@default-00000001;1") {
		t.Fatal("expected Local channel to be detected")
	}
	if IsLocal("SIP/as2mkq-0000001f") {
		t.Fatal("SIP channel misdetected as Local")
	}
}
