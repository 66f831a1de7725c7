package cel

import (
	"strings"
	"time"
)

// EventType is the CEL event type emitted by the telephony engine.
type EventType string

const (
	ChanStart   EventType = "CHAN_START"
	ChanEnd     EventType = "CHAN_END"
	Answer      EventType = "ANSWER"
	AppStart    EventType = "APP_START"
	BridgeEnter EventType = "BRIDGE_ENTER"
	BridgeExit  EventType = "BRIDGE_EXIT"
	Hangup      EventType = "HANGUP"
	LinkedIDEnd EventType = "LINKEDID_END"

	// Engine extensions.
	XivoIncall       EventType = "XIVO_INCALL"
	XivoOutcall      EventType = "XIVO_OUTCALL"
	XivoUserFwd      EventType = "XIVO_USER_FWD"
	MixmonitorStart  EventType = "MIXMONITOR_START"
	MixmonitorStop   EventType = "MIXMONITOR_STOP"
)

// CEL is a single Channel Event Log record as stored by the engine.
// Records are immutable once written; CallLogID is stamped after a call
// log has been generated from them, so a regeneration knows which prior
// call log it supersedes.
type CEL struct {
	ID          int64
	EventType   EventType
	EventTime   time.Time
	ChannelName string
	UniqueID    string
	LinkedID    string
	CIDName     string
	CIDNum      string
	Exten       string
	Context     string
	AppName     string
	AppData     string
	UserField   string
	CallLogID   *int64
}

// ProtocolInterface returns the protocol/interface prefix of a channel
// name, e.g. "SIP/as2mkq" for "SIP/as2mkq-0000001f". Local channel
// halves ("Local/s@default-00000001;2") lose their ";N" suffix first.
// Channel names without an instance suffix are returned unchanged.
func ProtocolInterface(channelName string) string {
	name := channelName
	if i := strings.LastIndex(name, ";"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "-"); i >= 0 {
		name = name[:i]
	}
	return name
}

// LineIdentity returns the lowercased protocol/interface prefix, which is
// how the directory identifies a line ("sip/as2mkq").
func LineIdentity(channelName string) string {
	return strings.ToLower(ProtocolInterface(channelName))
}

// InterfaceName returns the interface part of a channel name without the
// protocol, e.g. "as2mkq" for "SIP/as2mkq-0000001f".
func InterfaceName(channelName string) string {
	pi := ProtocolInterface(channelName)
	if i := strings.Index(pi, "/"); i >= 0 {
		return pi[i+1:]
	}
	return pi
}

// IsLocal reports whether the channel belongs to the Local pseudo-protocol.
func IsLocal(channelName string) bool {
	return strings.HasPrefix(channelName, "Local/")
}
