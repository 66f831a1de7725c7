package generator

import (
	"strings"
	"time"

	"github.com/snarg/cel-logd/internal/cel"
)

// bridgedCallInterpretor handles the common call shapes: an originating
// channel dials, zero or more remote channels ring, at most one of them
// bridges with the originator. Covers internal, inbound (XIVO_INCALL)
// and outbound (XIVO_OUTCALL) calls.
type bridgedCallInterpretor struct{}

func (i *bridgedCallInterpretor) Name() string { return "bridged_call" }

// CanInterpret accepts any group whose first CHAN_START is a real
// (non-Local) channel.
func (i *bridgedCallInterpretor) CanInterpret(cels []cel.CEL) bool {
	for _, c := range cels {
		if c.EventType == cel.ChanStart {
			return !cel.IsLocal(c.ChannelName)
		}
	}
	return false
}

// channelState tracks the per-channel facts the state machine needs.
type channelState struct {
	name       string
	cidName    string
	cidNum     string
	answerTime *time.Time
	inBridge   bool
}

func (i *bridgedCallInterpretor) Interpret(cels []cel.CEL, raw *RawCallLog) *RawCallLog {
	var (
		origUID     string
		channels    = make(map[string]*channelState)
		remoteOrder []string // remote uniqueIDs in BRIDGE_ENTER order
		destUID     string
		lastChanEnd *time.Time
		recordings  = make(map[string]int) // path -> index in raw.Recordings
	)

	for idx := range cels {
		c := &cels[idx]
		if raw.Date.IsZero() && idx == 0 {
			raw.Date = c.EventTime
		}

		ch := channels[c.UniqueID]
		if ch != nil && (c.CIDName != "" || c.CIDNum != "") {
			// Caller-id can be rewritten mid-call, keep the latest.
			ch.cidName = c.CIDName
			ch.cidNum = c.CIDNum
		}

		switch c.EventType {
		case cel.ChanStart:
			ch = &channelState{name: c.ChannelName, cidName: c.CIDName, cidNum: c.CIDNum}
			channels[c.UniqueID] = ch
			if origUID == "" {
				origUID = c.UniqueID
				raw.Date = c.EventTime
				raw.SourceName = c.CIDName
				raw.SourceExten = c.CIDNum
				raw.SourceLine = cel.LineIdentity(c.ChannelName)
				raw.RequestedExten = c.Exten
				raw.RequestedContext = c.Context
				raw.RawParticipants[c.ChannelName] = &RawParticipant{Role: RoleSource}
			} else {
				if raw.DestinationName == "" && raw.DestinationExten == "" {
					raw.DestinationName = c.CIDName
					raw.DestinationExten = c.CIDNum
				}
				raw.DestinationLine = cel.LineIdentity(c.ChannelName)
				raw.RawParticipants[c.ChannelName] = &RawParticipant{}
			}

		case cel.XivoIncall:
			raw.Direction = DirectionInbound
			// The engine rewrites the caller-id on incall entry, the
			// normalized value wins.
			raw.SourceName = c.CIDName
			raw.SourceExten = c.CIDNum

		case cel.XivoOutcall:
			raw.Direction = DirectionOutbound

		case cel.XivoUserFwd:
			if uuid := fwdUserUUID(c); uuid != "" {
				raw.ParticipantsInfo = append(raw.ParticipantsInfo, ParticipantInfoEntry{
					UserUUID: uuid,
					Role:     RoleDestination,
				})
			}

		case cel.AppStart:
			if c.UniqueID == origUID && c.Exten != "" && raw.DestinationExten == "" {
				raw.DestinationExten = c.Exten
			}

		case cel.Answer:
			if ch != nil && ch.answerTime == nil {
				t := c.EventTime
				ch.answerTime = &t
			}

		case cel.BridgeEnter:
			if ch == nil {
				break
			}
			ch.inBridge = true
			if rp := raw.RawParticipants[ch.name]; rp != nil && ch.answerTime != nil {
				answered := true
				rp.Answered = &answered
				if c.UniqueID != origUID && rp.Role == "" {
					rp.Role = RoleDestination
				}
			}
			if c.UniqueID != origUID {
				remoteOrder = append(remoteOrder, c.UniqueID)
			}
			if destUID == "" {
				destUID = i.resolveDestination(raw, channels, origUID, remoteOrder)
			}

		case cel.BridgeExit:
			if ch != nil {
				ch.inBridge = false
			}

		case cel.Hangup:
			// Terminal per channel; CHAN_END carries the useful timestamp.

		case cel.ChanEnd:
			t := c.EventTime
			lastChanEnd = &t

		case cel.LinkedIDEnd:
			t := c.EventTime
			raw.DateEnd = &t

		case cel.MixmonitorStart:
			path := recordingPath(c.AppData)
			t := c.EventTime
			raw.Recordings = append(raw.Recordings, Recording{StartTime: &t, Path: path})
			recordings[path] = len(raw.Recordings) - 1

		case cel.MixmonitorStop:
			path := recordingPath(c.AppData)
			t := c.EventTime
			if idx, ok := recordings[path]; ok && raw.Recordings[idx].EndTime == nil {
				raw.Recordings[idx].EndTime = &t
			} else {
				raw.Recordings = append(raw.Recordings, Recording{EndTime: &t, Path: path})
			}
		}
	}

	if raw.DateEnd == nil {
		raw.DateEnd = lastChanEnd
	}
	return raw
}

// resolveDestination picks the destination channel once the originating
// channel is bridged: the remote with the earliest BRIDGE_ENTER wins.
// Returns the chosen uniqueID, or "" while the pairing is incomplete.
func (i *bridgedCallInterpretor) resolveDestination(raw *RawCallLog, channels map[string]*channelState, origUID string, remoteOrder []string) string {
	orig := channels[origUID]
	if orig == nil || !orig.inBridge || len(remoteOrder) == 0 {
		return ""
	}
	destUID := remoteOrder[0]
	dest := channels[destUID]
	if dest == nil {
		return ""
	}

	raw.DestinationName = dest.cidName
	raw.DestinationExten = dest.cidNum
	raw.DestinationLine = cel.LineIdentity(dest.name)
	if dest.answerTime != nil && raw.DateAnswer == nil {
		raw.DateAnswer = dest.answerTime
	}
	if rp := raw.RawParticipants[dest.name]; rp != nil && rp.Role == "" {
		rp.Role = RoleDestination
	}
	return destUID
}

// fwdUserUUID extracts the forwarding user's uuid from a XIVO_USER_FWD
// CEL. The engine puts it in the userfield; older engines wrapped it in
// the appdata as "NUM:...,CONTEXT:...,NAME:..." without a uuid, in which
// case there is nothing to extract.
func fwdUserUUID(c *cel.CEL) string {
	return strings.TrimSpace(c.UserField)
}

// recordingPath returns the recording file path from MixMonitor appdata,
// which is "path" or "path,options".
func recordingPath(appData string) string {
	if i := strings.Index(appData, ","); i >= 0 {
		return appData[:i]
	}
	return appData
}
