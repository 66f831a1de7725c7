package generator

import (
	"time"

	"github.com/snarg/cel-logd/internal/cel"
)

// localOriginateInterpretor handles calls originated through a Local
// channel pair, the shape produced when the engine itself places the
// call (click-to-call, callbacks). The trace starts with the two Local
// halves, the real source channel is the first non-Local CHAN_START.
type localOriginateInterpretor struct{}

func (i *localOriginateInterpretor) Name() string { return "local_originate" }

func (i *localOriginateInterpretor) CanInterpret(cels []cel.CEL) bool {
	for _, c := range cels {
		if c.EventType == cel.ChanStart {
			return cel.IsLocal(c.ChannelName)
		}
	}
	return false
}

func (i *localOriginateInterpretor) Interpret(cels []cel.CEL, raw *RawCallLog) *RawCallLog {
	var (
		sourceUID   string
		destUID     string
		answerTimes = make(map[string]*time.Time)
		bridged     = make(map[string]bool)
		lastChanEnd *time.Time
		recordings  = make(map[string]int)
	)

	for idx := range cels {
		c := &cels[idx]
		if raw.Date.IsZero() {
			raw.Date = c.EventTime
		}

		switch c.EventType {
		case cel.ChanStart:
			switch {
			case cel.IsLocal(c.ChannelName):
				// The first Local half carries the requested extension.
				if raw.RequestedExten == "" {
					raw.RequestedExten = c.Exten
					raw.RequestedContext = c.Context
				}
			case sourceUID == "":
				sourceUID = c.UniqueID
				raw.SourceName = c.CIDName
				raw.SourceExten = c.CIDNum
				raw.SourceLine = cel.LineIdentity(c.ChannelName)
				raw.RawParticipants[c.ChannelName] = &RawParticipant{Role: RoleSource}
			default:
				if raw.DestinationName == "" && raw.DestinationExten == "" {
					raw.DestinationName = c.CIDName
					raw.DestinationExten = c.CIDNum
				}
				raw.DestinationLine = cel.LineIdentity(c.ChannelName)
				raw.RawParticipants[c.ChannelName] = &RawParticipant{}
				if destUID == "" {
					destUID = c.UniqueID
				}
			}

		case cel.XivoOutcall:
			raw.Direction = DirectionOutbound

		case cel.XivoUserFwd:
			if uuid := fwdUserUUID(c); uuid != "" {
				raw.ParticipantsInfo = append(raw.ParticipantsInfo, ParticipantInfoEntry{
					UserUUID: uuid,
					Role:     RoleDestination,
				})
			}

		case cel.Answer:
			if answerTimes[c.UniqueID] == nil {
				t := c.EventTime
				answerTimes[c.UniqueID] = &t
			}

		case cel.BridgeEnter:
			bridged[c.UniqueID] = true
			if cel.IsLocal(c.ChannelName) {
				break
			}
			if rp := raw.RawParticipants[c.ChannelName]; rp != nil && answerTimes[c.UniqueID] != nil {
				answered := true
				rp.Answered = &answered
				if c.UniqueID != sourceUID && rp.Role == "" {
					rp.Role = RoleDestination
				}
			}
			if raw.DateAnswer == nil && destUID != "" && bridged[sourceUID] && bridged[destUID] {
				raw.DateAnswer = answerTimes[destUID]
			}

		case cel.BridgeExit:
			bridged[c.UniqueID] = false

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
			if ri, ok := recordings[path]; ok && raw.Recordings[ri].EndTime == nil {
				raw.Recordings[ri].EndTime = &t
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
