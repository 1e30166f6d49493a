package classifier

import "strings"

// EventKind is the closed set of semantic sequence events. Wire payloads
// use underscores ("extend_complete"); canonical names use hyphens.
type EventKind string

const (
	EventCycleStart         EventKind = "cycle-start"
	EventExtendStart        EventKind = "extend-start"
	EventExtendComplete     EventKind = "extend-complete"
	EventRetractStart       EventKind = "retract-start"
	EventRetractComplete    EventKind = "retract-complete"
	EventCycleComplete      EventKind = "cycle-complete"
	EventSequenceStart      EventKind = "sequence-start"
	EventSequenceEnd        EventKind = "sequence-end"
	EventAbort              EventKind = "abort"
	EventTimeout            EventKind = "timeout"
	EventSafetyStop         EventKind = "safety-stop"
	EventEmergencyStop      EventKind = "emergency-stop"
	EventSafetyClear        EventKind = "safety-clear"
	EventExtendValveOn      EventKind = "extend-valve-on"
	EventRetractValveOn     EventKind = "retract-valve-on"
	EventExtendLimitReached EventKind = "extend-limit-reached"
	EventRetractLimitReach  EventKind = "retract-limit-reached"
)

var eventKinds = map[EventKind]struct{}{
	EventCycleStart:         {},
	EventExtendStart:        {},
	EventExtendComplete:     {},
	EventRetractStart:       {},
	EventRetractComplete:    {},
	EventCycleComplete:      {},
	EventSequenceStart:      {},
	EventSequenceEnd:        {},
	EventAbort:              {},
	EventTimeout:            {},
	EventSafetyStop:         {},
	EventEmergencyStop:      {},
	EventSafetyClear:        {},
	EventExtendValveOn:      {},
	EventRetractValveOn:     {},
	EventExtendLimitReached: {},
	EventRetractLimitReach:  {},
}

// ParseEventKind maps a wire event name to its canonical kind.
// Names are lowercased and underscores become hyphens, so both
// "extend_complete" and "extend-complete" resolve. The legacy firmware
// name "start" maps to cycle-start. Returns false for unknown names.
func ParseEventKind(name string) (EventKind, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	if normalized == "start" {
		return EventCycleStart, true
	}
	kind := EventKind(normalized)
	if _, ok := eventKinds[kind]; !ok {
		return "", false
	}
	return kind, true
}

// Stage is a controller sequence stage reported on the status topic
type Stage string

const (
	StageIdle           Stage = "idle"
	StageExtending      Stage = "extending"
	StageRetracting     Stage = "retracting"
	StagePressureRelief Stage = "pressure-relief"
)

// Stages lists all stages, for metrics labeling
func Stages() []string {
	return []string{
		string(StageIdle),
		string(StageExtending),
		string(StageRetracting),
		string(StagePressureRelief),
	}
}

// ParseStage maps a wire status value ("IDLE", "PRESSURE_RELIEF") to a
// Stage. Returns false for unknown values.
func ParseStage(status string) (Stage, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(status)), "_", "-")
	switch s := Stage(normalized); s {
	case StageIdle, StageExtending, StageRetracting, StagePressureRelief:
		return s, true
	default:
		return "", false
	}
}

// ParseBool reports whether a signal payload is asserted.
// The accepted true set is exactly {"1", "true", "True"}; everything
// else, including "TRUE" and "on", is false. The firmware only ever
// publishes the three accepted literals.
func ParseBool(payload string) bool {
	switch payload {
	case "1", "true", "True":
		return true
	default:
		return false
	}
}
