package lifecycle

// eventKind enumerates the event alphabet of §4.1 (Event table).
type eventKind int

const (
	evStart eventKind = iota
	evStop
	evFailure
	evIfaceStatusChanged
	evIfaceDestroyed
	evIfaceDown
	evClientAssocChanged
	evApInfoChanged
	evNoClientsTimeout
	evNoClientsTimeoutOneInstance
	evUpdateCapability
	evUpdateConfig
	evForceDisconnectPending
	evDumpRequest
)

func (k eventKind) String() string {
	switch k {
	case evStart:
		return "Start"
	case evStop:
		return "Stop"
	case evFailure:
		return "Failure"
	case evIfaceStatusChanged:
		return "IfaceStatusChanged"
	case evIfaceDestroyed:
		return "IfaceDestroyed"
	case evIfaceDown:
		return "IfaceDown"
	case evClientAssocChanged:
		return "ClientAssocChanged"
	case evApInfoChanged:
		return "ApInfoChanged"
	case evNoClientsTimeout:
		return "NoClientsTimeout"
	case evNoClientsTimeoutOneInstance:
		return "NoClientsTimeoutOneInstance"
	case evUpdateCapability:
		return "UpdateCapability"
	case evUpdateConfig:
		return "UpdateConfig"
	case evForceDisconnectPending:
		return "ForceDisconnectPending"
	case evDumpRequest:
		return "DumpRequest"
	default:
		return "Unknown"
	}
}

// event is the single mailbox payload type; only the fields relevant to
// kind are populated (mirrors a tagged union / enum-with-payload).
type event struct {
	kind eventKind

	requestor string // Start

	up bool // IfaceStatusChanged

	client    Client // ClientAssocChanged
	connected bool   // ClientAssocChanged

	info RadioInstanceInfo // ApInfoChanged

	capability Capability      // UpdateCapability
	config     ApConfiguration // UpdateConfig

	dumpReply chan<- string // DumpRequest
}
