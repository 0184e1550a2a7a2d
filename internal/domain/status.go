package domain

// DocType is the source kind of a Documentation.
type DocType string

const (
	DocTypeFiles DocType = "files"
	DocTypeWeb   DocType = "web"
)

// Valid reports whether t is a known source kind.
func (t DocType) Valid() bool { return t == DocTypeFiles || t == DocTypeWeb }

// UnitKind returns the kind of unit that documentation of this type holds.
func (t DocType) UnitKind() UnitKind {
	if t == DocTypeWeb {
		return UnitPage
	}
	return UnitFile
}

// UnitKind distinguishes the two unit collections.
type UnitKind string

const (
	UnitFile UnitKind = "file"
	UnitPage UnitKind = "page"
)

// UnitStatus is the ingestion state of a FileDocument or PageDocument.
//
//	starting -> completed | failed | no-data
//
// starting is also the retry entry state.
type UnitStatus string

const (
	UnitStarting  UnitStatus = "starting"
	UnitCompleted UnitStatus = "completed"
	UnitFailed    UnitStatus = "failed"
	UnitNoData    UnitStatus = "no-data"
)

// Valid reports whether s is one of the four unit states.
func (s UnitStatus) Valid() bool {
	switch s {
	case UnitStarting, UnitCompleted, UnitFailed, UnitNoData:
		return true
	}
	return false
}

// Terminal reports whether no further pipeline work is pending for s.
func (s UnitStatus) Terminal() bool { return s != UnitStarting && s.Valid() }

// DocumentationStatus is the aggregate status of a Documentation.
type DocumentationStatus string

const (
	DocumentationReady   DocumentationStatus = "ready"
	DocumentationScanAll DocumentationStatus = "scan-all"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StreamStatus is the state of an assistant turn.
//
//	pending -> streaming -> complete | error
type StreamStatus string

const (
	StreamPending   StreamStatus = "pending"
	StreamStreaming StreamStatus = "streaming"
	StreamComplete  StreamStatus = "complete"
	StreamError     StreamStatus = "error"
)

// Done reports whether the stream reached a terminal state.
func (s StreamStatus) Done() bool { return s == StreamComplete || s == StreamError }
