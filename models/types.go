// Package models holds the data types shared across the recording,
// indexing, and search engine: clip and object index rows, assembled
// matching clips, and response-pipeline job records.
package models

// CacheStatus describes whether a clip file is subject to eviction.
type CacheStatus int

const (
	NonCache  CacheStatus = 0
	Cache     CacheStatus = 1
	Unmanaged CacheStatus = -1
)

// Range is an inclusive (StartMs, EndMs) interval.
type Range struct {
	StartMs int64 `json:"startMs"`
	EndMs   int64 `json:"endMs"`
}

// SaveRange is a user-tagged save interval clipped to its owning file.
type SaveRange struct {
	StartMs int64 `json:"startMs"`
	EndMs   int64 `json:"endMs"`
}

// Clip is one row of the clip index: an authoritative record of one
// recorded video file and its position in a camera's continuity chain.
type Clip struct {
	Filename       string      `json:"filename"`
	CameraLocation string      `json:"cameraLocation"`
	FirstMs        int64       `json:"firstMs"`
	LastMs         int64       `json:"lastMs"`
	PrevFile       string      `json:"prevFile,omitempty"`
	NextFile       string      `json:"nextFile,omitempty"`
	CacheStatus    CacheStatus `json:"cacheStatus"`
	ProcWidth      int         `json:"procWidth"`
	ProcHeight     int         `json:"procHeight"`
	SaveTimes      []SaveRange `json:"saveTimes,omitempty"`
}

// ProcSize records the resolution active for a camera from FirstMs
// onward, until the next entry's FirstMs (or "now" for the last).
type ProcSize struct {
	CameraLocation string `json:"cameraLocation"`
	FirstMs        int64  `json:"firstMs"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

// ProcSizeSpan is a resolved (width, height) interval produced by
// GetUniqueProcSizesBetweenTimes.
type ProcSizeSpan struct {
	Width   int
	Height  int
	FirstMs int64
	LastMs  int64
}

// ClipMergeThreshold is one entry of the merge-threshold history:
// PaddingSeconds applies to any search whose events fall between this
// entry's UpdateTime and the next entry's UpdateTime.
type ClipMergeThreshold struct {
	UpdateTime    int64 `json:"updateTime"`
	PaddingSeconds int  `json:"paddingSeconds"`
}

// ObjectType is the normalized tracked-entity classification.
type ObjectType string

const (
	ObjectTypePerson  ObjectType = "person"
	ObjectTypeAnimal  ObjectType = "animal"
	ObjectTypeVehicle ObjectType = "vehicle"
	ObjectTypeObject  ObjectType = "object"
)

// NormalizeObjectType maps the legacy "unknown"/"nonperson" labels
// onto "object".
func NormalizeObjectType(t string) ObjectType {
	switch t {
	case "unknown", "nonperson":
		return ObjectTypeObject
	case "":
		return ObjectTypeObject
	default:
		return ObjectType(t)
	}
}

// Object is one row of the object index: a tracked entity with a
// running bounding-box extrema envelope.
type Object struct {
	UID            int64      `json:"uid"`
	CameraLocation string     `json:"cameraLocation"`
	TimeStart      int64      `json:"timeStart"`
	TimeStop       int64      `json:"timeStop"`
	Type           ObjectType `json:"type"`
	MinWidth       int        `json:"minWidth"`
	MaxWidth       int        `json:"maxWidth"`
	MinHeight      int        `json:"minHeight"`
	MaxHeight      int        `json:"maxHeight"`
}

// Motion is one per-frame bounding-box observation for a tracked
// object, in the normalized 320x240 reference frame.
type Motion struct {
	ObjUID int64 `json:"objUid"`
	Frame  int64 `json:"frame"`
	TimeMs int64 `json:"time"`
	X1     int   `json:"x1"`
	Y1     int   `json:"y1"`
	X2     int   `json:"x2"`
	Y2     int   `json:"y2"`
}

// Action is a labeled activity interval for a tracked object.
// Adjacent same-action rows are extended rather than duplicated.
type Action struct {
	ObjUID     int64  `json:"objUid"`
	Type       string `json:"type"`
	Action     string `json:"action"`
	FrameStart int64  `json:"frameStart"`
	TimeStart  int64  `json:"timeStart"`
	FrameStop  int64  `json:"frameStop"`
	TimeStop   int64  `json:"timeStop"`
}

// SavedState is the tri-state "has this interval been tagged for
// saving" result: yes, no, or pending until a given retry time.
type SavedState struct {
	kind       savedKind
	retryAtMs  int64
}

type savedKind int

const (
	savedNo savedKind = iota
	savedYes
	savedPending
)

func SavedNo() SavedState      { return SavedState{kind: savedNo} }
func SavedYes() SavedState     { return SavedState{kind: savedYes} }
func SavedPending(retryAtMs int64) SavedState {
	return SavedState{kind: savedPending, retryAtMs: retryAtMs}
}

func (s SavedState) IsYes() bool     { return s.kind == savedYes }
func (s SavedState) IsNo() bool      { return s.kind == savedNo }
func (s SavedState) IsPending() bool { return s.kind == savedPending }
func (s SavedState) RetryAtMs() int64 {
	return s.retryAtMs
}

// Or implements the "a.isSaved || b.isSaved" merge rule from stage 2
// assembly: Yes beats Pending beats No.
func (s SavedState) Or(other SavedState) SavedState {
	rank := func(st SavedState) int {
		switch st.kind {
		case savedYes:
			return 2
		case savedPending:
			return 1
		default:
			return 0
		}
	}
	if rank(other) > rank(s) {
		return other
	}
	return s
}

// MatchingClip is the transient product of search assembly.
type MatchingClip struct {
	CameraLocation string  `json:"cameraLocation"`
	StartTime      int64   `json:"startTime"`
	StopTime       int64   `json:"stopTime"`
	PlayStart      int64   `json:"playStart"`
	PreviewMs      int64   `json:"previewMs"`
	ObjList        []int64 `json:"objList"`
	StartList      []int64 `json:"startList"`
	IsSaved        SavedState `json:"-"`

	// Filled in only for imported cameras where identity is by file.
	Filename    string `json:"filename,omitempty"`
	FileStartMs int64  `json:"fileStartMs,omitempty"`

	// Internal-only bookkeeping used during assembly and streaming
	// retirement; not part of the public result shape.
	RealStartTime     int64   `json:"-"`
	RealStopTime      int64   `json:"-"`
	StartFrame        int64   `json:"-"`
	StopFrame         int64   `json:"-"`
	SourceItemIndices []int   `json:"-"`
}

// Protocol enumerates the response-pipeline channels.
type Protocol string

const (
	ProtocolEmail       Protocol = "email"
	ProtocolPush        Protocol = "push"
	ProtocolIFTTT       Protocol = "ifttt"
	ProtocolWebhook     Protocol = "webhook"
	ProtocolFTP         Protocol = "ftp"
	ProtocolLocalExport Protocol = "localExport"
	ProtocolRecordTag   Protocol = "recordTag"
)

// PendingClip is a Response DB FIFO entry: a clip send job awaiting
// delivery over one protocol.
type PendingClip struct {
	UID            string   `json:"uid"`
	Protocol       Protocol `json:"protocol"`
	CameraLocation string   `json:"cameraLocation"`
	RuleName       string   `json:"ruleName"`
	StartTime      int64    `json:"startTime"`
	StopTime       int64    `json:"stopTime"`
	PlayStart      int64    `json:"playStart"`
	PreviewMs      int64    `json:"previewMs"`
	ObjList        []int64  `json:"objList"`
	StartList      []int64  `json:"startList"`

	Attempt   int   `json:"attempt"`
	CreatedAt int64 `json:"createdAt"`
}

// StoredPushNotification is a retained push payload, fetchable by UID
// when the inline gateway payload exceeded the transport size limit.
type StoredPushNotification struct {
	UID         string `json:"uid"`
	Content     string `json:"content"`
	JSONPayload string `json:"jsonPayload"`
	CreatedAt   int64  `json:"createdAt"`
}
