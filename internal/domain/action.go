package domain

// Kind is the stable textual tag of an action variant. It is used for
// logging, metrics labels and the JSON envelope; dispatch switches on the
// Go type.
type Kind string

// Action is one event travelling over the action bus.
type Action interface {
	Kind() Kind
}

// Signal is an action without payload. The signal value is its own tag.
type Signal Kind

func (s Signal) Kind() Kind { return Kind(s) }

const (
	Tick    Signal = "Tick"
	Render  Signal = "Render"
	Suspend Signal = "Suspend"
	Resume  Signal = "Resume"
	Quit    Signal = "Quit"
	Refresh Signal = "Refresh"
	Help    Signal = "Help"
	Blank   Signal = "Blank"

	EnterNormal     Signal = "EnterNormal"
	EnterTakeAction Signal = "EnterTakeAction"
	EnterProcessing Signal = "EnterProcessing"
	ExitProcessing  Signal = "ExitProcessing"

	ClearLists          Signal = "ClearLists"
	ConfirmClearLists   Signal = "ConfirmClearLists"
	ConfirmedClearLists Signal = "ConfirmedClearLists"
	AbortClearLists     Signal = "AbortClearLists"

	SetCapacity Signal = "SetCapacity"

	LogsNext     Signal = "LogsNext"
	LogsPrevious Signal = "LogsPrevious"
	LogsFirst    Signal = "LogsFirst"
	LogsLast     Signal = "LogsLast"

	IPsScheduleNext     Signal = "IPsScheduleNext"
	IPsSchedulePrevious Signal = "IPsSchedulePrevious"
	IPsNext             Signal = "IPsNext"
	IPsPrevious         Signal = "IPsPrevious"
	IPsUnselect         Signal = "IPsUnselect"

	ActionsScheduleNext     Signal = "ActionsScheduleNext"
	ActionsSchedulePrevious Signal = "ActionsSchedulePrevious"
	ActionsNext             Signal = "ActionsNext"
	ActionsPrevious         Signal = "ActionsPrevious"

	EnterQuery   Signal = "EnterQuery"
	ExitQuery    Signal = "ExitQuery"
	InvalidQuery Signal = "InvalidQuery"

	EnterBan             Signal = "EnterBan"
	ExitBan              Signal = "ExitBan"
	EnterUnban           Signal = "EnterUnban"
	ExitUnban            Signal = "ExitUnban"
	RequestBanSelected   Signal = "RequestBanSelected"
	RequestUnbanSelected Signal = "RequestUnbanSelected"

	StartF2BWatcher    Signal = "StartF2BWatcher"
	StopF2BWatcher     Signal = "StopF2BWatcher"
	StoppedF2BWatcher  Signal = "StoppedF2BWatcher"
	StartJCtlWatcher   Signal = "StartJCtlWatcher"
	StopJCtlWatcher    Signal = "StopJCtlWatcher"
	StoppedJCtlWatcher Signal = "StoppedJCtlWatcher"

	StartupConnect   Signal = "StartupConnect"
	StartupConnected Signal = "StartupConnected"
	StartupDone      Signal = "StartupDone"

	StatsShow Signal = "StatsShow"
	StatsHide Signal = "StatsHide"
)

// Signals lists every payload-free variant.
var Signals = []Signal{
	Tick, Render, Suspend, Resume, Quit, Refresh, Help, Blank,
	EnterNormal, EnterTakeAction, EnterProcessing, ExitProcessing,
	ClearLists, ConfirmClearLists, ConfirmedClearLists, AbortClearLists,
	SetCapacity,
	LogsNext, LogsPrevious, LogsFirst, LogsLast,
	IPsScheduleNext, IPsSchedulePrevious, IPsNext, IPsPrevious, IPsUnselect,
	ActionsScheduleNext, ActionsSchedulePrevious, ActionsNext, ActionsPrevious,
	EnterQuery, ExitQuery, InvalidQuery,
	EnterBan, ExitBan, EnterUnban, ExitUnban, RequestBanSelected, RequestUnbanSelected,
	StartF2BWatcher, StopF2BWatcher, StoppedF2BWatcher,
	StartJCtlWatcher, StopJCtlWatcher, StoppedJCtlWatcher,
	StartupConnect, StartupConnected, StartupDone,
	StatsShow, StatsHide,
}

type Resize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (Resize) Kind() Kind { return "Resize" }

// Error reports a failure to the operator.
type Error struct {
	Reason string `json:"reason"`
}

func (Error) Kind() Kind { return "Error" }

// InternalLog is an informational line for the UI's internal log panel.
type InternalLog struct {
	Message string `json:"message"`
}

func (InternalLog) Kind() Kind { return "InternalLog" }

type SubmittedCapacity struct {
	Capacity int `json:"capacity"`
}

func (SubmittedCapacity) Kind() Kind { return "SubmittedCapacity" }

type SubmitQuery struct {
	Query string `json:"query"`
}

func (SubmitQuery) Kind() Kind { return "SubmitQuery" }

type QueryNotFound struct {
	Query string `json:"query"`
}

func (QueryNotFound) Kind() Kind { return "QueryNotFound" }

type SelectTheme struct {
	Name string `json:"name"`
}

func (SelectTheme) Kind() Kind { return "SelectTheme" }

// IONotify carries one raw line from a watcher.
type IONotify struct {
	Line   string `json:"line"`
	Origin Origin `json:"origin"`
}

func (IONotify) Kind() Kind { return "IONotify" }

// GotGeo carries a resolved record back to the dispatch loop for persistence.
// FromStore is true when the record was reused from storage.
type GotGeo struct {
	IP        IP     `json:"ip"`
	Line      string `json:"line"`
	Origin    Origin `json:"origin"`
	FromStore bool   `json:"from_store"`
}

func (GotGeo) Kind() Kind { return "GotGeo" }

// PassGeo announces a persisted record to the view.
type PassGeo struct {
	IP        IP     `json:"ip"`
	Line      string `json:"line"`
	Origin    Origin `json:"origin"`
	FromStore bool   `json:"from_store"`
}

func (PassGeo) Kind() Kind { return "PassGeo" }

type RequestBan struct {
	IP        string `json:"ip"`
	RequestID string `json:"request_id,omitempty"`
}

func (RequestBan) Kind() Kind { return "RequestBan" }

type RequestUnban struct {
	IP        string `json:"ip"`
	RequestID string `json:"request_id,omitempty"`
}

func (RequestUnban) Kind() Kind { return "RequestUnban" }

// BanIP requests a ban for a full stored record, typically the selected list entry.
type BanIP struct {
	IP IP `json:"ip"`
}

func (BanIP) Kind() Kind { return "BanIP" }

type UnbanIP struct {
	IP IP `json:"ip"`
}

func (UnbanIP) Kind() Kind { return "UnbanIP" }

// Banned is the outcome of a ban request.
type Banned struct {
	IP        string `json:"ip"`
	RequestID string `json:"request_id,omitempty"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
}

func (Banned) Kind() Kind { return "Banned" }

type Unbanned struct {
	IP        string `json:"ip"`
	RequestID string `json:"request_id,omitempty"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
}

func (Unbanned) Kind() Kind { return "Unbanned" }

// StatsGet asks for the aggregated view of one dimension.
type StatsGet struct {
	Dimension Dimension `json:"dimension"`
}

func (a StatsGet) Kind() Kind { return statsKind("StatsGet", a.Dimension, true) }

type StatsGot struct {
	Dimension Dimension        `json:"dimension"`
	Entries   []DimensionStats `json:"entries"`
}

func (a StatsGot) Kind() Kind { return statsKind("StatsGot", a.Dimension, false) }

// StatsBlock bans every address associated with a dimension row.
type StatsBlock struct {
	Key DimensionKey `json:"key"`
}

func (a StatsBlock) Kind() Kind { return statsKind("StatsBlock", a.Key.Dimension, false) }

type StatsUnblock struct {
	Key DimensionKey `json:"key"`
}

func (a StatsUnblock) Kind() Kind { return statsKind("StatsUnblock", a.Key.Dimension, false) }

type StatsGetIP struct {
	IP string `json:"ip"`
}

func (StatsGetIP) Kind() Kind { return "StatsGetIP" }

type StatsGotIP struct {
	IP IP `json:"ip"`
}

func (StatsGotIP) Kind() Kind { return "StatsGotIP" }

var dimensionTags = map[Dimension][2]string{
	DimensionCountry: {"Country", "Countries"},
	DimensionRegion:  {"Region", "Regions"},
	DimensionCity:    {"City", "Cities"},
	DimensionISP:     {"ISP", "ISPs"},
}

func statsKind(prefix string, d Dimension, plural bool) Kind {
	tags, ok := dimensionTags[d]
	if !ok {
		return Kind(prefix)
	}
	if plural {
		return Kind(prefix + tags[1])
	}
	return Kind(prefix + tags[0])
}
