package domain

import "time"

// Mode is the interaction mode of the dashboard.
type Mode string

const (
	ModeNormal       Mode = "normal"
	ModeTakeAction   Mode = "take_action"
	ModeQuery        Mode = "query"
	ModeBan          Mode = "ban"
	ModeUnban        Mode = "unban"
	ModeStats        Mode = "stats"
	ModeHelp         Mode = "help"
	ModeConfirmClear Mode = "confirm_clear"
	ModeCapacity     Mode = "capacity"
)

// Operator actions offered in the take-action list, in display order.
const (
	OpBan    = "Ban selected IP"
	OpUnban  = "Unban selected IP"
	OpQuery  = "Query IP"
	OpStats  = "Show stats"
	OpClear  = "Clear lists"
	OpResize = "Set log capacity"
)

var Operations = []string{OpBan, OpUnban, OpQuery, OpStats, OpClear, OpResize}

// LogLine is one entry of the live log list.
type LogLine struct {
	At        time.Time `json:"at"`
	Text      string    `json:"text"`
	IP        string    `json:"ip"`
	Origin    Origin    `json:"origin"`
	IsBan     bool      `json:"is_ban"`
	FromStore bool      `json:"from_store"`
	Country   string    `json:"country,omitempty"`
}

// WatcherStatus reports which log watchers are running.
type WatcherStatus struct {
	Fail2ban bool `json:"fail2ban"`
	Journal  bool `json:"journal"`
}

// ViewSnapshot is an immutable copy of the UI state published on Render.
// Cursors are -1 when nothing is selected.
type ViewSnapshot struct {
	Mode       Mode      `json:"mode"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Theme      string    `json:"theme"`
	Suspended  bool      `json:"suspended"`
	Blank      bool      `json:"blank"`
	StartedUp  bool      `json:"started_up"`
	Processing int       `json:"processing"`
	Capacity   int       `json:"capacity"`
	Logs       []LogLine `json:"logs"`
	LogCursor  int       `json:"log_cursor"`
	IPs        []IP      `json:"ips"`
	IPCursor   int       `json:"ip_cursor"`

	Actions      []string `json:"actions"`
	ActionCursor int      `json:"action_cursor"`

	InternalLog []string `json:"internal_log"`

	Query       string `json:"query,omitempty"`
	QueryResult *IP    `json:"query_result,omitempty"`

	StatsDimension Dimension        `json:"stats_dimension,omitempty"`
	Stats          []DimensionStats `json:"stats,omitempty"`

	// Pending maps an address to its in-flight ban or unban request.
	Pending  map[string]string `json:"pending,omitempty"`
	Watchers WatcherStatus     `json:"watchers"`
}

// SelectedIP returns the IP under the cursor.
func (s ViewSnapshot) SelectedIP() (IP, bool) {
	if s.IPCursor < 0 || s.IPCursor >= len(s.IPs) {
		return IP{}, false
	}
	return s.IPs[s.IPCursor], true
}

// SelectedAction returns the take-action entry under the cursor.
func (s ViewSnapshot) SelectedAction() (string, bool) {
	if s.ActionCursor < 0 || s.ActionCursor >= len(s.Actions) {
		return "", false
	}
	return s.Actions[s.ActionCursor], true
}
