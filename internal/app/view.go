package app

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

const (
	DefaultLogCapacity = 500
	MaxLogCapacity     = 10000

	internalLogCapacity = 200
)

// ViewConfig seeds the view state.
type ViewConfig struct {
	Capacity int
	Theme    string
}

// View owns the UI state. It runs on the dispatch loop and publishes an
// immutable snapshot to its observers on every Render.
type View struct {
	store     ports.Store
	sender    ports.Sender
	observers []ports.ViewObserver
	pending   func() map[string]string
	watchers  func() domain.WatcherStatus
	now       func() time.Time

	mode, back    domain.Mode
	width, height int
	theme         string
	suspended     bool
	blank         bool
	startedUp     bool
	processing    int
	capacity      int

	logs      []domain.LogLine // newest first
	logCursor int
	ips       []domain.IP // newest first
	ipCursor  int

	actionCursor int
	internal     []string

	query       string
	queryResult *domain.IP

	statsDim domain.Dimension
	stats    []domain.DimensionStats

	clearPending bool
}

func NewView(store ports.Store, sender ports.Sender, config ViewConfig) *View {
	if config.Capacity <= 0 || config.Capacity > MaxLogCapacity {
		config.Capacity = DefaultLogCapacity
	}
	return &View{
		store:     store,
		sender:    sender,
		now:       time.Now,
		mode:      domain.ModeNormal,
		back:      domain.ModeNormal,
		theme:     config.Theme,
		capacity:  config.Capacity,
		logCursor: -1,
		ipCursor:  -1,
		statsDim:  domain.DimensionCountry,
	}
}

func (v *View) AddObserver(o ports.ViewObserver) {
	v.observers = append(v.observers, o)
}

// SetPendingSource reports in-flight ban requests in snapshots.
func (v *View) SetPendingSource(f func() map[string]string) {
	v.pending = f
}

// SetWatcherSource reports watcher liveness in snapshots.
func (v *View) SetWatcherSource(f func() domain.WatcherStatus) {
	v.watchers = f
}

func (v *View) Update(ctx context.Context, a domain.Action) (domain.Action, error) {
	switch a := a.(type) {
	case domain.Signal:
		return v.signal(ctx, a)

	case domain.Resize:
		v.width, v.height = a.Width, a.Height
	case domain.SelectTheme:
		v.theme = a.Name
	case domain.Error:
		v.logInternal("error: " + a.Reason)
	case domain.InternalLog:
		v.logInternal(a.Message)

	case domain.SubmittedCapacity:
		if a.Capacity < 1 || a.Capacity > MaxLogCapacity {
			return domain.Error{Reason: fmt.Sprintf("capacity must be between 1 and %d, got %d", MaxLogCapacity, a.Capacity)}, nil
		}
		v.capacity = a.Capacity
		v.trim()
		if v.mode == domain.ModeCapacity {
			v.mode = domain.ModeNormal
		}

	case domain.SubmitQuery:
		v.query = strings.TrimSpace(a.Query)
		addr, err := netip.ParseAddr(v.query)
		if err != nil || !addr.Is4() {
			return domain.InvalidQuery, nil
		}
		return domain.StatsGetIP{IP: addr.String()}, nil
	case domain.StatsGotIP:
		ip := a.IP
		v.queryResult = &ip
	case domain.QueryNotFound:
		v.queryResult = nil
		v.logInternal("no record for " + a.Query)

	case domain.StatsGet:
		v.statsDim = a.Dimension
	case domain.StatsGot:
		v.statsDim = a.Dimension
		v.stats = a.Entries

	case domain.PassGeo:
		v.pass(a)
	case domain.Banned:
		if a.OK {
			v.applyBan(a.IP, (*domain.IP).MarkBanned)
			v.logInternal("banned " + a.IP)
		}
	case domain.Unbanned:
		if a.OK {
			v.applyBan(a.IP, (*domain.IP).MarkUnbanned)
			v.logInternal("unbanned " + a.IP)
		}
	}
	return nil, nil
}

func (v *View) signal(ctx context.Context, s domain.Signal) (domain.Action, error) {
	switch s {
	case domain.Render:
		if !v.suspended {
			v.publish()
		}
	case domain.Suspend:
		v.suspended = true
	case domain.Resume:
		v.suspended = false
	case domain.Refresh:
		return nil, v.reload(ctx)
	case domain.Blank:
		v.blank = !v.blank
	case domain.Help:
		if v.mode == domain.ModeHelp {
			v.mode = v.back
		} else {
			v.enter(domain.ModeHelp)
		}

	case domain.EnterNormal:
		v.mode = domain.ModeNormal
		v.clearPending = false
	case domain.EnterTakeAction:
		v.enter(domain.ModeTakeAction)
		v.actionCursor = 0

	case domain.EnterProcessing:
		v.processing++
	case domain.ExitProcessing:
		if v.processing > 0 {
			v.processing--
		}

	case domain.ClearLists:
		v.enter(domain.ModeConfirmClear)
		v.clearPending = true
		return domain.ConfirmClearLists, nil
	case domain.ConfirmedClearLists:
		if !v.clearPending {
			return nil, nil
		}
		v.clearPending = false
		v.mode = domain.ModeNormal
		if err := v.store.ClearAll(ctx); err != nil {
			return nil, err
		}
		v.reset()
		log.Info().Msg("All lists cleared")
		return domain.InternalLog{Message: "all lists cleared"}, nil
	case domain.AbortClearLists:
		v.clearPending = false
		v.mode = domain.ModeNormal

	case domain.SetCapacity:
		v.enter(domain.ModeCapacity)

	case domain.LogsNext:
		v.logCursor = step(v.logCursor, len(v.logs), 1)
	case domain.LogsPrevious:
		v.logCursor = step(v.logCursor, len(v.logs), -1)
	case domain.LogsFirst:
		v.logCursor = min(0, len(v.logs)-1)
	case domain.LogsLast:
		v.logCursor = len(v.logs) - 1

	case domain.IPsScheduleNext:
		return nil, Schedule(ctx, v.sender, domain.IPsNext, IPNavigationDelay)
	case domain.IPsSchedulePrevious:
		return nil, Schedule(ctx, v.sender, domain.IPsPrevious, IPNavigationDelay)
	case domain.IPsNext:
		v.ipCursor = step(v.ipCursor, len(v.ips), 1)
	case domain.IPsPrevious:
		v.ipCursor = step(v.ipCursor, len(v.ips), -1)
	case domain.IPsUnselect:
		v.ipCursor = -1

	case domain.ActionsScheduleNext:
		return nil, Schedule(ctx, v.sender, domain.ActionsNext, ActionNavigationDelay)
	case domain.ActionsSchedulePrevious:
		return nil, Schedule(ctx, v.sender, domain.ActionsPrevious, ActionNavigationDelay)
	case domain.ActionsNext:
		v.actionCursor = (v.actionCursor + 1) % len(domain.Operations)
	case domain.ActionsPrevious:
		v.actionCursor = (v.actionCursor - 1 + len(domain.Operations)) % len(domain.Operations)

	case domain.EnterQuery:
		v.enter(domain.ModeQuery)
		v.query = ""
		v.queryResult = nil
	case domain.ExitQuery:
		v.mode = domain.ModeNormal
	case domain.InvalidQuery:
		v.queryResult = nil
		v.logInternal("invalid query: " + v.query)

	case domain.EnterBan:
		v.enter(domain.ModeBan)
	case domain.EnterUnban:
		v.enter(domain.ModeUnban)
	case domain.ExitBan, domain.ExitUnban:
		v.mode = domain.ModeNormal
	case domain.RequestBanSelected, domain.RequestUnbanSelected:
		ip, ok := v.selected()
		if !ok {
			return domain.Error{Reason: "no IP selected"}, nil
		}
		v.mode = domain.ModeNormal
		if s == domain.RequestBanSelected {
			return domain.BanIP{IP: ip}, nil
		}
		return domain.UnbanIP{IP: ip}, nil

	case domain.StatsShow:
		v.enter(domain.ModeStats)
		return domain.StatsGet{Dimension: v.statsDim}, nil
	case domain.StatsHide:
		v.mode = domain.ModeNormal
		v.stats = nil

	case domain.StartupConnected:
		return nil, v.reload(ctx)
	case domain.StartupDone:
		v.startedUp = true
	case domain.StoppedF2BWatcher:
		v.logInternal("fail2ban watcher stopped")
	case domain.StoppedJCtlWatcher:
		v.logInternal("journal watcher stopped")
	}
	return nil, nil
}

func (v *View) enter(m domain.Mode) {
	if v.mode != m {
		v.back = v.mode
	}
	v.mode = m
}

// step moves a cursor within [0, n). An unset cursor lands on the first
// entry.
func step(cursor, n, delta int) int {
	if n == 0 {
		return -1
	}
	if cursor < 0 {
		return 0
	}
	return max(0, min(n-1, cursor+delta))
}

func (v *View) selected() (domain.IP, bool) {
	if v.ipCursor < 0 || v.ipCursor >= len(v.ips) {
		return domain.IP{}, false
	}
	return v.ips[v.ipCursor], true
}

func (v *View) pass(a domain.PassGeo) {
	flags := domain.Classify(a.Line, a.Origin)
	line := domain.LogLine{
		At:        v.now(),
		Text:      a.Line,
		IP:        a.IP.Address,
		Origin:    a.Origin,
		IsBan:     flags.IsBan,
		FromStore: a.FromStore,
		Country:   a.IP.Country,
	}
	v.logs = append([]domain.LogLine{line}, v.logs...)
	if v.logCursor >= 0 {
		v.logCursor++
	}

	for i := range v.ips {
		if v.ips[i].Address == a.IP.Address {
			v.ips[i] = a.IP
			v.trim()
			return
		}
	}
	v.ips = append([]domain.IP{a.IP}, v.ips...)
	if v.ipCursor >= 0 {
		v.ipCursor++
	}
	v.trim()
}

func (v *View) applyBan(address string, mark func(*domain.IP) bool) {
	for i := range v.ips {
		if v.ips[i].Address == address {
			mark(&v.ips[i])
		}
	}
	if v.queryResult != nil && v.queryResult.Address == address {
		mark(v.queryResult)
	}
}

func (v *View) trim() {
	if len(v.logs) > v.capacity {
		v.logs = v.logs[:v.capacity]
	}
	if len(v.ips) > v.capacity {
		v.ips = v.ips[:v.capacity]
	}
	if v.logCursor >= len(v.logs) {
		v.logCursor = len(v.logs) - 1
	}
	if v.ipCursor >= len(v.ips) {
		v.ipCursor = len(v.ips) - 1
	}
}

func (v *View) reload(ctx context.Context) error {
	ips, err := v.store.ListIPs(ctx, v.capacity)
	if err != nil {
		return err
	}
	v.ips = ips
	v.trim()
	log.Debug().Int("ips", len(ips)).Msg("IP list loaded")
	return nil
}

func (v *View) reset() {
	v.logs = nil
	v.ips = nil
	v.stats = nil
	v.queryResult = nil
	v.logCursor = -1
	v.ipCursor = -1
}

func (v *View) logInternal(msg string) {
	entry := v.now().Format("15:04:05") + " " + msg
	v.internal = append(v.internal, entry)
	if over := len(v.internal) - internalLogCapacity; over > 0 {
		v.internal = append([]string(nil), v.internal[over:]...)
	}
}

// Snapshot copies the current state.
func (v *View) Snapshot() domain.ViewSnapshot {
	s := domain.ViewSnapshot{
		Mode:           v.mode,
		Width:          v.width,
		Height:         v.height,
		Theme:          v.theme,
		Suspended:      v.suspended,
		Blank:          v.blank,
		StartedUp:      v.startedUp,
		Processing:     v.processing,
		Capacity:       v.capacity,
		Logs:           append([]domain.LogLine(nil), v.logs...),
		LogCursor:      v.logCursor,
		IPs:            append([]domain.IP(nil), v.ips...),
		IPCursor:       v.ipCursor,
		Actions:        append([]string(nil), domain.Operations...),
		ActionCursor:   v.actionCursor,
		InternalLog:    append([]string(nil), v.internal...),
		Query:          v.query,
		StatsDimension: v.statsDim,
		Stats:          append([]domain.DimensionStats(nil), v.stats...),
	}
	if v.queryResult != nil {
		ip := *v.queryResult
		s.QueryResult = &ip
	}
	if v.pending != nil {
		s.Pending = v.pending()
	}
	if v.watchers != nil {
		s.Watchers = v.watchers()
	}
	return s
}

func (v *View) publish() {
	if len(v.observers) == 0 {
		return
	}
	s := v.Snapshot()
	for _, o := range v.observers {
		o.OnView(s)
	}
}
