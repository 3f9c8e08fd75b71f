package tui

import (
	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

// binding documents one key for the help screen.
type binding struct {
	keys string
	desc string
}

var helpBindings = []struct {
	mode     string
	bindings []binding
}{
	{"normal", []binding{
		{"j/k ↑/↓", "select IP"},
		{"J/K pgup/pgdn", "scroll log"},
		{"g/G", "first / last log line"},
		{"enter", "take action on selection"},
		{"i", "inspect selected IP"},
		{"b / u", "ban / unban mode"},
		{"/", "query an address"},
		{"s", "statistics"},
		{"c", "clear all lists"},
		{"n", "set log capacity"},
		{"f / w", "toggle fail2ban / journal watcher"},
		{"t", "next theme"},
		{"r", "reload IP list"},
		{"x", "blank screen"},
		{"esc", "clear selection"},
		{"?", "help"},
		{"q", "quit"},
	}},
	{"stats", []binding{
		{"tab", "next dimension"},
		{"j/k", "select row"},
		{"b / u", "ban / unban every address of the row"},
		{"esc", "close"},
	}},
	{"confirm", []binding{
		{"y", "confirm"},
		{"n/esc", "abort"},
	}},
}

// operationAction maps a take-action entry to the action it triggers.
func operationAction(op string) domain.Action {
	switch op {
	case domain.OpBan:
		return domain.RequestBanSelected
	case domain.OpUnban:
		return domain.RequestUnbanSelected
	case domain.OpQuery:
		return domain.EnterQuery
	case domain.OpStats:
		return domain.StatsShow
	case domain.OpClear:
		return domain.ClearLists
	case domain.OpResize:
		return domain.SetCapacity
	}
	return nil
}

// keyAction translates a key in a non-text mode into an action. It returns
// nil for keys without a binding. Text entry and the stats screen are
// handled by the App because they depend on local state.
func keyAction(s domain.ViewSnapshot, key string) domain.Action {
	if key == "ctrl+c" {
		return domain.Quit
	}

	switch s.Mode {
	case domain.ModeHelp:
		switch key {
		case "?", "esc", "q":
			return domain.Help
		}

	case domain.ModeConfirmClear:
		switch key {
		case "y", "Y":
			return domain.ConfirmedClearLists
		case "n", "N", "esc", "q":
			return domain.AbortClearLists
		}

	case domain.ModeTakeAction:
		switch key {
		case "j", "down":
			return domain.ActionsScheduleNext
		case "k", "up":
			return domain.ActionsSchedulePrevious
		case "enter":
			if op, ok := s.SelectedAction(); ok {
				return operationAction(op)
			}
		case "esc", "q":
			return domain.EnterNormal
		case "?":
			return domain.Help
		}

	case domain.ModeBan, domain.ModeUnban:
		switch key {
		case "j", "down":
			return domain.IPsScheduleNext
		case "k", "up":
			return domain.IPsSchedulePrevious
		case "enter":
			if s.Mode == domain.ModeBan {
				return domain.RequestBanSelected
			}
			return domain.RequestUnbanSelected
		case "esc", "q":
			if s.Mode == domain.ModeBan {
				return domain.ExitBan
			}
			return domain.ExitUnban
		}

	case domain.ModeNormal:
		return normalKey(s, key)
	}
	return nil
}

func normalKey(s domain.ViewSnapshot, key string) domain.Action {
	switch key {
	case "q":
		return domain.Quit
	case "?":
		return domain.Help
	case "j", "down":
		return domain.IPsScheduleNext
	case "k", "up":
		return domain.IPsSchedulePrevious
	case "esc":
		return domain.IPsUnselect
	case "J", "pgdown":
		return domain.LogsNext
	case "K", "pgup":
		return domain.LogsPrevious
	case "g", "home":
		return domain.LogsFirst
	case "G", "end":
		return domain.LogsLast
	case "enter", "a":
		return domain.EnterTakeAction
	case "b":
		return domain.EnterBan
	case "u":
		return domain.EnterUnban
	case "/":
		return domain.EnterQuery
	case "s":
		return domain.StatsShow
	case "c":
		return domain.ClearLists
	case "n":
		return domain.SetCapacity
	case "r":
		return domain.Refresh
	case "x":
		return domain.Blank
	case "t":
		return domain.SelectTheme{Name: NextTheme(s.Theme)}
	case "f":
		if s.Watchers.Fail2ban {
			return domain.StopF2BWatcher
		}
		return domain.StartF2BWatcher
	case "w":
		if s.Watchers.Journal {
			return domain.StopJCtlWatcher
		}
		return domain.StartJCtlWatcher
	}
	return nil
}

// nextDimension cycles through the stats dimensions.
func nextDimension(d domain.Dimension) domain.Dimension {
	for i, dim := range domain.Dimensions {
		if dim == d {
			return domain.Dimensions[(i+1)%len(domain.Dimensions)]
		}
	}
	return domain.Dimensions[0]
}
