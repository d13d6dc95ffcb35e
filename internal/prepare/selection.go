package prepare

import (
	"fmt"
	"sort"

	"github.com/aclements/go-gg/table"

	"plotprep/internal/listcol"
)

// Role is a y axis of a chart.
type Role string

const (
	Y1 Role = "Y1"
	Y2 Role = "Y2"
)

// Roles lists the axis roles in rendering order.
var Roles = []Role{Y1, Y2}

// Selection is what one axis plots: plain columns plus channels of list
// columns. Normal keeps insertion order; channel lists are sorted.
type Selection struct {
	Normal []string
	Lists  map[string][]int
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	if len(s.Normal) > 0 {
		return false
	}
	for _, chans := range s.Lists {
		if len(chans) > 0 {
			return false
		}
	}
	return true
}

// Clone deep-copies s.
func (s Selection) Clone() Selection {
	out := Selection{Normal: append([]string(nil), s.Normal...)}
	if s.Lists != nil {
		out.Lists = make(map[string][]int, len(s.Lists))
		for c, chans := range s.Lists {
			out.Lists[c] = append([]int(nil), chans...)
		}
	}
	return out
}

// ListColumns returns the list column names in sorted order.
func (s Selection) ListColumns() []string {
	names := make([]string, 0, len(s.Lists))
	for c, chans := range s.Lists {
		if len(chans) > 0 {
			names = append(names, c)
		}
	}
	sort.Strings(names)
	return names
}

// ToggleEvent switches one plain column (Channel < 0) or one channel of a
// list column on or off.
type ToggleEvent struct {
	Column  string
	Channel int
	On      bool
}

// ApplySelectionDelta returns cur with ev applied. cur is not modified.
func ApplySelectionDelta(cur Selection, ev ToggleEvent) Selection {
	next := cur.Clone()
	if ev.Column == "" {
		return next
	}

	if ev.Channel < 0 {
		i := indexOf(next.Normal, ev.Column)
		switch {
		case ev.On && i < 0:
			next.Normal = append(next.Normal, ev.Column)
		case !ev.On && i >= 0:
			next.Normal = append(next.Normal[:i], next.Normal[i+1:]...)
		}
		return next
	}

	chans := next.Lists[ev.Column]
	i := sort.SearchInts(chans, ev.Channel)
	has := i < len(chans) && chans[i] == ev.Channel
	switch {
	case ev.On && !has:
		chans = append(chans, 0)
		copy(chans[i+1:], chans[i:])
		chans[i] = ev.Channel
	case !ev.On && has:
		chans = append(chans[:i], chans[i+1:]...)
	default:
		return next
	}

	if next.Lists == nil {
		next.Lists = make(map[string][]int)
	}
	if len(chans) == 0 {
		delete(next.Lists, ev.Column)
	} else {
		next.Lists[ev.Column] = chans
	}
	return next
}

// Normalize fits s to t and its detected list columns:
//   - unknown columns are dropped
//   - a list column named in Normal selects all of its channels
//   - a non-list column named in Lists moves to Normal
//   - channels outside [0, Channels) are dropped, duplicates merged
//
// Each adjustment is reported as a warning.
func Normalize(s Selection, t *table.Table, infos map[string]listcol.Info) (Selection, []string) {
	var warnings []string
	out := Selection{Lists: make(map[string][]int)}

	addNormal := func(c string) {
		if indexOf(out.Normal, c) < 0 {
			out.Normal = append(out.Normal, c)
		}
	}
	addChannels := func(c string, chans []int) {
		info := infos[c]
		set := make(map[int]bool, len(out.Lists[c])+len(chans))
		for _, ch := range out.Lists[c] {
			set[ch] = true
		}
		for _, ch := range chans {
			if ch < 0 || ch >= info.Channels {
				warnings = append(warnings, fmt.Sprintf("column %q has %d channels; channel %d dropped", c, info.Channels, ch))
				continue
			}
			set[ch] = true
		}
		if len(set) == 0 {
			return
		}
		merged := make([]int, 0, len(set))
		for ch := range set {
			merged = append(merged, ch)
		}
		sort.Ints(merged)
		out.Lists[c] = merged
	}
	has := func(c string) bool { return t != nil && t.Column(c) != nil }

	for _, c := range s.Normal {
		switch info, isList := infos[c]; {
		case !has(c):
			warnings = append(warnings, fmt.Sprintf("unknown column %q", c))
		case isList:
			all := make([]int, info.Channels)
			for i := range all {
				all[i] = i
			}
			addChannels(c, all)
		default:
			addNormal(c)
		}
	}
	for _, c := range s.ListColumns() {
		switch _, isList := infos[c]; {
		case !has(c):
			warnings = append(warnings, fmt.Sprintf("unknown column %q", c))
		case !isList:
			warnings = append(warnings, fmt.Sprintf("column %q is not a list column; plotted as a whole", c))
			addNormal(c)
		default:
			addChannels(c, s.Lists[c])
		}
	}
	return out, warnings
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}
