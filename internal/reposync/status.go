package reposync

import "strings"

// statusCharset is the full set of status characters spec §4.2.4 enumerates
// (". renders as 'no change'").
const statusCharset = ".MADRCTU?!"

// DiffEntry is one file changed between two commits (spec §4.2.4
// pull-preview payload).
type DiffEntry struct {
	Path       string `json:"path"`
	OrigPath   string `json:"origPath,omitempty"` // set for renames/copies
	StatusChar byte   `json:"statusChar"`
	Type       string `json:"type"` // inferred: added/modified/deleted/renamed/copied/typechange/unmerged
}

func inferType(status byte) string {
	switch status {
	case 'A':
		return "added"
	case 'M':
		return "modified"
	case 'D':
		return "deleted"
	case 'R':
		return "renamed"
	case 'C':
		return "copied"
	case 'T':
		return "typechange"
	case 'U':
		return "unmerged"
	case '?':
		return "untracked"
	case '!':
		return "ignored"
	default:
		return "unchanged"
	}
}

// parseNameStatus parses `git diff --name-status -z` output into sorted
// DiffEntry values. Renames/copies carry a numeric similarity suffix (e.g.
// "R100") on the status field; only the leading letter is kept as the
// statusChar per spec §4.2.4 ("each entry carries a single statusChar").
func parseNameStatus(raw string) []DiffEntry {
	fields := splitNUL(raw)
	var entries []DiffEntry
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if f == "" {
			continue
		}
		status := f[0]
		switch status {
		case 'R', 'C':
			if i+2 >= len(fields) {
				continue
			}
			entries = append(entries, DiffEntry{
				OrigPath: fields[i+1], Path: fields[i+2],
				StatusChar: status, Type: inferType(status),
			})
			i += 2
		default:
			if i+1 >= len(fields) {
				continue
			}
			entries = append(entries, DiffEntry{
				Path: fields[i+1], StatusChar: status, Type: inferType(status),
			})
			i++
		}
	}
	sortDiffEntries(entries)
	return entries
}

func sortDiffEntries(entries []DiffEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Path < entries[j-1].Path; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func splitNUL(s string) []string {
	s = strings.TrimSuffix(s, "\x00")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x00")
}

// WorkingTreeCounts summarises a working-tree listing (spec §4.2.4).
type WorkingTreeCounts struct {
	Changed    int `json:"changed"`
	Staged     int `json:"staged"`
	Unstaged   int `json:"unstaged"`
	Untracked  int `json:"untracked"`
	Conflicted int `json:"conflicted"`
}

// WorkingTreeEntry is one row of a `git status --porcelain=v2` listing.
type WorkingTreeEntry struct {
	Path       string `json:"path"`
	OrigPath   string `json:"origPath,omitempty"`
	StagedChar byte   `json:"stagedChar"`
	UnstagedChar byte `json:"unstagedChar"`
	Conflicted bool   `json:"conflicted"`
	Untracked  bool   `json:"untracked"`
}

// WorkingTreeStatus is the full result of a working-tree listing.
type WorkingTreeStatus struct {
	Entries []WorkingTreeEntry `json:"entries"`
	Counts  WorkingTreeCounts  `json:"counts"`
}

// parsePorcelainV2 parses `git status --porcelain=v2 -z -uall --ignored=no`
// output into a sorted WorkingTreeStatus (spec §4.2.4 working-tree listing).
//
// Record kinds (each NUL-terminated field):
//
//	"1 XY sub mH mI mW hH hI <path>"               ordinary changed entry
//	"2 XY sub mH mI mW hH hI <score> <path>\0<orig>" renamed/copied entry
//	"u XY sub m1 m2 m3 mW h1 h2 h3 <path>"          unmerged/conflicted
//	"? <path>"                                       untracked
//	"! <path>"                                       ignored
func parsePorcelainV2(raw string) WorkingTreeStatus {
	fields := splitNUL(raw)
	var entries []WorkingTreeEntry
	var counts WorkingTreeCounts

	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if f == "" {
			continue
		}
		parts := strings.SplitN(f, " ", 9)
		switch parts[0] {
		case "1":
			if len(parts) < 9 {
				continue
			}
			xy := parts[1]
			e := WorkingTreeEntry{Path: parts[8], StagedChar: xy[0], UnstagedChar: xy[1]}
			entries = append(entries, e)
			tallyXY(&counts, xy)
		case "2":
			// fields[8] is "<score> <path>", next field is the orig path
			if len(parts) < 9 || i+1 >= len(fields) {
				continue
			}
			rest := strings.SplitN(parts[8], " ", 2)
			path := parts[8]
			if len(rest) == 2 {
				path = rest[1]
			}
			xy := parts[1]
			e := WorkingTreeEntry{Path: path, OrigPath: fields[i+1], StagedChar: xy[0], UnstagedChar: xy[1]}
			entries = append(entries, e)
			tallyXY(&counts, xy)
			i++
		case "u":
			// An unmerged record has ten fields before the path.
			up := strings.SplitN(f, " ", 11)
			if len(up) < 11 {
				continue
			}
			e := WorkingTreeEntry{Path: up[10], StagedChar: 'U', UnstagedChar: 'U', Conflicted: true}
			entries = append(entries, e)
			counts.Conflicted++
			counts.Changed++
		case "?":
			if len(parts) < 2 {
				continue
			}
			e := WorkingTreeEntry{Path: strings.Join(parts[1:], " "), StagedChar: '?', UnstagedChar: '?', Untracked: true}
			entries = append(entries, e)
			counts.Untracked++
		case "!":
			// ignored entries are excluded by --ignored=no; kept here only
			// for resilience against unexpected engine output.
			continue
		}
	}

	sortWorkingTreeEntries(entries)
	counts.Changed = len(entries) - counts.Untracked
	return WorkingTreeStatus{Entries: entries, Counts: counts}
}

func tallyXY(counts *WorkingTreeCounts, xy string) {
	if xy[0] != '.' {
		counts.Staged++
	}
	if xy[1] != '.' {
		counts.Unstaged++
	}
}

func sortWorkingTreeEntries(entries []WorkingTreeEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Path < entries[j-1].Path; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

var _ = statusCharset // documents the charset; not referenced elsewhere
