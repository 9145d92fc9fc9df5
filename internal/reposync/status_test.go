package reposync

import "testing"

func TestParseNameStatusBasic(t *testing.T) {
	raw := "M\x00b.go\x00A\x00a.go\x00D\x00c.go\x00"
	entries := parseNameStatus(raw)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	// Sorted by path ascending: a.go, b.go, c.go.
	want := []struct {
		path   string
		status byte
		typ    string
	}{
		{"a.go", 'A', "added"},
		{"b.go", 'M', "modified"},
		{"c.go", 'D', "deleted"},
	}
	for i, w := range want {
		if entries[i].Path != w.path || entries[i].StatusChar != w.status || entries[i].Type != w.typ {
			t.Errorf("entry[%d] = %+v, want %+v", i, entries[i], w)
		}
	}
}

func TestParseNameStatusRename(t *testing.T) {
	raw := "R100\x00old.go\x00new.go\x00"
	entries := parseNameStatus(raw)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.StatusChar != 'R' || e.Path != "new.go" || e.OrigPath != "old.go" || e.Type != "renamed" {
		t.Errorf("got %+v", e)
	}
}

func TestParseNameStatusEmpty(t *testing.T) {
	if entries := parseNameStatus(""); entries != nil {
		t.Errorf("got %v, want nil", entries)
	}
}

func TestParsePorcelainV2OrdinaryAndUntracked(t *testing.T) {
	raw := "1 M. N... 100644 100644 100644 0000000 0000000 changed.go\x00" +
		"? untracked.go\x00"
	status := parsePorcelainV2(raw)
	if len(status.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(status.Entries))
	}
	if status.Entries[0].Path != "changed.go" || status.Entries[0].StagedChar != 'M' || status.Entries[0].UnstagedChar != '.' {
		t.Errorf("changed entry = %+v", status.Entries[0])
	}
	if status.Counts.Staged != 1 {
		t.Errorf("staged = %d, want 1", status.Counts.Staged)
	}
	if !status.Entries[1].Untracked || status.Entries[1].Path != "untracked.go" {
		t.Errorf("untracked entry = %+v", status.Entries[1])
	}
	if status.Counts.Untracked != 1 {
		t.Errorf("untracked count = %d, want 1", status.Counts.Untracked)
	}
}

func TestParsePorcelainV2Unmerged(t *testing.T) {
	raw := "u UU N... 100644 100644 100644 100644 0000000 0000000 0000000 conflicted.go\x00"
	status := parsePorcelainV2(raw)
	if len(status.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(status.Entries))
	}
	if !status.Entries[0].Conflicted || status.Entries[0].Path != "conflicted.go" {
		t.Errorf("got %+v", status.Entries[0])
	}
	if status.Counts.Conflicted != 1 {
		t.Errorf("conflicted count = %d, want 1", status.Counts.Conflicted)
	}
}

func TestParsePorcelainV2Rename(t *testing.T) {
	raw := "2 R. N... 100644 100644 100644 0000000 0000000 R100 new.go\x00old.go\x00"
	status := parsePorcelainV2(raw)
	if len(status.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(status.Entries))
	}
	if status.Entries[0].Path != "new.go" || status.Entries[0].OrigPath != "old.go" {
		t.Errorf("got %+v", status.Entries[0])
	}
}

func TestParsePorcelainV2SortedByPath(t *testing.T) {
	raw := "? z.go\x00? a.go\x00? m.go\x00"
	status := parsePorcelainV2(raw)
	paths := []string{status.Entries[0].Path, status.Entries[1].Path, status.Entries[2].Path}
	want := []string{"a.go", "m.go", "z.go"}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths = %v, want %v", paths, want)
		}
	}
}

func TestParsePorcelainV2EmptyIsNoChange(t *testing.T) {
	status := parsePorcelainV2("")
	if len(status.Entries) != 0 {
		t.Errorf("got %d entries, want 0", len(status.Entries))
	}
}
