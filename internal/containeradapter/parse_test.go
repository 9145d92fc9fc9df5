package containeradapter

import "testing"

func TestParsePortsDedupSortsAndDiscardsNoise(t *testing.T) {
	output := "garbage line\n8080:80\n9090:90\n8080:80\nnot:a:port\n8081:80\n"
	got := parsePorts(output)
	want := []Port{{HostPort: 8080, ContainerPort: 80}, {HostPort: 8081, ContainerPort: 80}, {HostPort: 9090, ContainerPort: 90}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParsePortsEmptyOnNoMatch(t *testing.T) {
	if got := parsePorts("nothing here\nat all\n"); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestParseLsBlocksDedup(t *testing.T) {
	output := "Name: auth-bugfix\nState: running\n\nName: frontend-tweak\nState: exited\n\nName: auth-bugfix\n"
	got := parseLsBlocks(output)
	want := []string{"auth-bugfix", "frontend-tweak"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseBaseSetLastMatch(t *testing.T) {
	output := "Committing...\nBase image: dronehub/base:v1\nPushing...\nBase image: dronehub/base:v2\n"
	if got := parseBaseSet(output); got != "dronehub/base:v2" {
		t.Errorf("got %q, want dronehub/base:v2", got)
	}
}

func TestParseBaseSetNoMatch(t *testing.T) {
	if got := parseBaseSet("nothing matches\n"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestParseRepoExport(t *testing.T) {
	output := "Exported bundle -> /tmp/drone-abc/export.bundle\n"
	if got := parseRepoExport(output); got != "/tmp/drone-abc/export.bundle" {
		t.Errorf("got %q, want /tmp/drone-abc/export.bundle", got)
	}
}
