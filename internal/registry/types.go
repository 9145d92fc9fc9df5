// Package registry is the durable drone and repo registry (spec §4.3/§3).
// It is the authoritative source of truth for fleet state: every list/poll
// endpoint in C8 reads from it, and only the lifecycle orchestrator (C4)
// writes to it.
package registry

import "time"

// Phase is a drone's hub lifecycle state (spec §3 hubPhase, §4.3 state
// machine). "deleted" is not a phase value: a deleted drone's record is
// removed from the registry entirely via Remove, not transitioned.
type Phase string

const (
	PhaseCreating Phase = "creating"
	PhaseStarting Phase = "starting"
	PhaseSeeding  Phase = "seeding"
	PhaseReady    Phase = "ready"
	PhaseError    Phase = "error"
)

// Drone is one entry in the registry (spec §3 "Drone record").
type Drone struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Group         string    `json:"group,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	RepoPath      string    `json:"repoPath,omitempty"`
	RepoAttached  bool      `json:"repoAttached"`
	ContainerPort int       `json:"containerPort,omitempty"`
	HostPort      *int      `json:"hostPort,omitempty"`
	StatusOk      bool      `json:"statusOk"`
	StatusError   string    `json:"statusError,omitempty"`
	Chats         []string  `json:"chats"`
	HubPhase      Phase     `json:"hubPhase"`
	HubMessage    string    `json:"hubMessage,omitempty"`
	Busy          bool      `json:"busy"`
}

// clone returns a deep-enough copy for safe return from read operations:
// callers must never observe (or mutate) registry-internal state directly.
func (d Drone) clone() Drone {
	cp := d
	if d.HostPort != nil {
		v := *d.HostPort
		cp.HostPort = &v
	}
	if d.Chats != nil {
		cp.Chats = append([]string(nil), d.Chats...)
	}
	return cp
}

// Repo is one entry in the repo registry (spec §3 "Repo record").
type Repo struct {
	Path      string     `json:"path"`
	AddedAt   time.Time  `json:"addedAt"`
	RemoteURL string     `json:"remoteUrl,omitempty"`
	GitHub    *RepoGitHub `json:"github,omitempty"`
}

// RepoGitHub identifies the (owner, repo) a Repo maps to on GitHub, used by
// the PR controller (C7) to scope its requests.
type RepoGitHub struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

func (r Repo) clone() Repo {
	cp := r
	if r.GitHub != nil {
		gh := *r.GitHub
		cp.GitHub = &gh
	}
	return cp
}
