package registry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dronehub/internal/apierr"
	"dronehub/internal/events"
	"dronehub/internal/metrics"
	"dronehub/internal/store"
)

// nameRe validates a drone display name (spec §3: 1–80 chars, no newlines).
var nameRe = regexp.MustCompile(`^[^\n\r]{1,80}$`)

// Registry is the durable, in-memory-indexed set of drone and repo
// records. Every mutation is persisted to bbolt before it is considered
// committed, mirroring the corpus's atomic-marshal-then-Put convention in
// internal/store/bolt.go.
type Registry struct {
	db   *store.Store
	bus  *events.Bus

	mu       sync.RWMutex // protects drones/names below
	drones   map[string]*Drone
	names    map[string]string // live display name -> id

	reposMu sync.RWMutex // protects repos below
	repos   map[string]*Repo // host path -> repo record

	locks sync.Map // id -> *sync.Mutex, per-drone serialisation (spec §4.3 withLock)
}

// Open loads the registry snapshot from db and returns a ready Registry.
func Open(db *store.Store, bus *events.Bus) (*Registry, error) {
	r := &Registry{
		db:     db,
		bus:    bus,
		drones: make(map[string]*Drone),
		names:  make(map[string]string),
		repos:  make(map[string]*Repo),
	}
	if err := r.loadSnapshot(); err != nil {
		return nil, err
	}
	if err := r.loadRepoSnapshot(); err != nil {
		return nil, err
	}
	metrics.DronesTotal.Set(float64(len(r.drones)))
	for _, d := range r.drones {
		metrics.DronesByPhase.WithLabelValues(string(d.HubPhase)).Inc()
	}
	return r, nil
}

func (r *Registry) loadSnapshot() error {
	return r.db.ForEach(store.BucketDrones, func(key, value []byte) bool {
		var d Drone
		if err := json.Unmarshal(value, &d); err != nil {
			return true // skip corrupt entries rather than fail startup
		}
		r.drones[d.ID] = &d
		r.names[d.Name] = d.ID
		return true
	})
}

func (r *Registry) loadRepoSnapshot() error {
	return r.db.ForEach(store.BucketRepos, func(key, value []byte) bool {
		var repo Repo
		if err := json.Unmarshal(value, &repo); err != nil {
			return true
		}
		r.repos[repo.Path] = &repo
		return true
	})
}

// UpsertRepo records (or updates) the GitHub mapping for a host repo path,
// used by C7 to scope its requests to the right (owner, repo) (spec §4.7).
func (r *Registry) UpsertRepo(path, remoteURL string, gh *RepoGitHub) (Repo, error) {
	r.reposMu.Lock()
	defer r.reposMu.Unlock()

	repo, ok := r.repos[path]
	if !ok {
		repo = &Repo{Path: path, AddedAt: time.Now().UTC()}
	}
	repo.RemoteURL = remoteURL
	repo.GitHub = gh

	data, err := json.Marshal(repo)
	if err != nil {
		return Repo{}, apierr.Wrap(apierr.CodeInternal, "failed to marshal repo record", err)
	}
	if err := r.db.Put(store.BucketRepos, []byte(path), data); err != nil {
		return Repo{}, apierr.Wrap(apierr.CodeInternal, "failed to persist repo record", err)
	}
	r.repos[path] = repo
	return repo.clone(), nil
}

// GetRepo returns the repo record for a host path, used to resolve the
// (owner, repo) a drone's PR controller calls should target.
func (r *Registry) GetRepo(path string) (Repo, error) {
	r.reposMu.RLock()
	defer r.reposMu.RUnlock()
	repo, ok := r.repos[path]
	if !ok {
		return Repo{}, apierr.New(apierr.CodeNotFound, "repo "+path+" not found")
	}
	return repo.clone(), nil
}

// List returns a snapshot of all live drones, sorted by createdAt then id
// for a stable poll ordering.
func (r *Registry) List() []Drone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Drone, 0, len(r.drones))
	for _, d := range r.drones {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns one drone by id.
func (r *Registry) Get(id string) (Drone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drones[id]
	if !ok {
		return Drone{}, apierr.New(apierr.CodeNotFound, "drone "+id+" not found")
	}
	return d.clone(), nil
}

// InsertStarting allocates a new drone record in phase "creating" (spec
// §4.3 insertStarting — named for the operation in the spec, though the
// initial phase stored is "creating"; the caller transitions it to
// "starting" once the container create call is issued).
func (r *Registry) InsertStarting(name, group, repoPath string) (Drone, error) {
	if !nameRe.MatchString(name) {
		return Drone{}, apierr.New(apierr.CodeInvalidName, "name must be 1-80 chars with no newlines")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[name]; exists {
		return Drone{}, apierr.New(apierr.CodeNameConflict, "a live drone named "+name+" already exists")
	}

	d := &Drone{
		ID:        uuid.NewString(),
		Name:      name,
		Group:     group,
		CreatedAt: time.Now().UTC(),
		RepoPath:  repoPath,
		Chats:     []string{"default"},
		HubPhase:  PhaseCreating,
	}
	if repoPath != "" {
		d.RepoAttached = true
	}

	if err := r.persist(d); err != nil {
		return Drone{}, err
	}
	r.drones[d.ID] = d
	r.names[d.Name] = d.ID

	metrics.DronesTotal.Set(float64(len(r.drones)))
	metrics.DronesByPhase.WithLabelValues(string(PhaseCreating)).Inc()
	metrics.LifecycleTransitionsTotal.WithLabelValues(string(PhaseCreating)).Inc()
	r.publish(events.TypeDroneCreated, d.ID, "")
	return d.clone(), nil
}

// TransitionOpts carries the optional fields a phase transition may update
// alongside the phase itself (spec §4.3 transition).
type TransitionOpts struct {
	StatusOk    *bool
	StatusError string
	HubMessage  string
}

// Transition validates and applies a hub phase edge. It must be called
// from inside WithLock for the affected drone id.
func (r *Registry) Transition(id string, next Phase, opts TransitionOpts) (Drone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drones[id]
	if !ok {
		return Drone{}, apierr.New(apierr.CodeNotFound, "drone "+id+" not found")
	}
	if !canTransition(d.HubPhase, next) {
		return Drone{}, apierr.New(apierr.CodeStateViolation,
			fmt.Sprintf("cannot transition drone %s from %s to %s", id, d.HubPhase, next))
	}

	prev := d.HubPhase
	d.HubPhase = next
	if opts.StatusOk != nil {
		d.StatusOk = *opts.StatusOk
	}
	if opts.StatusError != "" {
		d.StatusError = opts.StatusError
	}
	if opts.HubMessage != "" {
		d.HubMessage = opts.HubMessage
	}

	if err := r.persist(d); err != nil {
		return Drone{}, err
	}

	metrics.DronesByPhase.WithLabelValues(string(prev)).Dec()
	metrics.DronesByPhase.WithLabelValues(string(next)).Inc()
	metrics.LifecycleTransitionsTotal.WithLabelValues(string(next)).Inc()
	r.publish(events.TypeDronePhase, id, string(next))
	return d.clone(), nil
}

// Rename validates and applies a new display name (spec §4.3/§4.4 rename).
func (r *Registry) Rename(id, newName string) (Drone, error) {
	if !nameRe.MatchString(newName) {
		return Drone{}, apierr.New(apierr.CodeInvalidName, "name must be 1-80 chars with no newlines")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drones[id]
	if !ok {
		return Drone{}, apierr.New(apierr.CodeNotFound, "drone "+id+" not found")
	}
	if existingID, exists := r.names[newName]; exists && existingID != id {
		return Drone{}, apierr.New(apierr.CodeNameConflict, "a live drone named "+newName+" already exists")
	}

	oldName := d.Name
	d.Name = newName
	if err := r.persist(d); err != nil {
		d.Name = oldName
		return Drone{}, err
	}
	delete(r.names, oldName)
	r.names[newName] = id
	return d.clone(), nil
}

// SetBusy marks or clears the busy flag used to block concurrent lifecycle
// mutations on the same drone while one is already in flight.
func (r *Registry) SetBusy(id string, busy bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drones[id]
	if !ok {
		return apierr.New(apierr.CodeNotFound, "drone "+id+" not found")
	}
	d.Busy = busy
	return r.persist(d)
}

// SetPorts records the last observed container/host port mapping.
func (r *Registry) SetPorts(id string, containerPort int, hostPort *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drones[id]
	if !ok {
		return apierr.New(apierr.CodeNotFound, "drone "+id+" not found")
	}
	d.ContainerPort = containerPort
	d.HostPort = hostPort
	return r.persist(d)
}

// AddChat appends a new chat name to a drone's chat set if not already present.
func (r *Registry) AddChat(id, chat string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drones[id]
	if !ok {
		return apierr.New(apierr.CodeNotFound, "drone "+id+" not found")
	}
	for _, c := range d.Chats {
		if c == chat {
			return nil
		}
	}
	d.Chats = append(d.Chats, chat)
	return r.persist(d)
}

// IsNameLive reports whether name is currently in use by a live drone,
// used by the orchestrator's auto-rename draft retry loop (spec §4.4).
func (r *Registry) IsNameLive(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.names[name]
	return exists
}

// Remove deletes a drone record. Per spec §9 ("the server MUST accept
// repeat deletes as no-ops"), removing an id that doesn't exist is not an
// error.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drones[id]
	if !ok {
		return nil
	}
	if err := r.db.Delete(store.BucketDrones, []byte(id)); err != nil {
		return apierr.Wrap(apierr.CodeInternal, "failed to delete drone snapshot", err)
	}
	delete(r.drones, id)
	delete(r.names, d.Name)

	metrics.DronesTotal.Set(float64(len(r.drones)))
	metrics.DronesByPhase.WithLabelValues(string(d.HubPhase)).Dec()
	r.publish(events.TypeDroneRemoved, id, "")
	return nil
}

// WithLock serialises mutations to one drone (spec §4.3 withLock, §5).
// Every C4 workflow runs its registry/container/repo-sync mutations under
// this lock for the affected drone id.
func (r *Registry) WithLock(id string, fn func() error) error {
	lockIface, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	lock := lockIface.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (r *Registry) persist(d *Drone) error {
	data, err := json.Marshal(d)
	if err != nil {
		return apierr.Wrap(apierr.CodeInternal, "failed to marshal drone record", err)
	}
	if err := r.db.Put(store.BucketDrones, []byte(d.ID), data); err != nil {
		return apierr.Wrap(apierr.CodeInternal, "failed to persist drone record", err)
	}
	return nil
}

func (r *Registry) publish(t events.Type, droneID, message string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{Type: t, DroneID: droneID, Message: message, Timestamp: time.Now()})
}
