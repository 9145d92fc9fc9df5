package api

import (
	"context"
	"net/http"
	"time"

	"dronehub/internal/apierr"
	"dronehub/internal/containeradapter"
	"dronehub/internal/orchestrator"
	"dronehub/internal/prcontroller"
	"dronehub/internal/promptqueue"
	"dronehub/internal/registry"
	"dronehub/internal/reposync"
	"dronehub/internal/terminalhub"
)

// fakeFleet implements Fleet with an in-memory drone/repo map.
type fakeFleet struct {
	drones map[string]registry.Drone
	repos  map[string]registry.Repo
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{drones: map[string]registry.Drone{}, repos: map[string]registry.Repo{}}
}

func (f *fakeFleet) List() []registry.Drone {
	out := make([]registry.Drone, 0, len(f.drones))
	for _, d := range f.drones {
		out = append(out, d)
	}
	return out
}

func (f *fakeFleet) Get(id string) (registry.Drone, error) {
	d, ok := f.drones[id]
	if !ok {
		return registry.Drone{}, apierr.New(apierr.CodeNotFound, "drone not found")
	}
	return d, nil
}

func (f *fakeFleet) GetRepo(path string) (registry.Repo, error) {
	r, ok := f.repos[path]
	if !ok {
		return registry.Repo{}, apierr.New(apierr.CodeNotFound, "repo not found")
	}
	return r, nil
}

// fakeLifecycle implements Lifecycle, recording the last call of each kind.
type fakeLifecycle struct {
	queueResult orchestrator.QueueResult
	deleteErr   error
	renameDrone registry.Drone
	renameErr   error
	baseImage   string
	baseErr     error
	cloneDrone  registry.Drone
	cloneErr    error
}

func (f *fakeLifecycle) Queue(ctx context.Context, specs []orchestrator.DroneQueueSpec) orchestrator.QueueResult {
	return f.queueResult
}

func (f *fakeLifecycle) Delete(ctx context.Context, droneID string) error { return f.deleteErr }

func (f *fakeLifecycle) Rename(ctx context.Context, droneID, newName string) (registry.Drone, error) {
	return f.renameDrone, f.renameErr
}

func (f *fakeLifecycle) SetBaseImage(ctx context.Context, droneID string) (string, error) {
	return f.baseImage, f.baseErr
}

func (f *fakeLifecycle) Clone(ctx context.Context, sourceID, newName string, includeChats bool) (registry.Drone, error) {
	return f.cloneDrone, f.cloneErr
}

// fakePrompts implements Prompts.
type fakePrompts struct {
	sentPromptID string
	sendErr      error
	pending      []promptqueue.PendingPrompt
	unstickErr   error
	transcript   []promptqueue.TranscriptItem
	transcriptErr error
}

func (f *fakePrompts) Send(ctx context.Context, droneID, chat, prompt string, attachments []promptqueue.Attachment) (string, error) {
	return f.sentPromptID, f.sendErr
}

func (f *fakePrompts) Pending(droneID, chat string) []promptqueue.PendingPrompt { return f.pending }

func (f *fakePrompts) Unstick(droneID, chat, promptID string, minAge time.Duration) error {
	return f.unstickErr
}

func (f *fakePrompts) Transcript(droneID, chat, turn string) ([]promptqueue.TranscriptItem, error) {
	return f.transcript, f.transcriptErr
}

// fakeRepoOps implements RepoOps.
type fakeRepoOps struct {
	applyResult reposync.ApplyResult
	applyErr    error
	pushResult  reposync.PushHostResult
	pushErr     error
	pullPreview []reposync.DiffEntry
	pullErr     error
	status      reposync.WorkingTreeStatus
	statusErr   error
	pullDiff    reposync.DiffResult
	pullDiffErr error
}

func (f *fakeRepoOps) Apply(ctx context.Context, droneID, container, dronePath, hostRepoPath string, timeout time.Duration) (reposync.ApplyResult, error) {
	return f.applyResult, f.applyErr
}

func (f *fakeRepoOps) PushHost(ctx context.Context, container, dronePath, hostRef string, timeout time.Duration) (reposync.PushHostResult, error) {
	return f.pushResult, f.pushErr
}

func (f *fakeRepoOps) PullPreview(ctx context.Context, container, repoPath string, timeout time.Duration) ([]reposync.DiffEntry, error) {
	return f.pullPreview, f.pullErr
}

func (f *fakeRepoOps) DroneWorkingTreeStatus(ctx context.Context, container, repoPath string, timeout time.Duration) (reposync.WorkingTreeStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeRepoOps) DronePullDiff(ctx context.Context, container, repoPath, path string, timeout time.Duration) (reposync.DiffResult, error) {
	return f.pullDiff, f.pullDiffErr
}

// fakePullRequests implements PullRequests.
type fakePullRequests struct {
	summaries   []prcontroller.Summary
	listErr     error
	mergeResult prcontroller.MergeResult
	mergeErr    error
	closeErr    error
	bulkResult  prcontroller.BulkResult
	bulkErr     error
}

func (f *fakePullRequests) List(ctx context.Context, owner, repo string) ([]prcontroller.Summary, error) {
	return f.summaries, f.listErr
}

func (f *fakePullRequests) Merge(ctx context.Context, owner, repo string, number int, opts prcontroller.MergeOptions) (prcontroller.MergeResult, error) {
	return f.mergeResult, f.mergeErr
}

func (f *fakePullRequests) Close(ctx context.Context, owner, repo string, number int) error {
	return f.closeErr
}

func (f *fakePullRequests) BulkMerge(ctx context.Context, owner, repo string, opts prcontroller.MergeOptions) (prcontroller.BulkResult, error) {
	return f.bulkResult, f.bulkErr
}

// fakePorts implements PortsLister.
type fakePorts struct {
	ports []containeradapter.Port
	err   error
}

func (f *fakePorts) Ports(ctx context.Context, container string, timeout time.Duration) ([]containeradapter.Port, error) {
	return f.ports, f.err
}

// noopTerminals implements Terminals with handlers that just acknowledge.
type noopTerminals struct {
	openName string
	openErr  error
}

func (n *noopTerminals) Open(ctx context.Context, droneID string, opts terminalhub.OpenOptions) (string, error) {
	return n.openName, n.openErr
}

func (n *noopTerminals) ServeOutput(w http.ResponseWriter, r *http.Request, droneID, name string) {
	w.WriteHeader(http.StatusOK)
}

func (n *noopTerminals) ServeInput(w http.ResponseWriter, r *http.Request, droneID, name string) {
	w.WriteHeader(http.StatusAccepted)
}

func (n *noopTerminals) ServeWS(w http.ResponseWriter, r *http.Request, droneID, name string) {
	w.WriteHeader(http.StatusOK)
}

func staticTimeout() time.Duration { return 5 * time.Second }
