package manager

import (
	"context"
	"sync"
	"testing"
)

// recordingObserver captures lifecycle observations for assertions.
type recordingObserver struct {
	mu       sync.Mutex
	installs []InstallObservation
	syncs    []SyncObservation
	removals []RemovalObservation
}

func (r *recordingObserver) ObserveInstall(observation InstallObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installs = append(r.installs, observation)
}

func (r *recordingObserver) ObserveSync(observation SyncObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs = append(r.syncs, observation)
}

func (r *recordingObserver) ObserveRemoval(observation RemovalObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removals = append(r.removals, observation)
}

func installObserver(t *testing.T) *recordingObserver {
	t.Helper()
	rec := &recordingObserver{}
	SetObserver(rec)
	t.Cleanup(func() { SetObserver(nil) })
	return rec
}

func TestObserverReceivesLifecycleEvents(t *testing.T) {
	f := newManagerFixture(t)
	rec := installObserver(t)
	ctx := context.Background()

	f.installStdio(t, "weather")
	if _, err := f.mgr.Configure(ctx, "cline"); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if _, err := f.mgr.Remove(ctx, "weather", nil); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if len(rec.installs) != 1 {
		t.Fatalf("len(installs) = %d, want 1", len(rec.installs))
	}
	install := rec.installs[0]
	if install.Server != "weather" || install.Method != MethodVenv || !install.Success {
		t.Fatalf("install observation = %+v", install)
	}
	if install.ErrorCode != "" {
		t.Fatalf("install ErrorCode = %q, want empty on success", install.ErrorCode)
	}

	if len(rec.syncs) != 2 {
		t.Fatalf("len(syncs) = %d, want apply then remove", len(rec.syncs))
	}
	if rec.syncs[0].Op != "apply" || rec.syncs[0].Platform != "cline" || !rec.syncs[0].Success {
		t.Fatalf("apply observation = %+v", rec.syncs[0])
	}
	if rec.syncs[1].Op != "remove" || !rec.syncs[1].Success {
		t.Fatalf("remove observation = %+v", rec.syncs[1])
	}

	if len(rec.removals) != 1 {
		t.Fatalf("len(removals) = %d, want 1", len(rec.removals))
	}
	removal := rec.removals[0]
	if removal.Server != "weather" || !removal.Complete {
		t.Fatalf("removal observation = %+v", removal)
	}
	if len(removal.Platforms) != 1 || removal.Platforms[0] != "cline" {
		t.Fatalf("removal Platforms = %v, want [cline]", removal.Platforms)
	}
}

func TestObserverSeesFailureCodes(t *testing.T) {
	f := newManagerFixture(t)
	rec := installObserver(t)

	f.runner.Scripts = []FakeScript{
		{Match: "-m venv", Result: Result{ExitCode: 1, Stderr: "boom"}},
	}
	_, err := f.mgr.Install(context.Background(), InstallRequest{
		Name:       "weather",
		SourcePath: f.source,
		Method:     MethodVenv,
	})
	if !IsCode(err, CodeInstallFailed) {
		t.Fatalf("Install() error = %v, want code %s", err, CodeInstallFailed)
	}

	if len(rec.installs) != 1 {
		t.Fatalf("len(installs) = %d, want 1", len(rec.installs))
	}
	install := rec.installs[0]
	if install.Success {
		t.Fatal("Success = true, want false")
	}
	if install.ErrorCode != CodeInstallFailed {
		t.Fatalf("ErrorCode = %q, want %s", install.ErrorCode, CodeInstallFailed)
	}
}

func TestSetObserverNilRestoresNoop(t *testing.T) {
	f := newManagerFixture(t)
	rec := installObserver(t)
	SetObserver(nil)

	f.installStdio(t, "weather")

	if len(rec.installs) != 0 {
		t.Fatalf("len(installs) = %d, want 0 after detaching", len(rec.installs))
	}
}
