package manager

import "sync"

// InstallObservation captures one install outcome.
type InstallObservation struct {
	Server     string
	Method     InstallMethod
	Forced     bool
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// SyncObservation captures one platform config apply or remove.
type SyncObservation struct {
	Server     string
	Platform   string
	Op         string
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// RemovalObservation captures one removal run across its platform set.
type RemovalObservation struct {
	Server     string
	Platforms  []string
	Complete   bool
	DurationMS int64
	ErrorCode  string
}

// Observer receives lifecycle observability events.
type Observer interface {
	ObserveInstall(observation InstallObservation)
	ObserveSync(observation SyncObservation)
	ObserveRemoval(observation RemovalObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveInstall(InstallObservation) {}
func (noopObserver) ObserveSync(SyncObservation)       {}
func (noopObserver) ObserveRemoval(RemovalObservation) {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide lifecycle observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func emitInstallObservation(observation InstallObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveInstall(observation)
}

func emitSyncObservation(observation SyncObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveSync(observation)
}

func emitRemovalObservation(observation RemovalObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveRemoval(observation)
}
