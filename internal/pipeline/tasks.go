package pipeline

import (
	"context"
	"strings"
	"sync"
)

// ActiveTasks tracks the single in-flight run permitted per requester,
// its cancellation handle, and the artifact paths the run currently owns.
// The sweeper consults path ownership to avoid deleting files in use.
type ActiveTasks struct {
	mu    sync.Mutex
	tasks map[string]*activeTask
}

type activeTask struct {
	cancel context.CancelFunc
	paths  map[string]struct{}
}

// NewActiveTasks creates an empty registry.
func NewActiveTasks() *ActiveTasks {
	return &ActiveTasks{tasks: make(map[string]*activeTask)}
}

// Register records a run for the requester. A second concurrent request
// from the same requester is rejected with ErrRequesterBusy instead of
// silently replacing (and orphaning) the first run's cancel handle.
func (a *ActiveTasks) Register(requester string, cancel context.CancelFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.tasks[requester]; exists {
		return ErrRequesterBusy
	}
	a.tasks[requester] = &activeTask{
		cancel: cancel,
		paths:  make(map[string]struct{}),
	}
	return nil
}

// Cancel fires the requester's cancel handle if a run is active. The
// entry itself is removed by the run's own Release on unwind.
func (a *ActiveTasks) Cancel(requester string) bool {
	a.mu.Lock()
	task, ok := a.tasks[requester]
	a.mu.Unlock()
	if !ok {
		return false
	}
	task.cancel()
	return true
}

// Release removes the requester's entry on any terminal outcome.
func (a *ActiveTasks) Release(requester string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tasks, requester)
}

// ClaimPath marks an artifact path as owned by the requester's run.
func (a *ActiveTasks) ClaimPath(requester, path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if task, ok := a.tasks[requester]; ok {
		task.paths[path] = struct{}{}
	}
}

// DisclaimPath drops ownership of a path (consumed or deleted).
func (a *ActiveTasks) DisclaimPath(requester, path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if task, ok := a.tasks[requester]; ok {
		delete(task.paths, path)
	}
}

// OwnedPaths returns the paths owned by the requester's run.
func (a *ActiveTasks) OwnedPaths(requester string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	task, ok := a.tasks[requester]
	if !ok {
		return nil
	}
	paths := make([]string, 0, len(task.paths))
	for p := range task.paths {
		paths = append(paths, p)
	}
	return paths
}

// Owns reports whether any active run owns the path or a parent
// directory of it.
func (a *ActiveTasks) Owns(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, task := range a.tasks {
		for owned := range task.paths {
			if owned == path || strings.HasPrefix(path, owned+"/") {
				return true
			}
		}
	}
	return false
}

// Has reports whether the requester currently has an active run.
func (a *ActiveTasks) Has(requester string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.tasks[requester]
	return ok
}

// Len reports the number of active runs.
func (a *ActiveTasks) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}
