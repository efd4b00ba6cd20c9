package browser

import (
	"sync"
)

// view is the channel side of a loaded page shared by both sandboxes.
// Channels are buffered and written at most once, so producers never block
// on a session that has already moved on.
type view struct {
	loaded   chan struct{}
	messages chan string
	failures chan error

	loadOnce  sync.Once
	postOnce  sync.Once
	failOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
	closeFn   func() error
	closeErr  error
}

func newView(closeFn func() error) *view {
	return &view{
		loaded:   make(chan struct{}),
		messages: make(chan string, 1),
		failures: make(chan error, 1),
		done:     make(chan struct{}),
		closeFn:  closeFn,
	}
}

func (v *view) Loaded() <-chan struct{} { return v.loaded }
func (v *view) Messages() <-chan string { return v.messages }
func (v *view) Failures() <-chan error  { return v.failures }

func (v *view) markLoaded() {
	v.loadOnce.Do(func() { close(v.loaded) })
}

func (v *view) post(data string) {
	v.postOnce.Do(func() { v.messages <- data })
}

func (v *view) fail(err error) {
	v.failOnce.Do(func() { v.failures <- err })
}

func (v *view) closed() bool {
	select {
	case <-v.done:
		return true
	default:
		return false
	}
}

func (v *view) Close() error {
	v.closeOnce.Do(func() {
		close(v.done)
		if v.closeFn != nil {
			v.closeErr = v.closeFn()
		}
	})
	return v.closeErr
}
