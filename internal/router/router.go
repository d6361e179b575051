// Package router fans verified frames and raw bytes out to subscribers.
package router

import (
	"strings"
	"sync"

	"vnsensor/internal/binout"
	"vnsensor/internal/frame"
)

type PrefixMode uint8

const (
	StartsWith PrefixMode = iota
	DoesNotStartWith
)

// ASCIIFilter selects ASCII frames by the start of their body, e.g. "VN"
// or "VNYMR".
type ASCIIFilter struct {
	Prefix string
	Mode   PrefixMode
}

func (f ASCIIFilter) Match(body string) bool {
	has := strings.HasPrefix(body, f.Prefix)
	if f.Mode == DoesNotStartWith {
		return !has
	}
	return has
}

type HeaderMode uint8

const (
	// AnyMatch accepts a frame sharing at least one field with the filter.
	AnyMatch HeaderMode = iota
	// AllMatch accepts a frame carrying every field of the filter.
	AllMatch
	ExactMatch
	NotExactMatch
)

type BinaryFilter struct {
	Header binout.Header
	Mode   HeaderMode
}

func (f BinaryFilter) Match(h binout.Header) bool {
	switch f.Mode {
	case AllMatch:
		return h.AllMatch(f.Header)
	case ExactMatch:
		return h == f.Header
	case NotExactMatch:
		return h != f.Header
	}
	return h.AnyMatch(f.Header)
}

// Sink receives a matching frame. It runs on the decode goroutine and must
// not block or call back into the Router.
type Sink func(frame.Frame)

// ByteSink receives raw bytes. The slice is only valid during the call.
type ByteSink func([]byte)

type ID uint64

type subscription struct {
	id     ID
	ascii  *ASCIIFilter
	binary *BinaryFilter
	sink   Sink
}

type byteSub struct {
	id   ID
	sink ByteSink
}

// Router dispatches in registration order. Dispatch holds the read lock
// while sinks run, so once Unsubscribe returns the sink is never called
// again.
type Router struct {
	mu       sync.RWMutex
	nextID   ID
	subs     []subscription
	received []byteSub
	skipped  []byteSub
}

func New() *Router {
	return &Router{nextID: 1}
}

func (r *Router) add(s subscription) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.id = r.nextID
	r.nextID++
	r.subs = append(r.subs, s)
	return s.id
}

func (r *Router) SubscribeASCII(f ASCIIFilter, sink Sink) ID {
	if r == nil || sink == nil {
		return 0
	}
	return r.add(subscription{ascii: &f, sink: sink})
}

func (r *Router) SubscribeBinary(f BinaryFilter, sink Sink) ID {
	if r == nil || sink == nil {
		return 0
	}
	return r.add(subscription{binary: &f, sink: sink})
}

func (r *Router) RegisterReceivedBytes(sink ByteSink) ID {
	return r.addBytes(&r.received, sink)
}

func (r *Router) RegisterSkippedBytes(sink ByteSink) ID {
	return r.addBytes(&r.skipped, sink)
}

func (r *Router) addBytes(list *[]byteSub, sink ByteSink) ID {
	if r == nil || sink == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	*list = append(*list, byteSub{id: id, sink: sink})
	return id
}

// Unsubscribe removes any subscription or byte sink with the id. It
// reports whether one was found.
func (r *Router) Unsubscribe(id ID) bool {
	if r == nil || id == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return true
		}
	}
	for _, list := range []*[]byteSub{&r.received, &r.skipped} {
		for i, s := range *list {
			if s.id == id {
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Len is the number of frame subscriptions.
func (r *Router) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// DispatchFrame offers f to every matching subscription and returns how
// many sinks were called.
func (r *Router) DispatchFrame(f frame.Frame) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.subs {
		switch {
		case f.Kind == frame.KindASCII && s.ascii != nil:
			if !s.ascii.Match(f.Body) {
				continue
			}
		case f.Kind == frame.KindBinary && s.binary != nil:
			if !s.binary.Match(f.Header) {
				continue
			}
		default:
			continue
		}
		s.sink(f)
		n++
	}
	return n
}

func (r *Router) DispatchReceived(b []byte) { r.dispatchBytes(func() []byteSub { return r.received }, b) }
func (r *Router) DispatchSkipped(b []byte)  { r.dispatchBytes(func() []byteSub { return r.skipped }, b) }

func (r *Router) dispatchBytes(list func() []byteSub, b []byte) {
	if r == nil || len(b) == 0 {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range list() {
		s.sink(b)
	}
}
