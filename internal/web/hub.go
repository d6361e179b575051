package web

import (
	"sync"

	"vnsensor/internal/measurement"
)

// Hub fans measurements out to live listeners (the websocket stream). It
// keeps the most recent value so new subscribers get an immediate sample.
// A slow listener loses samples; Publish never blocks.
type Hub struct {
	mu       sync.RWMutex
	subs     map[int]chan measurement.CompositeData
	nextID   int
	last     measurement.CompositeData
	haveLast bool
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[int]chan measurement.CompositeData),
	}
}

func (h *Hub) Subscribe(buffer int) (int, <-chan measurement.CompositeData) {
	if h == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan measurement.CompositeData, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	last := h.last
	have := h.haveLast
	h.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Len is the number of subscribers.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Publish(m measurement.CompositeData) {
	if h == nil {
		return
	}
	// Held for the sends so Unsubscribe cannot close a channel mid-send.
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- m:
		default:
		}
	}
	h.last = m
	h.haveLast = true
}
