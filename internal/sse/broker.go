// Package sse implements a Server-Sent Events broker for compile notifications.
//
// Every event carries a sequential id. The broker keeps the most recent
// events so a client reconnecting with Last-Event-ID receives what it
// missed.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	// ReplaySize is the number of recent events kept for reconnecting clients.
	ReplaySize = 32

	clientBuffer     = 64
	defaultKeepAlive = 15 * time.Second
	retryMillis      = 3000
)

// Event is one SSE message.
type Event struct {
	ID   uint64 `json:"-"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CompileEvent is the payload of compile.* events.
type CompileEvent struct {
	Source   string `json:"source"`
	Output   string `json:"output,omitempty"`
	Segments int    `json:"segments,omitempty"`
	Skipped  int    `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

type compileEventReq struct {
	kind    string
	payload CompileEvent
}

type subscribeReq struct {
	ch     chan []byte
	replay bool
	after  uint64
}

type frame struct {
	id  uint64
	raw []byte
}

// Broker fans compile events out to SSE clients.
//
// A single goroutine owns the client set, the replay buffer and the history
// throttle; public methods talk to it over channels.
type Broker struct {
	historyMin time.Duration
	keepAlive  time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	compileCh     chan compileEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. history.updated events are sent at
// most once per historyThrottle.
func NewBroker(historyThrottle time.Duration) *Broker {
	if historyThrottle <= 0 {
		historyThrottle = 2 * time.Second
	}

	b := &Broker{
		historyMin:    historyThrottle,
		keepAlive:     defaultKeepAlive,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		compileCh:     make(chan compileEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	recent := make([]frame, 0, ReplaySize)
	var (
		lastID      uint64
		lastHistory time.Time
	)

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Slow client; it can catch up through Last-Event-ID.
		}
	}

	broadcast := func(typ string, data any) {
		lastID++
		raw, err := encode(Event{ID: lastID, Type: typ, Data: data})
		if err != nil {
			return
		}
		if len(recent) == ReplaySize {
			copy(recent, recent[1:])
			recent = recent[:ReplaySize-1]
		}
		recent = append(recent, frame{id: lastID, raw: raw})

		for ch := range clients {
			send(ch, raw)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = struct{}{}
			if req.replay {
				for _, f := range recent {
					if f.id > req.after {
						send(req.ch, f.raw)
					}
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.compileCh:
			broadcast("compile."+req.kind, req.payload)

			if req.kind != "succeeded" {
				continue
			}
			now := time.Now()
			if now.Sub(lastHistory) >= b.historyMin {
				lastHistory = now
				broadcast("history.updated", map[string]string{})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that only receives new events.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(subscribeReq{})
}

// SubscribeAfter adds a client and first replays buffered events with an
// id greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	return b.subscribe(subscribeReq{replay: true, after: lastID})
}

func (b *Broker) subscribe(req subscribeReq) chan []byte {
	req.ch = make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(req.ch)
		return req.ch
	}

	select {
	case b.subscribeCh <- req:
	case <-b.stopped:
		close(req.ch)
	}
	return req.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// PublishCompile broadcasts compile.<kind> and, for successful compiles,
// a throttled history.updated event.
func (b *Broker) PublishCompile(kind string, ev CompileEvent) {
	if b.closed.Load() {
		return
	}
	select {
	case b.compileCh <- compileEventReq{kind: kind, payload: ev}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var ch chan []byte
	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch = b.SubscribeAfter(lastID)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
