// Copyright 2016 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package gevent provides a minimal one-to-many event fan-out for wiring
// collaborator replies (new transactions, new best tip, mined blocks) to
// whichever subsystem subscribed. TypedFeed is generic over the event
// type: the core never sends mismatched payloads, so the reflect-based
// matching such feeds classically do (and the runtime panic it guards
// against) has no place here.
package gevent

import "sync"

// Subscription represents a stream of events. The subscriber must read Err
// to learn when the subscription ends.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

type sub struct {
	unsub func()
	err   chan error
	once  sync.Once
}

func (s *sub) Unsubscribe() {
	s.once.Do(func() {
		s.unsub()
		close(s.err)
	})
}

func (s *sub) Err() <-chan error { return s.err }

// Feed implements one-to-many notification of interface{} values.
// The zero value is ready to use. A Feed must not be copied after first use.
type Feed struct {
	mu   sync.Mutex
	subs map[*feedSub]struct{}
}

type feedSub struct {
	ch chan<- interface{}
}

// Subscribe adds a channel to the set that Send delivers to. The channel
// should have ample buffer space to avoid blocking other sends.
func (f *Feed) Subscribe(ch interface{}) Subscription {
	c, ok := asChan(ch)
	if !ok {
		panic("gevent: Subscribe argument must be a channel")
	}
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[*feedSub]struct{})
	}
	s := &feedSub{ch: c}
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	return &sub{
		unsub: func() {
			f.mu.Lock()
			delete(f.subs, s)
			f.mu.Unlock()
		},
		err: make(chan error, 1),
	}
}

// Send delivers value to all current subscribers, blocking until each has
// received it or its channel buffer fits it.
func (f *Feed) Send(value interface{}) (nsent int) {
	f.mu.Lock()
	subs := make([]*feedSub, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.ch <- value
		nsent++
	}
	return nsent
}

// asChan accepts only a chan<- interface{}; channels of any other element
// type are rejected.
func asChan(ch interface{}) (chan<- interface{}, bool) {
	c, ok := ch.(chan<- interface{})
	return c, ok
}

// TypedFeed[T] is the ergonomic wrapper the core actually uses: Subscribe
// and Send work in terms of T instead of interface{}.
type TypedFeed[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
}

// Subscribe registers ch to receive every value Sent after this call.
func (f *TypedFeed[T]) Subscribe(ch chan T) Subscription {
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[chan T]struct{})
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	return &sub{
		unsub: func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
		},
		err: make(chan error, 1),
	}
}

// Send fans value out to every subscriber, blocking on each channel send.
func (f *TypedFeed[T]) Send(value T) int {
	f.mu.Lock()
	chs := make([]chan T, 0, len(f.subs))
	for ch := range f.subs {
		chs = append(chs, ch)
	}
	f.mu.Unlock()

	for _, ch := range chs {
		ch <- value
	}
	return len(chs)
}
