package latestonlychannel

import (
	"context"
	"sync"
)

// Wrap returns an output channel that always yields the most recent value
// received on inputCh.  Sends on inputCh never wait for a slow reader,
// intermediate values are dropped instead.  The output channel is closed
// once inputCh is closed.
func Wrap[T any](inputCh <-chan T) <-chan T {
	outputCh := make(chan T)

	go func() {
		defer close(outputCh)

		for {
			latest, ok := <-inputCh
			if !ok {
				return
			}

			// hold on to the newest value until the reader takes it, we
			// never send more values than we received.
			for sent := false; !sent; {
				select {
				case outputCh <- latest:
					sent = true
				case newer, ok := <-inputCh:
					if !ok {
						return
					}
					latest = newer
				}
			}
		}
	}()

	return outputCh
}

type subscriber[T any] struct {
	inputCh chan T
}

// Publisher fans a stream of values out to any number of subscribers, each
// of which only sees the latest value it has not yet consumed.
type Publisher[T any] struct {
	lock    sync.Mutex
	subs    map[*subscriber[T]]struct{}
	last    T
	hasVal  bool
	closed  bool
	closeCh chan struct{}
}

func NewPublisher[T any]() *Publisher[T] {
	return &Publisher[T]{
		subs:    make(map[*subscriber[T]]struct{}),
		closeCh: make(chan struct{}),
	}
}

// Subscribe registers a new subscriber.  If a value has already been
// published it is delivered first.  The returned channel is closed when ctx
// is done or the publisher is closed.
func (p *Publisher[T]) Subscribe(ctx context.Context) <-chan T {
	sub := &subscriber[T]{
		inputCh: make(chan T),
	}
	outputCh := Wrap[T](sub.inputCh)

	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		close(sub.inputCh)
		return outputCh
	}
	p.subs[sub] = struct{}{}
	if p.hasVal {
		// Wrap is always ready to take a value, so this cannot block for long
		sub.inputCh <- p.last
	}
	p.lock.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			p.unsubscribe(sub)
		case <-p.closeCh:
		}
	}()

	return outputCh
}

func (p *Publisher[T]) unsubscribe(sub *subscriber[T]) {
	p.lock.Lock()
	if _, ok := p.subs[sub]; ok {
		delete(p.subs, sub)
		close(sub.inputCh)
	}
	p.lock.Unlock()
}

// Publish delivers value to every current subscriber.
func (p *Publisher[T]) Publish(value T) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return
	}

	p.last = value
	p.hasVal = true
	for sub := range p.subs {
		sub.inputCh <- value
	}
}

// Close closes every subscriber channel.  Later Publish calls are ignored.
func (p *Publisher[T]) Close() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.closeCh)
	for sub := range p.subs {
		close(sub.inputCh)
	}
	p.subs = nil
}
