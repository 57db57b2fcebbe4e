package server

import (
	"context"
	"sync"

	"github.com/ayusman/handcount/internal/geometry"
)

// fakePipeline emits canned frames and lets tests publish summaries.
type fakePipeline struct {
	mu      sync.Mutex
	frames  [][]byte
	err     error
	ready   bool
	block   bool
	streams int
	subs    map[chan geometry.Summary]struct{}
}

func newFakePipeline(frames ...[]byte) *fakePipeline {
	return &fakePipeline{
		frames: frames,
		ready:  true,
		subs:   make(map[chan geometry.Summary]struct{}),
	}
}

func (p *fakePipeline) Stream(ctx context.Context, emit func([]byte) error) error {
	p.mu.Lock()
	p.streams++
	frames, err, block := p.frames, p.err, p.block
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.streams--
		p.mu.Unlock()
	}()

	for _, f := range frames {
		if err := emit(f); err != nil {
			return err
		}
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *fakePipeline) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *fakePipeline) ActiveStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams
}

func (p *fakePipeline) Subscribe() (<-chan geometry.Summary, func()) {
	ch := make(chan geometry.Summary, 4)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			p.mu.Unlock()
			close(ch)
		})
	}
}

func (p *fakePipeline) publish(s geometry.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subs {
		ch <- s
	}
}

func (p *fakePipeline) subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}
