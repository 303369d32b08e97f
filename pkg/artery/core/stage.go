package core

import (
	"context"
	"sync"
)

// Stage is one step of an inbound pipeline. OnPush is invoked per inbound
// frame; returning an error fails the pipeline's completion future and
// hands control to restart supervision (spec §4.12).
type Stage interface {
	OnPush(frame []byte) error
	OnComplete()
	OnFailure(err error)
}

// Pipeline drives one Stage over a source of inbound frames until its
// KillSwitch is pulled, the source closes, or the stage fails. Each
// Pipeline has exactly one completion future, surfaced by Done/Err,
// matching spec §5's "every pipeline has exactly one completion future".
type Pipeline struct {
	stage  Stage
	source <-chan []byte
	kill   *KillSwitch

	mu   sync.Mutex
	err  error
	done chan struct{}
}

func NewPipeline(stage Stage, source <-chan []byte, kill *KillSwitch) *Pipeline {
	return &Pipeline{stage: stage, source: source, kill: kill, done: make(chan struct{})}
}

func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-p.kill.Done():
			p.stage.OnComplete()
			return
		case <-ctx.Done():
			p.stage.OnComplete()
			return
		case frame, ok := <-p.source:
			if !ok {
				p.stage.OnComplete()
				return
			}
			if err := p.stage.OnPush(frame); err != nil {
				p.setErr(err)
				p.stage.OnFailure(err)
				return
			}
		}
	}
}

func (p *Pipeline) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Done is the pipeline's completion future.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Err is nil for a clean completion (kill switch pulled, source closed)
// and non-nil when a stage push failed.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
