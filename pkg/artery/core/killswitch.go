package core

import "sync"

// KillSwitch is a shared cancellation gate for the stages of one pipeline.
// Pulling it is idempotent and causes every gated stage to observe Done()
// closed within one scheduling quantum (spec §5 design notes).
type KillSwitch struct {
	once sync.Once
	done chan struct{}
}

func NewKillSwitch() *KillSwitch {
	return &KillSwitch{done: make(chan struct{})}
}

func (k *KillSwitch) Pull() {
	k.once.Do(func() { close(k.done) })
}

func (k *KillSwitch) Done() <-chan struct{} {
	return k.done
}

func (k *KillSwitch) IsPulled() bool {
	select {
	case <-k.done:
		return true
	default:
		return false
	}
}
