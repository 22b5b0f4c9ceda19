package signaling

import (
	"errors"
	"sync"
	"time"

	"github.com/tandem-rtc/tandem/pkg/common"
)

// In-process signaling channel. Outgoing envelopes are handed to `outbound`, incoming
// envelopes are pushed with `Deliver` and dispatched to the handlers in order on a
// dedicated goroutine, just like the reader of a network connection would do.
type Pipe struct {
	*dispatcher

	outbound func(Envelope)
	incoming *common.Worker[Envelope]

	mutex  sync.Mutex
	closed bool
}

func NewPipe(outbound func(Envelope)) *Pipe {
	pipe := &Pipe{
		dispatcher: newDispatcher(),
		outbound:   outbound,
	}

	pipe.incoming = common.StartWorker(common.WorkerConfig[Envelope]{
		ChannelSize: outgoingQueueSize,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(env Envelope) {
			pipe.dispatch(env)
		},
	})

	return pipe
}

func (p *Pipe) Send(event string, payload any) error {
	p.mutex.Lock()
	closed := p.closed
	p.mutex.Unlock()

	if closed {
		return ErrChannelClosed
	}

	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	p.outbound(env)
	return nil
}

// Delivers an envelope to this end of the pipe.
func (p *Pipe) Deliver(env Envelope) error {
	if err := p.incoming.Send(env); err != nil {
		if errors.Is(err, common.ErrWorkerClosed) {
			return ErrChannelClosed
		}
		return err
	}

	return nil
}

// Tears the pipe down. Envelopes that were already delivered are still dispatched,
// then the disconnect handlers are called.
func (p *Pipe) Disconnect(reason error) {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return
	}
	p.closed = true
	p.mutex.Unlock()

	p.incoming.Stop()
	go func() {
		<-p.incoming.Done()
		p.disconnect(reason)
	}()
}
