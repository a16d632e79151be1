package coordinator

import "github.com/coordinatordb/coord/internal/command"

// LocalShipper fans commands out over a Go channel instead of a network
// transport. Tests and the in-process worker feedback simulator both read
// from Sent(); PushFeedback lets a simulator (or a test) report progress
// back to the loop the same non-blocking, drop-on-full way the teacher's
// mutation event channel reports daemon events (internal/rpc: "best
// effort, never blocks").
type LocalShipper struct {
	sent     chan command.ToWorker
	feedback chan command.FromWorker
	dropped  int
}

func NewLocalShipper() *LocalShipper {
	return &LocalShipper{
		sent:     make(chan command.ToWorker, 256),
		feedback: make(chan command.FromWorker, 256),
	}
}

func (s *LocalShipper) Send(cmd command.ToWorker) error {
	s.sent <- cmd
	return nil
}

func (s *LocalShipper) Feedback() <-chan command.FromWorker {
	return s.feedback
}

// Sent exposes shipped commands for tests to assert against.
func (s *LocalShipper) Sent() <-chan command.ToWorker {
	return s.sent
}

// PushFeedback delivers msg to the loop, dropping it silently if the
// feedback channel is saturated rather than blocking the caller.
func (s *LocalShipper) PushFeedback(msg command.FromWorker) {
	select {
	case s.feedback <- msg:
	default:
		s.dropped++
	}
}

// Dropped reports how many feedback messages PushFeedback has discarded.
func (s *LocalShipper) Dropped() int {
	return s.dropped
}
