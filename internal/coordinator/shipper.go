package coordinator

import "github.com/coordinatordb/coord/internal/command"

// Shipper abstracts the transport between the coordinator and its workers
// (SPEC_FULL.md §4.11). Physical dataflow execution is out of scope
// (spec.md §1 Non-goals); a real deployment would back this with gRPC or a
// message bus. LocalShipper is the in-process stand-in this repo ships,
// used by tests and the default binary alike.
type Shipper interface {
	Send(cmd command.ToWorker) error
	Feedback() <-chan command.FromWorker
}
