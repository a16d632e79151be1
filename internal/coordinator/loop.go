// Package coordinator implements C8: the single-threaded cooperative event
// loop that owns every piece of mutable coordinator state and serializes
// access to it through four strictly prioritized input streams — internal
// commands, worker feedback, the timestamper tick, and client commands, in
// that order (spec.md §5).
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/coordinatordb/coord/internal/cacher"
	"github.com/coordinatordb/coord/internal/catalog"
	"github.com/coordinatordb/coord/internal/command"
	"github.com/coordinatordb/coord/internal/coorderr"
	"github.com/coordinatordb/coord/internal/dataflow"
	"github.com/coordinatordb/coord/internal/feedback"
	"github.com/coordinatordb/coord/internal/frontier"
	"github.com/coordinatordb/coord/internal/peek"
	"github.com/coordinatordb/coord/internal/planner"
	"github.com/coordinatordb/coord/internal/tsoracle"
	"github.com/coordinatordb/coord/internal/types"
)

// Internal is the closed set of messages the loop generates for itself —
// the highest-priority stream, reserved for conditions that must preempt
// everything else (spec.md §5).
type Internal interface{ isInternal() }

// TaskFailed is raised when an off-loop task (sink connector construction,
// source caching, purification) fails unexpectedly. It generalizes the
// teacher's fire-and-forget goroutine style into something the loop can
// react to instead of silently losing the error (SPEC_FULL.md §5).
type TaskFailed struct{ Err error }

// ShutdownRequested asks the loop to ship Shutdown to workers and stop.
type ShutdownRequested struct{}

func (TaskFailed) isInternal()        {}
func (ShutdownRequested) isInternal() {}

type planExecRequest struct {
	Plan  planner.Plan
	Reply chan<- planExecResult
}

type planExecResult struct {
	Result planner.Result
	Err    error
}

type sinkCompleteRequest struct {
	ID        types.GlobalId
	Connector types.SinkConnector
	Kind      string
	Reply     chan<- planExecResult
}

type peekExecRequest struct {
	ConnID    types.ConnID
	Tx        string
	Target    types.GlobalId
	When      peek.When
	MFP       command.MapFilterProject
	Finishing command.RowSetFinishing
	Reply     chan<- peekExecResult
}

type peekExecResult struct {
	Plan peek.Plan
	Err  error
}

// describeRequest asks the loop for a read-only snapshot of a catalog
// entry's frontier state. Frontier.Tracker is not safe for concurrent
// access (frontier/tracker.go), so even a read has to cross through the
// loop goroutine like every other query.
type describeRequest struct {
	ID    types.GlobalId
	Reply chan<- describeResult
}

type describeResult struct {
	Since types.Antichain
	Upper types.Antichain
	Found bool
}

// Loop is the coordinator's event scheduler. Every field it mutates is
// touched only from the goroutine running Run (spec.md §5); external
// callers interact exclusively through the Submit* methods, which hand
// work to the loop over a channel and block for the reply.
type Loop struct {
	Catalog catalog.Catalog
	Tracker *frontier.Tracker
	Oracle  *tsoracle.Oracle
	Shipper Shipper
	Logger  *slog.Logger

	// Cacher reconciles source cache-file presence against what the
	// catalog expects. Nil disables reconciliation (spec.md §6).
	Cacher cacher.Cacher

	TimestamperInterval time.Duration

	peekSeq  *peek.Sequencer
	feedback *feedback.Loop

	// pendingTransientDrops tracks, per in-flight peek, the transient index
	// its fallback path allocated — if any — so it can be torn down as soon
	// as that peek's response comes back (spec.md §4.6: a one-shot
	// dataflow's index must not outlive the peek it was built for).
	pendingTransientDrops map[types.ConnID]types.GlobalId

	internal    chan Internal
	clients     chan command.FromClient
	planReqs     chan planExecRequest
	sinkReqs     chan sinkCompleteRequest
	peekReqs     chan peekExecRequest
	describeReqs chan describeRequest
	cancelReqs   chan types.ConnID
	responses    chan command.PeekResponse

	done chan struct{}
}

// New builds a Loop ready to Run. TimestamperInterval is set to 1s,
// matching the original coordinator's local-input advancement cadence
// (spec.md §4.2).
func New(cat catalog.Catalog, tracker *frontier.Tracker, oracle *tsoracle.Oracle, shipper Shipper, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		Catalog:             cat,
		Tracker:             tracker,
		Oracle:              oracle,
		Shipper:             shipper,
		Logger:              logger,
		TimestamperInterval: time.Second,
		peekSeq:               &peek.Sequencer{Catalog: cat, Tracker: tracker, Oracle: oracle},
		feedback:              &feedback.Loop{Tracker: tracker, Catalog: cat, Logger: logger},
		pendingTransientDrops: make(map[types.ConnID]types.GlobalId),
		internal:            make(chan Internal, 16),
		clients:             make(chan command.FromClient, 256),
		planReqs:            make(chan planExecRequest),
		sinkReqs:            make(chan sinkCompleteRequest),
		peekReqs:            make(chan peekExecRequest),
		describeReqs:        make(chan describeRequest),
		cancelReqs:          make(chan types.ConnID, 64),
		responses:           make(chan command.PeekResponse, 256),
		done:                make(chan struct{}),
	}
}

// Responses is the channel peek/tail callers read final answers from.
func (l *Loop) Responses() <-chan command.PeekResponse {
	return l.responses
}

// SubmitInternal enqueues a self-generated message, dropping it if the
// queue is saturated — an internal-command backlog means the loop is
// already wedged, and blocking the reporter would only make it worse.
func (l *Loop) SubmitInternal(msg Internal) {
	select {
	case l.internal <- msg:
	default:
		l.Logger.Warn("internal command dropped, queue full", "type", msg)
	}
}

// SubmitClient enqueues a client command for processing at the lowest
// priority tier.
func (l *Loop) SubmitClient(cmd command.FromClient) {
	l.clients <- cmd
}

// SubmitPlan runs plan to completion on the loop goroutine and returns its
// result. Safe to call from any goroutine.
func (l *Loop) SubmitPlan(plan planner.Plan) (planner.Result, error) {
	reply := make(chan planExecResult, 1)
	l.planReqs <- planExecRequest{Plan: plan, Reply: reply}
	res := <-reply
	return res.Result, res.Err
}

// SubmitSinkComplete transitions a pending sink to Ready once its external
// connector has been built (spec.md §4.7).
func (l *Loop) SubmitSinkComplete(id types.GlobalId, connector types.SinkConnector, kind string) (planner.Result, error) {
	reply := make(chan planExecResult, 1)
	l.sinkReqs <- sinkCompleteRequest{ID: id, Connector: connector, Kind: kind, Reply: reply}
	res := <-reply
	return res.Result, res.Err
}

// SubmitPeek sequences a peek against target and ships the resulting
// commands, returning the plan that was shipped. when pins the read to an
// explicit AS OF timestamp, or reads at whatever is current (peek.When,
// spec.md §4.6).
func (l *Loop) SubmitPeek(connID types.ConnID, tx string, target types.GlobalId, when peek.When, mfp command.MapFilterProject, finishing command.RowSetFinishing) (peek.Plan, error) {
	reply := make(chan peekExecResult, 1)
	l.peekReqs <- peekExecRequest{ConnID: connID, Tx: tx, Target: target, When: when, MFP: mfp, Finishing: finishing, Reply: reply}
	res := <-reply
	return res.Plan, res.Err
}

// SubmitDescribe reports the since/upper frontiers tracked for id, if any.
// Safe to call from any goroutine; used by `coord explain` to report live
// frontier state alongside the static catalog entry.
func (l *Loop) SubmitDescribe(id types.GlobalId) (since, upper types.Antichain, found bool) {
	reply := make(chan describeResult, 1)
	l.describeReqs <- describeRequest{ID: id, Reply: reply}
	res := <-reply
	return res.Since, res.Upper, res.Found
}

// CancelPeek requests cancellation of any in-flight peek for connID.
func (l *Loop) CancelPeek(connID types.ConnID) {
	select {
	case l.cancelReqs <- connID:
	default:
		l.Logger.Warn("cancel request dropped, queue full", "conn_id", connID)
	}
}

// Shutdown asks the loop to stop and blocks until it has.
func (l *Loop) Shutdown() {
	l.SubmitInternal(ShutdownRequested{})
	<-l.done
}

type msgKind int

const (
	kindNone msgKind = iota
	kindInternal
	kindFeedback
	kindTick
	kindPlan
	kindSink
	kindPeek
	kindDescribe
	kindCancel
	kindClient
)

// Run drives the event loop until ctx is canceled or a ShutdownRequested
// internal message is processed. It implements the four-stream priority
// order by polling each stream non-blockingly from highest to lowest
// priority first, and only falling back to a blocking multi-way select —
// which cannot itself enforce ordering — when every stream is empty
// (spec.md §5).
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	ticker := time.NewTicker(l.TimestamperInterval)
	defer ticker.Stop()

	for {
		kind, payload, ok := l.next(ctx, ticker.C)
		if !ok {
			return ctx.Err()
		}
		if stop := l.dispatch(kind, payload); stop {
			return nil
		}
	}
}

func (l *Loop) next(ctx context.Context, tick <-chan time.Time) (msgKind, any, bool) {
	if k, v, ok := l.poll(tick); ok {
		return k, v, true
	}
	select {
	case <-ctx.Done():
		return kindNone, nil, false
	case m := <-l.internal:
		return kindInternal, m, true
	case m := <-l.Shipper.Feedback():
		return kindFeedback, m, true
	case <-tick:
		return kindTick, nil, true
	case r := <-l.planReqs:
		return kindPlan, r, true
	case r := <-l.sinkReqs:
		return kindSink, r, true
	case r := <-l.peekReqs:
		return kindPeek, r, true
	case r := <-l.describeReqs:
		return kindDescribe, r, true
	case id := <-l.cancelReqs:
		return kindCancel, id, true
	case m := <-l.clients:
		return kindClient, m, true
	}
}

func (l *Loop) poll(tick <-chan time.Time) (msgKind, any, bool) {
	select {
	case m := <-l.internal:
		return kindInternal, m, true
	default:
	}
	select {
	case m := <-l.Shipper.Feedback():
		return kindFeedback, m, true
	default:
	}
	select {
	case <-tick:
		return kindTick, nil, true
	default:
	}
	select {
	case r := <-l.planReqs:
		return kindPlan, r, true
	default:
	}
	select {
	case r := <-l.sinkReqs:
		return kindSink, r, true
	default:
	}
	select {
	case r := <-l.peekReqs:
		return kindPeek, r, true
	default:
	}
	select {
	case r := <-l.describeReqs:
		return kindDescribe, r, true
	default:
	}
	select {
	case id := <-l.cancelReqs:
		return kindCancel, id, true
	default:
	}
	select {
	case m := <-l.clients:
		return kindClient, m, true
	default:
	}
	return kindNone, nil, false
}

func (l *Loop) dispatch(kind msgKind, payload any) (stop bool) {
	switch kind {
	case kindInternal:
		return l.handleInternal(payload.(Internal))
	case kindFeedback:
		l.handleFeedback(payload.(command.FromWorker))
	case kindTick:
		l.handleTick()
	case kindPlan:
		l.handlePlan(payload.(planExecRequest))
	case kindSink:
		l.handleSinkComplete(payload.(sinkCompleteRequest))
	case kindPeek:
		l.handlePeek(payload.(peekExecRequest))
	case kindDescribe:
		l.handleDescribe(payload.(describeRequest))
	case kindCancel:
		l.handleCancel(payload.(types.ConnID))
	case kindClient:
		l.handleClient(payload.(command.FromClient))
	}
	return false
}

func (l *Loop) handleInternal(msg Internal) bool {
	switch m := msg.(type) {
	case ShutdownRequested:
		if err := l.Shipper.Send(command.Shutdown{}); err != nil {
			l.Logger.Error("failed to ship shutdown", "err", err)
		}
		return true
	case TaskFailed:
		l.Logger.Error("background task failed, aborting event loop", "err", m.Err)
		return true
	}
	return false
}

func (l *Loop) handleFeedback(msg command.FromWorker) {
	switch m := msg.(type) {
	case command.FrontierUppers:
		if cmd := l.feedback.HandleFrontierUppers(m); cmd != nil {
			if err := l.Shipper.Send(*cmd); err != nil {
				l.Logger.Error("failed to ship compaction", "err", err)
			}
		}
	case command.PeekResponse:
		l.dropPendingTransient(m.ConnID)
		select {
		case l.responses <- m:
		default:
			l.Logger.Warn("peek response dropped, consumer too slow", "conn_id", m.ConnID)
		}
	case command.CreateSource:
		l.Logger.Debug("source instantiated", "id", m.Instance.ID, "iid", m.Instance.IID)
		l.feedback.HandleCreateSource(m)
	case command.DroppedSource:
		l.Logger.Debug("source instance dropped", "id", m.Instance.ID, "iid", m.Instance.IID)
		l.feedback.HandleDroppedSource(m)
	}
}

// SetCacher wires a source cacher collaborator into the loop after
// construction (cmd/coord/start.go builds the Cacher from the resolved data
// directory, which isn't available at New time). It updates both the
// public field callers may already read and the feedback handler that
// actually calls it.
func (l *Loop) SetCacher(c cacher.Cacher) {
	l.Cacher = c
	l.feedback.Cacher = c
}

// handleTick advances local inputs exactly once per tick, following the
// local-input-advancement algorithm in spec.md §4.2: compute next_ts, then
// tell workers to close off everything below it.
func (l *Loop) handleTick() {
	next := l.Oracle.NextLocalInputAdvance()
	l.Oracle.SetClosedUpTo(next)
	l.Oracle.ResetNeedAdvance()
	if err := l.Shipper.Send(command.AdvanceAllLocalInputs{AdvanceTo: next}); err != nil {
		l.Logger.Error("failed to ship local input advance", "err", err)
	}
}

func (l *Loop) handlePlan(req planExecRequest) {
	result, err := planner.Sequence(l.Catalog, l.Tracker, req.Plan)
	if err == nil {
		l.ship(result.Commands)
	}
	req.Reply <- planExecResult{Result: result, Err: err}
}

func (l *Loop) handleSinkComplete(req sinkCompleteRequest) {
	result, err := planner.CompleteSink(l.Catalog, req.ID, req.Connector, req.Kind)
	if err == nil {
		l.ship(result.Commands)
	}
	req.Reply <- planExecResult{Result: result, Err: err}
}

func (l *Loop) handlePeek(req peekExecRequest) {
	plan, err := l.peekSeq.Sequence(req.ConnID, req.Tx, req.Target, req.When, req.MFP, req.Finishing)
	if err == nil {
		if plan.CreateTransient != nil {
			l.ship([]command.ToWorker{*plan.CreateTransient})
			l.pendingTransientDrops[req.ConnID] = plan.Peek.ID
		}
		l.ship([]command.ToWorker{plan.Peek})
	}
	req.Reply <- peekExecResult{Plan: plan, Err: err}
}

// dropPendingTransient tears down the transient index allocated for
// connID's most recent fallback peek, if any, once that peek's response has
// come back. Left uncalled, a transient index would sit in the tracker and
// on workers forever (spec.md §4.6).
func (l *Loop) dropPendingTransient(connID types.ConnID) {
	id, ok := l.pendingTransientDrops[connID]
	if !ok {
		return
	}
	delete(l.pendingTransientDrops, connID)
	l.Tracker.Remove(id)
	l.ship([]command.ToWorker{command.DropIndexes{IDs: []types.GlobalId{id}}})
}

func (l *Loop) handleDescribe(req describeRequest) {
	since, sok := l.Tracker.SinceOf(req.ID)
	upper, uok := l.Tracker.UpperOf(req.ID)
	req.Reply <- describeResult{Since: since, Upper: upper, Found: sok || uok}
}

func (l *Loop) handleCancel(connID types.ConnID) {
	if err := l.Shipper.Send(command.CancelPeek{ConnID: connID}); err != nil {
		l.Logger.Error("failed to ship cancel", "err", err)
	}
}

func (l *Loop) handleClient(cmd command.FromClient) {
	switch cmd.(type) {
	case command.Startup, command.Execute, command.NoSessionExecute, command.Declare, command.Describe, command.Terminate:
		// SQL planning is out of scope (spec.md §1 Non-goals); these arrive
		// over the wire but are dispatched to SubmitPlan/SubmitPeek by the
		// rpc layer once a planner.Plan has been produced, not here.
		l.Logger.Debug("client command received, awaiting externally-produced plan", "type", cmd)
	case command.CancelRequest:
		l.handleCancel(cmd.(command.CancelRequest).ConnID)
	case command.DumpCatalog:
		l.Logger.Debug("catalog dump requested")
	}
}

// ship sends each command to the shipper, applying the ship_dataflow
// as_of correction described in spec.md §4.9: a dataflow's as_of must
// never be behind the current least_valid_since of what it imports, since
// sequencing and shipping are not atomic with respect to a concurrent
// compaction report arriving on the feedback stream.
func (l *Loop) ship(cmds []command.ToWorker) {
	for _, cmd := range cmds {
		if cd, ok := cmd.(command.CreateDataflows); ok {
			cmd = command.CreateDataflows{Dataflows: l.correctAsOfs(cd.Dataflows)}
		}
		if err := l.Shipper.Send(cmd); err != nil {
			l.Logger.Error("failed to ship command", "err", err)
		}
	}
}

func (l *Loop) correctAsOfs(descs []dataflow.Description) []dataflow.Description {
	for i, d := range descs {
		if d.AsOf == nil {
			continue
		}
		least := l.Tracker.LeastValidSince(d.ImportedIndexIDs())
		leastElem, hasLeast := least.Element()
		asOfElem, hasAsOf := d.AsOf.Element()
		if hasLeast && (!hasAsOf || asOfElem < leastElem) {
			corrected := least
			(&coorderr.FrontierCorrectedError{
				ID:            d.DebugName,
				ReportedSince: d.AsOf.String(),
				ReportedUpper: least.String(),
			}).Log(l.Logger)
			descs[i].AsOf = &corrected
		}
	}
	return descs
}
