package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coordinatordb/coord/internal/command"
	"github.com/coordinatordb/coord/internal/coordinator"
	"github.com/coordinatordb/coord/internal/coorderr"
	"github.com/coordinatordb/coord/internal/peek"
	"github.com/coordinatordb/coord/internal/planner"
	"github.com/coordinatordb/coord/internal/sinkbuilder"
	"github.com/coordinatordb/coord/internal/types"
)

// ServerVersion is overridden by cmd/coord at build time.
var ServerVersion = "0.0.0"

// Server is the coordinator's client-facing RPC listener: it decodes
// newline-delimited JSON requests off a Unix socket and translates each one
// into a Loop.Submit* call, the same shape the teacher's daemon server used
// to translate wire requests into storage.Storage calls.
type Server struct {
	socketPath  string
	dataDir     string
	loop        *coordinator.Loop
	logger      *slog.Logger
	sinkBuilder sinkbuilder.Builder

	listener net.Listener
	mu       sync.RWMutex
	shutdown bool

	startTime        time.Time
	lastActivityTime atomic.Value // time.Time
	activeConns      int32
	connSemaphore    chan struct{}
	requestTimeout   time.Duration

	readyChan chan struct{}
	doneChan  chan struct{}
}

// NewServer builds a Server that will serve loop's command surface over
// socketPath once Start is called.
func NewServer(socketPath, dataDir string, loop *coordinator.Loop, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	maxConns := 100
	if env := os.Getenv("COORD_DAEMON_MAX_CONNS"); env != "" {
		var n int
		if _, err := fmt.Sscanf(env, "%d", &n); err == nil && n > 0 {
			maxConns = n
		}
	}
	s := &Server{
		socketPath:     socketPath,
		dataDir:        dataDir,
		loop:           loop,
		logger:         logger,
		startTime:      time.Now(),
		connSemaphore:  make(chan struct{}, maxConns),
		requestTimeout: 30 * time.Second,
		readyChan:      make(chan struct{}),
		doneChan:       make(chan struct{}),
	}
	s.lastActivityTime.Store(time.Now())
	return s
}

// SetSinkBuilder wires the external sink builder collaborator used to
// complete two-phase sink creation (spec.md §4.7). With no builder set,
// CreateSink plans that go Pending are left Pending — fine for tests that
// never create sinks, wrong for a real daemon, which always calls this.
func (s *Server) SetSinkBuilder(b sinkbuilder.Builder) { s.sinkBuilder = b }

// Ready blocks until the listener is accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.readyChan }

// Done is closed once Start's cleanup has finished.
func (s *Server) Done() <-chan struct{} { return s.doneChan }

// Start listens on the server's socket and serves connections until Stop is
// called. It closes doneChan on return, matching the teacher's
// Start/Stop/doneChan lifecycle (server_core.go).
func (s *Server) Start() error {
	defer close(s.doneChan)

	if _, err := EnsureSocketDir(s.socketPath); err != nil {
		return fmt.Errorf("ensure socket dir: %w", err)
	}
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.readyChan)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.RLock()
			shuttingDown := s.shutdown
			s.mu.RUnlock()
			if shuttingDown {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		select {
		case s.connSemaphore <- struct{}{}:
			atomic.AddInt32(&s.activeConns, 1)
			go s.serveConn(conn)
		default:
			s.logger.Warn("connection limit reached, rejecting client")
			_ = conn.Close()
		}
	}
}

// Stop closes the listener, interrupting Accept in Start.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (s *Server) serveConn(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		atomic.AddInt32(&s.activeConns, -1)
		<-s.connSemaphore
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(conn, Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}
		s.lastActivityTime.Store(time.Now())
		resp := s.dispatch(&req)
		if !resp.Success {
			s.logger.Debug("request failed", "request_id", req.RequestID, "operation", req.Operation, "err", resp.Error)
		}
		s.writeResponse(conn, resp)
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(Response{Success: false, Error: "failed to encode response"})
	}
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func (s *Server) dispatch(req *Request) Response {
	switch req.Operation {
	case OpHealth:
		return s.handleHealth()
	case OpStatus:
		return s.handleStatus()
	case OpShutdown:
		return s.handleShutdown()
	case OpCreateTable:
		return s.handleCreateTable(req)
	case OpCreateSource:
		return s.handleCreateSource(req)
	case OpCreateView:
		return s.handleCreateView(req)
	case OpCreateIndex:
		return s.handleCreateIndex(req)
	case OpCreateSink:
		return s.handleCreateSink(req)
	case OpDrop:
		return s.handleDrop(req)
	case OpPeek:
		return s.handlePeek(req)
	case OpCancel:
		return s.handleCancel(req)
	case OpDescribe:
		return s.handleDescribe(req)
	default:
		return Response{Success: false, Error: fmt.Sprintf("unknown operation %q", req.Operation)}
	}
}

func (s *Server) handleHealth() Response {
	data, _ := json.Marshal(HealthReply{Status: "healthy", Uptime: time.Since(s.startTime).Seconds()})
	return Response{Success: true, Data: data}
}

func (s *Server) handleStatus() Response {
	data, _ := json.Marshal(StatusReply{
		DataDir:       s.dataDir,
		SocketPath:    s.socketPath,
		PID:           os.Getpid(),
		Version:       ServerVersion,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	})
	return Response{Success: true, Data: data}
}

func (s *Server) handleShutdown() Response {
	s.loop.Shutdown()
	go func() { _ = s.Stop() }()
	return Response{Success: true}
}

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

func errResponse(err error) Response { return Response{Success: false, Error: err.Error()} }

func planResponse(result planner.Result, err error) Response {
	if err != nil {
		return errResponse(err)
	}
	data, _ := json.Marshal(struct {
		NoOp bool `json:"no_op"`
	}{NoOp: result.NoOp})
	return Response{Success: true, Data: data}
}

func (s *Server) handleCreateTable(req *Request) Response {
	args, err := decodeArgs[CreateTableArgs](req.Args)
	if err != nil {
		return errResponse(err)
	}
	result, err := s.loop.SubmitPlan(planner.CreateTablePlan{
		Name:        types.QualifiedName{Database: args.Database, Schema: args.Schema, Item: args.Name},
		IfNotExists: args.IfNotExists,
	})
	return planResponse(result, err)
}

func (s *Server) handleCreateSource(req *Request) Response {
	args, err := decodeArgs[CreateSourceArgs](req.Args)
	if err != nil {
		return errResponse(err)
	}
	result, err := s.loop.SubmitPlan(planner.CreateSourcePlan{
		Name:           types.QualifiedName{Database: args.Database, Schema: args.Schema, Item: args.Name},
		Connector:      args.Connector,
		CachingEnabled: args.CachingEnabled,
		IfNotExists:    args.IfNotExists,
	})
	return planResponse(result, err)
}

func (s *Server) handleCreateView(req *Request) Response {
	args, err := decodeArgs[CreateViewArgs](req.Args)
	if err != nil {
		return errResponse(err)
	}
	uses := make([]types.GlobalId, 0, len(args.Uses))
	for _, u := range args.Uses {
		id, err := types.ParseGlobalId(u)
		if err != nil {
			return errResponse(err)
		}
		uses = append(uses, id)
	}
	result, err := s.loop.SubmitPlan(planner.CreateViewPlan{
		Name:         types.QualifiedName{Database: args.Database, Schema: args.Schema, Item: args.Name},
		Materialized: args.Materialized,
		ExprRef:      args.ExprRef,
		Uses:         uses,
		IfNotExists:  args.IfNotExists,
	})
	return planResponse(result, err)
}

func (s *Server) handleCreateIndex(req *Request) Response {
	args, err := decodeArgs[CreateIndexArgs](req.Args)
	if err != nil {
		return errResponse(err)
	}
	on, err := types.ParseGlobalId(args.On)
	if err != nil {
		return errResponse(err)
	}
	keys := make([]types.IndexKeyExpr, 0, len(args.Keys))
	for _, k := range args.Keys {
		keys = append(keys, types.IndexKeyExpr{Expr: k})
	}
	result, err := s.loop.SubmitPlan(planner.CreateIndexPlan{
		Name:        types.QualifiedName{Database: args.Database, Schema: args.Schema, Item: args.Name},
		On:          on,
		Keys:        keys,
		IfNotExists: args.IfNotExists,
	})
	return planResponse(result, err)
}

func (s *Server) handleCreateSink(req *Request) Response {
	args, err := decodeArgs[CreateSinkArgs](req.Args)
	if err != nil {
		return errResponse(err)
	}
	from, err := types.ParseGlobalId(args.From)
	if err != nil {
		return errResponse(err)
	}
	result, err := s.loop.SubmitPlan(planner.CreateSinkPlan{
		Name:        types.QualifiedName{Database: args.Database, Schema: args.Schema, Item: args.Name},
		From:        from,
		Builder:     types.SinkConnectorBuilder{ConnectorType: args.ConnectorType, Config: args.Config},
		Kind:        args.Kind,
		IfNotExists: args.IfNotExists,
	})
	if err != nil {
		return errResponse(err)
	}
	if result.PendingSinkID == nil {
		return planResponse(result, nil)
	}
	return s.completeSink(*result.PendingSinkID, types.SinkConnectorBuilder{ConnectorType: args.ConnectorType, Config: args.Config}, result.PendingSinkKind)
}

// completeSink runs the sink builder collaborator for id through an
// errgroup, the generalization of the teacher's fire-and-forget goroutine
// style (SPEC_FULL.md §5): a panic escaping the task is recovered and
// surfaced as a TaskFailed message on the loop's internal stream, aborting
// the loop, since it indicates a broken invariant rather than a routine
// external failure. An ordinary error from the builder or from completing
// the sink is a non-fatal collaborator error (spec.md §7): it's logged and
// returned to this client, and the loop keeps running. The task runs
// independently of the event loop; only this client connection blocks on
// it, mirroring how the teacher's synchronous request handlers behave.
func (s *Server) completeSink(id types.GlobalId, spec types.SinkConnectorBuilder, kind string) Response {
	if s.sinkBuilder == nil {
		return errResponse(fmt.Errorf("sink %s pending: no sink builder configured", id))
	}

	var g errgroup.Group
	var result planner.Result
	var collaboratorErr error
	g.Go(func() (panicErr error) {
		defer func() {
			if r := recover(); r != nil {
				panicErr = fmt.Errorf("sink builder task panicked: %v", r)
			}
		}()
		connector, err := s.sinkBuilder.Build(id, spec)
		if err != nil {
			collaboratorErr = &coorderr.ExternalSideEffectError{Collaborator: "sinkbuilder", Err: err}
			return nil
		}
		result, collaboratorErr = s.loop.SubmitSinkComplete(id, connector, kind)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("sink builder task failed fatally", "sink_id", id, "err", err)
		s.loop.SubmitInternal(coordinator.TaskFailed{Err: err})
		return errResponse(err)
	}
	if collaboratorErr != nil {
		s.logger.Warn("sink builder collaborator error", "sink_id", id, "err", collaboratorErr)
		return errResponse(collaboratorErr)
	}
	return planResponse(result, nil)
}

func (s *Server) handleDrop(req *Request) Response {
	args, err := decodeArgs[DropArgs](req.Args)
	if err != nil {
		return errResponse(err)
	}
	id, err := types.ParseGlobalId(args.ID)
	if err != nil {
		return errResponse(err)
	}
	result, err := s.loop.SubmitPlan(planner.DropPlan{ID: id, Cascade: args.Cascade, IfExists: args.IfExists})
	return planResponse(result, err)
}

func (s *Server) handlePeek(req *Request) Response {
	args, err := decodeArgs[PeekArgs](req.Args)
	if err != nil {
		return errResponse(err)
	}
	target, err := types.ParseGlobalId(args.Target)
	if err != nil {
		return errResponse(err)
	}
	when := peek.Immediately()
	if args.AsOf != nil {
		when = peek.AtTimestamp(types.Timestamp(*args.AsOf))
	}
	_, err = s.loop.SubmitPeek(types.ConnID(args.ConnID), args.Tx, target, when, command.MapFilterProject{}, command.RowSetFinishing{})
	if err != nil {
		return errResponse(err)
	}

	select {
	case resp := <-s.loop.Responses():
		reply := PeekReply{Rows: resp.Result.Rows, Error: resp.Result.Error, Canceled: resp.Result.Canceled}
		data, _ := json.Marshal(reply)
		return Response{Success: true, Data: data}
	case <-time.After(s.requestTimeout):
		return errResponse(fmt.Errorf("peek timed out after %s", s.requestTimeout))
	}
}

func (s *Server) handleCancel(req *Request) Response {
	args, err := decodeArgs[CancelArgs](req.Args)
	if err != nil {
		return errResponse(err)
	}
	s.loop.CancelPeek(types.ConnID(args.ConnID))
	return Response{Success: true}
}

func (s *Server) handleDescribe(req *Request) Response {
	args, err := decodeArgs[DescribeArgs](req.Args)
	if err != nil {
		return errResponse(err)
	}

	var id types.GlobalId
	switch {
	case args.ID != "":
		id, err = types.ParseGlobalId(args.ID)
		if err != nil {
			return errResponse(err)
		}
	case args.Name != "":
		name, err := parseQualifiedName(args.Name)
		if err != nil {
			return errResponse(err)
		}
		var ok bool
		id, ok = s.loop.Catalog.LookupByName(name)
		if !ok {
			return errResponse(fmt.Errorf("no catalog entry named %q", args.Name))
		}
	default:
		return errResponse(fmt.Errorf("describe requires an id or a name"))
	}

	item, ok := s.loop.Catalog.Lookup(id)
	if !ok {
		return errResponse(fmt.Errorf("no catalog entry with id %s", id))
	}

	reply := DescribeReply{
		ID:              item.ID.String(),
		Name:            item.Name.String(),
		Kind:            item.Kind.String(),
		SQL:             item.SQL,
		SourceConnector: item.SourceConnector,
		CachingEnabled:  item.CachingEnabled,
		Materialized:    item.Materialized,
	}
	if item.Kind == types.ItemSink {
		reply.SinkFrom = item.SinkFrom.String()
		switch {
		case item.SinkConnector.IsReady():
			reply.SinkState = "ready"
		case item.SinkConnector.IsPending():
			reply.SinkState = "pending"
		}
	}
	if item.Kind == types.ItemIndex {
		reply.IndexOn = item.IndexOn.String()
	}

	if since, upper, found := s.loop.SubmitDescribe(id); found {
		reply.Since = since.String()
		reply.Upper = upper.String()
	}

	data, _ := json.Marshal(reply)
	return Response{Success: true, Data: data}
}

func parseQualifiedName(s string) (types.QualifiedName, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return types.QualifiedName{}, fmt.Errorf("name %q must be database.schema.item", s)
	}
	return types.QualifiedName{Database: parts[0], Schema: parts[1], Item: parts[2]}, nil
}
