package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/faultyai/internal/logger"
	"github.com/bastiangx/faultyai/pkg/config"
	"github.com/bastiangx/faultyai/pkg/editor"
	"github.com/bastiangx/faultyai/pkg/resolve"
	"github.com/bastiangx/faultyai/pkg/session"
)

var logs = logger.New("server")

var (
	// ErrUnknownAction is returned for an action the server does not implement.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnknownDocument is returned for a document that was never opened or is closed.
	ErrUnknownDocument = errors.New("unknown document")
	// ErrTooManyDocuments is returned by open once server.max_documents are open.
	ErrTooManyDocuments = errors.New("too many open documents")
)

const (
	autoClosingBrackets        = "editor.autoClosingBrackets"
	autoClosingBracketsOff     = "never"
	autoClosingBracketsDefault = "languageDefined"
)

// Server handles msgpack IPC for suggestion sessions.
type Server struct {
	resolver *resolve.Resolver
	dec      *msgpack.Decoder

	writeMu sync.Mutex
	enc     *msgpack.Encoder

	mu   sync.Mutex
	cfg  *config.Config
	docs map[string]*document
}

// document is one open buffer and its controller.
type document struct {
	id   string
	buf  *editor.Document
	ctrl *session.Controller
	prev string

	opsMu      sync.Mutex
	collecting bool
	cmds       []Command
}

// NewServer creates a server on stdin and stdout.
func NewServer(cfg *config.Config) *Server {
	return NewServerWithIO(cfg, os.Stdin, os.Stdout)
}

// NewServerWithIO creates a server reading requests from r and writing to w.
func NewServerWithIO(cfg *config.Config, r io.Reader, w io.Writer) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Server{
		resolver: resolve.New(nil),
		dec:      msgpack.NewDecoder(r),
		enc:      msgpack.NewEncoder(w),
		cfg:      cfg,
		docs:     make(map[string]*document),
	}
}

// Start processes requests until the input ends or ctx is done. Open documents are closed on
// return, which waits for their background formatting.
func (s *Server) Start(ctx context.Context) error {
	logs.Debug("Starting Server.")
	defer s.closeAll()

	s.send(Response{Status: StatusReady})

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		var req Request
		if err := s.dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			logs.Error("Reading request", "err", err)
			return fmt.Errorf("decode request: %w", err)
		}
		s.send(s.handleRequest(ctx, req))
	}
}

// ApplyConfig swaps the config and pushes the engine options to every open document.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	docs := make([]*document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.mu.Unlock()

	opts := cfg.Engine.SessionOptions()
	for _, d := range docs {
		d.ctrl.SetOptions(opts)
	}
	logs.Debug("Applied config", "documents", len(docs), "layout", cfg.Engine.Layout)
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	resp, err := s.dispatch(ctx, req)
	resp.ID = req.ID
	if err != nil {
		logs.Debug("Request failed", "id", req.ID, "action", req.Action, "err", err)
		resp.Status = StatusError
		resp.Error = err.Error()
		return resp
	}
	resp.Status = StatusOK
	return resp
}

func (s *Server) dispatch(ctx context.Context, req Request) (Response, error) {
	switch req.Action {
	case ActionOpen:
		return s.open(req)
	case ActionRules:
		return Response{Keys: s.resolver.Table().Keys(req.Prefix)}, nil
	case ActionHealth:
		s.mu.Lock()
		defer s.mu.Unlock()
		return Response{Documents: len(s.docs)}, nil
	case ActionClose:
		return s.close(req)
	case ActionChange, ActionAccept, ActionDismiss, ActionBlur, ActionHover:
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}

	d, err := s.lookup(req.Doc)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Doc: d.id}

	d.begin()
	switch req.Action {
	case ActionChange:
		if req.TabSize > 0 || req.InsertSpaces != nil {
			d.buf.SetOptions(s.options(req, d.buf.Options()))
		}
		err = d.buf.Apply(ctx, toChanges(req.Changes)...)
	case ActionAccept:
		err = d.ctrl.Accept(ctx)
		switch {
		case err == nil:
			resp.Accepted = true
		case errors.Is(err, session.ErrNoSuggestion), errors.Is(err, session.ErrBusy):
			err = nil
		}
	case ActionDismiss:
		d.ctrl.Dismiss(ctx)
	case ActionBlur:
		d.ctrl.FocusLost(ctx)
	case ActionHover:
		resp.Hover, _ = d.ctrl.Hover(req.Line)
	}
	resp.Commands = d.end()
	if err != nil {
		return resp, fmt.Errorf("%s %s: %w", req.Action, d.id, err)
	}
	return resp, nil
}

func (s *Server) open(req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := req.Doc
	if id == "" {
		id = uuid.NewString()
	}
	if old, ok := s.docs[id]; ok {
		logs.Debug("Reopening document", "doc", id)
		old.shutdown()
		delete(s.docs, id)
	}
	if limit := s.cfg.Server.MaxDocuments; limit > 0 && len(s.docs) >= limit {
		return Response{}, fmt.Errorf("%w (%d)", ErrTooManyDocuments, limit)
	}

	buf := editor.NewDocumentLines(req.Lines, s.options(req, editor.Options{
		TabSize:      s.cfg.Engine.TabSize,
		InsertSpaces: s.cfg.Engine.InsertSpaces,
	}))
	d := &document{
		id:   id,
		buf:  buf,
		ctrl: session.New(buf, s.resolver, s.cfg.Engine.SessionOptions()),
		prev: req.Previous,
	}
	d.ctrl.Attach(buf)
	buf.SetSink(func(op editor.Op) { s.record(d, op) })
	s.docs[id] = d

	resp := Response{Doc: id}
	if s.cfg.Server.DisableAutoClosingBrackets {
		resp.Commands = []Command{{Kind: CmdSettings, Key: autoClosingBrackets, Value: autoClosingBracketsOff}}
	}
	logs.Debug("Opened document", "doc", id, "lines", buf.LineCount())
	return resp, nil
}

func (s *Server) close(req Request) (Response, error) {
	s.mu.Lock()
	d, ok := s.docs[req.Doc]
	if ok {
		delete(s.docs, req.Doc)
	}
	restore := s.cfg.Server.DisableAutoClosingBrackets
	s.mu.Unlock()

	if !ok {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownDocument, req.Doc)
	}
	d.shutdown()

	resp := Response{Doc: d.id}
	if restore {
		prev := d.prev
		if prev == "" {
			prev = autoClosingBracketsDefault
		}
		resp.Commands = []Command{{Kind: CmdSettings, Key: autoClosingBrackets, Value: prev}}
	}
	logs.Debug("Closed document", "doc", d.id)
	return resp, nil
}

func (s *Server) lookup(id string) (*document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocument, id)
	}
	return d, nil
}

func (s *Server) options(req Request, base editor.Options) editor.Options {
	if req.TabSize > 0 {
		base.TabSize = req.TabSize
	}
	if req.InsertSpaces != nil {
		base.InsertSpaces = *req.InsertSpaces
	}
	return base
}

// record queues op for the response being built, or pushes it when no request is running.
func (s *Server) record(d *document, op editor.Op) {
	cmd := toCommand(op)
	d.opsMu.Lock()
	if d.collecting {
		d.cmds = append(d.cmds, cmd)
		d.opsMu.Unlock()
		return
	}
	d.opsMu.Unlock()
	s.send(Response{Doc: d.id, Commands: []Command{cmd}})
}

func (s *Server) send(resp Response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		logs.Error("Writing response", "id", resp.ID, "err", err)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	docs := s.docs
	s.docs = make(map[string]*document)
	s.mu.Unlock()
	for _, d := range docs {
		d.ctrl.Wait()
		d.shutdown()
	}
}

func (d *document) begin() {
	d.opsMu.Lock()
	defer d.opsMu.Unlock()
	d.collecting = true
	d.cmds = nil
}

func (d *document) end() []Command {
	d.opsMu.Lock()
	defer d.opsMu.Unlock()
	d.collecting = false
	cmds := d.cmds
	d.cmds = nil
	return cmds
}

func (d *document) shutdown() {
	d.ctrl.Close()
	d.buf.Close()
}

func toChanges(in []ContentChange) []editor.Change {
	out := make([]editor.Change, len(in))
	for i, c := range in {
		out[i] = editor.Change{
			Range: editor.Range{
				Start: editor.Position{Line: c.StartLine, Col: c.StartCol},
				End:   editor.Position{Line: c.EndLine, Col: c.EndCol},
			},
			Text: c.Text,
		}
	}
	return out
}

func toCommand(op editor.Op) Command {
	switch op.Kind {
	case editor.OpEdit:
		return Command{
			Kind:      CmdEdit,
			StartLine: op.Range.Start.Line,
			StartCol:  op.Range.Start.Col,
			EndLine:   op.Range.End.Line,
			EndCol:    op.Range.End.Col,
			Text:      op.Text,
		}
	case editor.OpOverlay:
		ov := make([]OverlayLine, len(op.Overlays))
		for i, o := range op.Overlays {
			ov[i] = OverlayLine{Line: o.Line, Text: o.Text}
		}
		return Command{Kind: CmdOverlay, Overlays: ov}
	case editor.OpCursor:
		return Command{Kind: CmdCursor, Line: op.Pos.Line, Col: op.Pos.Col}
	case editor.OpFormat:
		return Command{Kind: CmdFormat, StartLine: op.Range.Start.Line, EndLine: op.Range.End.Line}
	case editor.OpNotify:
		return Command{Kind: CmdNotify, Message: op.Text}
	default:
		return Command{Kind: CmdClear}
	}
}
