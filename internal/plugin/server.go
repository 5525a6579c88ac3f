package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Server hosts a set of tools over a unix socket speaking newline-delimited
// JSON, and over HTTP through Handler.
type Server struct {
	tools    map[string]*Tool
	log      *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

func NewServer(log *zap.Logger, tools ...*Tool) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{tools: make(map[string]*Tool), log: log.Named("server"), stop: make(chan struct{})}
	for _, t := range tools {
		s.tools[t.Describe().Name] = t
	}
	return s
}

// Stopped is closed once a client asks the server to stop.
func (s *Server) Stopped() <-chan struct{} {
	return s.stop
}

func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.handleRequest(ctx, req)
		_ = enc.Encode(resp)
		if req.Method == MethodStop {
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	result, err := s.dispatch(ctx, req)
	if err != nil {
		return Response{ID: req.ID, Error: &RespError{Message: err.Error()}}
	}
	if result == nil {
		return Response{ID: req.ID}
	}
	b, err := json.Marshal(result)
	if err != nil {
		return Response{ID: req.ID, Error: &RespError{Message: err.Error()}}
	}
	return Response{ID: req.ID, Result: b}
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Method {
	case MethodDescribe:
		return s.describe(), nil
	case MethodInvoke:
		var params InvokeParams
		dec := json.NewDecoder(bytes.NewReader(req.Params))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return nil, err
		}
		msgs, err := s.invoke(ctx, params)
		if err != nil {
			return nil, err
		}
		return InvokeResult{Messages: msgs}, nil
	case MethodStop:
		s.stopOnce.Do(func() { close(s.stop) })
		return nil, nil
	default:
		return nil, errors.New("unknown method")
	}
}

func (s *Server) describe() []Descriptor {
	out := make([]Descriptor, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.Describe())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// ErrUnknownTool is returned when an invocation names a tool that is not
// hosted.
var ErrUnknownTool = errors.New("unknown tool")

func (s *Server) invoke(ctx context.Context, params InvokeParams) ([]Message, error) {
	name := params.Tool
	if name == "" {
		name = ToolName
	}
	t, ok := s.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	s.log.Debug("invoke", zap.String("tool", name))
	return t.Collect(ctx, params.Parameters)
}

// ServeSocket listens on socketPath until ctx ends or a client sends Stop.
func ServeSocket(ctx context.Context, socketPath string, s *Server) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return err
	}
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(socketPath)
	defer l.Close()
	go func() {
		select {
		case <-s.stop:
		case <-ctx.Done():
		}
		_ = l.Close()
	}()
	s.log.Info("listening", zap.String("socket", socketPath))
	return s.Serve(ctx, l)
}
