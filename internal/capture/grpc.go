package capture

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/ppiankov/tapwire/internal/model"
)

// gRPC attribute keys.
const (
	KeyGRPCService    = "grpc.service"
	KeyGRPCMethod     = "grpc.method"
	KeyGRPCStatusCode = "grpc.status_code"
)

// UnaryClientInterceptor captures unary calls to recognised gRPC services.
func UnaryClientInterceptor(sink EventSink, log zerolog.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		service, rpc := splitMethod(method)
		provider, ok := LookupService(service)
		if !ok {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)

		c := &grpcCall{ctx: ctx, sink: sink, log: log, provider: provider, service: service, rpc: rpc, start: start}
		c.request = marshal(req, log)
		if err == nil {
			c.responses = append(c.responses, marshal(reply, log))
		}
		c.finish(err)
		return err
	}
}

// StreamClientInterceptor captures streaming calls to recognised gRPC
// services. The event is emitted when the receive side ends.
func StreamClientInterceptor(sink EventSink, log zerolog.Logger) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		service, rpc := splitMethod(method)
		provider, ok := LookupService(service)
		if !ok {
			return streamer(ctx, desc, cc, method, opts...)
		}

		c := &grpcCall{ctx: ctx, sink: sink, log: log, provider: provider, service: service, rpc: rpc, start: time.Now()}
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			c.finish(err)
			return nil, err
		}
		return &capturedStream{ClientStream: cs, call: c, single: !desc.ServerStreams}, nil
	}
}

type capturedStream struct {
	grpc.ClientStream
	call *grpcCall
	// single is set when the server replies once. CloseAndRecv then reads
	// one message and never observes io.EOF.
	single bool
}

func (s *capturedStream) SendMsg(m any) error {
	err := s.ClientStream.SendMsg(m)
	if err == nil {
		s.call.setRequest(marshal(m, s.call.log))
	}
	return err
}

func (s *capturedStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	switch {
	case err == nil:
		s.call.addResponse(marshal(m, s.call.log))
		if s.single {
			s.call.finish(nil)
		}
	case errors.Is(err, io.EOF):
		s.call.finish(nil)
	default:
		s.call.finish(err)
	}
	return err
}

// grpcCall accumulates one call's messages until finish.
type grpcCall struct {
	ctx      context.Context
	sink     EventSink
	log      zerolog.Logger
	provider string
	service  string
	rpc      string
	start    time.Time

	mu        sync.Mutex
	once      sync.Once
	request   []byte
	responses [][]byte
}

func (c *grpcCall) setRequest(b []byte) {
	c.mu.Lock()
	c.request = b
	c.mu.Unlock()
}

func (c *grpcCall) addResponse(b []byte) {
	c.mu.Lock()
	c.responses = append(c.responses, b)
	c.mu.Unlock()
}

func (c *grpcCall) finish(err error) {
	c.once.Do(func() {
		safely(c.log, "grpc finalize", func() {
			code := status.Code(err)
			attrs := model.Attributes{
				model.KeyProvider:    c.provider,
				KeyGRPCService:       c.service,
				KeyGRPCMethod:        c.rpc,
				KeyGRPCStatusCode:    int(code),
				model.KeyContentType: "application/json",
			}

			c.mu.Lock()
			if len(c.request) > 0 {
				attrs[model.KeyRequestBinary] = c.request
			}
			if body := joinResponses(c.responses); len(body) > 0 {
				attrs[model.KeyResponseBinary] = body
			}
			c.mu.Unlock()

			ev := model.NewCaptureEvent(GRPCEventName, c.start, attrs)
			ev.Finalize(time.Now(), err)
			c.sink.Emit(c.ctx, ev)
		})
	})
}

// joinResponses returns a single message as is and wraps several in
// {"messages":[...]}.
func joinResponses(msgs [][]byte) []byte {
	var kept []json.RawMessage
	for _, m := range msgs {
		if len(m) > 0 {
			kept = append(kept, m)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	b, err := json.Marshal(map[string]any{"messages": kept})
	if err != nil {
		return nil
	}
	return b
}

func marshal(m any, log zerolog.Logger) []byte {
	msg, ok := m.(proto.Message)
	if !ok {
		return nil
	}
	b, err := protojson.Marshal(msg)
	if err != nil {
		log.Debug().Err(err).Msg("protojson marshal failed")
		return nil
	}
	return b
}

// splitMethod splits "/pkg.Service/Method".
func splitMethod(full string) (service, method string) {
	full = strings.TrimPrefix(full, "/")
	if i := strings.LastIndex(full, "/"); i >= 0 {
		return full[:i], full[i+1:]
	}
	return full, ""
}
