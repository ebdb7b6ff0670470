// Package admin exposes an optional gRPC introspection service for
// operators: the peer list with each peer's in-flight packet count and
// last-heard time (it does not report per-entity authority status),
// grounded on the teacher's use of a raw *grpc.ClientConn
// in core/common_structs.go's AIEngine and core/ai.go's grpc.Dial — here
// played from the server side instead. Since this module's wire format
// is hand-rolled rather than protobuf, the service is defined directly
// against grpc.ServiceDesc with a small JSON codec instead of generated
// stubs, keeping the admin surface introspectable without pulling a
// protoc step into the build.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec lets the admin service exchange plain Go structs without a
// .proto-generated message type, satisfying grpc's encoding.Codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error  { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                        { return jsonCodecName }

// PeerInfo is one peer's introspectable state.
type PeerInfo struct {
	Addr            string `json:"addr"`
	InFlightPackets int    `json:"in_flight_packets"`
	LastHeard        string `json:"last_heard,omitempty"`
}

// Status is the full snapshot returned by ListPeers.
type Status struct {
	Peers []PeerInfo `json:"peers"`
}

// Empty is the request message for every method on this service.
type Empty struct{}

// Source supplies the live data the admin service reports; a
// WorldManager-owning application implements this over its peer table.
type Source interface {
	PeerInfos() []PeerInfo
}

// Server is the admin gRPC service implementation.
type Server struct {
	source Source
}

// NewServer returns an admin Server reporting source's live state.
func NewServer(source Source) *Server { return &Server{source: source} }

func (s *Server) listPeers(ctx context.Context, req *Empty) (*Status, error) {
	return &Status{Peers: s.source.PeerInfos()}, nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "replicon.admin.Admin",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListPeers",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				var req Empty
				if err := dec(&req); err != nil {
					return nil, err
				}
				return srv.(*Server).listPeers(ctx, &req)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "admin.proto",
}

// Listen starts a gRPC server on addr exposing the admin service, and
// returns it running in the background along with its net.Listener so
// the caller can shut it down.
func Listen(addr string, source Source) (*grpc.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("admin: listen %s: %w", addr, err)
	}
	srv := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	srv.RegisterService(&serviceDesc, NewServer(source))
	go srv.Serve(ln)
	return srv, ln, nil
}
