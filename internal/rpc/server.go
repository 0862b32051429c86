// Package rpc exposes internal/heap's read-only query surface over grpc, so
// a process that already ran analyze/serve doesn't need to reopen and
// re-index a dump for every follow-up lookup (§6 "API consumed by query
// layer", out-of-scope upward consumer per spec.md §1).
package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/heapdump-analysis/internal/heap"
	"github.com/heapdump-analysis/pkg/utils"
)

// Server implements HeapQueryServiceServer over a small in-process cache of
// opened dumps, keyed by the path they were opened from. Not safe to share
// a single *heap.HeapDump handle across concurrent requests (§5), so each
// handle is guarded by its own mutex.
type Server struct {
	logger utils.Logger

	mu    sync.Mutex
	dumps map[string]*openDump
}

type openDump struct {
	mu sync.Mutex
	hd *heap.HeapDump
}

// NewServer creates a Server. logger may be nil, in which case the default
// logger is used (matching the rest of the module's constructors).
func NewServer(logger utils.Logger) *Server {
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}
	return &Server{logger: logger, dumps: make(map[string]*openDump)}
}

// Serve starts a grpc.Server registered with s and blocks until lis closes
// or the server stops.
func Serve(lis net.Listener, s *Server) error {
	grpcServer := grpc.NewServer()
	RegisterHeapQueryServiceServer(grpcServer, s)
	return grpcServer.Serve(lis)
}

// Dial connects to a HeapQueryService at target, defaulting every call to
// the json codec registered in codec.go.
func Dial(target string) (HeapQueryServiceClient, *grpc.ClientConn, error) {
	cc, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, nil, err
	}
	return NewHeapQueryServiceClient(cc), cc, nil
}

func (s *Server) OpenDump(ctx context.Context, req *OpenDumpRequest) (*OpenDumpResponse, error) {
	path := req.GetDumpPath()
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "dump_path is required")
	}

	s.mu.Lock()
	od, cached := s.dumps[path]
	s.mu.Unlock()

	if !cached {
		opts := heap.DefaultOptions()
		opts.ComputeDominators = req.ComputeDominators
		opts.TrackInboundRefs = req.TrackInboundRefs
		opts.DataDir = req.DataDir

		hd, err := heap.Open(path, opts)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "open dump: %v", err)
		}

		od = &openDump{hd: hd}
		s.mu.Lock()
		s.dumps[path] = od
		s.mu.Unlock()
		s.logger.Info("opened dump %s (handle=%s)", path, path)
	}

	od.mu.Lock()
	defer od.mu.Unlock()

	return &OpenDumpResponse{
		Handle:             path,
		ObjectCount:        int64(od.hd.ObjectCount()),
		ClassCount:         int64(od.hd.ClassCount()),
		TotalHeapBytes:     od.hd.TotalHeapSize(),
		DominatorsComputed: od.hd.HasDominators(),
	}, nil
}

func (s *Server) lookup(handle string) (*openDump, error) {
	s.mu.Lock()
	od, ok := s.dumps[handle]
	s.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown handle %q: call OpenDump first", handle)
	}
	return od, nil
}

func (s *Server) GetObject(ctx context.Context, req *GetObjectRequest) (*GetObjectResponse, error) {
	od, err := s.lookup(req.GetHandle())
	if err != nil {
		return nil, err
	}
	od.mu.Lock()
	defer od.mu.Unlock()

	obj, ok := od.hd.Object(req.GetObjectID32())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "object %d not found", req.GetObjectID32())
	}

	className := "unknown"
	if c, ok := obj.Class(); ok {
		className = c.Name
	}

	retained := int64(-1)
	if od.hd.HasDominators() {
		retained = obj.RetainedSize()
	}

	return &GetObjectResponse{
		ObjectID32:    obj.ID32(),
		ClassName:     className,
		ShallowBytes:  obj.ShallowSize(),
		RetainedBytes: retained,
		IsArray:       obj.IsArray(),
		ArrayLength:   obj.ArrayLength(),
	}, nil
}

func (s *Server) GetClass(ctx context.Context, req *GetClassRequest) (*GetClassResponse, error) {
	od, err := s.lookup(req.GetHandle())
	if err != nil {
		return nil, err
	}
	od.mu.Lock()
	defer od.mu.Unlock()

	class, ok := od.hd.ClassByName(req.GetClassName())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "class %q not found", req.GetClassName())
	}

	return &GetClassResponse{
		ClassID32:     class.ClassID32,
		Name:          class.Name,
		InstanceCount: class.InstanceCount,
	}, nil
}

func (s *Server) FindPathToRoot(ctx context.Context, req *FindPathToRootRequest) (*FindPathToRootResponse, error) {
	od, err := s.lookup(req.GetHandle())
	if err != nil {
		return nil, err
	}
	od.mu.Lock()
	defer od.mu.Unlock()

	obj, ok := od.hd.Object(req.GetObjectID32())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "object %d not found", req.GetObjectID32())
	}

	path, err := od.hd.FindPathToGcRoot(obj)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "find path: %v", err)
	}

	return &FindPathToRootResponse{PathObjectID32s: path, Found: len(path) > 0}, nil
}

func (s *Server) ComputeDominators(ctx context.Context, req *ComputeDominatorsRequest) (*ComputeDominatorsResponse, error) {
	od, err := s.lookup(req.GetHandle())
	if err != nil {
		return nil, err
	}
	od.mu.Lock()
	defer od.mu.Unlock()

	start := time.Now()
	result, err := od.hd.ComputeDominators()
	elapsed := time.Since(start)
	if err != nil {
		return &ComputeDominatorsResponse{ErrorMessage: fmt.Sprintf("%v", err)}, nil
	}

	return &ComputeDominatorsResponse{
		Approximate: result.Approximate,
		ObjectCount: int64(od.hd.ObjectCount()),
		ElapsedMs:   elapsed.Milliseconds(),
	}, nil
}
