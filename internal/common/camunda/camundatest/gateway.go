// Package camundatest records the job commands a handler sends, so handlers can be tested
// without a running broker.
package camundatest

import (
	"context"
	"sync"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"google.golang.org/grpc"
)

// Gateway implements the job completion RPCs of pb.GatewayClient. Any other RPC panics.
type Gateway struct {
	pb.GatewayClient

	// Err, when set, is returned from every call after it is recorded.
	Err error

	mu        sync.Mutex
	completed []*pb.CompleteJobRequest
	failed    []*pb.FailJobRequest
	thrown    []*pb.ThrowErrorRequest
	ctxErrs   []error
}

func (g *Gateway) CompleteJob(ctx context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = append(g.completed, in)
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	if g.Err != nil {
		return nil, g.Err
	}
	return &pb.CompleteJobResponse{}, nil
}

func (g *Gateway) FailJob(ctx context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed = append(g.failed, in)
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	if g.Err != nil {
		return nil, g.Err
	}
	return &pb.FailJobResponse{}, nil
}

func (g *Gateway) ThrowError(ctx context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thrown = append(g.thrown, in)
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	if g.Err != nil {
		return nil, g.Err
	}
	return &pb.ThrowErrorResponse{}, nil
}

func (g *Gateway) Completed() []*pb.CompleteJobRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*pb.CompleteJobRequest(nil), g.completed...)
}

func (g *Gateway) Failed() []*pb.FailJobRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*pb.FailJobRequest(nil), g.failed...)
}

func (g *Gateway) Thrown() []*pb.ThrowErrorRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*pb.ThrowErrorRequest(nil), g.thrown...)
}

// ContextErrors returns ctx.Err() as observed by each call, in call order.
func (g *Gateway) ContextErrors() []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error(nil), g.ctxErrs...)
}

// JobClient builds real zeebe commands on top of a Gateway. Commands are never retried.
type JobClient struct {
	gateway pb.GatewayClient
}

func NewJobClient(gateway pb.GatewayClient) *JobClient {
	return &JobClient{gateway: gateway}
}

func (c *JobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, noRetry)
}

func (c *JobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, noRetry)
}

func (c *JobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, noRetry)
}

func noRetry(context.Context, error) bool { return false }
