package grpc

import (
	"context"

	"github.com/olyamironova/swap-router/internal/api/dto"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ExecuteSwap(ctx context.Context, req dto.SwapRequest, opts ...grpc.CallOption) (dto.SwapResponse, error) {
	return c.call(ctx, "ExecuteSwap", req, opts)
}

func (c *Client) QuoteSwap(ctx context.Context, req dto.SwapRequest, opts ...grpc.CallOption) (dto.SwapResponse, error) {
	return c.call(ctx, "QuoteSwap", req, opts)
}

func (c *Client) call(ctx context.Context, method string, req dto.SwapRequest, opts []grpc.CallOption) (dto.SwapResponse, error) {
	var res dto.SwapResponse
	in, err := ToStruct(req)
	if err != nil {
		return res, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return res, err
	}
	err = FromStruct(out, &res)
	return res, err
}
