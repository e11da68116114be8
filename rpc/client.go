package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/becomeliminal/nim-memory/memory"
)

// Client is a memory.Provider backed by a remote memory service.
type Client struct {
	conn *grpc.ClientConn
}

var _ memory.Provider = (*Client)(nil)

// Dial connects to the memory service at target. Without options the
// connection is plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial memory service: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Add(ctx context.Context, key string, content string) (string, error) {
	out, err := c.invoke(ctx, addMethod, map[string]interface{}{
		fieldKey:     key,
		fieldContent: content,
	})
	if err != nil {
		return "", err
	}
	return out.GetFields()[fieldID].GetStringValue(), nil
}

func (c *Client) Delete(ctx context.Context, key string, id string) error {
	_, err := c.invoke(ctx, deleteMethod, map[string]interface{}{
		fieldKey: key,
		fieldID:  id,
	})
	return err
}

func (c *Client) Search(ctx context.Context, key string, query string, limit int) (map[string]string, error) {
	out, err := c.invoke(ctx, searchMethod, map[string]interface{}{
		fieldKey:   key,
		fieldQuery: query,
		fieldLimit: limit,
	})
	if err != nil {
		return nil, err
	}

	fields := out.GetFields()[fieldResults].GetStructValue().GetFields()
	results := make(map[string]string, len(fields))
	for id, v := range fields {
		results[id] = v.GetStringValue()
	}
	return results, nil
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, fromStatus(method, err)
	}
	return out, nil
}

// fromStatus maps a gRPC status back onto memory errors.
func fromStatus(method string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &memory.StorageError{Op: method, Err: err}
	}

	switch st.Code() {
	case codes.InvalidArgument:
		if strings.Contains(st.Message(), memory.ErrInvalidLimit.Error()) {
			return fmt.Errorf("%w: %s", memory.ErrInvalidLimit, st.Message())
		}
		return errors.New(st.Message())
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.FailedPrecondition:
		return &memory.ConfigurationError{Op: method, Err: errors.New(st.Message())}
	default:
		return &memory.StorageError{Op: method, Err: errors.New(st.Message())}
	}
}
