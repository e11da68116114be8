package rpc_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/store/hnsw"
	"github.com/becomeliminal/nim-memory/rpc"
)

// failingProvider returns err from every call.
type failingProvider struct {
	err error
}

func (p *failingProvider) Add(ctx context.Context, key, content string) (string, error) {
	return "", p.err
}

func (p *failingProvider) Delete(ctx context.Context, key, id string) error {
	return p.err
}

func (p *failingProvider) Search(ctx context.Context, key, query string, limit int) (map[string]string, error) {
	return nil, p.err
}

func startServer(t *testing.T, provider memory.Provider) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv, _ := rpc.NewServer(provider)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newManager(t *testing.T) *memory.Manager {
	t.Helper()

	mgr, err := memory.NewManager(hnsw.New(), mock.New(), &memory.Config{
		Location:          t.Name(),
		TableNameTemplate: memory.DefaultTableNameTemplate,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return mgr
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := rpc.NewClient(startServer(t, newManager(t)))

	milk, err := client.Add(ctx, "alice", "buy milk")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	eggs, err := client.Add(ctx, "alice", "buy eggs")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := client.Add(ctx, "bob", "walk the dog"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	results, err := client.Search(ctx, "alice", "groceries", 20)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 || results[milk] != "buy milk" || results[eggs] != "buy eggs" {
		t.Fatalf("unexpected results: %v", results)
	}

	if err := client.Delete(ctx, "alice", milk); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	results, err = client.Search(ctx, "alice", "groceries", 20)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if _, ok := results[milk]; ok || len(results) != 1 {
		t.Fatalf("expected only eggs, got %v", results)
	}
}

func TestClientSearchEmptySpace(t *testing.T) {
	client := rpc.NewClient(startServer(t, newManager(t)))

	results, err := client.Search(context.Background(), "nobody", "anything", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %v", results)
	}
}

func TestClientInvalidLimit(t *testing.T) {
	client := rpc.NewClient(startServer(t, newManager(t)))

	_, err := client.Search(context.Background(), "alice", "anything", 0)
	if !errors.Is(err, memory.ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestClientErrorMapping(t *testing.T) {
	t.Run("configuration", func(t *testing.T) {
		provider := &failingProvider{err: &memory.ConfigurationError{Op: "derive schema", Err: errors.New("offline")}}
		client := rpc.NewClient(startServer(t, provider))

		_, err := client.Add(context.Background(), "alice", "milk")
		var cfgErr *memory.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
		}
	})

	t.Run("storage", func(t *testing.T) {
		provider := &failingProvider{err: &memory.StorageError{Op: "connect", Err: errors.New("refused")}}
		client := rpc.NewClient(startServer(t, provider))

		err := client.Delete(context.Background(), "alice", "id")
		var stErr *memory.StorageError
		if !errors.As(err, &stErr) {
			t.Fatalf("expected StorageError, got %T: %v", err, err)
		}
	})
}

func TestHealth(t *testing.T) {
	conn := startServer(t, newManager(t))

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{
		Service: rpc.ServiceName,
	})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", resp.GetStatus())
	}
}
