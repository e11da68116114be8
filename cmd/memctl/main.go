package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/rpc"
)

// Globals are shared by every subcommand.
type Globals struct {
	Addr    string        `help:"Address of memoryd's gRPC endpoint" default:"localhost:9090" env:"MEMORY_GRPC_ADDR"`
	Timeout time.Duration `help:"Per-request timeout" default:"30s"`
}

type AddCmd struct {
	Key     string `arg:"" help:"Memory key, e.g. a user ID"`
	Content string `arg:"" help:"Text to remember"`
}

func (c *AddCmd) Run(ctx context.Context, p memory.Provider) error {
	id, err := p.Add(ctx, c.Key, c.Content)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

type DeleteCmd struct {
	Key string `arg:"" help:"Memory key"`
	ID  string `arg:"" help:"Memory ID to delete"`
}

func (c *DeleteCmd) Run(ctx context.Context, p memory.Provider) error {
	return p.Delete(ctx, c.Key, c.ID)
}

type SearchCmd struct {
	Key   string `arg:"" help:"Memory key"`
	Query string `arg:"" help:"Natural language query"`
	Limit int    `help:"Maximum results" default:"20"`
}

func (c *SearchCmd) Run(ctx context.Context, p memory.Provider) error {
	results, err := p.Search(ctx, c.Key, c.Query, c.Limit)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fmt.Printf("%s\t%s\n", id, results[id])
	}
	return nil
}

var cli struct {
	Globals

	Add    AddCmd    `cmd:"" help:"Store a memory and print its ID"`
	Delete DeleteCmd `cmd:"" help:"Delete a memory by ID"`
	Search SearchCmd `cmd:"" help:"Search memories by meaning"`
}

func main() {
	_ = godotenv.Load()

	kctx := kong.Parse(&cli, kong.Description("Command line client for memoryd."))

	client, err := rpc.Dial(cli.Addr)
	if err != nil {
		log.Fatalf("memctl: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cli.Timeout)

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.BindTo(client, (*memory.Provider)(nil))
	err = kctx.Run()
	cancel()
	client.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "memctl: %v\n", err)
		os.Exit(1)
	}
}
