package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/cache"
	"github.com/becomeliminal/nim-memory/memory/embedder/google"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/embedder/openai"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/memory/store/hnsw"
	"github.com/becomeliminal/nim-memory/memory/store/postgres"
	"github.com/becomeliminal/nim-memory/memory/store/sqlite"
	"github.com/becomeliminal/nim-memory/rpc"
	"github.com/becomeliminal/nim-memory/server"
)

var (
	cfg struct {
		// Storage config
		Config   string `help:"Optional YAML config file (location, table_name_template)" type:"path" default:""`
		Engine   string `help:"Storage engine" enum:"chromem,sqlite,postgres,hnsw" default:"chromem" env:"MEMORY_ENGINE"`
		Location string `help:"Engine data root: directory, file or DSN (default: under $NIM_HOME)" default:"" env:"MEMORY_LOCATION"`
		Template string `help:"Table name template, must contain {key}" default:"" env:"MEMORY_TABLE_TEMPLATE"`

		// Embedder config
		Embedder       string `help:"Embedding provider (mock is a non-semantic hash for local testing)" enum:"openai,google,mock" default:"openai" env:"MEMORY_EMBEDDER"`
		EmbedderModel  string `help:"Embedding model (provider default when empty)" default:""`
		OpenAIKey      string `help:"OpenAI API key" default:"" env:"OPENAI_API_KEY"`
		GoogleKey      string `help:"Gemini API key" default:"" env:"GEMINI_API_KEY"`
		EmbedCacheSize int64  `help:"Embeddings kept in the in-process cache (0 disables)" default:"10000"`

		// Server config
		HTTPAddr string `help:"HTTP and websocket listen address" default:":8080" env:"MEMORY_HTTP_ADDR"`
		GRPCAddr string `help:"gRPC listen address" default:":9090" env:"MEMORY_GRPC_ADDR"`
	}
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	_ = kong.Parse(&cfg, kong.Description("Serves keyed semantic memory over HTTP, websocket and gRPC."))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("memoryd: %v", err)
	}
}

func run(ctx context.Context) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	engine, closeEngine, err := newEngine(cfg.Engine)
	if err != nil {
		return err
	}
	defer closeEngine()

	embedder, closeEmbedder, err := newEmbedder(ctx)
	if err != nil {
		return err
	}
	defer closeEmbedder()

	mgr, err := memory.NewManager(engine, embedder, config)
	if err != nil {
		return err
	}
	log.Printf("[MEMORYD] %s (engine=%s, embedder=%s)", mgr, cfg.Engine, cfg.Embedder)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.New(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv, health := rpc.NewServer(mgr)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	errs := make(chan error, 2)
	go func() {
		log.Printf("[MEMORYD] HTTP listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Printf("[MEMORYD] gRPC listening on %s", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			errs <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("[MEMORYD] Shutting down")
	case err := <-errs:
		return err
	}

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[MEMORYD] HTTP shutdown: %v", err)
	}
	grpcSrv.GracefulStop()
	return nil
}

// loadConfig layers flags over the config file over the defaults.
func loadConfig() (*memory.Config, error) {
	config := memory.DefaultConfig()
	if cfg.Config != "" {
		fileCfg, err := memory.LoadConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		config = fileCfg
	}

	switch {
	case cfg.Location != "":
		config.Location = cfg.Location
	case config.Location != memory.DefaultConfig().Location:
		// set by the config file
	case cfg.Engine == "postgres":
		return nil, errors.New("postgres engine needs --location with a DSN")
	case cfg.Engine == "sqlite":
		config.Location = memory.DefaultLocation("memory.db")
	default:
		config.Location = memory.DefaultLocation(cfg.Engine)
	}
	if cfg.Template != "" {
		config.TableNameTemplate = cfg.Template
	}
	return config, config.Validate()
}

func newEngine(name string) (memory.Engine, func(), error) {
	noop := func() {}
	switch name {
	case "chromem":
		return chromem.New(chromem.WithCompression(true)), noop, nil
	case "hnsw":
		return hnsw.New(), noop, nil
	case "sqlite":
		s := sqlite.New()
		return s, func() { s.Close() }, nil
	case "postgres":
		p := postgres.New()
		return p, func() { p.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown engine %q", name)
	}
}

func newEmbedder(ctx context.Context) (memory.Embedder, func(), error) {
	var (
		base    memory.Embedder
		cleanup = func() {}
	)

	switch cfg.Embedder {
	case "mock":
		base = mock.New()
	case "openai":
		e, err := openai.New(openai.Config{APIKey: cfg.OpenAIKey, Model: cfg.EmbedderModel})
		if err != nil {
			return nil, cleanup, fmt.Errorf("openai embedder: %w", err)
		}
		base = e
	case "google":
		e, err := google.New(ctx, google.Config{APIKey: cfg.GoogleKey, Model: cfg.EmbedderModel})
		if err != nil {
			return nil, cleanup, fmt.Errorf("google embedder: %w", err)
		}
		base = e
		cleanup = func() { e.Close() }
	default:
		return nil, cleanup, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}

	if cfg.EmbedCacheSize <= 0 {
		return base, cleanup, nil
	}

	cached, err := cache.New(base, cache.Config{MaxEntries: cfg.EmbedCacheSize})
	if err != nil {
		return nil, cleanup, err
	}
	inner := cleanup
	return cached, func() { cached.Close(); inner() }, nil
}
