// Package memory provides keyed, persistent semantic memory for agents.
//
// A memory space is a named collection of free-text fragments. Fragments are
// written with Add, removed with Delete and found again with Search, which
// ranks stored fragments by vector similarity to an arbitrary query.
//
// Architecture:
//   - Manager: resolves a key to a table (open-or-create) and runs add/delete/search
//   - SchemaCache: derives the record schema from the Embedder exactly once
//   - Engine: vector storage backend (chromem-go by default, Postgres/pgvector,
//     SQLite or an in-process HNSW graph)
//   - Embedder: text-to-vector conversion (OpenAI, Gemini, local ONNX model, mock)
//
// Every space gets its own table, named by formatting the key into
// Config.TableNameTemplate ("memory-{key}" by default). Tables are created on
// first use and live until deleted outside this package.
//
// Alternative backends implement Provider, the {Add, Delete, Search} capability
// set. Manager is the local implementation; rpc.Client talks to a remote one.
package memory
