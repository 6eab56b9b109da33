// Package server implements the ncmerged HTTP API.
//
// Endpoints:
//
//	POST   /part_a?name=<dataset>    store part A
//	POST   /part_b?name=<dataset>    store part B
//	GET    /read?name=<dataset>      merge and return the container
//	GET    /describe?name=&part=     schema of a, b or merged (JSON or CBOR)
//	DELETE /dataset?name=<dataset>   drop both parts
//	GET    /datasets                 list datasets
//	GET    /health                   liveness
//	GET    /info                     store statistics
//
// Uploads may be gzip or zstd encoded. Responses are gzip compressed for
// clients that accept it.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/dreamware/ncmerge/internal/codec"
	"github.com/dreamware/ncmerge/internal/merge"
	"github.com/dreamware/ncmerge/internal/partstore"
)

// ContentType is the media type of container bodies.
const ContentType = "application/x-netcdf"

// Response headers set by /read.
const (
	HeaderFormat  = "X-Ncmerge-Format"
	HeaderSkipped = "X-Ncmerge-Skipped"
)

// Options configures a Server.
type Options struct {
	// MaxUploadBytes bounds the decoded size of one part.
	MaxUploadBytes int64
	// Adapter opens parts for /describe. Defaults to the classic-family adapter.
	Adapter codec.Adapter
	// Logger is the base request logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server serves the HTTP API over a part store.
type Server struct {
	store     *partstore.Store
	merger    *merge.Merger
	adapter   codec.Adapter
	maxUpload int64
	logger    *slog.Logger
	started   time.Time
}

// New creates a server for store using merger.
func New(store *partstore.Store, merger *merge.Merger, opts Options) *Server {
	if opts.Adapter == nil {
		opts.Adapter = codec.NewCDF()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 256 << 20
	}
	if merger == nil {
		merger = merge.New(opts.Adapter)
	}
	return &Server{
		store:     store,
		merger:    merger,
		adapter:   opts.Adapter,
		maxUpload: opts.MaxUploadBytes,
		logger:    opts.Logger,
		started:   time.Now(),
	}
}

// Handler returns the routed, logged and compressed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/part_a", s.handleUpload(partstore.SlotA))
	mux.HandleFunc("/part_b", s.handleUpload(partstore.SlotB))
	mux.HandleFunc("/read", s.handleRead)
	mux.HandleFunc("/describe", s.handleDescribe)
	mux.HandleFunc("/dataset", s.handleDataset)
	mux.HandleFunc("/datasets", s.handleDatasets)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/info", s.handleInfo)
	return gzhttp.GzipHandler(s.withLogging(mux))
}
