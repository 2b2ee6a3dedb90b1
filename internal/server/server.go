package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/ironsheep/sheet-music-mcp/internal/config"
	"github.com/ironsheep/sheet-music-mcp/internal/imaging"
	"github.com/ironsheep/sheet-music-mcp/internal/pipeline"
	"github.com/ironsheep/sheet-music-mcp/internal/store"
)

// Version is reported in the initialize handshake.
var Version = "0.1.0"

// Server handles MCP protocol communication
type Server struct {
	cfg     config.Config
	cache   *imaging.ImageCache
	history *store.History
	logger  *log.Logger

	// The converter and its templates are built on first use so that the
	// handshake works even when the template directory is missing.
	mu        sync.Mutex
	conv      *pipeline.Converter
	templates *pipeline.Templates
	closeFn   func() error
}

// Option configures a Server.
type Option func(*Server)

// WithHistory records every score_convert call in h.
func WithHistory(h *store.History) Option {
	return func(s *Server) { s.history = h }
}

// WithLogger sets the logger for the conversion pipeline.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a new MCP server instance
func New(cfg config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		cache: imaging.NewImageCache(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// converter returns the shared Converter, building it on the first call.
func (s *Server) converter() (*pipeline.Converter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv != nil {
		return s.conv, nil
	}

	templates, err := pipeline.LoadTemplates(s.cache, s.cfg.Templates)
	if err != nil {
		return nil, err
	}
	classifier, closeFn, err := pipeline.NewClassifier(s.cfg.Model)
	if err != nil {
		templates.Close()
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithLogger(s.logger)}
	if classifier != nil {
		opts = append(opts, pipeline.WithClassifier(classifier))
	}
	if s.cfg.OCR.Enabled {
		opts = append(opts, pipeline.WithTitle(pipeline.OCRTitle(s.cfg.OCR.Language)))
	}
	conv, err := pipeline.New(s.cfg, templates, opts...)
	if err != nil {
		closeFn()
		templates.Close()
		return nil, err
	}

	s.conv, s.templates, s.closeFn = conv, templates, closeFn
	return conv, nil
}

// Close releases the templates and classifier. The history store stays
// owned by the caller.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.closeFn != nil {
		err = s.closeFn()
	}
	s.templates.Close()
	s.conv, s.templates, s.closeFn = nil, nil, nil
	return err
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run() error {
	return s.Serve(context.Background(), os.Stdin, os.Stdout)
}

// Serve handles newline-delimited requests from r until EOF or ctx is done.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			log.Printf("Failed to parse request: %v", err)
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				log.Printf("Failed to encode response: %v", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "sheet-music-mcp",
				"version": Version,
			},
		},
	}
}
