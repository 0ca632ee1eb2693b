// Package mcp provides the MCP (Model Context Protocol) server for Scout.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/scout-go/internal/diag"
	"github.com/Benny93/scout-go/internal/scout"
	"github.com/Benny93/scout-go/internal/storage"
)

const (
	serverName    = "scout-go"
	serverVersion = "0.1.0"
)

// Server represents the MCP server.
type Server struct {
	orch     *scout.Orchestrator
	store    storage.StorageBackend
	snapshot string
	events   *diag.Recorder
	server   *mcp.Server

	// runMu serializes transform runs so each call reports only its own events.
	runMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithStore saves the graph to store under name after every tool call that
// changes it.
func WithStore(store storage.StorageBackend, name string) Option {
	return func(s *Server) {
		s.store = store
		s.snapshot = name
	}
}

// WithEvents reports the warnings and errors recorded in rec during a
// transform run back to the caller. rec must be part of the orchestrator sink.
func WithEvents(rec *diag.Recorder) Option {
	return func(s *Server) { s.events = rec }
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server.
func NewServer(orch *scout.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:     orch,
		snapshot: storage.DefaultSnapshot,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Create MCP server
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	s.registerTools()
	s.registerResources()

	return s
}

// SDK returns the underlying SDK server, for use with SDK transports.
func (s *Server) SDK() *mcp.Server {
	return s.server
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "scout_list_transforms",
			Description: "List the available transforms with their aliases, input node types and options.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "scout_add_seed",
			Description: "Add seed values (domains, URIs, emails, names) to the graph. Types are inferred.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"values": {
						Type:        "array",
						Items:       &jsonschema.Schema{Type: "string"},
						Description: "Seed values",
					},
				},
				Required: []string{"values"},
			},
		},
		{
			Name:        "scout_run_transform",
			Description: "Run a transform over every graph node of a type it accepts. Returns the nodes created or updated.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name":        {Type: "string", Description: "Transform name or alias"},
					"options":     {Type: "object", Description: "Transform options by name"},
					"concurrency": {Type: "integer", Description: "Nodes expanded in parallel"},
				},
				Required: []string{"name"},
			},
		},
		{
			Name:        "scout_list_nodes",
			Description: "List graph nodes, optionally restricted to one node type.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"type":  {Type: "string", Description: "Node type, e.g. domain or github:repo"},
					"limit": {Type: "integer", Description: "Maximum number of nodes"},
				},
			},
		},
		{
			Name:        "scout_node",
			Description: "Show one node with its props and the nodes it was discovered from and led to.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id":    {Type: "string", Description: "Node id"},
					"type":  {Type: "string", Description: "Node type, used with label"},
					"label": {Type: "string", Description: "Node label, used with type"},
				},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "scout://stats",
			Name:        "Graph Statistics",
			Description: "Node and edge counts, per node type",
			MimeType:    "text/plain",
		},
		{
			URI:         "scout://transforms",
			Name:        "Transform Catalogue",
			Description: "Every registered transform and its options",
			MimeType:    "text/plain",
		},
		{
			URI:         "scout://snapshot",
			Name:        "Graph Snapshot",
			Description: "The full graph as a snapshot document",
			MimeType:    "application/json",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "scout_list_transforms":
		return handleListTransforms(s.orch), nil
	case "scout_add_seed":
		valuesArg, _ := args["values"].([]any)
		values := make([]string, 0, len(valuesArg))
		for _, v := range valuesArg {
			if value, ok := v.(string); ok && strings.TrimSpace(value) != "" {
				values = append(values, value)
			}
		}
		out := handleAddSeed(s.orch, values)
		return out, s.persist(ctx)
	case "scout_run_transform":
		transformName, _ := args["name"].(string)
		options, _ := args["options"].(map[string]any)
		concurrency, _ := args["concurrency"].(float64)
		out, err := s.handleRunTransform(ctx, transformName, options, int(concurrency))
		if err != nil {
			return "", err
		}
		return out, s.persist(ctx)
	case "scout_list_nodes":
		typ, _ := args["type"].(string)
		limit, _ := args["limit"].(float64)
		if limit == 0 {
			limit = 50
		}
		return handleListNodes(s.orch, typ, int(limit)), nil
	case "scout_node":
		id, _ := args["id"].(string)
		typ, _ := args["type"].(string)
		label, _ := args["label"].(string)
		return handleNode(s.orch, id, typ, label)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "scout://stats":
		return getStats(s.orch), nil
	case "scout://transforms":
		return handleListTransforms(s.orch), nil
	case "scout://snapshot":
		data, err := s.orch.Snapshot()
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

func (s *Server) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if _, err := storage.SaveGraph(ctx, s.store, s.snapshot, s.orch.Graph()); err != nil {
		return fmt.Errorf("saving workspace: %w", err)
	}
	return nil
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)
	// MCP stdio framing is one compact JSON message per line.

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			if err := encoder.Encode(errorResponse(nil, -32700, "Parse error")); err != nil {
				return err
			}
			continue
		}

		resp := s.handleRequest(ctx, req)
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

// RunSDK serves over the SDK stdio transport until the client disconnects.
func (s *Server) RunSDK(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id, hasID := req["id"]

	// Notifications carry no id and get no response.
	if !hasID && strings.HasPrefix(method, "notifications/") {
		return nil
	}

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "ping":
		return result(id, map[string]any{})
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return result(id, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
		"capabilities": map[string]any{
			"tools": map[string]any{
				"listChanged": false,
			},
			"resources": map[string]any{
				"listChanged": false,
			},
		},
	})
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		_ = json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}

	return result(id, map[string]any{"tools": toolList})
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	text, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return result(id, map[string]any{
		"content": []map[string]any{
			{
				"type": "text",
				"text": text,
			},
		},
	})
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}

	return result(id, map[string]any{"resources": resourceList})
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return result(id, map[string]any{
		"contents": []map[string]any{
			{
				"uri":      uri,
				"mimeType": s.mimeType(uri),
				"text":     content,
			},
		},
	})
}

func (s *Server) mimeType(uri string) string {
	for _, res := range s.ListResources() {
		if res.URI == uri {
			return res.MimeType
		}
	}
	return "text/plain"
}

// registerTools registers the tools with the SDK server.
func (s *Server) registerTools() {
	for _, tool := range s.ListTools() {
		name := tool.Name
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args map[string]any
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
					return nil, fmt.Errorf("decoding arguments: %w", err)
				}
			}
			text, err := s.CallTool(ctx, name, args)
			if err != nil {
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				}, nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: text}},
			}, nil
		})
	}
}

// registerResources registers the resources with the SDK server.
func (s *Server) registerResources() {
	for _, res := range s.ListResources() {
		uri, mimeType := res.URI, res.MimeType
		s.server.AddResource(&mcp.Resource{
			URI:         res.URI,
			Name:        res.Name,
			Description: res.Description,
			MIMEType:    res.MimeType,
		}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			text, err := s.ReadResource(ctx, uri)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeType, Text: text}},
			}, nil
		})
	}
}

// Helper functions

func result(id any, body map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  body,
	}
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
