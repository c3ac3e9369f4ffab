// Package mcpserver exposes the encyclopedia to LLM clients as MCP tools
// over a stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/encyclopedia/internal/apperr"
	"github.com/starford/encyclopedia/internal/entryservice"
)

const formatURI = "wiki://entry-format"

// Server wraps the MCP server with the encyclopedia tools.
type Server struct {
	mcp *server.MCPServer
	svc *entryservice.Service
}

// New creates an MCP server with all tools and resources registered.
func New(svc *entryservice.Service, name, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_entries",
		mcp.WithDescription("List the titles of all encyclopedia entries, one per line."),
	), s.listEntries)

	s.mcp.AddTool(mcp.NewTool("read_entry",
		mcp.WithDescription("Read the Markdown content of an entry. Titles match case-insensitively."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Entry title, e.g. Python")),
	), s.readEntry)

	s.mcp.AddTool(mcp.NewTool("search_entries",
		mcp.WithDescription("Find entries whose title or content contains the query. "+
			"Title matches are listed first."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
	), s.searchEntries)

	s.mcp.AddTool(mcp.NewTool("create_entry",
		mcp.WithDescription("Create a new entry. Fails if an entry with the same title exists "+
			"in any letter case. Read "+formatURI+" or call get_entry_format first."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title of the new entry")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
	), s.createEntry)

	s.mcp.AddTool(mcp.NewTool("edit_entry",
		mcp.WithDescription("Replace the content of an existing entry."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title of the entry to edit")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New Markdown content")),
		mcp.WithString("checksum", mcp.Description("Optional checksum from read_entry; the edit fails if the entry changed since")),
	), s.editEntry)

	s.mcp.AddTool(mcp.NewTool("random_entry",
		mcp.WithDescription("Return the title of a randomly chosen entry."),
	), s.randomEntry)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("List entries that link to the given entry."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Entry title")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_entry_format",
		mcp.WithDescription("Describe how entry content is written: Markdown, wikilinks and optional frontmatter."),
	), s.getEntryFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Entry Format",
			mcp.WithResourceDescription("How encyclopedia entries are written."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readEntryFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a service error into a tool-level error result.
func toolError(title string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("entry not found: %s", title))
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError(fmt.Sprintf("entry already exists: %s", title))
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError(fmt.Sprintf("entry %s changed since it was read", title))
	case errors.Is(err, apperr.ErrInvalidTitle):
		return mcp.NewToolResultError(fmt.Sprintf("invalid title: %q", title))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listEntries(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	titles, err := s.svc.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(titles) == 0 {
		return mcp.NewToolResultText("no entries"), nil
	}
	return mcp.NewToolResultText(strings.Join(titles, "\n")), nil
}

func (s *Server) readEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.Detail(ctx, title)
	if err != nil {
		return toolError(title, err), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return mcp.NewToolResultError("query must not be empty"), nil
	}
	related, err := s.svc.Related(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(related) == 0 {
		return mcp.NewToolResultText("no matching entries"), nil
	}
	return mcp.NewToolResultText(strings.Join(related, "\n")), nil
}

func (s *Server) createEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content must not be empty"), nil
	}
	entry, err := s.svc.Create(ctx, title, content)
	if err != nil {
		return toolError(title, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", entry.Title)), nil
}

func (s *Server) editEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content must not be empty"), nil
	}
	entry, err := s.svc.Update(ctx, title, content, req.GetString("checksum", ""))
	if err != nil {
		return toolError(title, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s (checksum %s)", entry.Title, entry.Checksum)), nil
}

func (s *Server) randomEntry(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := s.svc.Random(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError("there are no entries yet"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(title), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, title)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) getEntryFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EntryFormat), nil
}

func (s *Server) readEntryFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     EntryFormat,
		},
	}, nil
}
