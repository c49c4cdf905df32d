package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const resourceMIMEJSON = "application/json"

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"formpilot://about",
			"FormPilot About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("High-level server info and usage notes."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"formpilot://transcripts",
			"Session Transcripts",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("List of recorded fill-session transcript files, newest first."),
		),
		s.handleTranscriptListResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"formpilot://transcript/{sessionId}",
			"Session Transcript",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Replay the recorded conversation of one fill session."),
		),
		s.handleTranscriptResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":    s.cfg.Server.Name,
		"version": s.cfg.Server.Version,
		"notes": []string{
			"Resources are read-only context endpoints; use tools for actions/mutations.",
			"Typical flow: launch-browser, open-page, start-filling, then send-message per answer.",
			"query-facts joins the recorded form activity; transcripts replay the conversation verbatim.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}
	return jsonResource(request.Params.URI, payload)
}

func (s *Server) handleTranscriptListResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.rec == nil {
		return nil, fmt.Errorf("transcript recording is disabled")
	}
	names, err := s.rec.List()
	if err != nil {
		return nil, err
	}
	return jsonResource(request.Params.URI, map[string]interface{}{
		"count":       len(names),
		"transcripts": names,
	})
}

func (s *Server) handleTranscriptResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.rec == nil {
		return nil, fmt.Errorf("transcript recording is disabled")
	}
	sessionID := argString(request.Params.Arguments["sessionId"])
	if sessionID == "" {
		return nil, fmt.Errorf("missing sessionId")
	}
	entries, err := s.rec.ReadTranscript(sessionID)
	if err != nil {
		return nil, err
	}
	return jsonResource(request.Params.URI, map[string]interface{}{
		"session_id": sessionID,
		"count":      len(entries),
		"entries":    entries,
	})
}

func jsonResource(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

// argString coerces a resource-template argument, which mcp-go may deliver
// as a string or a single-element slice.
func argString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		if len(t) > 0 {
			return t[0]
		}
	case []interface{}:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
