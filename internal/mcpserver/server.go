// Package mcpserver exposes meme generation as MCP tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/caption"
	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/notify"
	"github.com/fpang/slop-meme-generator/internal/session"
)

// Server holds what the tools need. Each generate_meme call runs in its
// own session.
type Server struct {
	acq      session.Acquirer
	sink     export.Sink
	opts     session.Options
	resolver *caption.Resolver
}

// New creates a Server. A nil sink returns memes inline only.
func New(acq session.Acquirer, sink export.Sink, opts session.Options) *Server {
	return &Server{acq: acq, sink: sink, opts: opts, resolver: caption.NewResolver()}
}

// TemplateInfo describes one quick-select template.
type TemplateInfo struct {
	Index   int          `json:"index"`
	Label   string       `json:"label"`
	Prompt  string       `json:"prompt"`
	Caption caption.Pair `json:"caption"`
}

type ListTemplatesInput struct{}

type ListTemplatesOutput struct {
	Templates []TemplateInfo `json:"templates"`
}

type ResolveCaptionInput struct {
	Prompt string `json:"prompt" jsonschema:"free-text image prompt to derive a caption from"`
}

type GenerateInput struct {
	Prompt    string `json:"prompt,omitempty" jsonschema:"image prompt; ignored when template is set"`
	Template  *int   `json:"template,omitempty" jsonschema:"index of a quick-select template"`
	Top       string `json:"top,omitempty" jsonschema:"override for the top caption"`
	Bottom    string `json:"bottom,omitempty" jsonschema:"override for the bottom caption"`
	TextScale int    `json:"textScale,omitempty" jsonschema:"caption size in pixels, 24 to 100"`
}

type GenerateOutput struct {
	Prompt   string       `json:"prompt"`
	Caption  caption.Pair `json:"caption"`
	ImageURL string       `json:"imageUrl"`
	Status   string       `json:"status"`
	Error    string       `json:"error,omitempty"`
	Filename string       `json:"filename"`
	Location string       `json:"location,omitempty"`
}

// MCP builds the MCP server with every tool registered.
func (s *Server) MCP(version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "slop-meme-generator", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_templates",
		Description: "List the quick-select meme templates with their prompts and captions.",
	}, s.listTemplates)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_caption",
		Description: "Derive a top/bottom meme caption from a prompt using the keyword rules.",
	}, s.resolveCaption)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_meme",
		Description: "Generate an image for a prompt or template, overlay the caption and return the 1024px PNG.",
	}, s.generateMeme)

	return server
}

// Run serves the tools on stdin/stdout until ctx is done.
func (s *Server) Run(ctx context.Context, version string) error {
	log.Info().Str("version", version).Msg("Starting MCP server on stdio")
	return s.MCP(version).Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) listTemplates(ctx context.Context, req *mcp.CallToolRequest, in ListTemplatesInput) (*mcp.CallToolResult, ListTemplatesOutput, error) {
	out := ListTemplatesOutput{Templates: make([]TemplateInfo, len(caption.Templates))}
	for i, t := range caption.Templates {
		out.Templates[i] = TemplateInfo{Index: i, Label: t.Label(), Prompt: t.PromptSeed, Caption: t.Caption}
	}
	return nil, out, nil
}

func (s *Server) resolveCaption(ctx context.Context, req *mcp.CallToolRequest, in ResolveCaptionInput) (*mcp.CallToolResult, caption.Pair, error) {
	return nil, s.resolver.Resolve(in.Prompt), nil
}

func (s *Server) generateMeme(ctx context.Context, req *mcp.CallToolRequest, in GenerateInput) (*mcp.CallToolResult, GenerateOutput, error) {
	sess := session.New(s.acq, s.resolver, notify.Log{}, s.opts)
	defer sess.Close()

	var err error
	if in.Template != nil {
		err = sess.SelectTemplate(*in.Template)
	} else {
		err = sess.Submit(in.Prompt)
	}
	if err != nil {
		return nil, GenerateOutput{}, err
	}

	done := make(chan struct{})
	go func() {
		sess.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return nil, GenerateOutput{}, ctx.Err()
	case <-done:
	}

	if in.Top != "" || in.Bottom != "" {
		cur := sess.Snapshot().Caption
		if in.Top != "" {
			cur.Top = in.Top
		}
		if in.Bottom != "" {
			cur.Bottom = in.Bottom
		}
		sess.SetCaption(cur.Top, cur.Bottom)
	}
	if in.TextScale != 0 {
		if err := sess.SetTextScale(in.TextScale); err != nil {
			return nil, GenerateOutput{}, err
		}
	}

	st := sess.Snapshot()
	if !st.HasImage {
		return nil, GenerateOutput{}, fmt.Errorf("image generation failed: %s", st.Error)
	}

	capture := &captureSink{next: s.sink}
	loc, err := sess.Export(ctx, capture)
	if err != nil {
		return nil, GenerateOutput{}, err
	}

	out := GenerateOutput{
		Prompt:   st.Prompt,
		Caption:  st.Caption,
		ImageURL: st.ImageURL,
		Status:   st.Status,
		Error:    st.Error,
		Filename: capture.name,
	}
	if s.sink != nil {
		out.Location = loc
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.ImageContent{Data: capture.data, MIMEType: export.ContentType},
		},
	}, out, nil
}

// captureSink keeps the encoded meme and forwards it to next, if any.
type captureSink struct {
	next export.Sink
	name string
	data []byte
}

func (c *captureSink) Name() string {
	if c.next != nil {
		return c.next.Name()
	}
	return "inline"
}

func (c *captureSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	c.name = name
	c.data = data
	if c.next == nil {
		return name, nil
	}
	loc, err := c.next.Save(ctx, name, data)
	if errors.Is(err, export.ErrCanceled) {
		return name, nil
	}
	return loc, err
}
