package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPConfig is the reconstruction payload for an MCPAgent: the opaque
// kwargs a task carries plus the address of the automation MCP server it
// drives as a client. Mirrors mcp_server_url from the collaborator's
// original construction.
type MCPConfig struct {
	ServerURL      string          `json:"mcp_server_url"`
	PublishTool    string          `json:"publish_tool"`
	LoginTool      string          `json:"login_tool"`
	ConfirmTool    string          `json:"confirm_login_tool"`
	StatusTool     string          `json:"login_status_tool"`
	CredentialsDir string          `json:"-"`
	Extra          json.RawMessage `json:"-"`
}

// MCPAgent is a thin reference adapter: it dials an MCP server over
// HTTP and calls one tool per RunOnce. It demonstrates how the Agent
// contract is satisfied by an MCP client talking to a browser-automation
// MCP server; it does not drive a browser or generate content itself.
type MCPAgent struct {
	cfg MCPConfig
	cli *client.Client
}

// NewMCPAgent builds an MCPAgent from kwargs (expected to unmarshal into
// MCPConfig) and a credentials directory. The underlying MCP client is
// a streamable-HTTP client against cfg.ServerURL; it is not connected
// until the first call.
func NewMCPAgent(credentialsDir string, kwargs []byte) (*MCPAgent, error) {
	var cfg MCPConfig
	if len(kwargs) > 0 {
		if err := json.Unmarshal(kwargs, &cfg); err != nil {
			return nil, fmt.Errorf("mcp agent: invalid kwargs: %w", err)
		}
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:18060/mcp"
	}
	if cfg.PublishTool == "" {
		cfg.PublishTool = "publish"
	}
	cfg.CredentialsDir = credentialsDir

	cli, err := client.NewStreamableHttpClient(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("mcp agent: dial %s: %w", cfg.ServerURL, err)
	}
	return &MCPAgent{cfg: cfg, cli: cli}, nil
}

func (a *MCPAgent) callTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if name == "" {
		return nil, nil
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return a.cli.CallTool(ctx, req)
}

func (a *MCPAgent) RunOnce(ctx context.Context) (bool, error) {
	res, err := a.callTool(ctx, a.cfg.PublishTool, map[string]any{
		"credentials_dir": a.cfg.CredentialsDir,
	})
	if err != nil {
		return false, err
	}
	if res != nil && res.IsError {
		return false, fmt.Errorf("mcp agent: tool %s reported an error", a.cfg.PublishTool)
	}
	return true, nil
}

func (a *MCPAgent) LoginStatus(ctx context.Context) (LoginState, error) {
	if a.cfg.StatusTool == "" {
		return LoginUnknown, nil
	}
	res, err := a.callTool(ctx, a.cfg.StatusTool, nil)
	if err != nil {
		return LoginUnknown, err
	}
	return loginStateFromResult(res), nil
}

func (a *MCPAgent) BeginLogin(ctx context.Context) ([]byte, error) {
	if a.cfg.LoginTool == "" {
		return nil, nil
	}
	res, err := a.callTool(ctx, a.cfg.LoginTool, nil)
	if err != nil {
		return nil, err
	}
	return resultText(res), nil
}

func (a *MCPAgent) ConfirmLogin(ctx context.Context) (LoginState, error) {
	if a.cfg.ConfirmTool == "" {
		return LoginUnknown, nil
	}
	res, err := a.callTool(ctx, a.cfg.ConfirmTool, nil)
	if err != nil {
		return LoginUnknown, err
	}
	return loginStateFromResult(res), nil
}

func (a *MCPAgent) CredentialsPath() string {
	return a.cfg.CredentialsDir
}

func loginStateFromResult(res *mcp.CallToolResult) LoginState {
	switch string(resultText(res)) {
	case "logged_in":
		return LoginLoggedIn
	case "not_logged_in":
		return LoginLoggedOut
	default:
		return LoginUnknown
	}
}

func resultText(res *mcp.CallToolResult) []byte {
	if res == nil {
		return nil
	}
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			return []byte(tc.Text)
		}
	}
	return nil
}
