package app

import (
	"fmt"

	"opsched/internal/agent"
	"opsched/internal/config"
)

// buildAgentFactory returns an agent.Factory that dispatches on sys_type
// to the backend named in cfg.Agents[sys_type].Driver. "noop" (or an
// unconfigured sys_type) yields a deterministic NoopAgent, useful for
// dry runs and tests; "mcp" dials the task's own kwargs-carried MCP
// server address per account.
func buildAgentFactory(cfg *config.Config) agent.Factory {
	agents := cfg.Agents
	return func(sysType, credentialsDir string, kwargs []byte) (agent.Agent, error) {
		driver := "noop"
		if ac, ok := agents[sysType]; ok && ac.Driver != "" {
			driver = ac.Driver
		}
		switch driver {
		case "mcp":
			return agent.NewMCPAgent(credentialsDir, kwargs)
		case "noop":
			return agent.NewNoopAgent(credentialsDir), nil
		default:
			return nil, fmt.Errorf("unknown agent driver %q for sys_type %q", driver, sysType)
		}
	}
}
