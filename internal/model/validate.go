package model

import "fmt"

// Validate checks everything about an McpConfig that can be checked without
// reference to other configs already active in the gateway (prefix
// uniqueness across configs is the runtime's job, since it requires the
// whole snapshot - see internal/runtime). It implements the first half of
// activation algorithm step 1: every Router's server must name a
// known McpServer or HttpServer in the same config.
func (c *McpConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("mcp config: name is required")
	}
	if c.TenantName == "" {
		return fmt.Errorf("mcp config: tenant_name is required")
	}

	seenPrefixes := make(map[string]bool, len(c.Routers))
	for _, r := range c.Routers {
		if r.Prefix == "" {
			return fmt.Errorf("mcp config %s: router has empty prefix", c.Key())
		}
		if seenPrefixes[r.Prefix] {
			return fmt.Errorf("mcp config %s: duplicate router prefix %q", c.Key(), r.Prefix)
		}
		seenPrefixes[r.Prefix] = true

		if c.FindServer(r.Server) == nil && c.FindHTTPServer(r.Server) == nil {
			return fmt.Errorf("mcp config %s: router %q references unknown server %q", c.Key(), r.Prefix, r.Server)
		}
	}

	for _, hs := range c.HTTPServers {
		for _, toolName := range hs.Tools {
			if c.FindTool(toolName) == nil {
				return fmt.Errorf("mcp config %s: http server %q references unknown tool %q", c.Key(), hs.Name, toolName)
			}
		}
	}

	return nil
}
