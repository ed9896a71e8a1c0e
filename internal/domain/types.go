package domain

// UpstreamConfig declares one upstream API to import as a mounted tool
// server. Exactly one of SpecURL, SpecPath, or Spec supplies the OpenAPI
// document.
type UpstreamConfig struct {
	APIBaseURL string            `json:"apiBaseUrl" mapstructure:"apiBaseUrl" validate:"required,url"`
	SpecURL    string            `json:"specUrl,omitempty" mapstructure:"specUrl"`
	SpecPath   string            `json:"specPath,omitempty" mapstructure:"specPath"`
	Spec       map[string]any    `json:"spec,omitempty" mapstructure:"spec"`
	Prefix     string            `json:"prefix,omitempty" mapstructure:"prefix"`
	Headers    map[string]string `json:"headers,omitempty" mapstructure:"headers"`
}

// ValidateSpecSource enforces that exactly one of SpecURL, SpecPath, or
// Spec is set. Both the declared-config path and the registration API
// accept an UpstreamConfig, so the check lives with the type.
func (c UpstreamConfig) ValidateSpecSource() error {
	sources := 0
	if c.SpecURL != "" {
		sources++
	}
	if c.SpecPath != "" {
		sources++
	}
	if len(c.Spec) > 0 {
		sources++
	}
	if sources != 1 {
		return E(CodeInvalidArgument, "validate upstream", "exactly one of specUrl, specPath, or spec is required", nil)
	}
	return nil
}

// ToolInfo is the registry's view of one imported tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Enabled     bool   `json:"enabled"`
}

// ServerStatus describes one mounted sub-server in registration order.
type ServerStatus struct {
	Prefix    string `json:"prefix"`
	ToolCount int    `json:"toolCount"`
}

// SearchResult is one (prefix, tool) hit from a tool search.
type SearchResult struct {
	Prefix  string `json:"prefix"`
	Tool    string `json:"tool"`
	Enabled bool   `json:"enabled"`
}

// SearchFilter narrows a tool search. A nil Enabled means no filtering on
// the per-prefix search flag.
type SearchFilter struct {
	Prefix  string
	Name    string
	Enabled *bool
}
