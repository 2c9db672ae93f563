package catalog

import (
	"strings"
	"sync"
)

// OtherType groups tools that carry no tool_type
const OtherType = "Other"

// Group is a run of tools sharing a tool_type
type Group struct {
	Type  string
	Tools []Tool
}

// Registry is the in-memory, ordered collection of tool descriptors
type Registry struct {
	mu    sync.RWMutex
	tools []Tool
}

// NewRegistry creates a registry holding the given tools
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{}
	r.Replace(tools)
	return r
}

// Append adds a tool at the end of the registry
func (r *Registry) Append(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools = append(r.tools, tool)
}

// Remove deletes the tool with the given id and reports whether it existed
func (r *Registry) Remove(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range r.tools {
		if t.ID == id {
			r.tools = append(r.tools[:i:i], r.tools[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the tool with the given id
func (r *Registry) Get(id ID) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tools {
		if t.ID == id {
			return t, true
		}
	}
	return Tool{}, false
}

// List returns all tools in registry order
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Replace swaps the whole registry content
func (r *Registry) Replace(tools []Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools = make([]Tool, len(tools))
	copy(r.tools, tools)
}

// Len returns the number of tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

// Search returns tools whose title, function name, description or type
// contains the query, case-insensitively. An empty query matches everything.
func (r *Registry) Search(query string) []Tool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return r.List()
	}

	var out []Tool
	for _, t := range r.List() {
		haystack := strings.ToLower(strings.Join([]string{
			t.HumanReadableTitle, t.FunctionTitle, t.FunctionDescription, t.ToolType,
		}, "\n"))
		if strings.Contains(haystack, query) {
			out = append(out, t)
		}
	}
	return out
}

// Filter returns tools of the given type. An empty type matches everything.
func (r *Registry) Filter(toolType string) []Tool {
	return FilterByType(r.List(), toolType)
}

// Types returns the distinct tool types in first-appearance order
func (r *Registry) Types() []string {
	groups := GroupByType(r.List())
	types := make([]string, len(groups))
	for i, g := range groups {
		types[i] = g.Type
	}
	return types
}

// Group returns the tools grouped by type in first-appearance order
func (r *Registry) Group() []Group {
	return GroupByType(r.List())
}

// FilterByType keeps the tools of the given type
func FilterByType(tools []Tool, toolType string) []Tool {
	if toolType == "" {
		return tools
	}

	var out []Tool
	for _, t := range tools {
		if typeOf(t) == toolType {
			out = append(out, t)
		}
	}
	return out
}

// GroupByType groups tools by type, keeping first-appearance order
func GroupByType(tools []Tool) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, t := range tools {
		key := typeOf(t)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Type: key})
		}
		groups[i].Tools = append(groups[i].Tools, t)
	}
	return groups
}

func typeOf(t Tool) string {
	if t.ToolType == "" {
		return OtherType
	}
	return t.ToolType
}
