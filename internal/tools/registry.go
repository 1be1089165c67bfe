// Package tools assembles the built-in tool registry.
package tools

import (
	"github.com/ChamsBouzaiene/stepwise/internal/engine"
	"github.com/ChamsBouzaiene/stepwise/internal/tools/editing"
	"github.com/ChamsBouzaiene/stepwise/internal/tools/execution"
	"github.com/ChamsBouzaiene/stepwise/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/stepwise/internal/tools/planning"
	"github.com/ChamsBouzaiene/stepwise/internal/tools/search"
	"github.com/ChamsBouzaiene/stepwise/internal/tools/web"
)

// ToolSet selects which groups of built-in tools to register.
type ToolSet struct {
	Filesystem bool
	Editing    bool
	Search     bool
	Execution  bool
	Planning   bool
	Web        bool
}

// DefaultToolSet enables every group except the network tools.
func DefaultToolSet() ToolSet {
	return ToolSet{Filesystem: true, Editing: true, Search: true, Execution: true, Planning: true}
}

// AllTools enables every group.
func AllTools() ToolSet {
	set := DefaultToolSet()
	set.Web = true
	return set
}

// NewToolRegistry creates an engine.ToolRegistry holding the tools of set.
func NewToolRegistry(set ToolSet) engine.ToolRegistry {
	reg := make(engine.ToolRegistry)

	if set.Filesystem {
		reg.Register(filesystem.NewLsTool())
		reg.Register(filesystem.NewReadFileTool())
		reg.Register(filesystem.NewWriteFileTool())
	}
	if set.Editing {
		reg.Register(editing.NewEditFileTool())
	}
	if set.Search {
		reg.Register(search.NewGrepTool())
		reg.Register(search.NewGlobTool())
	}
	if set.Execution {
		reg.Register(execution.NewExecuteTool())
	}
	if set.Planning {
		reg.Register(planning.NewWriteTodosTool())
		reg.Register(planning.NewReadTodosTool())
	}
	if set.Web {
		reg.Register(web.NewHTTPRequestTool())
	}
	return reg
}
