package tools

import (
	"errors"
	"testing"

	"github.com/ChamsBouzaiene/stepwise/internal/engine"
)

func TestNewToolRegistry(t *testing.T) {
	tests := []struct {
		name string
		set  ToolSet
		want []string
	}{
		{name: "empty", set: ToolSet{}, want: []string{}},
		{name: "filesystem only", set: ToolSet{Filesystem: true}, want: []string{"ls", "read_file", "write_file"}},
		{
			name: "default",
			set:  DefaultToolSet(),
			want: []string{"edit_file", "execute", "glob", "grep", "ls", "read_file", "read_todos", "write_file", "write_todos"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewToolRegistry(tt.set).Names()
			if len(got) != len(tt.want) {
				t.Fatalf("names = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("names = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
	if _, ok := NewToolRegistry(AllTools())["http_request"]; !ok {
		t.Error("AllTools should include http_request")
	}
}

func TestToolSchemasAreValid(t *testing.T) {
	for name, tool := range NewToolRegistry(AllTools()) {
		err := tool.ValidateArgs(map[string]any{})
		var ve *engine.ToolValidationError
		if err != nil && !errors.As(err, &ve) {
			t.Errorf("%s: schema failed to load: %v", name, err)
		}
	}
}
