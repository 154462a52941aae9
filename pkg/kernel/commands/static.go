package commands

import (
	"sort"
	"strings"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
)

// Static descriptions of the built-in commands: which snippets they
// evaluate and which variables they may create. Used by script validation.

func value(s string) engine.Snippet { return engine.Snippet{Kind: engine.SnippetValue, Text: s} }
func text(s string) engine.Snippet  { return engine.Snippet{Kind: engine.SnippetText, Text: s} }

func valueOrText(expression string, v any) []engine.Snippet {
	if expression != "" {
		return []engine.Snippet{value(expression)}
	}
	if s, ok := v.(string); ok {
		return []engine.Snippet{text(s)}
	}
	return nil
}

func names(ns ...string) []string {
	out := ns[:0]
	for _, n := range ns {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

func (c *CreateVariable) Snippets() []engine.Snippet { return valueOrText(c.Expression, c.Value) }
func (c *CreateVariable) Declares() []string         { return names(c.Name) }

func (c *SetVariable) Snippets() []engine.Snippet { return valueOrText(c.Expression, c.Value) }

func (c *SetVariable) Declares() []string {
	if c.CreateMissing {
		return names(c.Name)
	}
	return nil
}

func (c *Condition) Snippets() []engine.Snippet {
	switch {
	case c.Expression != "":
		return []engine.Snippet{{Kind: engine.SnippetCondition, Text: c.Expression}}
	case c.IsNumeric != "":
		return []engine.Snippet{text(c.IsNumeric)}
	}
	return nil
}

func (c *LoopTimes) Snippets() []engine.Snippet {
	if s, ok := c.Times.(string); ok {
		return []engine.Snippet{value(s)}
	}
	return nil
}

func (c *LoopTimes) Declares() []string { return names(c.Index) }

func (c *LoopCollection) Snippets() []engine.Snippet { return []engine.Snippet{value(c.Collection)} }
func (c *LoopCollection) Declares() []string         { return names(c.Item, c.Index) }

func (c *BeginSwitch) Snippets() []engine.Snippet { return []engine.Snippet{text(c.Value)} }

func (c *Case) Snippets() []engine.Snippet {
	if strings.EqualFold(strings.TrimSpace(c.Value), DefaultCase) {
		return nil
	}
	return []engine.Snippet{text(c.Value)}
}

func (c *Catch) Declares() []string { return names(c.ErrorVariable, c.LineVariable) }

func (c *ThrowError) Snippets() []engine.Snippet { return []engine.Snippet{text(c.Message)} }
func (c *LogMessage) Snippets() []engine.Snippet { return []engine.Snippet{text(c.Message)} }

func (c *ParseJSON) Snippets() []engine.Snippet {
	return []engine.Snippet{text(c.Input), text(c.Path)}
}
func (c *ParseJSON) Declares() []string { return names(c.Output) }

func (c *StringSplit) Snippets() []engine.Snippet { return []engine.Snippet{text(c.Input)} }
func (c *StringSplit) Declares() []string         { return names(c.Output) }

func (c *StringReplace) Snippets() []engine.Snippet {
	return []engine.Snippet{text(c.Input), text(c.Old), text(c.New)}
}
func (c *StringReplace) Declares() []string { return names(c.Output) }

func (c *FileOpen) Snippets() []engine.Snippet      { return []engine.Snippet{text(c.Path)} }
func (c *FileWriteLine) Snippets() []engine.Snippet { return []engine.Snippet{text(c.Text)} }

// Inputs must exist when the program starts, as if referenced by placeholder.
func (c *RunStarlark) Snippets() []engine.Snippet {
	out := make([]engine.Snippet, 0, len(c.Inputs))
	for _, n := range c.Inputs {
		out = append(out, text("{"+n+"}"))
	}
	return out
}

func (c *RunStarlark) Declares() []string { return names(append([]string(nil), c.Outputs...)...) }

func (c *RunTask) Snippets() []engine.Snippet {
	out := []engine.Snippet{text(c.Path)}
	keys := make([]string, 0, len(c.Arguments))
	for k := range c.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := c.Arguments[k].(string); ok {
			out = append(out, text(s))
		}
	}
	return out
}

func (c *RunTask) Declares() []string {
	out := make([]string, 0, len(c.Outputs))
	for _, to := range c.Outputs {
		out = append(out, to)
	}
	sort.Strings(out)
	return names(out...)
}
