package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/rpaflow/rpaflow/pkg/kernel/engine"
)

func registerFiles(reg *engine.Registry) {
	reg.Register(engine.Spec{
		Kind:        "file_open",
		Group:       GroupFiles,
		Description: "Open a file for writing as a named app instance",
		New:         func() engine.Command { return &FileOpen{} },
	})
	reg.Register(engine.Spec{
		Kind:        "file_write_line",
		Group:       GroupFiles,
		Description: "Write a line to an open file",
		New:         func() engine.Command { return &FileWriteLine{} },
	})
	reg.Register(engine.Spec{
		Kind:        "close_instance",
		Group:       GroupFiles,
		Description: "Close a named app instance",
		New:         func() engine.Command { return &CloseInstance{} },
	})
}

// LineFile is the app instance registered by file_open.
type LineFile struct {
	Path string
	f    *os.File
	w    *bufio.Writer
}

// WriteLine appends text and a newline.
func (lf *LineFile) WriteLine(text string) error {
	if _, err := lf.w.WriteString(text); err != nil {
		return err
	}
	return lf.w.WriteByte('\n')
}

// Close flushes buffered lines and closes the file.
func (lf *LineFile) Close() error {
	ferr := lf.w.Flush()
	cerr := lf.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// FileOpen opens a file for writing and registers it as an app instance.
type FileOpen struct {
	Path     string `yaml:"path"     validate:"required"`
	Instance string `yaml:"instance" validate:"required"`
	// Mode is append (default) or truncate.
	Mode string `yaml:"mode" validate:"omitempty,oneof=append truncate"`
}

func (c *FileOpen) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	p, err := path(f.Instance, c.Path)
	if err != nil {
		return engine.Next, err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if c.Mode == "truncate" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	file, err := os.OpenFile(p, flags, 0o644)
	if err != nil {
		return engine.Next, fmt.Errorf("open file: %w", err)
	}
	lf := &LineFile{Path: p, f: file, w: bufio.NewWriter(file)}
	if err := f.Instance.SetAppInstance(c.Instance, lf); err != nil {
		lf.Close()
		return engine.Next, err
	}
	return engine.Next, nil
}

func (c *FileOpen) DisplayText() string {
	return fmt.Sprintf("Open %s as %s", quote(c.Path), orPlaceholder(c.Instance))
}

// FileWriteLine writes a line to a file opened by file_open.
type FileWriteLine struct {
	Instance string `yaml:"instance" validate:"required"`
	Text     string `yaml:"text"`
}

func (c *FileWriteLine) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	v, err := f.Instance.AppInstance(c.Instance)
	if err != nil {
		return engine.Next, err
	}
	lf, ok := v.(*LineFile)
	if !ok {
		return engine.Next, fmt.Errorf("app instance %q is %T, not a file", c.Instance, v)
	}
	line, err := f.Instance.Interpolate(c.Text)
	if err != nil {
		return engine.Next, err
	}
	return engine.Next, lf.WriteLine(line)
}

func (c *FileWriteLine) DisplayText() string {
	return fmt.Sprintf("Write %s to %s", quote(c.Text), orPlaceholder(c.Instance))
}

// CloseInstance closes and forgets an app instance.
type CloseInstance struct {
	Instance string `yaml:"instance" validate:"required"`
}

func (c *CloseInstance) Execute(_ context.Context, f *engine.Frame) (engine.Signal, error) {
	return engine.Next, f.Instance.RemoveAppInstance(c.Instance)
}

func (c *CloseInstance) DisplayText() string {
	return "Close " + orPlaceholder(c.Instance)
}
