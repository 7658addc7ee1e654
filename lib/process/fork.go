package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Process is a forked plugin executable whose stdin/stdout carry the plugin
// protocol. Stderr is kept separate so plugin diagnostics never corrupt framing.
type Process struct {
	cmd          *exec.Cmd
	stdinWriter  *io.PipeWriter
	stdoutReader *io.PipeReader
	stdoutWriter *io.PipeWriter

	waitOnce sync.Once
	waitErr  error
}

// Options configures a forked process.
type Options struct {
	Args   []string
	Env    []string
	Dir    string
	Stderr io.Writer
}

func Fork(path string) (*Process, error) {
	return ForkWithOptions(path, Options{})
}

func ForkWithOptions(path string, opts Options) (*Process, error) {
	cmd := exec.Command(path, opts.Args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	cmd.Stdin = stdinReader
	cmd.Stdout = stdoutWriter
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	} else {
		cmd.Stderr = io.Discard
	}

	if err := cmd.Start(); err != nil {
		stdinWriter.Close()
		stdoutReader.Close()
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	return &Process{
		cmd:          cmd,
		stdinWriter:  stdinWriter,
		stdoutReader: stdoutReader,
		stdoutWriter: stdoutWriter,
	}, nil
}

func (p *Process) Stdin() *io.PipeWriter {
	return p.stdinWriter
}

func (p *Process) Stdout() *io.PipeReader {
	return p.stdoutReader
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits. The stdout pipe is closed afterwards so
// readers observe EOF. It is safe to call more than once.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		p.stdoutWriter.Close()
		if err != nil {
			p.waitErr = fmt.Errorf("process exited with error: %w", err)
		}
	})
	return p.waitErr
}

func (p *Process) Close() error {
	if err := p.stdinWriter.Close(); err != nil {
		return fmt.Errorf("failed to close stdin writer: %w", err)
	}
	if err := p.stdoutReader.Close(); err != nil {
		return fmt.Errorf("failed to close stdout reader: %w", err)
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	return nil
}
