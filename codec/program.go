package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// programChunkSize is the size of the chunks moved between the stream and the external command.
const programChunkSize = 32 * 1024

// Program implements Codec by piping the stream through an external command.
type Program struct {
	// Command is split on whitespace; the first field names the executable.
	Command string

	// Signature is the magic prefix the stream must start with. An empty Signature matches any stream, see Fallback.
	Signature []byte
}

var _ Codec = &Program{}

func (p *Program) Name() string {
	return "program: " + p.Command
}

func (p *Program) Match(_ string, peek []byte) bool {
	return bytes.HasPrefix(peek, p.Signature)
}

// NewDecoder starts the command.
//
// src is only ever read from the goroutine calling Read on the returned decoder. Helper goroutines move bytes
// between the decoder and the command's pipes without touching src.
func (p *Program) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	args := strings.Fields(p.Command)
	if len(args) == 0 {
		return nil, errors.New("empty program command")
	}

	cmd := exec.Command(args[0], args[1:]...)

	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe error: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe error: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf(`start "%s" error: %w`, p.Command, err)
	}

	d := &programDecoder{
		cmd:        cmd,
		src:        src,
		stderr:     stderr,
		in:         make(chan []byte),
		out:        make(chan []byte),
		quit:       make(chan struct{}),
		stdoutDone: make(chan struct{}),
	}
	go d.pumpStdin(stdin)
	go d.pumpStdout(stdout)

	return d, nil
}

type programDecoder struct {
	cmd    *exec.Cmd
	src    io.Reader
	stderr *bytes.Buffer

	// in carries chunks of src to pumpStdin; closed once src is exhausted or failed.
	in       chan []byte
	inClosed bool
	// out carries chunks of the command's stdout; closed by pumpStdout at the end of stdout.
	out        chan []byte
	quit       chan struct{}
	stdoutDone chan struct{}

	// next is the chunk of src waiting to be sent on in.
	next    []byte
	srcDone bool
	pending []byte

	err    error
	waited bool
	closed bool
}

func (d *programDecoder) Read(p []byte) (int, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			return 0, d.err
		}

		if d.next == nil && !d.srcDone {
			buf := make([]byte, programChunkSize)
			n, err := d.src.Read(buf)
			if n > 0 {
				d.next = buf[:n]
			}
			switch {
			case err == io.EOF:
				d.srcDone = true
			case err != nil:
				// the stream failed so there is no point in letting the command finish.
				d.err = err
				d.closeIn()
				d.stop()
				return 0, err
			}
			switch {
			case d.srcDone && d.next == nil:
				d.closeIn()
			case d.next == nil:
				// nothing was read; only take output that is already available before reading again.
				select {
				case chunk, ok := <-d.out:
					d.receive(chunk, ok)
				default:
				}
				continue
			}
		}

		var in chan<- []byte
		if d.next != nil {
			in = d.in
		}

		select {
		case chunk, ok := <-d.out:
			d.receive(chunk, ok)
		case in <- d.next:
			d.next = nil
			if d.srcDone {
				d.closeIn()
			}
		}
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// receive handles one receive from out.
func (d *programDecoder) receive(chunk []byte, ok bool) {
	if ok {
		d.pending = chunk
		return
	}

	if d.err = d.wait(); d.err == nil {
		d.err = io.EOF
	}
}

// pumpStdin writes chunks received on in to the command's stdin.
//
// Once a write fails, the remaining chunks are discarded so that Read never blocks on in.
func (d *programDecoder) pumpStdin(stdin io.WriteCloser) {
	var failed bool
	for chunk := range d.in {
		if failed {
			continue
		}
		if _, err := stdin.Write(chunk); err != nil {
			failed = true
		}
	}

	_ = stdin.Close()
}

// pumpStdout reads the command's stdout and sends it on out.
func (d *programDecoder) pumpStdout(stdout io.Reader) {
	defer close(d.stdoutDone)
	defer close(d.out)

	for {
		buf := make([]byte, programChunkSize)
		n, err := stdout.Read(buf)
		if n > 0 {
			select {
			case d.out <- buf[:n]:
			case <-d.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (d *programDecoder) closeIn() {
	if !d.inClosed {
		d.inClosed = true
		close(d.in)
	}
}

// stop kills the command if it is still running and reaps it.
func (d *programDecoder) stop() {
	if d.closed {
		return
	}
	d.closed = true
	close(d.quit)

	if !d.waited {
		_ = d.cmd.Process.Kill()
		_ = d.wait()
	}
}

func (d *programDecoder) wait() error {
	if d.waited {
		return nil
	}
	d.waited = true

	// stdout must be fully drained before Wait closes it.
	<-d.stdoutDone

	if err := d.cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(d.stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w", msg, err)
		}

		return err
	}

	return nil
}

func (d *programDecoder) Close() error {
	d.closeIn()
	d.stop()
	return nil
}
