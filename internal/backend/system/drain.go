package system

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Drain consumes one output stream to completion into an in-memory buffer.
// The buffer has no other writer; callers must wait on Done before reading it.
type Drain struct {
	r         io.ReadCloser
	buf       bytes.Buffer
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

// NewDrain creates a drain for r. Run must be called to start consuming.
func NewDrain(r io.ReadCloser) *Drain {
	return &Drain{
		r:    r,
		done: make(chan struct{}),
	}
}

// Run reads until end of stream or a read error. Done is closed on exit
// whichever way the read loop ends.
func (d *Drain) Run() {
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			d.err = fmt.Errorf("drain panic: %v", r)
		}
	}()

	// ReadFrom keeps every byte read before an error.
	if _, err := d.buf.ReadFrom(d.r); err != nil {
		d.err = err
	}
}

// Done is closed once Run has returned.
func (d *Drain) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until Run has returned.
func (d *Drain) Wait() {
	<-d.done
}

// Close closes the underlying stream, unblocking a pending read. Safe to call
// more than once and concurrently with Run.
func (d *Drain) Close() {
	d.closeOnce.Do(func() {
		_ = d.r.Close()
	})
}

// Bytes returns the captured output. Only valid after Done.
func (d *Drain) Bytes() []byte {
	return d.buf.Bytes()
}

// Err returns the read error that ended the drain, nil on clean EOF.
// Only valid after Done.
func (d *Drain) Err() error {
	return d.err
}
