// Package memory is an in-process uploader used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"monthbook/internal/upload"
)

// Uploader keeps a copy of every uploaded file in memory.
type Uploader struct {
	mu      sync.Mutex
	target  string
	enabled bool
	err     error
	objects []Stored
}

// Stored is one received upload.
type Stored struct {
	Object upload.Object
	Data   []byte
}

var _ upload.Uploader = (*Uploader)(nil)

// New returns an enabled uploader reporting target.
func New(target string) *Uploader {
	return &Uploader{target: target, enabled: true}
}

// Disable makes Enabled report false.
func (u *Uploader) Disable() *Uploader {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.enabled = false
	return u
}

// FailWith makes every following Upload return err.
func (u *Uploader) FailWith(err error) *Uploader {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.err = err
	return u
}

func (u *Uploader) Target() string { return u.target }

func (u *Uploader) Enabled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.enabled
}

// Upload reads the file at obj.Path and stores it.
func (u *Uploader) Upload(_ context.Context, obj upload.Object) (upload.Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.enabled {
		return upload.Result{}, upload.ErrDisabled
	}
	if u.err != nil {
		return upload.Result{}, u.err
	}
	data, err := os.ReadFile(obj.Path)
	if err != nil {
		return upload.Result{}, fmt.Errorf("read %s: %w", obj.Path, err)
	}
	u.objects = append(u.objects, Stored{Object: obj, Data: data})
	id := fmt.Sprintf("mem:%d", len(u.objects))
	return upload.Result{
		Target:    u.target,
		RemoteID:  id,
		Link:      "memory://" + u.target + "/" + id,
		SizeBytes: int64(len(data)),
	}, nil
}

// Objects returns the uploads received so far.
func (u *Uploader) Objects() []Stored {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Stored(nil), u.objects...)
}
