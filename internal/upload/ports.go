// Package upload defines the outbound ports used to mirror rendered reports
// to remote storage.
package upload

import (
	"context"
	"errors"
)

var (
	// ErrDisabled means the uploader is not configured.
	ErrDisabled = errors.New("uploader disabled")
	// ErrUnavailable means the uploader is configured but its client could not be initialized.
	ErrUnavailable = errors.New("upload client unavailable")
)

type (
	// Object is a local file to upload.
	Object struct {
		Path        string
		Name        string
		ContentType string
		Month       string
	}

	// Result describes the remote copy of an uploaded object.
	Result struct {
		Target    string `json:"target"`
		RemoteID  string `json:"remoteId"`
		Link      string `json:"link,omitempty"`
		SizeBytes int64  `json:"sizeBytes"`
	}

	// Uploader copies a local file to a remote target.
	Uploader interface {
		// Target names the destination, e.g. "drive".
		Target() string
		// Enabled reports whether the uploader is configured. Disabled
		// uploaders are skipped without any attempt.
		Enabled() bool
		Upload(ctx context.Context, obj Object) (Result, error)
	}
)
