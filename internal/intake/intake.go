// Package intake streams the multipart "file" field of an upload request
// into the request's workspace and validates its size.
package intake

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"insights-gateway/internal/model"
	"insights-gateway/internal/pool"
	"insights-gateway/internal/workspace"
)

const (
	// FieldName is the multipart field that carries the archive.
	FieldName = "file"

	// UploadFile is the workspace-relative name the archive is written to.
	UploadFile = "upload"

	// formOverhead is the slack allowed on top of MaxSize for multipart
	// boundaries and other form fields.
	formOverhead int64 = 1 << 20
)

// Upload is an archive persisted in a workspace.
type Upload struct {
	Path string
	Size int64
}

// Intake validates and stores uploads.
type Intake struct {
	MaxSize int64
}

// New returns an Intake enforcing maxSize bytes per archive.
func New(maxSize int64) *Intake {
	return &Intake{MaxSize: maxSize}
}

// Accept finds the "file" part of r and writes it to ws.
//
// The reported size is measured on disk after the write; the request's
// Content-Length is never trusted. Nothing is written when the part is
// missing.
func (in *Intake) Accept(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) (*Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, in.MaxSize+formOverhead)

	part, err := in.filePart(r)
	if err != nil {
		return nil, err
	}
	defer part.Close()

	path := ws.Path(UploadFile)
	if err := in.store(path, part); err != nil {
		return nil, err
	}

	return in.check(path)
}

// check measures the stored file; the on-disk size is authoritative.
func (in *Intake) check(path string) (*Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat upload: %w", err)
	}
	size := info.Size()

	switch {
	case size > in.MaxSize:
		return nil, in.tooBig(size)
	case size == 0:
		return nil, model.NewError(model.KindEmptyPayload, "Upload has an empty archive body.")
	}
	return &Upload{Path: path, Size: size}, nil
}

// AcceptFile copies a local archive into ws with the same size checks as
// Accept. Used by the operator CLI.
func (in *Intake) AcceptFile(src string, ws *workspace.Workspace) (*Upload, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, model.WrapError(model.KindMissingPayload, err, "Cannot open %s", src)
	}
	defer f.Close()

	path := ws.Path(UploadFile)
	if err := in.store(path, f); err != nil {
		return nil, err
	}
	return in.check(path)
}

func (in *Intake) filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, missing(err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, missing(nil)
		}
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, in.exceeds()
			}
			return nil, missing(err)
		}
		if part.FormName() == FieldName {
			return part, nil
		}
		part.Close()
	}
}

// store writes at most MaxSize bytes of src to path. An oversized upload is
// drained without being stored so the rejection can report its real size.
func (in *Intake) store(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	n, err := pool.Copy(f, io.LimitReader(src, in.MaxSize+1))
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err == nil && n > in.MaxSize {
		rest, derr := pool.Copy(io.Discard, src)
		n += rest
		err = derr
		if err == nil {
			return in.tooBig(n)
		}
	}
	if err == nil {
		return nil
	}

	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return in.exceeds()
	}
	return model.WrapError(model.KindMissingPayload, err, "Upload could not be read: %v", err)
}

func (in *Intake) tooBig(size int64) error {
	return model.NewError(model.KindPayloadTooLarge, "Upload is too big. %d/%d bytes", size, in.MaxSize)
}

// exceeds is used when the request body hit its hard cap before the upload
// could be measured.
func (in *Intake) exceeds() error {
	return model.NewError(model.KindPayloadTooLarge, "Upload is too big. Exceeds %d bytes", in.MaxSize)
}

func missing(cause error) error {
	if cause == nil {
		return model.NewError(model.KindMissingPayload, "No '%s' key found in form part", FieldName)
	}
	return model.WrapError(model.KindMissingPayload, cause, "No '%s' key found in form part", FieldName)
}
