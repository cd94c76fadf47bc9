package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestVaultError_Error(t *testing.T) {
	err := &VaultError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "folder not found",
	}

	expected := "NOT_FOUND: folder not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("folder name is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "folder name is required" {
		t.Errorf("Message = %q, want %q", err.Message, "folder name is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("capture", "01ABC")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "01ABC" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "01ABC")
	}
	if err.Details["kind"] != "capture" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "capture")
	}
}

func TestNewFileNotFound(t *testing.T) {
	err := NewFileNotFound("/tmp/missing.pdf")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Details["kind"] != "file" {
		t.Errorf("Details[kind] = %v, want file", err.Details["kind"])
	}
}

func TestNewCaptureTimeout(t *testing.T) {
	err := NewCaptureTimeout("20s")

	if err.Code != ErrCaptureTimeout {
		t.Errorf("Code = %q, want %q", err.Code, ErrCaptureTimeout)
	}
	if err.Status != 408 {
		t.Errorf("Status = %d, want 408", err.Status)
	}
}

func TestNewCaptureBusy(t *testing.T) {
	err := NewCaptureBusy()
	if err.Code != ErrCaptureBusy || err.Status != 409 {
		t.Errorf("got %s/%d, want %s/409", err.Code, err.Status, ErrCaptureBusy)
	}
}

func TestNewConflict(t *testing.T) {
	err := NewConflict("folders")
	if err.Code != ErrConflict || err.Status != 409 {
		t.Errorf("got %s/%d, want %s/409", err.Code, err.Status, ErrConflict)
	}
	if err.Details["collection"] != "folders" {
		t.Errorf("Details[collection] = %v, want folders", err.Details["collection"])
	}
}

func TestNewRelocationFailed_WrapsCause(t *testing.T) {
	cause := fs.ErrNotExist
	err := NewRelocationFailed("/pics/a.png", cause)

	if err.Code != ErrRelocationFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrRelocationFailed)
	}
	if !stderrors.Is(err, fs.ErrNotExist) {
		t.Error("RelocationFailed should unwrap to its cause")
	}
	if err.Details["source"] != "/pics/a.png" {
		t.Errorf("Details[source] = %v", err.Details["source"])
	}
}

func TestNewDeletionFailed(t *testing.T) {
	err := NewDeletionFailed("folder", "01XYZ", fs.ErrPermission)

	if err.Code != ErrDeletionFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrDeletionFailed)
	}
	if !stderrors.Is(err, fs.ErrPermission) {
		t.Error("DeletionFailed should unwrap to its cause")
	}
}

func TestNewStoreCorruption(t *testing.T) {
	err := NewStoreCorruption("folders", fmt.Errorf("unexpected EOF"))

	if err.Code != ErrStoreCorruption {
		t.Errorf("Code = %q, want %q", err.Code, ErrStoreCorruption)
	}
	if err.Details["collection"] != "folders" {
		t.Errorf("Details[collection] = %v, want folders", err.Details["collection"])
	}
}

func TestNewInternal_NilError(t *testing.T) {
	err := NewInternal(nil)

	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("folder", "x"), ErrNotFound, true},
		{"different code", NewNotFound("folder", "x"), ErrInvalidRequest, false},
		{"wrapped", fmt.Errorf("op: %w", NewCaptureTimeout("1s")), ErrCaptureTimeout, true},
		{"foreign error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(NewInvalidRequest("x")); got != 400 {
		t.Errorf("StatusOf(invalid) = %d, want 400", got)
	}
	if got := StatusOf(fmt.Errorf("plain")); got != 500 {
		t.Errorf("StatusOf(plain) = %d, want 500", got)
	}
}
