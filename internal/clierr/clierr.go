// Package clierr defines the error taxonomy shared by the transfer engine and
// the CLI. Engines return *Error values carrying a stable Code; the root
// command maps every error to a printed message and exit code 1.
//
// A Code is itself an error so callers can match with errors.Is:
//
//	if errors.Is(err, clierr.FileExist) { ... }
package clierr

import (
	"errors"
	"fmt"
)

// Kind groups codes into the six failure families.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindInput
	KindState
	KindTransport
	KindIntegrity
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindInput:
		return "input"
	case KindState:
		return "state"
	case KindTransport:
		return "transport"
	case KindIntegrity:
		return "integrity"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Code is a stable, user-visible error identifier.
type Code string

// Auth codes.
const (
	LoginExpired       Code = "LOGIN_EXPIRED"
	InvalidCredentials Code = "INVALID_CREDENTIALS"
	PermissionDenied   Code = "PERMISSION_DENIED"
	ProjectDenied      Code = "PROJECT_DENIED"
	NotLoggedIn        Code = "NOT_LOGGED_IN"
)

// Input codes.
const (
	InvalidPath       Code = "INVALID_PATH"
	InvalidFolderName Code = "INVALID_FOLDER_NAME"
	InvalidTag        Code = "INVALID_TAG"
	InvalidAttribute  Code = "INVALID_ATTRIBUTE"
	InvalidZone       Code = "INVALID_ZONE"
	InvalidManifest   Code = "INVALID_MANIFEST"
)

// State codes.
const (
	FileExist        Code = "FILE_EXIST"
	FileLocked       Code = "FILE_LOCKED"
	AlreadyTrashed   Code = "ALREADY_TRASHED"
	FolderEmpty      Code = "FOLDER_EMPTY"
	UploadIDNotExist Code = "UPLOAD_ID_NOT_EXIST"
	UploadCancel     Code = "UPLOAD_CANCEL"
	UploadFail       Code = "UPLOAD_FAIL"
	DownloadFail     Code = "DOWNLOAD_FAIL"
	ItemNotFound     Code = "ITEM_NOT_FOUND"
)

// Transport codes.
const (
	ConnectionError Code = "CONNECTION_ERROR"
	RetryExhausted  Code = "RETRY_EXHAUSTED"
)

// Integrity codes.
const (
	InvalidChunkUpload   Code = "INVALID_CHUNK_UPLOAD"
	DownloadSizeMismatch Code = "DOWNLOAD_SIZE_MISMATCH"
)

// Server codes.
const (
	ServerError Code = "SERVER_ERROR"
)

var kinds = map[Code]Kind{
	LoginExpired:         KindAuth,
	InvalidCredentials:   KindAuth,
	PermissionDenied:     KindAuth,
	ProjectDenied:        KindAuth,
	NotLoggedIn:          KindAuth,
	InvalidPath:          KindInput,
	InvalidFolderName:    KindInput,
	InvalidTag:           KindInput,
	InvalidAttribute:     KindInput,
	InvalidZone:          KindInput,
	InvalidManifest:      KindInput,
	FileExist:            KindState,
	FileLocked:           KindState,
	AlreadyTrashed:       KindState,
	FolderEmpty:          KindState,
	UploadIDNotExist:     KindState,
	UploadCancel:         KindState,
	UploadFail:           KindState,
	DownloadFail:         KindState,
	ItemNotFound:         KindState,
	ConnectionError:      KindTransport,
	RetryExhausted:       KindTransport,
	InvalidChunkUpload:   KindIntegrity,
	DownloadSizeMismatch: KindIntegrity,
	ServerError:          KindServer,
}

var messages = map[Code]string{
	LoginExpired:         "the login session has expired, please log in again",
	InvalidCredentials:   "invalid credentials",
	PermissionDenied:     "permission denied",
	ProjectDenied:        "you do not have access to this project",
	NotLoggedIn:          "not logged in, run 'pilotcli user login' first",
	InvalidPath:          "invalid path",
	InvalidFolderName:    "invalid folder name",
	InvalidTag:           "invalid tag",
	InvalidAttribute:     "invalid attribute",
	InvalidZone:          "invalid zone, expected green or core",
	InvalidManifest:      "invalid resumable manifest",
	FileExist:            "file already exists",
	FileLocked:           "file is locked by another operation",
	AlreadyTrashed:       "item is already in the trash",
	FolderEmpty:          "folder is empty",
	UploadIDNotExist:     "the multipart upload no longer exists on the server",
	UploadCancel:         "upload canceled",
	UploadFail:           "upload failed",
	DownloadFail:         "download failed",
	ItemNotFound:         "item not found",
	ConnectionError:      "cannot reach the platform",
	RetryExhausted:       "request failed after all retries",
	InvalidChunkUpload:   "local file changed since the upload started",
	DownloadSizeMismatch: "downloaded size does not match the announced size",
	ServerError:          "unexpected server response",
}

// Kind returns the family a code belongs to.
func (c Code) Kind() Kind {
	return kinds[c]
}

// Error implements error so codes can be used as errors.Is targets.
func (c Code) Error() string {
	if msg, ok := messages[c]; ok {
		return msg
	}

	return string(c)
}

// Error is a classified failure. Detail is appended to the code's message;
// Err is the underlying cause, if any.
type Error struct {
	Code   Code
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Code.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Code or another *Error with the same code.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Code:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	default:
		return false
	}
}

// Kind returns the failure family.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// New builds an *Error with a formatted detail.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error.
func Wrap(code Code, err error, detail string) *Error {
	return &Error{Code: code, Detail: detail, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}

	var c Code
	if errors.As(err, &c) {
		return c
	}

	return ""
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}
