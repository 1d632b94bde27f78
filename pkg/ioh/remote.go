package ioh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/dflow/pkg/ferrors"
	"github.com/cuemby/dflow/pkg/types"
)

// RemoteOptions configures a remote-object-backed Handle. The actual
// object store is an external collaborator (spec.md §1): this client
// only needs to honor the connect/request timeout contract and
// surface failures, including timeouts, as *ferrors.IOError.
type RemoteOptions struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	UID            string
}

// RemoteHandle is a thin HTTP client addressing a single remote object
// by UID. Open buffers writes locally and flushes them with a single
// PUT on Close so that a short write on the wire never partially
// updates the remote object.
type RemoteHandle struct {
	opts   RemoteOptions
	client *http.Client
	mode   types.OpenMode
	opened bool
	pending bytes.Buffer
	readBuf []byte
	readPos int
	readDone bool
}

// NewRemoteHandle constructs a RemoteHandle. host and port must be set;
// zero timeouts fall back to 5s connect / 30s request.
func NewRemoteHandle(opts RemoteOptions) (*RemoteHandle, error) {
	if opts.Host == "" || opts.Port == 0 {
		return nil, &ferrors.InvalidConfig{Subject: "RemoteHandle", Reason: "host and port are required"}
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	return &RemoteHandle{
		opts: opts,
		client: &http.Client{
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
	}, nil
}

func (h *RemoteHandle) Backend() types.IOBackend { return types.BackendRemoteObject }

func (h *RemoteHandle) url() string {
	return fmt.Sprintf("http://%s:%d/%s", h.opts.Host, h.opts.Port, h.opts.UID)
}

func (h *RemoteHandle) Open(mode types.OpenMode) error {
	h.mode = mode
	h.opened = true
	h.pending.Reset()
	h.readBuf = nil
	h.readPos = 0
	h.readDone = false
	return nil
}

func (h *RemoteHandle) Write(p []byte) (int, error) {
	if !h.opened || h.mode != types.OpenWrite {
		return 0, unsupportedMode(types.BackendRemoteObject, types.OpenWrite)
	}
	return h.pending.Write(p)
}

func (h *RemoteHandle) Read(n int) ([]byte, error) {
	if !h.opened || h.mode != types.OpenRead {
		return nil, unsupportedMode(types.BackendRemoteObject, types.OpenRead)
	}
	if h.readBuf == nil && !h.readDone {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.RequestTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url(), nil)
		if err != nil {
			return nil, &ferrors.IOError{Op: "read", Err: err}
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return nil, wrapTimeout("read", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &ferrors.IOError{Op: "read", Err: err}
		}
		h.readBuf = body
		h.readDone = true
	}
	if h.readPos >= len(h.readBuf) {
		return nil, nil
	}
	end := h.readPos + n
	if end > len(h.readBuf) {
		end = len(h.readBuf)
	}
	chunk := h.readBuf[h.readPos:end]
	h.readPos = end
	return chunk, nil
}

func (h *RemoteHandle) Close() error {
	if !h.opened || h.mode != types.OpenWrite || h.pending.Len() == 0 {
		h.opened = false
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.url(), bytes.NewReader(h.pending.Bytes()))
	if err != nil {
		return &ferrors.IOError{Op: "close", Err: err}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return wrapTimeout("close", err)
	}
	defer resp.Body.Close()
	h.opened = false
	if resp.StatusCode >= 300 {
		return &ferrors.IOError{Op: "close", Err: fmt.Errorf("remote object store returned %s", resp.Status)}
	}
	return nil
}

func (h *RemoteHandle) Exists() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.url(), nil)
	if err != nil {
		return false, &ferrors.IOError{Op: "exists", Err: err}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false, wrapTimeout("exists", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (h *RemoteHandle) Delete() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, h.url(), nil)
	if err != nil {
		return &ferrors.IOError{Op: "delete", Err: err}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return wrapTimeout("delete", err)
	}
	defer resp.Body.Close()
	return nil
}

func (h *RemoteHandle) DataURL() string {
	return fmt.Sprintf("remote://%s:%d/%s", h.opts.Host, h.opts.Port, h.opts.UID)
}

// wrapTimeout reports a client failure, timeouts included, as
// *ferrors.IOError; a timeout stays visible through Unwrap as the
// underlying error's Timeout() method.
func wrapTimeout(op string, err error) error {
	return &ferrors.IOError{Op: op, Err: err}
}
