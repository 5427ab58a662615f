package health

import (
	"context"
	"errors"
)

// Catalog returns an advisory [Checker] named "catalog" that fails while size
// reports an empty voice catalog. An empty catalog still serves requests, but
// every voice resolves to "" and the backend picks its own default.
func Catalog(size func() int) Checker {
	return Checker{
		Name:     "catalog",
		Advisory: true,
		Check: func(_ context.Context) error {
			if size() == 0 {
				return errors.New("voice catalog is empty")
			}
			return nil
		},
	}
}

// Session returns a [Checker] named "session" that fails while connected
// reports no live realtime session.
func Session(connected func() bool) Checker {
	return Checker{
		Name: "session",
		Check: func(_ context.Context) error {
			if !connected() {
				return errors.New("no realtime session")
			}
			return nil
		},
	}
}

// Backend returns a [Checker] named "backend" that fails while open reports
// that connects to the realtime backend are being rejected.
func Backend(open func() bool) Checker {
	return Checker{
		Name: "backend",
		Check: func(_ context.Context) error {
			if open() {
				return errors.New("backend circuit open")
			}
			return nil
		},
	}
}
