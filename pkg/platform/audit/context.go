package audit

import (
	"context"

	"carepilot/pkg/requestcontext"
)

// Stamp copies request metadata from ctx onto r where r has none.
func (r Record) Stamp(ctx context.Context) Record {
	if r.RequestID == "" {
		r.RequestID = requestcontext.RequestID(ctx)
	}
	if r.ClientIP == "" {
		r.ClientIP = requestcontext.ClientIP(ctx)
	}
	if r.Device == "" {
		r.Device = requestcontext.Device(ctx)
	}
	return r
}

// Stamp copies request metadata from ctx onto a where a has none.
func (a PHIAccess) Stamp(ctx context.Context) PHIAccess {
	if a.RequestID == "" {
		a.RequestID = requestcontext.RequestID(ctx)
	}
	if a.ClientIP == "" {
		a.ClientIP = requestcontext.ClientIP(ctx)
	}
	if a.Device == "" {
		a.Device = requestcontext.Device(ctx)
	}
	return a
}
