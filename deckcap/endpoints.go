package deckcap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/deckcap/deckcap/internal/assemble"
	"github.com/hazyhaar/deckcap/deckcap/internal/kit"
)

// ExportRequest starts an export. With Wait the call returns the finished
// run; otherwise it returns as soon as capture has begun.
type ExportRequest struct {
	Wait bool `json:"wait,omitempty"`
}

// HistoryRequest lists persisted runs.
type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// endpoints are shared by the HTTP and MCP surfaces.
type endpoints struct {
	export  kit.Endpoint
	status  kit.Endpoint
	history kit.Endpoint
	formats kit.Endpoint
	slides  kit.Endpoint
}

func (e *Exporter) endpoints(logger *slog.Logger) endpoints {
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.Logging(logger, name))(ep)
	}
	return endpoints{
		export:  wrap("export", e.exportEndpoint),
		status:  wrap("status", func(context.Context, any) (any, error) { return e.Status(), nil }),
		history: wrap("history", e.historyEndpoint),
		formats: wrap("formats", func(context.Context, any) (any, error) { return assemble.Formats(), nil }),
		slides:  wrap("slides", func(context.Context, any) (any, error) { return e.Slides(), nil }),
	}
}

func (e *Exporter) exportEndpoint(ctx context.Context, req any) (any, error) {
	r, ok := req.(*ExportRequest)
	if !ok {
		return nil, fmt.Errorf("deckcap: unexpected request %T", req)
	}
	if r.Wait {
		return e.Export(ctx)
	}
	// The run outlives the request that started it.
	if _, err := e.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	return e.Status(), nil
}

func (e *Exporter) historyEndpoint(ctx context.Context, req any) (any, error) {
	r, ok := req.(*HistoryRequest)
	if !ok {
		return nil, fmt.Errorf("deckcap: unexpected request %T", req)
	}
	return e.History(ctx, r.Limit)
}
