package server

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/obsidium-dev/obsidium/pkg/server"

// Span names.
const (
	spanLogin  = "obsidium.login"
	spanStatus = "obsidium.status"
)

// Attribute keys.
const (
	attrConnID   = attribute.Key("obsidium.conn_id")
	attrProtocol = attribute.Key("obsidium.protocol_version")
	attrPlayer   = attribute.Key("obsidium.player")
	attrRemote   = attribute.Key("net.peer.address")
)

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		return otel.Tracer(tracerName)
	}
	return tp.Tracer(tracerName)
}

// negotiation is the span of one status or login exchange. The zero value
// is inert.
type negotiation struct {
	span trace.Span
}

func (c *Conn) startNegotiation(name string, version int32) {
	if c.negotiation.span != nil {
		return
	}
	_, span := c.srv.tracer.Start(context.Background(), name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attrConnID.Int64(int64(c.id)),
			attrProtocol.Int(int(version)),
			attrRemote.String(c.remote),
		),
	)
	c.negotiation.span = span
}

func (n *negotiation) setPlayer(name string) {
	if n.span != nil {
		n.span.SetAttributes(attrPlayer.String(name))
	}
}

func (n *negotiation) event(name string) {
	if n.span != nil {
		n.span.AddEvent(name)
	}
}

// end finishes the span. A non-nil err marks it failed.
func (n *negotiation) end(err error) {
	if n.span == nil {
		return
	}
	if err != nil {
		n.span.RecordError(err)
		n.span.SetStatus(codes.Error, err.Error())
	} else {
		n.span.SetStatus(codes.Ok, "")
	}
	n.span.End()
	n.span = nil
}
