package otel

import (
	"context"
	"sync"
	"time"

	eventbus "github.com/hanpama/livegraph/internal/eventbus"
	events "github.com/hanpama/livegraph/internal/events"
	reqid "github.com/hanpama/livegraph/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	Register(tp.Tracer("livegraph"))

	return tp.Shutdown, nil
}

// Register turns events of the global bus into spans of tracer until the
// returned function is called.
func Register(tracer trace.Tracer) (unregister func()) {
	sub := &subscriber{tracer: tracer}
	sub.register()
	return func() {
		for _, u := range sub.unsubs {
			u()
		}
	}
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span
	gqlSpans  sync.Map // rid -> trace.Span
	hostSpans sync.Map // source/method -> trace.Span
	subSpans  sync.Map // subscription id -> trace.Span
	unsubs    []func()
}

func subscribe[T any](s *subscriber, h eventbus.Handler[T]) {
	s.unsubs = append(s.unsubs, eventbus.Subscribe(h))
}

func (s *subscriber) register() {
	subscribe(s, func(ctx context.Context, e events.RequestStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	})

	subscribe(s, func(ctx context.Context, e events.RequestFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			semconv.HTTPStatusCodeKey.Int(e.Status),
			attribute.Int("graphql.batch_size", e.Operations),
		)
		span.End()
	})

	subscribe(s, func(ctx context.Context, e events.OperationStart) {
		rid, _ := reqid.FromContext(ctx)
		parent := ctx
		if v, ok := s.httpSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "graphql.operation")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationType),
			attribute.String("graphql.transport", e.Transport),
		)
		s.gqlSpans.Store(rid, span)
	})

	subscribe(s, func(ctx context.Context, e events.OperationFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.gqlSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
		span.End()
	})

	subscribe(s, func(ctx context.Context, e events.SubscriptionStart) {
		_, span := s.tracer.Start(ctx, "graphql.subscription")
		span.SetAttributes(
			attribute.String("graphql.subscription.id", e.ID),
			attribute.String("graphql.operation.name", e.OperationName),
		)
		s.subSpans.Store(e.ID, span)
	})

	subscribe(s, func(ctx context.Context, e events.SubscriptionFinish) {
		v, ok := s.subSpans.LoadAndDelete(e.ID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Int("graphql.subscription.emissions", e.Emissions))
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	})

	subscribe(s, func(ctx context.Context, e events.HostCallStart) {
		_, span := s.tracer.Start(ctx, "datasource.host")
		span.SetAttributes(
			semconv.RPCSystemKey.String("grpc"),
			semconv.RPCMethodKey.String(e.Method),
			attribute.String("net.peer.name", e.Target),
			attribute.String("livegraph.source", e.Source),
		)
		s.hostSpans.Store(e.Source+"/"+e.Method, span)
	})

	subscribe(s, func(ctx context.Context, e events.HostCallFinish) {
		v, ok := s.hostSpans.LoadAndDelete(e.Source + "/" + e.Method)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.String("grpc.code", e.Code.String()))
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	})

	// Store writes are short; their spans are recorded after the fact.
	subscribe(s, func(ctx context.Context, e events.EntityApplied) {
		end := time.Now()
		_, span := s.tracer.Start(ctx, "store.apply", trace.WithTimestamp(end.Add(-e.Duration)))
		span.SetAttributes(
			attribute.String("livegraph.source", e.Source),
			attribute.String("livegraph.event.kind", e.Kind),
			attribute.String("livegraph.entity.type", e.Type),
			attribute.String("livegraph.entity.id", e.ID),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End(trace.WithTimestamp(end))
	})

	subscribe(s, func(ctx context.Context, e events.EventRejected) {
		_, span := s.tracer.Start(ctx, "datasource.reject")
		span.SetAttributes(
			attribute.String("livegraph.source", e.Source),
			attribute.String("livegraph.event.kind", e.Kind),
			attribute.String("livegraph.entity.type", e.Type),
			attribute.String("livegraph.entity.id", e.ID),
		)
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
		span.End()
	})
}
