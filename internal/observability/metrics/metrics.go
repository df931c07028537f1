package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes onboarding instruments. A nil *Metrics records nothing.
type Metrics struct {
	stepSubmissions     metric.Int64Counter
	gateTransitions     metric.Int64Counter
	completions         metric.Int64Counter
	storeErrors         metric.Int64Counter
	invitationDispatch  metric.Int64Counter
	verificationResends metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New creates the onboarding instruments on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "launchpad"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.stepSubmissions, "launchpad_onboarding_step_submissions_total", "Onboarding step submissions by step and outcome."},
		{&m.gateTransitions, "launchpad_onboarding_gate_transitions_total", "Onboarding gate state transitions."},
		{&m.completions, "launchpad_onboarding_completions_total", "Completed onboarding flows by remote sync result."},
		{&m.storeErrors, "launchpad_onboarding_store_errors_total", "Progress store failures by operation."},
		{&m.invitationDispatch, "launchpad_invitation_dispatch_total", "Invitation emails by result."},
		{&m.verificationResends, "launchpad_verification_resends_total", "Verification email resend requests by result."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) RecordStepSubmission(ctx context.Context, step, outcome string) {
	if m == nil {
		return
	}
	m.stepSubmissions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("step", strings.TrimSpace(step)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

func (m *Metrics) RecordGateTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.gateTransitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	)...))
}

// RecordCompletion counts a finished flow; remoteSynced is false when the
// profile flag write failed and completion was kept locally.
func (m *Metrics) RecordCompletion(ctx context.Context, remoteSynced bool) {
	if m == nil {
		return
	}
	m.completions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.Bool("remote_synced", remoteSynced),
	)...))
}

func (m *Metrics) RecordStoreError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.storeErrors.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("op", op),
	)...))
}

func (m *Metrics) RecordInvitationDispatch(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.invitationDispatch.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("result", result),
	)...))
}

func (m *Metrics) RecordVerificationResend(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.verificationResends.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("result", result),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"step":          {},
	"outcome":       {},
	"from":          {},
	"to":            {},
	"op":            {},
	"result":        {},
	"remote_synced": {},
	"endpoint":      {},
	"status_code":   {},
}

// FilterAttributes strips labels outside the allowlist. User ids and emails
// never become metric labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
