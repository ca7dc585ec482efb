package forecast

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// Worker service and method names.
const (
	WorkerService = "forecast.v1.ForecastService"
	predictMethod = "/" + WorkerService + "/Predict"
)

// Quantiles requested from the worker: lower, median, upper.
var Quantiles = []float64{0.1, 0.5, 0.9}

// WorkerClient calls the model worker over gRPC. Payloads are
// google.protobuf.Struct documents.
type WorkerClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewWorkerClient connects lazily to addr.
func NewWorkerClient(addr string, opts ...grpc.DialOption) (*WorkerClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &WorkerClient{conn: conn, timeout: 60 * time.Second}, nil
}

func (w *WorkerClient) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

// Healthy asks the worker's health service about WorkerService.
func (w *WorkerClient) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(w.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: WorkerService})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Predict runs model over closes for horizon steps.
func (w *WorkerClient) Predict(ctx context.Context, model string, closes []float64, horizon int) (Output, error) {
	series := make([]any, len(closes))
	for i, c := range closes {
		series[i] = c
	}
	qs := make([]any, len(Quantiles))
	for i, q := range Quantiles {
		qs[i] = q
	}
	req, err := structpb.NewStruct(map[string]any{
		"model":             model,
		"context":           series,
		"prediction_length": horizon,
		"quantiles":         qs,
	})
	if err != nil {
		return Output{}, fmt.Errorf("encode forecast request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	resp := &structpb.Struct{}
	if err := w.conn.Invoke(ctx, predictMethod, req, resp); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return decodeOutput(resp, horizon)
}

// decodeOutput reads {median, lower, upper} and rejects error-shaped
// payloads: an "error" field, or non-finite values.
func decodeOutput(resp *structpb.Struct, horizon int) (Output, error) {
	fields := resp.GetFields()
	if e, ok := fields["error"]; ok {
		msg := strings.TrimSpace(e.GetStringValue())
		if msg == "" {
			msg = "unspecified"
		}
		return Output{}, fmt.Errorf("%w: %s", ErrUpstreamContent, msg)
	}

	median, err := floats(fields["median"])
	if err != nil {
		return Output{}, err
	}
	if len(median) != horizon {
		return Output{}, fmt.Errorf("%w: expected %d points, got %d", ErrUpstreamContent, horizon, len(median))
	}
	out := Output{Median: median}
	if lower, err := floats(fields["lower"]); err == nil && len(lower) == horizon {
		out.Lower = lower
	}
	if upper, err := floats(fields["upper"]); err == nil && len(upper) == horizon {
		out.Upper = upper
	}
	return out, nil
}

func floats(v *structpb.Value) ([]float64, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: missing series", ErrUpstreamContent)
	}
	out := make([]float64, len(list.GetValues()))
	for i, item := range list.GetValues() {
		f := item.GetNumberValue()
		if _, ok := item.GetKind().(*structpb.Value_NumberValue); !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-numeric value at %d", ErrUpstreamContent, i)
		}
		out[i] = f
	}
	return out, nil
}

// Chronos is a Chronos-Bolt checkpoint served by the worker.
type Chronos struct {
	size   string
	params string
	worker *WorkerClient
}

// ChronosModels returns the tiny, mini and small checkpoints.
func ChronosModels(w *WorkerClient) []Model {
	return []Model{
		&Chronos{size: "tiny", params: "9M params - lightning fast", worker: w},
		&Chronos{size: "mini", params: "21M params - fast and accurate", worker: w},
		&Chronos{size: "small", params: "48M params - great balance", worker: w},
	}
}

func (c *Chronos) ID() string   { return "chronos-bolt-" + c.size }
func (c *Chronos) Name() string { return "Chronos-Bolt " + strings.ToUpper(c.size[:1]) + c.size[1:] }
func (c *Chronos) Description() string {
	return "Amazon Chronos-Bolt " + c.params
}

func (c *Chronos) Predict(ctx context.Context, closes []float64, horizon int) (Output, error) {
	return c.worker.Predict(ctx, "amazon/chronos-bolt-"+c.size, closes, horizon)
}

func (c *Chronos) Healthy(ctx context.Context) bool { return c.worker.Healthy(ctx) }
