package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"pkgcheck/config"
	"pkgcheck/logger"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

type otelLogger struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
	policy   otelPolicy
}

// otelPolicy controls which identifying fields leave the host.
type otelPolicy struct {
	includePaths      bool
	includeSignatures bool
}

func newOtelLogger(cfg *config.Config) (*otelLogger, error) {
	if cfg == nil {
		return nil, nil
	}
	endpoint := resolveOtelEndpoint(cfg)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.OtelServiceName
	if serviceName == "" {
		serviceName = "pkgcheck"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	return &otelLogger{
		provider: provider,
		logger:   provider.Logger("pkgcheck"),
		timeout:  cfg.OtelTimeout,
		endpoint: endpoint,
		policy: otelPolicy{
			includePaths:      cfg.OtelExportPaths,
			includeSignatures: cfg.OtelExportSigners,
		},
	}, nil
}

func resolveOtelEndpoint(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if endpoint := strings.TrimSpace(cfg.OtelEndpoint); endpoint != "" {
		return endpoint
	}
	if !cfg.OtelFromEnv {
		return ""
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func (o *otelLogger) Emit(recordType string, payload any) {
	if o == nil || o.logger == nil {
		return
	}
	o.logger.Emit(context.Background(), buildRecord(recordType, payload, o.policy))
}

func buildRecord(recordType string, payload any, policy otelPolicy) otelLog.Record {
	data := sanitizePayload(recordType, payloadToMap(payload), policy)

	var record otelLog.Record
	now := time.Now()
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetEventName("pkgcheck.record")
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	if attrs := semanticAttributes(recordType, data, policy); len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}
	if len(data) > 0 {
		record.SetBody(toLogValue(data))
	}
	return record
}

func (o *otelLogger) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

func sanitizePayload(recordType string, data map[string]any, policy otelPolicy) map[string]any {
	if len(data) == 0 {
		return data
	}
	sanitized := cloneMap(data)
	switch recordType {
	case "file":
		if !policy.includePaths {
			delete(sanitized, "file_path")
		}
		if !policy.includeSignatures {
			delete(sanitized, "signature")
		}
	case "scan":
		if !policy.includePaths {
			delete(sanitized, "root")
		}
	}
	return sanitized
}

func cloneMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func toLogValue(value any) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case map[string]any:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for key, item := range v {
			kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(item)})
		}
		return otelLog.MapValue(kvs...)
	case map[string]string:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for k, val := range v {
			kvs = append(kvs, otelLog.String(k, val))
		}
		return otelLog.MapValue(kvs...)
	case []any:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		return otelLog.StringValue(fmt.Sprint(v))
	}
}

func semanticAttributes(recordType string, data map[string]any, policy otelPolicy) []otelLog.KeyValue {
	if len(data) == 0 {
		return nil
	}
	switch recordType {
	case "file":
		return fileSemanticAttributes(data, policy)
	case "host":
		return hostSemanticAttributes(data)
	case "scan":
		return scanSemanticAttributes(data, policy)
	case "summary":
		return summarySemanticAttributes(data)
	default:
		return nil
	}
}

// File paths in records are slash separated regardless of host OS.
func fileSemanticAttributes(data map[string]any, policy otelPolicy) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	filePath := getStringField(data, "file_path")
	if policy.includePaths && filePath != "" {
		kvs = append(kvs, otelLog.String(string(semconv.FilePathKey), filePath))
		kvs = append(kvs, otelLog.String(string(semconv.FileDirectoryKey), path.Dir(filePath)))
		kvs = append(kvs, otelLog.String(string(semconv.FileNameKey), path.Base(filePath)))
		if ext := strings.TrimPrefix(path.Ext(filePath), "."); ext != "" {
			kvs = append(kvs, otelLog.String(string(semconv.FileExtensionKey), ext))
		}
	}
	kvs = appendStringAttr(kvs, "pkgcheck.file.version", getStringField(data, "file_version"))
	kvs = appendStringAttr(kvs, "pkgcheck.file.product_version", getStringField(data, "product_version"))
	if policy.includeSignatures {
		kvs = appendStringAttr(kvs, "pkgcheck.file.signature", getStringField(data, "signature"))
	}
	if highlighted, ok := data["highlighted"].(bool); ok {
		kvs = append(kvs, otelLog.Bool("pkgcheck.file.highlighted", highlighted))
	}
	for algo, value := range getStringMapField(data, "hashes") {
		kvs = appendStringAttr(kvs, "pkgcheck.file.hash."+algo, value)
	}
	kvs = appendStringAttr(kvs, "pkgcheck.file.fuzzy_hash", getStringField(data, "fuzzy_hash"))
	return kvs
}

func hostSemanticAttributes(data map[string]any) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	kvs = appendStringAttr(kvs, string(semconv.HostNameKey), getStringField(data, "hostname"))
	kvs = appendStringAttr(kvs, "os.type", getStringField(data, "os"))
	kvs = appendStringAttr(kvs, string(semconv.OSVersionKey), getStringField(data, "platform_version"))
	kvs = appendStringAttr(kvs, "host.arch", getStringField(data, "arch"))
	return kvs
}

func scanSemanticAttributes(data map[string]any, policy otelPolicy) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	if policy.includePaths {
		kvs = appendStringAttr(kvs, "pkgcheck.scan.root", getStringField(data, "root"))
	}
	kvs = appendStringAttr(kvs, "pkgcheck.scan.mode", getStringField(data, "mode"))
	kvs = appendStringAttr(kvs, "pkgcheck.scan.started", getStringField(data, "started"))
	return kvs
}

func summarySemanticAttributes(data map[string]any) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	kvs = appendStringAttr(kvs, "pkgcheck.summary.status", getStringField(data, "status"))
	metrics, _ := data["metrics"].(map[string]any)
	for _, key := range []string{"total_files", "files_shown", "files_hidden", "files_highlighted", "duration_ms"} {
		if value, ok := getInt64Field(metrics, key); ok {
			kvs = append(kvs, otelLog.Int64("pkgcheck.metrics."+key, value))
		}
	}
	return kvs
}

// payloadToMap round-trips payload through JSON so struct tags decide the
// attribute names.
func payloadToMap(payload any) map[string]any {
	if m, ok := payload.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil
	}
	return decoded
}

func getStringField(values map[string]any, key string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprint(value)
}

func getInt64Field(values map[string]any, key string) (int64, bool) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func getStringMapField(values map[string]any, key string) map[string]string {
	m, ok := values[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}
