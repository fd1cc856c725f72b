package output

import (
	"testing"

	"pkgcheck/config"
	"pkgcheck/scanner"

	otelLog "go.opentelemetry.io/otel/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

func findAttr(kvs []otelLog.KeyValue, key string) (otelLog.Value, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return otelLog.Value{}, false
}

func recordAttrs(r otelLog.Record) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	r.WalkAttributes(func(kv otelLog.KeyValue) bool {
		kvs = append(kvs, kv)
		return true
	})
	return kvs
}

func TestResolveOtelEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "https://logs.example.test/v1/logs")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://fallback.example.test")

	cfg := &config.Config{OtelEndpoint: "  https://explicit.example.test  ", OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://explicit.example.test" {
		t.Fatalf("expected explicit endpoint, got %q", got)
	}

	cfg = &config.Config{OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://logs.example.test/v1/logs" {
		t.Fatalf("expected logs env endpoint, got %q", got)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "")
	if got := resolveOtelEndpoint(cfg); got != "https://fallback.example.test" {
		t.Fatalf("expected fallback env endpoint, got %q", got)
	}

	cfg = &config.Config{OtelFromEnv: false}
	if got := resolveOtelEndpoint(cfg); got != "" {
		t.Fatalf("expected empty endpoint when env fallback disabled, got %q", got)
	}
}

func TestNewOtelLoggerDisabledAndInvalid(t *testing.T) {
	if o, err := newOtelLogger(&config.Config{}); o != nil || err != nil {
		t.Fatalf("expected disabled exporter, got %v, %v", o, err)
	}
	if _, err := newOtelLogger(&config.Config{OtelEndpoint: "collector:4318"}); err == nil {
		t.Fatal("expected error for endpoint without scheme")
	}
	var o *otelLogger
	o.Emit("file", nil)
	o.Shutdown()
}

func TestSanitizePayloadFile(t *testing.T) {
	payload := map[string]any{
		"file_path":    "lib/secret.dll",
		"signature":    "CN=Contoso",
		"file_version": "1.2",
	}
	sanitized := sanitizePayload("file", payload, otelPolicy{})
	if _, ok := sanitized["file_path"]; ok {
		t.Fatal("expected file path to be stripped")
	}
	if _, ok := sanitized["signature"]; ok {
		t.Fatal("expected signature to be stripped")
	}
	if sanitized["file_version"] != "1.2" {
		t.Fatal("expected version to be kept")
	}
	if _, ok := payload["file_path"]; !ok {
		t.Fatal("expected original payload to remain unchanged")
	}

	kept := sanitizePayload("file", payload, otelPolicy{includePaths: true, includeSignatures: true})
	if kept["file_path"] != "lib/secret.dll" || kept["signature"] != "CN=Contoso" {
		t.Fatalf("expected fields kept when enabled, got %v", kept)
	}

	scan := sanitizePayload("scan", map[string]any{"root": "/srv/pkg", "mode": "directory"}, otelPolicy{})
	if _, ok := scan["root"]; ok {
		t.Fatal("expected scan root to be stripped")
	}
}

func TestSemanticAttributesFile(t *testing.T) {
	data := payloadToMap(scanner.FileRecord{
		FilePath:       "bin/x64/tool.exe",
		FileVersion:    "1.0.0.1",
		ProductVersion: "1.0",
		Signature:      "CN=Contoso",
		Highlighted:    true,
		Hashes:         map[string]string{"sha256": "abc123"},
	})

	attrs := semanticAttributes("file", data, otelPolicy{includePaths: true, includeSignatures: true})
	if value, ok := findAttr(attrs, string(semconv.FilePathKey)); !ok || value.AsString() != "bin/x64/tool.exe" {
		t.Fatalf("expected file path attribute, got %#v", value)
	}
	if value, ok := findAttr(attrs, string(semconv.FileDirectoryKey)); !ok || value.AsString() != "bin/x64" {
		t.Fatalf("expected directory attribute, got %#v", value)
	}
	if value, ok := findAttr(attrs, string(semconv.FileExtensionKey)); !ok || value.AsString() != "exe" {
		t.Fatalf("expected extension attribute, got %#v", value)
	}
	if value, ok := findAttr(attrs, "pkgcheck.file.highlighted"); !ok || !value.AsBool() {
		t.Fatalf("expected highlighted attribute, got %#v", value)
	}
	if _, ok := findAttr(attrs, "pkgcheck.file.hash.sha256"); !ok {
		t.Fatal("expected hash attribute")
	}
	if _, ok := findAttr(attrs, "pkgcheck.file.signature"); !ok {
		t.Fatal("expected signature attribute when enabled")
	}

	private := semanticAttributes("file", data, otelPolicy{})
	if _, ok := findAttr(private, string(semconv.FilePathKey)); ok {
		t.Fatal("did not expect file path attribute when paths are disabled")
	}
	if _, ok := findAttr(private, "pkgcheck.file.signature"); ok {
		t.Fatal("did not expect signature attribute when signatures are disabled")
	}
	if value, ok := findAttr(private, "pkgcheck.file.version"); !ok || value.AsString() != "1.0.0.1" {
		t.Fatalf("expected version attribute, got %#v", value)
	}
}

func TestSummaryAttributes(t *testing.T) {
	summary := Summary{
		Status:  "Files shown: 2. Files hidden: 1.",
		Metrics: Metrics{TotalFiles: 3, Shown: 2, Hidden: 1, Highlighted: 1, DurationMS: 12},
	}
	record := buildRecord("summary", summary, otelPolicy{})
	attrs := recordAttrs(record)
	if value, ok := findAttr(attrs, "record_type"); !ok || value.AsString() != "summary" {
		t.Fatalf("expected record_type attribute, got %#v", value)
	}
	if value, ok := findAttr(attrs, "pkgcheck.summary.status"); !ok || value.AsString() != summary.Status {
		t.Fatalf("expected status attribute, got %#v", value)
	}
	if value, ok := findAttr(attrs, "pkgcheck.metrics.files_hidden"); !ok || value.AsInt64() != 1 {
		t.Fatalf("expected hidden count attribute, got %#v", value)
	}
	if record.Body().Kind() != otelLog.KindMap {
		t.Fatalf("expected map body, got %v", record.Body().Kind())
	}
}
