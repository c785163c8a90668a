package otlp_export

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

const (
	scopeName          = "github.com/Avi18971911/AugurSensor"
	serviceNameKey     = "service.name"
	processPIDKey      = "process.pid"
	hostIDKey          = "host.id"
	defaultServiceName = "unknown_service"
	traceIDLength      = 16
	spanIDLength       = 8
)

// ToResourceSpans groups spans by the service and process that recorded them.
// Span data becomes attributes named category.key.
func ToResourceSpans(spans []model.Span, serviceName string) []*tracepb.ResourceSpans {
	type origin struct {
		service string
		from    model.From
	}
	var order []origin
	grouped := make(map[origin][]*tracepb.Span)
	for _, span := range spans {
		key := origin{service: spanServiceName(span, serviceName)}
		if span.From != nil {
			key.from = *span.From
		}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], toProtoSpan(span))
	}

	resourceSpans := make([]*tracepb.ResourceSpans, 0, len(order))
	for _, key := range order {
		attributes := []*commonpb.KeyValue{stringAttribute(serviceNameKey, key.service)}
		if key.from.EntityID != "" {
			attributes = append(attributes, stringAttribute(processPIDKey, key.from.EntityID))
		}
		if key.from.HostID != "" {
			attributes = append(attributes, stringAttribute(hostIDKey, key.from.HostID))
		}
		resourceSpans = append(resourceSpans, &tracepb.ResourceSpans{
			Resource: &resourcepb.Resource{Attributes: attributes},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{Name: scopeName},
				Spans: grouped[key],
			}},
		})
	}
	return resourceSpans
}

func toProtoSpan(span model.Span) *tracepb.Span {
	startTime := uint64(span.Timestamp) * 1e6
	protoSpan := &tracepb.Span{
		TraceId:           decodeID(span.TraceID, traceIDLength),
		SpanId:            decodeID(span.SpanID, spanIDLength),
		Name:              span.Name,
		Kind:              toProtoKind(span.Kind),
		StartTimeUnixNano: startTime,
		EndTimeUnixNano:   startTime + uint64(span.Duration)*1e6,
		Attributes:        toAttributes(span.Data),
	}
	if span.ParentID != "" {
		protoSpan.ParentSpanId = decodeID(span.ParentID, spanIDLength)
	}
	if span.ErrorCount > 0 {
		protoSpan.Status = &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR}
	}
	return protoSpan
}

func toProtoKind(kind model.SpanKind) tracepb.Span_SpanKind {
	switch kind {
	case model.Entry:
		return tracepb.Span_SPAN_KIND_SERVER
	case model.Exit:
		return tracepb.Span_SPAN_KIND_CLIENT
	default:
		return tracepb.Span_SPAN_KIND_INTERNAL
	}
}

func toAttributes(data model.SpanData) []*commonpb.KeyValue {
	var attributes []*commonpb.KeyValue
	for category, value := range data {
		nested, ok := value.(map[string]interface{})
		if !ok {
			attributes = append(attributes, &commonpb.KeyValue{Key: category, Value: toAnyValue(value)})
			continue
		}
		for key, nestedValue := range nested {
			attributes = append(attributes, &commonpb.KeyValue{Key: category + "." + key, Value: toAnyValue(nestedValue)})
		}
	}
	sort.Slice(attributes, func(i, j int) bool {
		return attributes[i].Key < attributes[j].Key
	})
	return attributes
}

func toAnyValue(value interface{}) *commonpb.AnyValue {
	switch v := value.(type) {
	case string:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}}
	case bool:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: v}}
	case int:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: int64(v)}}
	case int64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v}}
	case float64:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: v}}
	default:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: fmt.Sprint(v)}}
	}
}

// decodeID turns a hex id into length bytes, left padded with zeros.
func decodeID(id string, length int) []byte {
	if len(id)%2 == 1 {
		id = "0" + id
	}
	raw, err := hex.DecodeString(id)
	if err != nil {
		return make([]byte, length)
	}
	if len(raw) >= length {
		return raw[len(raw)-length:]
	}
	padded := make([]byte, length)
	copy(padded[length-len(raw):], raw)
	return padded
}

func spanServiceName(span model.Span, fallback string) string {
	if name, ok := span.Data["service"].(string); ok && name != "" {
		return name
	}
	if fallback != "" {
		return fallback
	}
	return defaultServiceName
}

// FromResourceSpans converts OTLP spans back into span records.
func FromResourceSpans(resourceSpan *tracepb.ResourceSpans) []model.Span {
	serviceName, from := resourceOrigin(resourceSpan.GetResource())
	var spans []model.Span
	for _, scopeSpans := range resourceSpan.GetScopeSpans() {
		for _, span := range scopeSpans.GetSpans() {
			spans = append(spans, fromProtoSpan(span, serviceName, from))
		}
	}
	return spans
}

func fromProtoSpan(span *tracepb.Span, serviceName string, from *model.From) model.Span {
	startTime := int64(span.GetStartTimeUnixNano() / 1e6)
	endTime := int64(span.GetEndTimeUnixNano() / 1e6)
	record := model.Span{
		TraceID:   encodeID(span.GetTraceId()),
		ParentID:  encodeID(span.GetParentSpanId()),
		SpanID:    encodeID(span.GetSpanId()),
		Kind:      fromProtoKind(span.GetKind()),
		Name:      span.GetName(),
		Timestamp: startTime,
		Duration:  endTime - startTime,
		Data:      fromAttributes(span.GetAttributes()),
		From:      from,
	}
	if _, ok := record.Data["service"]; !ok && serviceName != "" {
		record.Data["service"] = serviceName
	}
	if span.GetStatus().GetCode() == tracepb.Status_STATUS_CODE_ERROR {
		record.ErrorCount = 1
	}
	return record
}

func fromProtoKind(kind tracepb.Span_SpanKind) model.SpanKind {
	switch kind {
	case tracepb.Span_SPAN_KIND_SERVER, tracepb.Span_SPAN_KIND_CONSUMER:
		return model.Entry
	case tracepb.Span_SPAN_KIND_CLIENT, tracepb.Span_SPAN_KIND_PRODUCER:
		return model.Exit
	default:
		return model.Intermediate
	}
}

func fromAttributes(attributes []*commonpb.KeyValue) model.SpanData {
	data := model.SpanData{}
	for _, attribute := range attributes {
		value := fromAnyValue(attribute.GetValue())
		if category, key, ok := strings.Cut(attribute.GetKey(), "."); ok {
			data.Set(category, key, value)
		} else {
			data[attribute.GetKey()] = value
		}
	}
	return data
}

func fromAnyValue(value *commonpb.AnyValue) interface{} {
	switch v := value.GetValue().(type) {
	case *commonpb.AnyValue_BoolValue:
		return v.BoolValue
	case *commonpb.AnyValue_IntValue:
		return int(v.IntValue)
	case *commonpb.AnyValue_DoubleValue:
		return v.DoubleValue
	default:
		return value.GetStringValue()
	}
}

func resourceOrigin(resource *resourcepb.Resource) (string, *model.From) {
	var serviceName string
	from := &model.From{}
	for _, attribute := range resource.GetAttributes() {
		switch attribute.GetKey() {
		case serviceNameKey:
			serviceName = attribute.GetValue().GetStringValue()
		case processPIDKey:
			from.EntityID = attributeString(attribute.GetValue())
		case hostIDKey:
			from.HostID = attribute.GetValue().GetStringValue()
		}
	}
	if from.EntityID == "" && from.HostID == "" {
		return serviceName, nil
	}
	return serviceName, from
}

func attributeString(value *commonpb.AnyValue) string {
	if intValue, ok := value.GetValue().(*commonpb.AnyValue_IntValue); ok {
		return strconv.FormatInt(intValue.IntValue, 10)
	}
	return value.GetStringValue()
}

// encodeID drops the zero padding added to 64 bit trace ids.
func encodeID(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if len(raw) == traceIDLength && allZero(raw[:spanIDLength]) {
		raw = raw[spanIDLength:]
	}
	return hex.EncodeToString(raw)
}

func allZero(raw []byte) bool {
	for _, b := range raw {
		if b != 0 {
			return false
		}
	}
	return true
}

func stringAttribute(key string, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}
