package aws_sqs

import (
	"github.com/Avi18971911/AugurSensor/pkg/trace/propagation"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
)

const (
	maxMessageAttributes = 10
	stringDataType       = "String"
)

// attributeCarrier reads and writes trace context as SQS message attributes.
type attributeCarrier map[string]*sqs.MessageAttributeValue

func (c attributeCarrier) Get(key string) (string, bool) {
	value, ok := c[key]
	if !ok || value == nil || value.StringValue == nil {
		return "", false
	}
	return *value.StringValue, true
}

func (c attributeCarrier) Set(key string, value string) {
	c[key] = &sqs.MessageAttributeValue{
		DataType:    aws.String(stringDataType),
		StringValue: aws.String(value),
	}
}

// batchCarrier writes to every message of a batch.
type batchCarrier []propagation.Carrier

func (c batchCarrier) Get(key string) (string, bool) {
	if len(c) == 0 {
		return "", false
	}
	return c[0].Get(key)
}

func (c batchCarrier) Set(key string, value string) {
	for _, carrier := range c {
		carrier.Set(key, value)
	}
}

// copyAttributes returns a copy of attributes that trace context can be
// added to, or false if the message has no room for it.
func copyAttributes(attributes map[string]*sqs.MessageAttributeValue) (attributeCarrier, bool) {
	if len(attributes)+len(propagation.Keys) > maxMessageAttributes {
		return nil, false
	}
	copied := make(attributeCarrier, len(attributes)+len(propagation.Keys))
	for key, value := range attributes {
		copied[key] = value
	}
	return copied, true
}

// withTraceAttributeNames returns names extended by the carrier keys unless
// every attribute is already requested.
func withTraceAttributeNames(names []*string) []*string {
	requested := make(map[string]bool, len(names))
	for _, name := range names {
		value := aws.StringValue(name)
		if value == "All" || value == ".*" {
			return names
		}
		requested[value] = true
	}
	extended := make([]*string, len(names), len(names)+len(propagation.Keys))
	copy(extended, names)
	for _, key := range propagation.Keys {
		if !requested[key] {
			extended = append(extended, aws.String(key))
		}
	}
	return extended
}
