package kafka

import "github.com/segmentio/kafka-go"

// headerValue returns the value of the first header named key, or "" if
// absent. kafka.Message carries the binder uri, what code and transaction
// id as headers alongside the parcel-encoded value.
func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
