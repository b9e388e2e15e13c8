package mqtt

import "fmt"

// maxPayloadSize caps outgoing messages at 1MB, in line with common
// broker limits. State events are a few hundred bytes; anything near
// the cap is a bug upstream.
const maxPayloadSize = 1 << 20

// Publish sends one message to the broker and waits for the
// acknowledgement the QoS level implies.
//
// Retained messages are stored by the broker and replayed to new
// subscribers; use retained for state topics, not for event streams.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}
