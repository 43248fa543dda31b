package gateway

// DeliveryGuarantee selects how hard the broker tries to deliver a message.
type DeliveryGuarantee int

const (
	// AtMostOnce is fire and forget (QoS 0).
	AtMostOnce DeliveryGuarantee = iota

	// AtLeastOnce retries until acknowledged and may duplicate (QoS 1).
	// It is the default for SendMessage.
	AtLeastOnce

	// ExactlyOnce uses the four-way handshake (QoS 2).
	ExactlyOnce
)

// QoS returns the MQTT QoS level. Unknown values map to 1.
func (g DeliveryGuarantee) QoS() byte {
	switch g {
	case AtMostOnce:
		return 0
	case ExactlyOnce:
		return 2
	default:
		return 1
	}
}

// String returns the guarantee name.
func (g DeliveryGuarantee) String() string {
	switch g {
	case AtMostOnce:
		return "at_most_once"
	case AtLeastOnce:
		return "at_least_once"
	case ExactlyOnce:
		return "exactly_once"
	default:
		return "unknown"
	}
}

// sendOptions holds per-message publish settings.
type sendOptions struct {
	guarantee DeliveryGuarantee
	retain    bool
}

func defaultSendOptions() sendOptions {
	return sendOptions{guarantee: AtLeastOnce}
}

// SendOption customises a single SendMessage call.
type SendOption func(*sendOptions)

// WithDeliveryGuarantee overrides the default AtLeastOnce guarantee.
func WithDeliveryGuarantee(g DeliveryGuarantee) SendOption {
	return func(o *sendOptions) { o.guarantee = g }
}

// WithRetain asks the broker to keep the message for late subscribers.
func WithRetain(retain bool) SendOption {
	return func(o *sendOptions) { o.retain = retain }
}
