package realtime

import "strings"

// Topic families:
//
//	payment:{checkoutRequestId}:{merchantRequestId}  one-shot, single terminal message
//	conversation:{userA}:{userB}                     long-lived chat, ids sorted
//
// Topics exist only while at least one local connection subscribes to them.

// PaymentTopic returns the broadcast topic for one payment attempt.
func PaymentTopic(checkoutRequestID, merchantRequestID string) string {
	return "payment:" + checkoutRequestID + ":" + merchantRequestID
}

// ConversationTopic returns the canonical topic for a user pair. The ids are
// sorted so both participants compute the same key regardless of order.
func ConversationTopic(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return "conversation:" + userA + ":" + userB
}

// IsPaymentTopic reports whether the topic belongs to the payment family.
func IsPaymentTopic(topic string) bool {
	return strings.HasPrefix(topic, "payment:")
}
