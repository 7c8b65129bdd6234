package enums

type PaymentRequestStatus string

const (
	PaymentRequestStatusPendingVerification PaymentRequestStatus = "PENDING_VERIFICATION"
	PaymentRequestStatusVerified            PaymentRequestStatus = "VERIFIED"
	PaymentRequestStatusActivated           PaymentRequestStatus = "ACTIVATED"
	PaymentRequestStatusRejected            PaymentRequestStatus = "REJECTED"
)

func (s PaymentRequestStatus) Terminal() bool {
	return s == PaymentRequestStatusActivated || s == PaymentRequestStatusRejected
}
