package enums

type TransferStatus string

const (
	TransferStatusPendingOTP TransferStatus = "PENDING_OTP"
	TransferStatusCompleted  TransferStatus = "COMPLETED"
	TransferStatusExpired    TransferStatus = "EXPIRED"
	TransferStatusCancelled  TransferStatus = "CANCELLED"
)

func (s TransferStatus) Terminal() bool {
	return s != TransferStatusPendingOTP
}
