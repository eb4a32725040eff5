package alerts

import "time"

// Task type constants
const (
	TaskTopUpCompleted = "email:topup_completed"
	TaskOrderPlaced    = "email:order_placed"
	TaskLowBalance     = "email:low_balance"
	TaskAdminAlert     = "email:admin_alert"
)

const (
	queueEmails = "emails"
	queueAlerts = "alerts"
)

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Top-up credited payload (sent to the wallet owner)
type TopUpCompletedPayload struct {
	UserID           string        `json:"user_id"`
	PaymentReference string        `json:"payment_reference"`
	Amount           int64         `json:"amount"`
	Balance          int64         `json:"balance"`
	Envelope         EmailEnvelope `json:"envelope"`
	SentAt           time.Time     `json:"sent_at"`
}

// Order placed payload (sent to the buyer)
type OrderPlacedPayload struct {
	OrderID     string        `json:"order_id"`
	UserID      string        `json:"user_id"`
	Carrier     string        `json:"carrier"`
	PackageName string        `json:"package_name"`
	PhoneNumber string        `json:"phone_number"`
	Amount      int64         `json:"amount"`
	Envelope    EmailEnvelope `json:"envelope"`
	SentAt      time.Time     `json:"sent_at"`
}

// Low balance payload (sent to the wallet owner)
type LowBalancePayload struct {
	UserID    string        `json:"user_id"`
	Balance   int64         `json:"balance"`
	Threshold int64         `json:"threshold"`
	Envelope  EmailEnvelope `json:"envelope"`
	SentAt    time.Time     `json:"sent_at"`
}

// Admin alert payload
type AdminAlertPayload struct {
	Severity string        `json:"severity"` // info|warning|critical
	Message  string        `json:"message"`
	Envelope EmailEnvelope `json:"envelope"`
	SentAt   time.Time     `json:"sent_at"`
}
