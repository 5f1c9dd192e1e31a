// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the audit-log consumer.
package queue

// Queue names. Both are durable; messages are published as persistent.
const (
	AuthEventsQueue = "auth.events"
	MailOutboxQueue = "mail.outbox"
)

// AuthEventType names a security-relevant session transition.
type AuthEventType string

const (
	EventLogin                  AuthEventType = "login"
	EventRefresh                AuthEventType = "refresh"
	EventRefreshReplay          AuthEventType = "refresh_replay"
	EventLogout                 AuthEventType = "logout"
	EventDeviceTerminated       AuthEventType = "device_terminated"
	EventOtherDevicesTerminated AuthEventType = "other_devices_terminated"
	EventBan                    AuthEventType = "ban"
	EventUnban                  AuthEventType = "unban"
	EventPasswordChanged        AuthEventType = "password_changed"
)

// AuthEvent is published after every session state change. It carries
// enough context for the audit log without querying the database.
type AuthEvent struct {
	Type       AuthEventType `json:"type"`
	UserID     uint64        `json:"user_id"`
	DeviceID   string        `json:"device_id,omitempty"`
	IP         string        `json:"ip,omitempty"`
	UserAgent  string        `json:"user_agent,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	OccurredAt string        `json:"occurred_at"`
}

// MailJob asks the mailer to deliver a message. Rendering the body is the
// mailer's job; the job only carries the data the template needs.
type MailJob struct {
	Kind         string `json:"kind"` // password_recovery
	To           string `json:"to"`
	RecoveryCode string `json:"recovery_code,omitempty"`
	CreatedAt    string `json:"created_at"`
}

const MailKindPasswordRecovery = "password_recovery"
