package outbox

// Event types emitted by the scheduling engine. Downstream listeners
// (reminders, notifications, analytics) consume these; nothing in the booking
// path depends on them being delivered.
const (
	EventAppointmentBooked        = "scheduling.appointment.booked.v1"
	EventAppointmentCancelled     = "scheduling.appointment.cancelled.v1"
	EventAppointmentStatusChanged = "scheduling.appointment.status_changed.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
