package amqp

import (
	"encoding/json"
	"time"

	"wisp/internal/core"
)

type EventType string

const (
	// EventMovementCreated announces that a movement and its distribution
	// batch were persisted.
	EventMovementCreated EventType = "movement.created"
	// EventSalaryUpdated announces a salary change; the recompute worker
	// reacts by refreshing the affected period's prorrata distributions.
	EventSalaryUpdated EventType = "salary.updated"
)

// LedgerEvent is the wire format for ledger notifications.
type LedgerEvent struct {
	Type        EventType `json:"type"`
	MovementID  int64     `json:"movement_id,omitempty"`
	HouseholdID int64     `json:"household_id"`
	Period      string    `json:"period"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewMovementCreatedEvent(movementID, householdID int64, period core.PeriodToken) *LedgerEvent {
	return &LedgerEvent{
		Type:        EventMovementCreated,
		MovementID:  movementID,
		HouseholdID: householdID,
		Period:      string(period),
		Timestamp:   time.Now().UTC(),
	}
}

func NewSalaryUpdatedEvent(householdID int64, period core.PeriodToken) *LedgerEvent {
	return &LedgerEvent{
		Type:        EventSalaryUpdated,
		HouseholdID: householdID,
		Period:      string(period),
		Timestamp:   time.Now().UTC(),
	}
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
