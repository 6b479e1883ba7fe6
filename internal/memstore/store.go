// Package memstore keeps every repository of the booking engine in process
// memory. It backs STORE_BACKEND=memory and the service-level tests.
package memstore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/audit"
	"github.com/hackgods/dental-booking-engine/internal/catalog"
	"github.com/hackgods/dental-booking-engine/internal/payment"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
	"github.com/hackgods/dental-booking-engine/internal/waitlist"
)

type ruleKey struct {
	providerID uuid.UUID
	day        time.Weekday
}

// Store is the shared state. The typed views returned by its accessors
// implement the individual repository interfaces.
type Store struct {
	mu sync.RWMutex

	rules        map[ruleKey]scheduling.Rule
	services     map[uuid.UUID]catalog.Service
	appointments map[uuid.UUID]appointment.Appointment
	records      []payment.Record
	entries      map[uuid.UUID]waitlist.Entry
	events       []audit.Event
	nextEventID  int64
}

func New() *Store {
	return &Store{
		rules:        make(map[ruleKey]scheduling.Rule),
		services:     make(map[uuid.UUID]catalog.Service),
		appointments: make(map[uuid.UUID]appointment.Appointment),
		entries:      make(map[uuid.UUID]waitlist.Entry),
	}
}

func (s *Store) Catalog() *CatalogStore {
	return &CatalogStore{s: s}
}

func (s *Store) Appointments() *AppointmentRepo {
	return &AppointmentRepo{s: s}
}

func (s *Store) Payments() *PaymentStore {
	return &PaymentStore{s: s}
}

func (s *Store) Waitlist() *WaitlistRepo {
	return &WaitlistRepo{s: s}
}

func (s *Store) Audit() *AuditSink {
	return &AuditSink{s: s}
}
