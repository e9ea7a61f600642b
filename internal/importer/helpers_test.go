package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	mu        sync.Mutex
	eventID   uuid.UUID
	tickets   map[string]*TicketType // keyed by normalized ref
	attendees map[string]*Attendee   // keyed by normalized email
	created   []*Attendee

	findErr   error
	createErr func(a *Attendee) error
}

func newFakeStore(eventID uuid.UUID) *fakeStore {
	return &fakeStore{
		eventID:   eventID,
		tickets:   make(map[string]*TicketType),
		attendees: make(map[string]*Attendee),
	}
}

func (f *fakeStore) addTicket(name string, remaining int) *TicketType {
	t := &TicketType{ID: uuid.New(), EventID: f.eventID, Name: name, Remaining: remaining}
	f.tickets[strings.ToLower(name)] = t
	return t
}

func (f *fakeStore) FindAttendeeByEmail(_ context.Context, _ uuid.UUID, normalizedEmail string) (*Attendee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.attendees[normalizedEmail], nil
}

func (f *fakeStore) ResolveTicketType(_ context.Context, _ uuid.UUID, ref string) (*TicketType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickets[strings.ToLower(strings.TrimSpace(ref))], nil
}

func (f *fakeStore) CreateAttendee(_ context.Context, a *Attendee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		if err := f.createErr(a); err != nil {
			return err
		}
	}
	f.attendees[NormalizeEmail(a.Email)] = a
	f.created = append(f.created, a)
	return nil
}

// fakeNotifier records confirmation sends and can fail on demand.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	calls chan string
}

func newFakeNotifier(buffer int) *fakeNotifier {
	return &fakeNotifier{calls: make(chan string, buffer)}
}

func (f *fakeNotifier) SendConfirmation(_ context.Context, a *Attendee, _ *Event) error {
	f.mu.Lock()
	f.sent = append(f.sent, a.Email)
	fail := f.fail
	f.mu.Unlock()
	f.calls <- a.Email
	if fail {
		return fmt.Errorf("smtp unavailable")
	}
	return nil
}

func testEvent() *Event {
	return &Event{ID: uuid.New(), Name: "GopherConf"}
}

func mustValidRows(rows []string) []MappedRow {
	out := make([]MappedRow, 0, len(rows))
	for i, email := range rows {
		out = append(out, MappedRow{
			Number:        i + 1,
			Name:          fmt.Sprintf("Attendee %d", i+1),
			Email:         email,
			TicketTypeRef: "General",
		})
	}
	return out
}
