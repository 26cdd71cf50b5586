// iface.go defines the StoreInterface for dependency injection and testing.
//
// The concrete *Store type satisfies this interface. The cmd layer and the
// event journal accept StoreInterface so tests can swap in a fake.
package store

import "github.com/daviddao/airlock/pkg/model"

// StoreInterface defines the full set of store operations.
type StoreInterface interface {
	// Close closes the database connection.
	Close() error

	// --- Station ---

	// ReplaceStation overwrites the stored rooms and blocks.
	ReplaceStation(st model.Station) error

	// LoadStation reads the stored station, or returns ErrNoStation.
	LoadStation() (model.Station, error)

	// SaveStates writes back room oxygen and block states.
	SaveStates(st model.Station) error

	// --- Events ---

	// InsertEvent appends an event to the journal. Returns the row ID.
	InsertEvent(e *model.Event) (int64, error)

	// ListEvents returns events with tick >= sinceTick.
	ListEvents(sinceTick int64, limit int) ([]model.Event, error)

	// ListEventsForCycle returns the events of one cycle.
	ListEventsForCycle(cycleID string) ([]model.Event, error)

	// CountEvents returns the total number of events in the journal.
	CountEvents() int64

	// MaxTick returns the highest journaled tick, or 0.
	MaxTick() int64
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
