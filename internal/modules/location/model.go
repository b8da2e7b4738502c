// README: Driver position model. The live index lives in redis; Postgres
// keeps periodic snapshots for replay and dispute handling.
package location

import (
	"time"

	"glide/internal/types"
)

// Driver is one entry in the live driver index.
type Driver struct {
	ID        types.ID
	Position  types.Point
	Available bool
}

type Snapshot struct {
	ID         int64
	DriverID   types.ID
	Position   types.Point
	RecordedAt time.Time
}
