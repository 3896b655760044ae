package location

// Room is a physical space devices can be placed in.
type Room struct {
	ID    string  `json:"id" db:"room_id"`
	Name  string  `json:"name" db:"name"`
	Floor *string `json:"floor,omitempty" db:"floor"`
	Side  *string `json:"side,omitempty" db:"side"`
}
