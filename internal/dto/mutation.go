package dto

// EnqueueResponse is returned by every endpoint that writes a mutation.
type EnqueueResponse struct {
	ID        int64 `json:"id"`
	Processed bool  `json:"processed"`
}

// SnelRequest carries only the fire-and-forget switch. With snel set the request
// returns as soon as the mutation is stored.
type SnelRequest struct {
	Snel bool `json:"snel"`
}

// SeedAveragesRequest asks for the seed averages of one distance to be recomputed.
type SeedAveragesRequest struct {
	Distance int  `json:"distance" validate:"required,oneof=18 25"`
	Snel     bool `json:"snel"`
}

// TransitionRequest asks for one phase flag of a competition to be set.
type TransitionRequest struct {
	Flag string `json:"flag" validate:"required,phase_flag"`
	Snel bool   `json:"snel"`
}

// CutRequest changes the limit of one class of a championship.
type CutRequest struct {
	ClassID int64 `json:"classId" validate:"required,gt=0"`
	Team    bool  `json:"team"`
	Old     int   `json:"old" validate:"gte=0"`
	New     int   `json:"new" validate:"required,oneof=4 8 12 16 20 24"`
	Snel    bool  `json:"snel"`
}

// MoveClassRequest moves an entrant to another class of the same championship.
type MoveClassRequest struct {
	ClassID int64 `json:"classId" validate:"required,gt=0"`
	Snel    bool  `json:"snel"`
}
