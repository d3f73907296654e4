// Package scene implements the pure, in-memory Session State machine:
// the canonical object/user maps and the Last-Write-Wins transitions that
// mutate them. No I/O and no concurrency primitives live here — the
// Session Actor (internal/session) is the only caller, and it owns
// serialization.
package scene

// Kind enumerates the object types spec.md §3 allows.
type Kind string

const (
	KindCube      Kind = "cube"
	KindSphere    Kind = "sphere"
	KindCylinder  Kind = "cylinder"
	KindCamera    Kind = "camera"
	KindPointLight Kind = "point_light"
	KindSunLight  Kind = "sun_light"
	KindAssetRef  Kind = "asset_ref"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCube, KindSphere, KindCylinder, KindCamera, KindPointLight, KindSunLight, KindAssetRef:
		return true
	default:
		return false
	}
}

// Vec3 is a position/rotation/scale triple of double-precision floats.
type Vec3 [3]float64

// Transform is an Object's spatial placement.
type Transform struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"`
	Scale    Vec3 `json:"scale"`
}

// Properties is the tagged, kind-specific property record. Exactly one of
// the kind-specific fields is meaningful, selected by the owning Object's
// Kind — there is no inheritance, just a flat record with optional parts,
// matching how the teacher models PTY session metadata as one struct with
// several optional fields rather than an interface hierarchy.
type Properties struct {
	// camera
	FocalLengthMM *float64 `json:"focal_length_mm,omitempty"`
	SensorWidthMM *float64 `json:"sensor_width_mm,omitempty"`
	ClipStart     *float64 `json:"clip_start,omitempty"`
	ClipEnd       *float64 `json:"clip_end,omitempty"`

	// point_light and sun_light
	ColorRGB *Vec3 `json:"color_rgb,omitempty"`

	// point_light
	PowerWatts *float64 `json:"power_watts,omitempty"`
	Radius     *float64 `json:"radius,omitempty"`

	// sun_light
	Intensity *float64 `json:"intensity,omitempty"`
	AngleRad  *float64 `json:"angle_rad,omitempty"`
}

// Object is one entry in a Session's canonical object map.
type Object struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Kind           Kind       `json:"kind"`
	AssetID        *string    `json:"asset_id,omitempty"`
	AssetLibrary   *string    `json:"asset_library,omitempty"`
	Transform      Transform  `json:"transform"`
	Properties     Properties `json:"properties"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      int64      `json:"created_at"`
	LastUpdatedBy  string     `json:"last_updated_by"`
	LastUpdatedAt  int64      `json:"last_updated_at"`
}

// Clone returns a deep-enough copy for safe hand-off across goroutine
// boundaries (FULL_STATE_SYNC snapshots, log entries).
func (o Object) Clone() Object {
	return o // every field is a value type or a *float64/*string the
	// receiver must not mutate; callers that need to mutate a pointer
	// field replace the pointer, never write through it.
}

// User is one entry in a Session's user map.
type User struct {
	UserID         string  `json:"user_id"`
	DisplayName    string  `json:"display_name"`
	ColorRGB       Vec3    `json:"color_rgb"`
	SelectedObject *string `json:"selected_object"`
	ConnectedAt    int64   `json:"connected_at"`
	seatIndex      int     // seat assigned at join; a rejoin gets a new seat
}

func (u User) Clone() User {
	return u
}
