// Package model holds the grouped view of one ST 0601 packet.
package model

import "example.com/klvgate/internal/klv"

// Record is the hierarchical form of a flat mapping. Every field is optional;
// a nil pointer means the tag was not present in the packet.
type Record struct {
	Timestamp      *klv.Timestamp  `json:"timestamp,omitempty"`
	Version        *uint8          `json:"version,omitempty"`
	Platform       *Platform       `json:"platform,omitempty"`
	Sensor         *Sensor         `json:"sensor,omitempty"`
	Frame          *Footprint      `json:"frame,omitempty"`
	Identification *Identification `json:"identification,omitempty"`
	Unknown        map[int][]byte  `json:"unknown,omitempty"`
}

type Platform struct {
	Position    *Position    `json:"position,omitempty"`
	Orientation *Orientation `json:"orientation,omitempty"`
	GroundSpeed *uint8       `json:"ground_speed,omitempty"`
}

type Position struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

type Orientation struct {
	Heading *float64 `json:"heading,omitempty"`
	Pitch   *float64 `json:"pitch,omitempty"`
	Roll    *float64 `json:"roll,omitempty"`
}

type Sensor struct {
	Name              *string  `json:"name,omitempty"`
	RelativeAzimuth   *float64 `json:"relative_azimuth,omitempty"`
	RelativeElevation *float64 `json:"relative_elevation,omitempty"`
	RelativeRoll      *float64 `json:"relative_roll,omitempty"`
	HorizontalFOV     *float64 `json:"horizontal_fov,omitempty"`
	VerticalFOV       *float64 `json:"vertical_fov,omitempty"`
	SlantRange        *float64 `json:"slant_range,omitempty"`
	GroundRange       *float64 `json:"ground_range,omitempty"`
	TargetWidth       *float64 `json:"target_width,omitempty"`
}

// Footprint is the ground area imaged by the frame.
type Footprint struct {
	CenterLatitude  *float64   `json:"center_latitude,omitempty"`
	CenterLongitude *float64   `json:"center_longitude,omitempty"`
	CenterElevation *float64   `json:"center_elevation,omitempty"`
	Corners         *CornerSet `json:"corners,omitempty"`
	// OffsetCorners are relative to the frame center, in degrees.
	OffsetCorners *CornerSet `json:"offset_corners,omitempty"`
}

// CornerSet holds corner points 1 to 4; a nil entry has neither coordinate.
type CornerSet [4]*Corner

type Corner struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type Identification struct {
	MissionID           *string `json:"mission_id,omitempty"`
	PlatformDesignation *string `json:"platform_designation,omitempty"`
	PlatformCallSign    *string `json:"platform_call_sign,omitempty"`
	PlatformTailNumber  *string `json:"platform_tail_number,omitempty"`
}

func (r *Record) platform(create bool) *Platform {
	if r.Platform == nil && create {
		r.Platform = &Platform{}
	}
	return r.Platform
}

func (r *Record) position(create bool) *Position {
	p := r.platform(create)
	if p == nil {
		return nil
	}
	if p.Position == nil && create {
		p.Position = &Position{}
	}
	return p.Position
}

func (r *Record) orientation(create bool) *Orientation {
	p := r.platform(create)
	if p == nil {
		return nil
	}
	if p.Orientation == nil && create {
		p.Orientation = &Orientation{}
	}
	return p.Orientation
}

func (r *Record) sensor(create bool) *Sensor {
	if r.Sensor == nil && create {
		r.Sensor = &Sensor{}
	}
	return r.Sensor
}

func (r *Record) footprint(create bool) *Footprint {
	if r.Frame == nil && create {
		r.Frame = &Footprint{}
	}
	return r.Frame
}

func (r *Record) ident(create bool) *Identification {
	if r.Identification == nil && create {
		r.Identification = &Identification{}
	}
	return r.Identification
}

func (r *Record) corner(offset bool, i int, create bool) *Corner {
	f := r.footprint(create)
	if f == nil {
		return nil
	}
	set := &f.Corners
	if offset {
		set = &f.OffsetCorners
	}
	if *set == nil {
		if !create {
			return nil
		}
		*set = &CornerSet{}
	}
	if (*set)[i] == nil && create {
		(*set)[i] = &Corner{}
	}
	return (*set)[i]
}

// Ptr returns a pointer to v; handy when building records by hand.
func Ptr[T any](v T) *T {
	return &v
}
