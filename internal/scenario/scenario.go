// Package scenario generates deterministic metadata sequences for testing
// decoders and analysis.
package scenario

import (
	"errors"
	"fmt"
	"time"

	"example.com/klvgate/internal/klv"
	"example.com/klvgate/internal/model"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// FrameInterval separates consecutive frame timestamps (25 fps).
const FrameInterval = 40 * time.Millisecond

// SampleStart is the first timestamp of the sample_video scenario.
const SampleStart klv.Timestamp = 1444202320413948

type Options struct {
	// Frames overrides the scenario's default frame count when positive.
	Frames int
	// Start is the first frame time; SampleStart is used when zero.
	Start time.Time
}

type Scenario struct {
	Name          string
	Title         string
	Description   string
	DefaultFrames int
	build         func(i, n int, rec *model.Record)
}

var scenarios = []Scenario{
	{
		Name:          "sample_video",
		Title:         "Sample Video Match",
		Description:   "frames matching the middle of a reference surveillance clip over Adelaide",
		DefaultFrames: 10,
		build:         sampleVideo,
	},
	{
		Name:          "stationary",
		Title:         "Stationary Camera",
		Description:   "fixed camera position and orientation",
		DefaultFrames: 30,
		build:         stationary,
	},
	{
		Name:          "moving",
		Title:         "Moving Camera Path",
		Description:   "camera moving along a straight path while climbing and turning",
		DefaultFrames: 60,
		build:         moving,
	},
	{
		Name:          "high_altitude",
		Title:         "High Altitude Survey",
		Description:   "high-altitude camera looking straight down",
		DefaultFrames: 30,
		build:         highAltitude,
	},
	{
		Name:          "minimal",
		Title:         "Minimal Metadata",
		Description:   "timestamp and mission id only",
		DefaultFrames: 10,
		build:         minimal,
	},
}

// List returns the scenarios in declaration order.
func List() []Scenario {
	return append([]Scenario(nil), scenarios...)
}

func Get(name string) (Scenario, error) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("%q: %w", name, ErrUnknownScenario)
}

// Generate produces the scenario's records, timestamps FrameInterval apart.
func (s Scenario) Generate(opts Options) ([]model.Record, error) {
	n := s.DefaultFrames
	if opts.Frames > 0 {
		n = opts.Frames
	}
	start := SampleStart
	if !opts.Start.IsZero() {
		ts, err := klv.TimestampFromTime(opts.Start)
		if err != nil {
			return nil, err
		}
		start = ts
	}
	step := klv.Timestamp(FrameInterval / time.Microsecond)
	recs := make([]model.Record, n)
	for i := range recs {
		recs[i].Timestamp = model.Ptr(start + klv.Timestamp(i)*step)
		s.build(i, n, &recs[i])
	}
	return recs, nil
}

// Encode packs records into a concatenated packet stream.
func Encode(recs []model.Record) ([]byte, error) {
	packets := make([][]byte, len(recs))
	for i, r := range recs {
		m, err := model.ToFlat(r)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		b, err := klv.Encode(m)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		packets[i] = b
	}
	return klv.Join(packets), nil
}

func sampleVideo(i, _ int, r *model.Record) {
	f := float64(i)
	r.Version = model.Ptr[uint8](7)
	r.Identification = &model.Identification{
		MissionID:           model.Ptr("Tabasco-2015-Oct-07-0449"),
		PlatformTailNumber:  model.Ptr("VH-EMI"),
		PlatformDesignation: model.Ptr("Beechcraft 1900C"),
		PlatformCallSign:    model.Ptr("EMI"),
	}
	r.Platform = &model.Platform{
		Position: &model.Position{
			Latitude:  model.Ptr(-34.974211466021004 + f*0.00001),
			Longitude: model.Ptr(138.48646995541009 + f*0.00001),
			Altitude:  model.Ptr(4904.0527962157621 + f*0.5),
		},
		Orientation: &model.Orientation{
			Heading: model.Ptr(321.921 + f*0.1),
			Pitch:   model.Ptr(3.35154 + f*0.01),
			Roll:    model.Ptr(8.84426 - f*0.02),
		},
		GroundSpeed: model.Ptr[uint8](89),
	}
	r.Sensor = &model.Sensor{
		Name:              model.Ptr("MX-20HD EON COL"),
		RelativeAzimuth:   model.Ptr(91.2416),
		RelativeElevation: model.Ptr(-29.4914),
		RelativeRoll:      model.Ptr(0.0326901),
		HorizontalFOV:     model.Ptr(0.914626),
		VerticalFOV:       model.Ptr(0.513619),
		SlantRange:        model.Ptr(7890.99),
		TargetWidth:       model.Ptr(125.887),
		GroundRange:       model.Ptr(6189.58),
	}
}

// Camera depression is carried by the sensor elevation; platform pitch
// stays level.
func stationary(_, _ int, r *model.Record) {
	r.Identification = &model.Identification{MissionID: model.Ptr("STATIONARY_TEST")}
	r.Platform = &model.Platform{
		Position:    &model.Position{Latitude: model.Ptr(37.7749), Longitude: model.Ptr(-122.4194), Altitude: model.Ptr(500.0)},
		Orientation: &model.Orientation{Heading: model.Ptr(90.0), Pitch: model.Ptr(0.0), Roll: model.Ptr(0.0)},
	}
	r.Sensor = &model.Sensor{
		RelativeElevation: model.Ptr(-45.0),
		HorizontalFOV:     model.Ptr(60.0),
		VerticalFOV:       model.Ptr(45.0),
		SlantRange:        model.Ptr(1000.0),
	}
}

func moving(i, n int, r *model.Record) {
	t := 0.0
	if n > 1 {
		t = float64(i) / float64(n-1)
	}
	lerp := func(a, b float64) float64 { return a + (b-a)*t }
	r.Identification = &model.Identification{MissionID: model.Ptr("MOVING_TEST")}
	r.Platform = &model.Platform{
		Position: &model.Position{
			Latitude:  model.Ptr(lerp(37.7749, 37.8049)),
			Longitude: model.Ptr(lerp(-122.4194, -122.3894)),
			Altitude:  model.Ptr(lerp(300, 800)),
		},
		Orientation: &model.Orientation{
			Heading: model.Ptr(lerp(45, 225)),
			Pitch:   model.Ptr(lerp(-20, -5)),
			Roll:    model.Ptr(lerp(0, 10)),
		},
	}
	r.Sensor = &model.Sensor{
		HorizontalFOV: model.Ptr(70.0),
		VerticalFOV:   model.Ptr(50.0),
		SlantRange:    model.Ptr(lerp(6000, 3000)),
	}
}

func highAltitude(i, _ int, r *model.Record) {
	f := float64(i)
	r.Identification = &model.Identification{MissionID: model.Ptr("HIGH_ALT_SURVEY")}
	r.Platform = &model.Platform{
		Position: &model.Position{
			Latitude:  model.Ptr(37.7749 + f*0.0001),
			Longitude: model.Ptr(-122.4194 + f*0.0001),
			Altitude:  model.Ptr(12000.0),
		},
		Orientation: &model.Orientation{Heading: model.Ptr(180.0), Pitch: model.Ptr(0.0), Roll: model.Ptr(0.0)},
	}
	r.Sensor = &model.Sensor{
		RelativeElevation: model.Ptr(-80.0),
		HorizontalFOV:     model.Ptr(90.0),
		VerticalFOV:       model.Ptr(70.0),
		SlantRange:        model.Ptr(15000.0),
	}
}

func minimal(_, _ int, r *model.Record) {
	r.Identification = &model.Identification{MissionID: model.Ptr("MINIMAL_TEST")}
}
