package dict

import "fmt"

const (
	GroupMeta          = "meta"
	GroupPlatform      = "platform"
	GroupSensor        = "sensor"
	GroupFrame         = "frame"
	GroupCorners       = "corners"
	GroupOffsetCorners = "offset_corners"
	GroupIdent         = "identification"
)

// Gimbal and attitude angles rarely move more than this between frames.
const angleDelta = 30.0

func scaled(tag uint8, name, group string, signed bool, width int, min, max float64) Entry {
	kind := KindScaledUint
	if signed {
		kind = KindScaledInt
	}
	return Entry{Tag: tag, Name: name, Kind: kind, Width: width, Group: group, Min: min, Max: max, HasRange: true}
}

func angle(e Entry, circular bool) Entry {
	e.MaxDelta = angleDelta
	e.Circular = circular
	return e
}

func str(tag uint8, name, group string, width int) Entry {
	return Entry{Tag: tag, Name: name, Kind: KindString, Width: width, Group: group}
}

func builtinEntries() []Entry {
	entries := []Entry{
		{Tag: 2, Name: "timestamp", Kind: KindTimestamp, Width: 8, Group: GroupMeta},
		str(3, "mission_id", GroupIdent, 32),
		str(4, "platform_tail_number", GroupIdent, 16),
		angle(scaled(5, "heading", GroupPlatform, false, 2, 0, 360), true),
		angle(scaled(6, "pitch", GroupPlatform, true, 2, -20, 20), false),
		angle(scaled(7, "roll", GroupPlatform, true, 2, -50, 50), false),
		str(10, "platform_designation", GroupIdent, 32),
		str(11, "sensor_name", GroupSensor, 32),
		scaled(13, "latitude", GroupPlatform, true, 4, -90, 90),
		scaled(14, "longitude", GroupPlatform, true, 4, -180, 180),
		scaled(15, "altitude", GroupPlatform, false, 2, -900, 19000),
		scaled(16, "horizontal_fov", GroupSensor, false, 2, 0, 180),
		scaled(17, "vertical_fov", GroupSensor, false, 2, 0, 180),
		angle(scaled(18, "sensor_relative_azimuth", GroupSensor, false, 4, 0, 360), true),
		angle(scaled(19, "sensor_relative_elevation", GroupSensor, true, 4, -180, 180), false),
		angle(scaled(20, "sensor_relative_roll", GroupSensor, false, 4, 0, 360), true),
		scaled(21, "slant_range", GroupSensor, false, 4, 0, 5_000_000),
		scaled(22, "target_width", GroupSensor, false, 2, 0, 10_000),
		scaled(23, "frame_center_latitude", GroupFrame, true, 4, -90, 90),
		scaled(24, "frame_center_longitude", GroupFrame, true, 4, -180, 180),
		scaled(25, "frame_center_elevation", GroupFrame, false, 2, -900, 19000),
		{Tag: 56, Name: "platform_ground_speed", Kind: KindUint, Width: 1, Group: GroupPlatform, Min: 0, Max: 255, HasRange: true},
		scaled(57, "ground_range", GroupSensor, false, 4, 0, 5_000_000),
		str(59, "platform_call_sign", GroupIdent, 16),
		{Tag: 65, Name: "version", Kind: KindUint, Width: 1, Group: GroupMeta, Min: 0, Max: 255, HasRange: true},
	}
	for i := 0; i < 4; i++ {
		n := i + 1
		entries = append(entries,
			scaled(uint8(26+2*i), fmt.Sprintf("offset_corner_lat_%d", n), GroupOffsetCorners, true, 2, -0.075, 0.075),
			scaled(uint8(27+2*i), fmt.Sprintf("offset_corner_lon_%d", n), GroupOffsetCorners, true, 2, -0.075, 0.075),
			scaled(uint8(82+2*i), fmt.Sprintf("corner_lat_%d", n), GroupCorners, true, 4, -90, 90),
			scaled(uint8(83+2*i), fmt.Sprintf("corner_lon_%d", n), GroupCorners, true, 4, -180, 180),
		)
	}
	return entries
}

// GroupNames returns the field names of group in ascending tag order.
func (s *Store) GroupNames(group string) []string {
	if s == nil {
		return nil
	}
	var names []string
	for _, tag := range s.tags {
		if e := s.byTag[tag]; e.Group == group {
			names = append(names, e.Name)
		}
	}
	return names
}
