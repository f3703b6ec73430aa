package report

import (
	"errors"
	"math"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"
	stac "github.com/planetlabs/go-stac"

	"example.com/klvgate/internal/klv"
	"example.com/klvgate/internal/store"
)

const stacVersion = "1.0.0"

type STACOptions struct {
	Collection string
	// Assets maps asset keys (report, csv, pdf, ...) to hrefs.
	Assets map[string]string
}

var assetTypes = map[string]string{
	"json": "application/json",
	"csv":  "text/csv",
	"txt":  "text/plain",
	"pdf":  "application/pdf",
	"klv":  "application/octet-stream",
}

// STACItem describes the analysed sequence as a STAC Item. The footprint is
// the bounding box of every platform, frame center and corner position.
func STACItem(rep Report, s *store.Store, opts STACOptions) *stac.Item {
	item := &stac.Item{
		Version:    stacVersion,
		Id:         rep.ID,
		Collection: opts.Collection,
		Properties: map[string]any{},
		Assets:     map[string]*stac.Asset{},
		Links:      []*stac.Link{},
	}

	var ext extent
	var first, last *klv.Timestamp
	platforms := map[string]bool{}
	instruments := map[string]bool{}
	missions := map[string]bool{}
	if s != nil {
		for _, f := range s.Frames() {
			for _, p := range framePoints(f) {
				ext.add(p[0], p[1])
			}
			if ts := f.Record.Timestamp; ts != nil {
				if first == nil || *ts < *first {
					first = ts
				}
				if last == nil || *ts > *last {
					last = ts
				}
			}
			if id := f.Record.Identification; id != nil {
				addString(platforms, id.PlatformDesignation)
				addString(missions, id.MissionID)
			}
			if sn := f.Record.Sensor; sn != nil {
				addString(instruments, sn.Name)
			}
		}
	}

	if ext.ok {
		item.Bbox = []float64{ext.minLon, ext.minLat, ext.maxLon, ext.maxLat}
		item.Geometry = ext.geometry()
	}
	if first != nil {
		item.Properties["datetime"] = nil
		item.Properties["start_datetime"] = first.String()
		item.Properties["end_datetime"] = last.String()
	} else {
		item.Properties["datetime"] = rep.GeneratedAt.UTC().Format(time.RFC3339Nano)
	}
	if p := sortedKeys(platforms); len(p) > 0 {
		item.Properties["platform"] = p[0]
	}
	if in := sortedKeys(instruments); len(in) > 0 {
		item.Properties["instruments"] = in
	}
	if m := sortedKeys(missions); len(m) > 0 {
		item.Properties["klv:missions"] = m
	}
	item.Properties["klv:frame_count"] = rep.FrameCount
	item.Properties["klv:failed_frames"] = len(rep.Failures)
	item.Properties["klv:matched_templates"] = rep.MatchedTemplates

	keys := make([]string, 0, len(opts.Assets))
	for k := range opts.Assets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		item.Assets[k] = &stac.Asset{
			Href:  opts.Assets[k],
			Type:  assetTypes[k],
			Roles: []string{"metadata"},
		}
	}
	return item
}

func SaveSTAC(item *stac.Item, out string) error {
	if item == nil {
		return errors.New("nil stac item")
	}
	b, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, append(b, '\n'), 0o644)
}

// framePoints returns (lon, lat) pairs carried by a frame.
func framePoints(f store.Frame) [][2]float64 {
	var pts [][2]float64
	add := func(lat, lon *float64) {
		if lat == nil || lon == nil || math.Abs(*lat) > 90 || math.Abs(*lon) > 180 {
			return
		}
		pts = append(pts, [2]float64{*lon, *lat})
	}
	r := f.Record
	if r.Platform != nil && r.Platform.Position != nil {
		add(r.Platform.Position.Latitude, r.Platform.Position.Longitude)
	}
	if fp := r.Frame; fp != nil {
		add(fp.CenterLatitude, fp.CenterLongitude)
		if fp.Corners != nil {
			for _, c := range fp.Corners {
				if c != nil {
					add(c.Latitude, c.Longitude)
				}
			}
		}
	}
	return pts
}

type extent struct {
	ok                             bool
	minLon, minLat, maxLon, maxLat float64
}

func (e *extent) add(lon, lat float64) {
	if !e.ok {
		*e = extent{ok: true, minLon: lon, maxLon: lon, minLat: lat, maxLat: lat}
		return
	}
	e.minLon = math.Min(e.minLon, lon)
	e.maxLon = math.Max(e.maxLon, lon)
	e.minLat = math.Min(e.minLat, lat)
	e.maxLat = math.Max(e.maxLat, lat)
}

func (e extent) geometry() map[string]any {
	if e.minLon == e.maxLon && e.minLat == e.maxLat {
		return map[string]any{"type": "Point", "coordinates": []float64{e.minLon, e.minLat}}
	}
	ring := [][]float64{
		{e.minLon, e.minLat},
		{e.maxLon, e.minLat},
		{e.maxLon, e.maxLat},
		{e.minLon, e.maxLat},
		{e.minLon, e.minLat},
	}
	return map[string]any{"type": "Polygon", "coordinates": [][][]float64{ring}}
}

func addString(set map[string]bool, s *string) {
	if s != nil && *s != "" {
		set[*s] = true
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
