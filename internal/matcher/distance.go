package matcher

import (
	"math"
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/geomatch-cli/internal/fieldmap"
	"github.com/sells-group/geomatch-cli/internal/tabular"
)

// earthRadiusMiles is the mean Earth radius used for haversine distances.
const earthRadiusMiles = 3958.8

// parseKeys extracts the (lat, lng) match key of every row as an (x=lng,
// y=lat) coordinate. Cells that are empty or unparseable yield NaN
// components; such rows never match.
func parseKeys(t *tabular.Table, fm *fieldmap.FieldMap) []geom.Coord {
	latCol, _ := fm.Get(fieldmap.VarLat)
	lngCol, _ := fm.Get(fieldmap.VarLng)
	latIdx := t.ColumnIndex(latCol)
	lngIdx := t.ColumnIndex(lngCol)

	keys := make([]geom.Coord, t.NumRows())
	for row := range keys {
		keys[row] = geom.Coord{
			parseCoord(t.Cell(row, lngIdx)),
			parseCoord(t.Cell(row, latIdx)),
		}
	}
	return keys
}

func parseCoord(cell string) float64 {
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func keyValid(c geom.Coord) bool {
	return !math.IsNaN(c.X()) && !math.IsNaN(c.Y())
}

func keysEqual(a, b geom.Coord) bool {
	return a.X() == b.X() && a.Y() == b.Y()
}

// planarDistance is the cheap Euclidean prefilter used to pick the nearest
// candidate before the haversine radius check.
func planarDistance(a, b geom.Coord) float64 {
	return xy.Distance(a, b)
}

// haversineMiles returns the great-circle distance between two coordinates.
func haversineMiles(a, b geom.Coord) float64 {
	lat1 := a.Y() * math.Pi / 180
	lat2 := b.Y() * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.X() - a.X()) * math.Pi / 180

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLng/2), 2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
