// Command genmock generates a synthetic raw trips CSV for exercising the
// cleaning pipeline. Rows follow the NYC taxi trip record layout, and on
// top of the well-formed rows it deliberately injects duplicates, missing
// required values, unparseable timestamps, reversed intervals, garbage
// coordinates, degenerate distances, impossible speeds, and out-of-range
// positions. The RNG is seeded, so a given seed always produces the same
// file.
//
// Usage:
//
//	go run ./cmd/genmock -out data/raw/train.csv -rows 1000 -seed 42
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nycmobility/taxi-trip-etl/internal/domain"
)

// Bounding box for plausible pickup and dropoff points, roughly Manhattan
// plus the near boroughs.
const (
	minLon = -74.02
	maxLon = -73.93
	minLat = 40.70
	maxLat = 40.82
)

var tripRange = struct{ start, end time.Time }{
	start: time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC),
	end:   time.Date(2016, time.July, 1, 0, 0, 0, 0, time.UTC),
}

func header() []string {
	return []string{
		"id", "vendor_id",
		domain.ColPickupDatetime, domain.ColDropoffDatetime,
		"passenger_count",
		domain.ColPickupLongitude, domain.ColPickupLatitude,
		domain.ColDropoffLongitude, domain.ColDropoffLatitude,
		"store_and_fwd_flag",
		domain.ColTripDuration,
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/raw/train.csv", "output path for the raw CSV")
	rows := flag.Int("rows", 1000, "number of well-formed rows")
	seed := flag.Int64("seed", 1, "RNG seed")
	flag.Parse()

	if *rows < 10 {
		return fmt.Errorf("-rows must be at least 10, got %d", *rows)
	}

	g := newGenerator(*seed)
	records, stats := g.generate(*rows)

	if err := writeCSV(*out, records); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	log.Printf("wrote %d rows: %s", len(records), *out)

	printStats(stats)
	return nil
}

// stats counts the rows injected per damage category.
type stats struct {
	clean            int
	duplicates       int
	missingRequired  int
	badTimestamp     int
	negativeDuration int
	invalidCoords    int
	zeroDistance     int
	unrealisticSpeed int
	extremeCoords    int
}

type generator struct {
	rng    *rand.Rand
	nextID int
}

func newGenerator(seed int64) *generator {
	return &generator{
		rng:    rand.New(rand.NewSource(seed)),
		nextID: 1000000,
	}
}

func (g *generator) generate(clean int) ([][]string, stats) {
	perCategory := clean / 50
	if perCategory < 1 {
		perCategory = 1
	}

	s := stats{
		clean:            clean,
		duplicates:       perCategory,
		missingRequired:  perCategory,
		badTimestamp:     perCategory,
		negativeDuration: perCategory,
		invalidCoords:    perCategory,
		zeroDistance:     perCategory,
		unrealisticSpeed: perCategory,
		extremeCoords:    perCategory,
	}

	records := make([][]string, 0, clean+8*perCategory)
	for i := 0; i < clean; i++ {
		records = append(records, g.cleanRow())
	}

	damaged := []struct {
		count int
		make  func() []string
	}{
		{s.missingRequired, g.withBlankRequired},
		{s.badTimestamp, g.withBadTimestamp},
		{s.negativeDuration, g.withReversedInterval},
		{s.invalidCoords, g.withGarbageCoordinate},
		{s.zeroDistance, g.withZeroDistance},
		{s.unrealisticSpeed, g.withImpossibleSpeed},
		{s.extremeCoords, g.withExtremeCoordinate},
	}
	for i := 0; i < s.duplicates; i++ {
		dup := make([]string, len(records[0]))
		copy(dup, records[g.rng.Intn(clean)])
		records = append(records, dup)
	}
	for _, d := range damaged {
		for i := 0; i < d.count; i++ {
			records = append(records, d.make())
		}
	}

	g.rng.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})
	return records, s
}

func (g *generator) id() string {
	id := fmt.Sprintf("id%07d", g.nextID)
	g.nextID++
	return id
}

func (g *generator) pickupTime() time.Time {
	span := tripRange.end.Sub(tripRange.start)
	offset := time.Duration(g.rng.Int63n(int64(span))).Truncate(time.Second)
	return tripRange.start.Add(offset)
}

func (g *generator) point() (lon, lat float64) {
	return minLon + g.rng.Float64()*(maxLon-minLon),
		minLat + g.rng.Float64()*(maxLat-minLat)
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// cleanRow produces a trip whose derived duration, distance, and speed
// all pass the cleaning rules.
func (g *generator) cleanRow() []string {
	plon, plat := g.point()
	dlon, dlat := g.point()
	km := domain.Haversine(plat, plon, dlat, dlon)

	// Pick a plausible average speed and derive the duration from it, so
	// the implied speed always lands well under the exclusion threshold.
	speed := 8 + g.rng.Float64()*32
	duration := int(km / speed * 3600)
	if duration < 120 {
		duration = 120 + g.rng.Intn(180)
	}

	pickup := g.pickupTime()
	dropoff := pickup.Add(time.Duration(duration) * time.Second)

	flag := "N"
	if g.rng.Intn(10) == 0 {
		flag = "Y"
	}

	return []string{
		g.id(),
		strconv.Itoa(1 + g.rng.Intn(2)),
		pickup.Format(domain.TimestampLayout),
		dropoff.Format(domain.TimestampLayout),
		strconv.Itoa(1 + g.rng.Intn(6)),
		coord(plon), coord(plat), coord(dlon), coord(dlat),
		flag,
		strconv.Itoa(duration),
	}
}

func (g *generator) withBlankRequired() []string {
	row := g.cleanRow()
	required := []int{2, 3, 5, 6, 7, 8}
	row[required[g.rng.Intn(len(required))]] = ""
	return row
}

func (g *generator) withBadTimestamp() []string {
	row := g.cleanRow()
	broken := []string{"not-a-timestamp", "14/03/2016 17:24", "2016-02-30 25:61:00"}
	row[2] = broken[g.rng.Intn(len(broken))]
	return row
}

func (g *generator) withReversedInterval() []string {
	row := g.cleanRow()
	row[2], row[3] = row[3], row[2]
	return row
}

func (g *generator) withGarbageCoordinate() []string {
	row := g.cleanRow()
	garbage := []string{"n/a", "null", "unknown"}
	row[5+g.rng.Intn(4)] = garbage[g.rng.Intn(len(garbage))]
	return row
}

func (g *generator) withZeroDistance() []string {
	row := g.cleanRow()
	row[7], row[8] = row[5], row[6]
	return row
}

// withImpossibleSpeed moves the dropoff about a degree of latitude away
// and shrinks the interval to a couple of minutes, forcing the implied
// speed far past the threshold.
func (g *generator) withImpossibleSpeed() []string {
	row := g.cleanRow()
	plat, _ := strconv.ParseFloat(row[6], 64)
	row[7] = row[5]
	row[8] = coord(plat + 1.0)

	pickup, _ := time.Parse(domain.TimestampLayout, row[2])
	duration := 60 + g.rng.Intn(120)
	row[3] = pickup.Add(time.Duration(duration) * time.Second).Format(domain.TimestampLayout)
	row[10] = strconv.Itoa(duration)
	return row
}

// withExtremeCoordinate pushes one coordinate out of range while
// stretching the interval to many days. The long interval keeps the
// implied speed under the threshold, so the out-of-range check is what
// catches the row.
func (g *generator) withExtremeCoordinate() []string {
	row := g.cleanRow()
	if g.rng.Intn(2) == 0 {
		row[6] = coord(90.5 + g.rng.Float64()*9)
	} else {
		row[5] = coord(-(180.5 + g.rng.Float64()*19))
	}

	pickup, _ := time.Parse(domain.TimestampLayout, row[2])
	const stretched = 200 * time.Hour
	row[3] = pickup.Add(stretched).Format(domain.TimestampLayout)
	row[10] = strconv.Itoa(int(stretched.Seconds()))
	return row
}

func writeCSV(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(header()); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printStats(s stats) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total rows: %d\n",
		s.clean+s.duplicates+s.missingRequired+s.badTimestamp+
			s.negativeDuration+s.invalidCoords+s.zeroDistance+
			s.unrealisticSpeed+s.extremeCoords)
	fmt.Printf("Clean: %d\n", s.clean)
	fmt.Printf("Duplicates: %d\n", s.duplicates)
	fmt.Printf("Dropped (%s): %d\n", domain.DropMissingRequired, s.missingRequired)
	fmt.Printf("Dropped (%s): %d\n", domain.DropBadTimestamp, s.badTimestamp)
	fmt.Println("Excluded by reason:")
	fmt.Printf("  %s: %d\n", domain.ReasonNegativeOrZeroDuration, s.negativeDuration)
	fmt.Printf("  %s: %d\n", domain.ReasonMissingOrInvalidCoords, s.invalidCoords)
	fmt.Printf("  %s: %d\n", domain.ReasonZeroOrNegativeDistance, s.zeroDistance)
	fmt.Printf("  %s: %d\n", domain.ReasonUnrealisticSpeed, s.unrealisticSpeed)
	fmt.Printf("  %s: %d\n", domain.ReasonExtremeCoords, s.extremeCoords)
	fmt.Printf("Expected cleaned rows: %d\n", s.clean)
}
