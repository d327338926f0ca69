// Command genfixture writes a synthetic lake dataset: single-band occurrence
// frames, colour index frames, a boundary outline, sampling points and a
// water-level series. The output is deterministic for a given seed so it can
// back manual testing of the engine and the CLI.
//
// Usage:
//
//	go run ./cmd/genfixture -out data -lake demo -frames 12
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/lake-raster-engine/internal/adapter/geotiff"
	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

const (
	width  = 48
	height = 36

	originLon = 146.900
	originLat = -36.700
	pixelSize = 0.001
)

var transform = domain.Affine{originLon, pixelSize, 0, originLat, 0, -pixelSize}

type fixture struct {
	root   string
	frames int
	start  time.Time
	rng    *rand.Rand
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data", "data root to write the lake under")
	lake := flag.String("lake", "demo", "water body folder name")
	frames := flag.Int("frames", 12, "number of monthly frames per dataset")
	start := flag.String("start", "2023-01-15", "date of the first frame (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *frames < 1 {
		return fmt.Errorf("-frames must be at least 1")
	}
	first, err := time.Parse(domain.DateLayout, *start)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}

	f := &fixture{
		root:   filepath.Join(*out, *lake),
		frames: *frames,
		start:  first,
		rng:    rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)),
	}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"occurrence frames", f.writeOccurrence},
		{"real colour frames", func() error { return f.writeColour("real", 0) }},
		{"chlorophyll colour frames", func() error { return f.writeColour("chlorophyll", 40) }},
		{"sampling points", f.writeSampling},
		{"level series", f.writeLevels},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		log.Printf("wrote %s", s.name)
	}
	log.Printf("dataset ready under %s", f.root)
	return nil
}

func (f *fixture) date(i int) time.Time { return f.start.AddDate(0, i, 0) }

func (f *fixture) dir(name string) (string, error) {
	dir := filepath.Join(f.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, writeOutline(filepath.Join(dir, "shapefile.xml"))
}

// lakeness is 1 at the centre of the grid and falls to 0 at the edge of an
// ellipse inscribed in it.
func lakeness(col, row int) float64 {
	dx := (float64(col) + 0.5 - width/2.0) / (width / 2.0)
	dy := (float64(row) + 0.5 - height/2.0) / (height / 2.0)
	return math.Max(0, 1-math.Hypot(dx, dy))
}

func (f *fixture) writeOccurrence() error {
	dir, err := f.dir("occurrence")
	if err != nil {
		return err
	}
	for i := 0; i < f.frames; i++ {
		d := f.date(i)
		// Summer months in the southern hemisphere run higher.
		season := 0.5 + 0.5*math.Cos(2*math.Pi*float64(d.YearDay())/365)
		g := domain.NewGrid(width, height)
		for row := 0; row < height; row++ {
			for col := 0; col < width; col++ {
				l := lakeness(col, row)
				if l == 0 {
					continue
				}
				v := 40 + 180*l*season + f.rng.NormFloat64()*10
				g.Set(col, row, math.Round(math.Min(math.Max(v, 1), 255)))
			}
		}
		name := fmt.Sprintf("occ_%s.tif", d.Format(domain.DateLayout))
		if err := geotiff.WriteFrame(filepath.Join(dir, name), domain.RasterFrame{Bands: []domain.Grid{g}, Transform: transform}); err != nil {
			return err
		}
	}
	mask := domain.NewGrid(width, height)
	for idx := range mask.Values {
		if lakeness(idx%width, idx/width) > 0 {
			mask.Values[idx] = 1
		}
	}
	return geotiff.WriteFrame(filepath.Join(dir, "mask.tif"), domain.RasterFrame{Bands: []domain.Grid{mask}, Transform: transform})
}

// writeColour writes three-band frames whose green channel tracks a slow
// bloom cycle. greenBias shifts the whole index greener.
func (f *fixture) writeColour(name string, greenBias float64) error {
	dir, err := f.dir(name)
	if err != nil {
		return err
	}
	nodata := -9999.0
	for i := 0; i < f.frames; i++ {
		d := f.date(i)
		bloom := 0.5 + 0.5*math.Sin(2*math.Pi*float64(i)/float64(max(f.frames, 2)))
		bands := []domain.Grid{domain.NewGrid(width, height), domain.NewGrid(width, height), domain.NewGrid(width, height)}
		for row := 0; row < height; row++ {
			for col := 0; col < width; col++ {
				l := lakeness(col, row)
				if l == 0 {
					for _, b := range bands {
						b.Set(col, row, math.NaN())
					}
					continue
				}
				r, g, b := 20+30*l, 60+greenBias+120*bloom*l, 90+60*l
				// A few pale pixels for the enhancer to flag.
				if f.rng.Float64() < 0.01 {
					r, g, b = 200, 205, 198
				}
				bands[0].Set(col, row, r)
				bands[1].Set(col, row, math.Min(g+f.rng.NormFloat64()*4, 255))
				bands[2].Set(col, row, b)
			}
		}
		file := fmt.Sprintf("%s_%s.tif", name, d.Format(domain.DateLayout))
		frame := domain.RasterFrame{Bands: bands, Transform: transform, NoData: &nodata}
		if err := geotiff.WriteFrame(filepath.Join(dir, file), frame); err != nil {
			return err
		}
	}
	return nil
}

// writeOutline writes a 24-gon on the outline canvas.
func writeOutline(path string) error {
	c := domain.DefaultCanvas
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, `<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintln(out, "<shape>")
	for i := 0; i < 24; i++ {
		a := 2 * math.Pi * float64(i) / 24
		x := c.Width/2 + 0.48*c.Width*math.Cos(a)
		y := c.Height/2 + 0.48*c.Height*math.Sin(a)
		fmt.Fprintf(out, "  <point x=\"%.1f\" y=\"%.1f\"/>\n", x, y)
	}
	fmt.Fprintln(out, "</shape>")
	return out.Close()
}

// writeSampling places the same two-vertex line in the water body folder and
// in each colour dataset.
func (f *fixture) writeSampling() error {
	lon := func(col float64) float64 { return originLon + (col+0.5)*pixelSize }
	lat := func(row float64) float64 { return originLat - (row+0.5)*pixelSize }
	kml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <name>sampling</name>
      <LineString>
        <coordinates>%.6f,%.6f,0 %.6f,%.6f,0</coordinates>
      </LineString>
    </Placemark>
  </Document>
</kml>
`, lon(width/3), lat(height/2), lon(2*width/3), lat(height/3))
	for _, dir := range []string{f.root, filepath.Join(f.root, "real"), filepath.Join(f.root, "chlorophyll")} {
		if err := os.WriteFile(filepath.Join(dir, "sampling.kml"), []byte(kml), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// writeLevels writes a weekly water height series covering every frame.
func (f *fixture) writeLevels() error {
	out, err := os.Create(filepath.Join(f.root, "real", "levels.csv"))
	if err != nil {
		return err
	}
	w := csv.NewWriter(out)
	if err := w.Write([]string{"date", "height"}); err != nil {
		out.Close()
		return err
	}
	end := f.date(f.frames - 1)
	for d, week := f.start, 0; !d.After(end); d, week = d.AddDate(0, 0, 7), week+1 {
		h := 271.5 + 0.8*math.Sin(2*math.Pi*float64(week)/52) + f.rng.NormFloat64()*0.05
		if err := w.Write([]string{d.Format(domain.DateLayout), strconv.FormatFloat(h, 'f', 3, 64)}); err != nil {
			out.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
