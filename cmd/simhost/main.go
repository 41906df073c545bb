// Command simhost is a demo driver for package engine: it replays a JSON
// command script against an engine.Engine and renders every observed
// Lamp/Output gate as a cell in an SDL2 LED grid. Grounded structurally on
// vcs/vcs_main.go: flag-based config, a pprof goroutine, sdl.Main/sdl.Do
// wrapping, and the fastImage direct-pixel-poke technique for drawing text
// onto the window surface.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/circuitsim/circuitsim/cell"
	"github.com/circuitsim/circuitsim/engine"
	"github.com/circuitsim/circuitsim/host"
	"github.com/circuitsim/circuitsim/signal"
	"github.com/veandco/go-sdl2/sdl"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	script     = flag.String("script", "", "Path to a JSON command script (see host.DecodeCommands) to run against the engine")
	scale      = flag.Int("scale", 1, "Scale factor for the LED grid window")
	port       = flag.Int("port", 6060, "Port to run HTTP server for pprof")
	cols       = flag.Int("cols", 8, "Number of LED columns in the grid")
	cellPx     = flag.Int("cell_px", 48, "Pixel size of one LED grid cell")
	fast       = flag.Bool("fast", false, "Use the fast event-driven tick driver instead of the normal fixed-interval one")
	intervalMS = flag.Int("interval_ms", 10, "Normal-mode tick interval in milliseconds")
	runFor     = flag.Duration("run_for", 5*time.Second, "How long to run before exiting")
)

// ledSink accumulates the most recent value of every observed gate's "in"
// port (Lamp/Output gates are single-bit sinks per §3) so the render loop
// can redraw independently of the emit rate.
type ledSink struct {
	mu     sync.Mutex
	order  []string
	seen   map[string]bool
	states map[string]signal.Wire
}

func newLEDSink() *ledSink {
	return &ledSink{
		seen:   make(map[string]bool),
		states: make(map[string]signal.Wire),
	}
}

// Emit implements host.Sink.
func (s *ledSink) Emit(msg host.UpdateMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range msg.Updates {
		w, ok := u.Ports["in"]
		if !ok {
			continue
		}
		if !s.seen[u.GateID] {
			s.seen[u.GateID] = true
			s.order = append(s.order, u.GateID)
			sort.Strings(s.order)
		}
		s.states[u.GateID] = w
	}
}

func (s *ledSink) snapshot() ([]string, map[string]signal.Wire) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	states := make(map[string]signal.Wire, len(s.states))
	for k, v := range s.states {
		states[k] = v
	}
	return ids, states
}

// fastImage wraps an sdl.Surface as a draw.Image by poking pixel bytes
// directly, avoiding the color.Color conversion overhead Surface.Set
// incurs. Lifted from vcs_main.go's fastImage, used here only to let the
// font package draw LED labels onto the window surface.
type fastImage struct {
	surface *sdl.Surface
	data    []byte
}

func (f *fastImage) Set(x, y int, c color.Color) {
	i := int32(y)*f.surface.Pitch + int32(x)*int32(f.surface.Format.BytesPerPixel)
	r, g, b, a := c.RGBA()
	f.data[i+0] = byte(r >> 8)
	f.data[i+1] = byte(g >> 8)
	f.data[i+2] = byte(b >> 8)
	f.data[i+3] = byte(a >> 8)
}

func (f *fastImage) ColorModel() color.Model { return f.surface.ColorModel() }
func (f *fastImage) Bounds() image.Rectangle { return f.surface.Bounds() }
func (f *fastImage) At(x, y int) color.Color { return f.surface.At(x, y) }

func ledColor(w signal.Wire) sdl.Color {
	sig, err := signal.FromWire(w)
	if err != nil {
		return sdl.Color{R: 64, G: 64, B: 64, A: 255}
	}
	if !sig.IsFullyDefined() {
		return sdl.Color{R: 160, G: 160, B: 0, A: 255}
	}
	if v, _ := sig.Uint64(); v != 0 {
		return sdl.Color{R: 0, G: 220, B: 0, A: 255}
	}
	return sdl.Color{R: 32, G: 32, B: 32, A: 255}
}

func main() {
	flag.Parse()
	if *script == "" {
		log.Fatal("simhost: -script is required")
	}
	data, err := os.ReadFile(*script)
	if err != nil {
		log.Fatalf("simhost: reading script: %v", err)
	}
	cmds, err := host.DecodeCommands(data)
	if err != nil {
		log.Fatalf("simhost: decoding script: %v", err)
	}

	go func() {
		log.Println(http.ListenAndServe(fmt.Sprintf("localhost:%d", *port), nil))
	}()

	sink := newLEDSink()
	e := engine.New(cell.NewStandardRegistry(), sink)
	defer e.Close()

	for i, cmd := range cmds {
		if err := e.Dispatch(cmd); err != nil {
			log.Fatalf("simhost: command %d (%s): %v", i, cmd.Name, err)
		}
	}
	e.StartFlusher()
	if *fast {
		e.StartFast()
	} else {
		e.StartNormal(*intervalMS)
	}

	rows := 1
	if n, _ := sink.snapshot(); len(n) > 0 {
		rows = (len(n) + *cols - 1) / *cols
	}
	w := *cols * *cellPx * *scale
	h := rows * *cellPx * *scale

	var window *sdl.Window
	fi := &fastImage{}

	sdl.Main(func() {
		var wg sync.WaitGroup
		wg.Add(1)
		sdl.Do(func() {
			if err := sdl.Init(sdl.INIT_EVERYTHING); err != nil {
				log.Fatalf("simhost: sdl.Init: %v", err)
			}
			var err error
			window, err = sdl.CreateWindow("simhost", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(w), int32(h), sdl.WINDOW_SHOWN)
			if err != nil {
				log.Fatalf("simhost: CreateWindow: %v", err)
			}
			fi.surface, err = window.GetSurface()
			if err != nil {
				log.Fatalf("simhost: GetSurface: %v", err)
			}
			fi.data = fi.surface.Pixels()
			wg.Done()
		})
		wg.Wait()
		defer func() {
			window.Destroy()
			sdl.Quit()
		}()

		deadline := time.Now().Add(*runFor)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for now := range ticker.C {
			if now.After(deadline) {
				return
			}
			sdl.Do(func() {
				draw(fi, window, sink, *cellPx**scale, *cols)
			})
		}
	})
}

func draw(fi *fastImage, window *sdl.Window, sink *ledSink, cellSize, cols int) {
	ids, states := sink.snapshot()
	fi.surface.FillRect(nil, 0)
	face := basicfont.Face7x13
	for i, id := range ids {
		col := i % cols
		row := i / cols
		rect := &sdl.Rect{
			X: int32(col*cellSize + 4),
			Y: int32(row*cellSize + 4),
			W: int32(cellSize - 8),
			H: int32(cellSize - 8),
		}
		c := ledColor(states[id])
		fi.surface.FillRect(rect, sdl.MapRGBA(fi.surface.Format, c.R, c.G, c.B, c.A))

		d := &font.Drawer{
			Dst:  fi,
			Src:  image.NewUniform(color.White),
			Face: face,
			Dot:  fixed.P(col*cellSize+6, row*cellSize+cellSize-6),
		}
		d.DrawString(id)
	}
	window.UpdateSurface()
}
