// Command demoplayer is a minimal reference consumer for the playback
// engine: it opens a file, drives an Engine through its transport
// operations from a handful of keys, and presents frames in a window.
// Everything in this file sits outside the engine's own boundary
// (window surface, input dispatch, HUD) on purpose.
package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"github.com/fogleman/gg"
	"github.com/hajimehoshi/ebiten"
	"github.com/hajimehoshi/ebiten/inpututil"
	"github.com/mattn/go-isatty"
	_ "github.com/silbinarywolf/preferdiscretegpu"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/halvardsen/playback"
)

// seekStep is how far the left/right arrow keys jump.
const seekStep = 5.0

// rateStep is the amount the up/down arrow keys add to or subtract from
// the playback rate.
const rateStep = 0.1

type demoGame struct {
	eng *playback.Engine

	mu       sync.Mutex
	frame    *image.RGBA
	position float64
	duration float64
	playing  bool
	rate     float64
}

func newDemoGame(eng *playback.Engine) *demoGame {
	return &demoGame{eng: eng, rate: 1.0, duration: eng.Duration().Seconds()}
}

// onFrame adapts the engine's packed-RGB24 image into the RGBA buffer
// ebiten's image type expects.
func (g *demoGame) onFrame(img *playback.RGBImage) {
	rgba := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		srcRow := img.Pix[y*img.Stride : y*img.Stride+img.Width*3]
		dstRow := rgba.Pix[y*rgba.Stride : y*rgba.Stride+img.Width*4]
		for x := 0; x < img.Width; x++ {
			dstRow[x*4+0] = srcRow[x*3+0]
			dstRow[x*4+1] = srcRow[x*3+1]
			dstRow[x*4+2] = srcRow[x*3+2]
			dstRow[x*4+3] = 0xff
		}
	}

	g.mu.Lock()
	g.frame = rgba
	g.mu.Unlock()
}

func (g *demoGame) onPosition(seconds float64) {
	g.mu.Lock()
	g.position = seconds
	g.mu.Unlock()
}

func (g *demoGame) onPlayingChanged(playing bool) {
	g.mu.Lock()
	g.playing = playing
	g.mu.Unlock()
}

func (g *demoGame) onFinished() {
	logrus.Info("playback reached end of stream")
}

// Update handles the handful of transport keys this demo exposes.
// Dispatching arbitrary key bindings is explicitly not the engine's
// job; this is a consumer wiring its own.
func (g *demoGame) Update(screen *ebiten.Image) error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.mu.Lock()
		playing := g.playing
		g.mu.Unlock()
		if playing {
			g.eng.Pause()
		} else {
			g.eng.Play()
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyLeft) {
		g.eng.Forward(-seekStep)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyRight) {
		g.eng.Forward(seekStep)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) {
		g.mu.Lock()
		g.rate += rateStep
		rate := g.rate
		g.mu.Unlock()
		g.eng.SetRate(rate)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) {
		g.mu.Lock()
		if g.rate > rateStep {
			g.rate -= rateStep
		}
		rate := g.rate
		g.mu.Unlock()
		g.eng.SetRate(rate)
	}
	return nil
}

// Draw blits the latest decoded frame and a small HUD over it.
func (g *demoGame) Draw(screen *ebiten.Image) {
	g.mu.Lock()
	frame := g.frame
	position, duration, playing := g.position, g.duration, g.playing
	g.mu.Unlock()

	if frame == nil {
		screen.Fill(color.Black)
		return
	}

	frameImg, err := ebiten.NewImageFromImage(frame, ebiten.FilterDefault)
	if err != nil {
		logrus.WithError(err).Warn("couldn't upload frame to the GPU")
		return
	}
	screen.DrawImage(frameImg, nil)

	dc := gg.NewContext(frame.Bounds().Dx(), 28)
	dc.SetRGBA(0, 0, 0, 0.55)
	dc.Clear()
	dc.SetRGB(1, 1, 1)
	status := "paused"
	if playing {
		status = "playing"
	}
	dc.DrawString(fmt.Sprintf("%s  %.1fs / %.1fs", status, position, duration), 6, 18)

	hud, err := ebiten.NewImageFromImage(dc.Image(), ebiten.FilterDefault)
	if err != nil {
		return
	}
	screen.DrawImage(hud, nil)
}

func (g *demoGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frame == nil {
		return outsideWidth, outsideHeight
	}
	return g.frame.Bounds().Dx(), g.frame.Bounds().Dy()
}

func configureLogging() {
	formatter := &logrus.TextFormatter{}
	formatter.ForceColors = isatty.IsTerminal(os.Stdout.Fd())
	logrus.SetFormatter(formatter)
	playback.SetLogger(logrus.StandardLogger())
}

func run(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("a media path is required", 1)
	}

	configureLogging()

	events := &playback.Events{}
	eng := playback.NewEngine(playback.WithEvents(events))

	game := newDemoGame(eng)
	events.OnFrame = game.onFrame
	events.OnPosition = game.onPosition
	events.OnPlayingChanged = game.onPlayingChanged
	events.OnFinished = game.onFinished

	if err := eng.Open(path); err != nil {
		return cli.Exit(fmt.Sprintf("couldn't open %q: %v", path, err), 1)
	}
	defer eng.Stop()

	if w, h := c.Int("width"), c.Int("height"); w > 0 && h > 0 {
		eng.SetRenderSize(w, h)
	}
	if q := c.Int("quality"); q >= 0 {
		eng.SetScalingQuality(playback.ScalingQuality(q))
	}
	if r := c.Float64("rate"); r > 0 {
		eng.SetRate(r)
		game.rate = r
	}
	game.duration = eng.Duration().Seconds()

	eng.Play()

	ebiten.SetWindowTitle("demoplayer")
	ebiten.SetWindowResizable(true)
	return ebiten.RunGame(game)
}

func main() {
	app := &cli.App{
		Name:      "demoplayer",
		Usage:     "play a local media file through the playback engine",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Usage: "render width (0 = source size)"},
			&cli.IntFlag{Name: "height", Usage: "render height (0 = source size)"},
			&cli.IntFlag{Name: "quality", Value: int(playback.Bicubic), Usage: "scaling quality: 0=fast-bilinear 1=bilinear 2=bicubic 3=lanczos"},
			&cli.Float64Flag{Name: "rate", Value: 1.0, Usage: "initial playback rate"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("demoplayer exited with an error")
	}
}
