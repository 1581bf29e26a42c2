// Profiling:
// go build ./profile/frame
// ./frame -mode cpu
// go tool pprof -http=":8000" -nodefraction=0.001 ./frame cpu.pprof

package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/profile"

	"github.com/edwinsyarief/mugen"
	"github.com/edwinsyarief/mugen/batch"
	"github.com/edwinsyarief/mugen/config"
	"github.com/edwinsyarief/mugen/frame"
	"github.com/edwinsyarief/mugen/logging"
	"github.com/edwinsyarief/mugen/transform"
)

type nullPresenter struct {
	bytes int
}

func (p *nullPresenter) Target() (frame.Target, error) {
	return frame.Target{Width: 1920, Height: 1080}, nil
}

func (p *nullPresenter) Submit(_ frame.Target, subs []frame.Submission) error {
	for _, s := range subs {
		p.bytes += len(s.Bytes())
	}
	return nil
}

func main() {
	mode := flag.String("mode", "cpu", "profile mode: cpu, mem or none")
	cfgPath := flag.String("config", "", "optional TOML config")
	sprites := flag.Int("sprites", 1_000_000, "sprite count")
	frames := flag.Int("frames", 600, "frames to run")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatal(err)
		}
	}
	cfg.Frame.TargetFPS = 0
	logger := cfg.NewLogger(os.Stderr)

	switch *mode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	}

	if err := run(cfg, logger, *sprites, *frames); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Config, logger *logging.SlogAdapter, sprites, frames int) error {
	w := mugen.NewWorld(max(sprites, cfg.World.InitialCapacity))
	mugen.NewBuilder3[transform.Transform, transform.Motion, batch.Renderable](w).NewEntitiesWith(sprites,
		func(i int, _ mugen.Entity, t *transform.Transform, m *transform.Motion, r *batch.Renderable) {
			*t = transform.New(transform.Vec2{X: float32(i % 1920), Y: float32(i / 1920)})
			m.Velocity = transform.Vec2{X: 1, Y: 1}
			m.Spin = 0.5
			*r = batch.Renderable{Mesh: batch.MeshID(i % 4), Material: batch.MaterialID(i % 2), Color: batch.White, UV: batch.FullRect}
		})

	p := &nullPresenter{}
	o, err := frame.New(w, p, frame.InputFunc(func() frame.Snapshot {
		return frame.Snapshot{Delta: time.Second / 60}
	}), cfg.FrameOptions(logger)...)
	if err != nil {
		return err
	}
	defer o.Shutdown(context.Background())

	start := time.Now()
	for range frames {
		if _, err := o.Step(context.Background()); err != nil {
			return err
		}
	}
	logger.Info("profile done",
		slog.Int("sprites", sprites),
		slog.Int("frames", frames),
		slog.Duration("per_frame", time.Since(start)/time.Duration(frames)),
		slog.Int("bytes_submitted", p.bytes))
	return nil
}
