package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/calib"
	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/config"
	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/link"
	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/profile"
	"github.com/Laser-Co/Laser-Calibration-Wizard/internal/ws"
)

func main() {
	// ---- Flags (config.yaml can override most) ----
	var (
		transport   = flag.String("transport", "serial", "transport: serial | gpio | sim")
		port        = flag.String("port", "", "serial device (empty = first detected)")
		baud        = flag.Int("baud", link.DefaultBaud, "serial baud rate")
		depthBits   = flag.Int("depth", 16, "PWM bit depth: 12 | 16")
		listen      = flag.String("listen", ":8080", "control server listen address")
		configPath  = flag.String("config", "config.yaml", "path to config.yaml")
		profilePath = flag.String("profile", "", "calibration profile to load at startup")
		redPin      = flag.String("red-pin", "GPIO18", "gpio transport: red PWM pin")
		greenPin    = flag.String("green-pin", "GPIO13", "gpio transport: green PWM pin")
		bluePin     = flag.String("blue-pin", "GPIO19", "gpio transport: blue PWM pin")
		listOnly    = flag.Bool("list-ports", false, "list candidate serial ports and exit")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	if *listOnly {
		ports, err := link.ListPorts()
		if err != nil {
			log.Fatal().Err(err).Msg("list ports")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	// ---- Load config.yaml (optional) ----
	var cfg *config.Config
	if c, err := config.Load(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
	} else {
		cfg = c
	}

	// ---- Effective params (config overrides flags where set) ----
	eTransport := *transport
	ePort, eBaud := *port, *baud
	eDepth, eListen := *depthBits, *listen
	eProfile := *profilePath
	eRed, eGreen, eBlue := *redPin, *greenPin, *bluePin

	if cfg != nil {
		if cfg.Transport != "" {
			eTransport = cfg.Transport
		}
		if cfg.Serial.Port != "" {
			ePort = cfg.Serial.Port
		}
		if cfg.Serial.Baud > 0 {
			eBaud = cfg.Serial.Baud
		}
		if cfg.BitDepth > 0 {
			eDepth = cfg.BitDepth
		}
		if cfg.Listen != "" {
			eListen = cfg.Listen
		}
		if cfg.Profile != "" {
			eProfile = cfg.Profile
		}
		if cfg.GPIO.RedPin != "" {
			eRed = cfg.GPIO.RedPin
		}
		if cfg.GPIO.GreenPin != "" {
			eGreen = cfg.GPIO.GreenPin
		}
		if cfg.GPIO.BluePin != "" {
			eBlue = cfg.GPIO.BluePin
		}
	}

	depth := calib.BitDepth(eDepth)
	if !depth.Valid() {
		log.Fatal().Int("depth", eDepth).Msg("bit depth must be 12 or 16")
	}

	// ---- Transport ----
	var tr link.Transport
	switch eTransport {
	case "sim":
		tr = link.NewSim()
	case "gpio":
		t, err := link.OpenGPIO(eRed, eGreen, eBlue)
		if err != nil {
			log.Fatal().Err(err).Msg("gpio transport")
		}
		tr = t
	case "serial":
		name := ePort
		if name == "" {
			ports, err := link.ListPorts()
			if err != nil || len(ports) == 0 {
				log.Fatal().Err(err).Msg("no serial port found; pass -port or use -transport sim")
			}
			name = ports[0]
		}
		t, err := link.OpenSerial(name, eBaud)
		if err != nil {
			log.Fatal().Err(err).Msg("serial transport")
		}
		tr = t
	default:
		log.Fatal().Str("transport", eTransport).Msg("unknown transport")
	}

	// ---- Session state ----
	prof := calib.NewProfile(depth)
	if eProfile != "" {
		p, err := profile.LoadFile(eProfile)
		if err != nil {
			log.Fatal().Err(err).Str("path", eProfile).Msg("profile load")
		}
		if p.Depth() != depth {
			log.Fatal().Int("profile_depth", int(p.Depth())).Int("session_depth", int(depth)).
				Msg("profile bit depth does not match session")
		}
		prof = p
		log.Info().Str("path", eProfile).Msg("profile loaded")
	}

	preview := link.NewPreview(tr, depth)
	state := ws.NewState(prof, calib.NewCache(), preview)
	if cfg != nil {
		state.Defaults = ws.Defaults{
			SweepStep:     cfg.Sweep.Step,
			SweepInterval: time.Duration(cfg.Sweep.IntervalMs) * time.Millisecond,
			RampStep:      cfg.Ramp.Step,
			RampCeiling:   cfg.Ramp.Ceiling,
			RampInterval:  time.Duration(cfg.Ramp.IntervalMs) * time.Millisecond,
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/curve", state.HandleCurveWS)
	mux.HandleFunc("/ws/control", state.HandleControlWS)
	mux.HandleFunc("/lut", state.HandleLUT)
	mux.HandleFunc("/healthz", state.HandleHealth)

	srv := &http.Server{Addr: eListen, Handler: mux}
	go func() {
		log.Info().Str("addr", eListen).Msg("control server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("control server")
		}
	}()

	// ---- Shutdown: always leave the laser dark ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
	if err := preview.Close(); err != nil {
		log.Warn().Err(err).Msg("transport close")
	}
	_ = srv.Close()
}
