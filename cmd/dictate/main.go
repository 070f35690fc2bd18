// Command dictate records from the microphone and streams the audio to
// the update service, printing the live transcript and the reconciled
// record.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dictate/archive"
	"dictate/audio"
	"dictate/capture"
	"dictate/config"
	"dictate/log"
	"dictate/metrics"
	"dictate/pcm"
	"dictate/record"
	"dictate/stream"
)

var version = "dev"

const drainInterval = 200 * time.Millisecond

func main() {
	godotenv.Load()

	configFlag := flag.String("config", "dictate.yaml", "path to config file")
	kindFlag := flag.String("kind", "contact", "record kind: contact or schedule")
	idFlag := flag.String("id", "", "target record id on the server")
	keepFlag := flag.String("keep-local-id", "", "local identity to preserve on the reconciled record")
	deviceFlag := flag.String("device", "", "use named microphone device")
	setupFlag := flag.Bool("setup", false, "select microphone interactively")
	durationFlag := flag.Duration("duration", 0, "stop recording after this long (default: Enter to stop)")
	autoStopFlag := flag.Bool("auto-stop", false, "stop automatically after 30s of silence")
	noAGCFlag := flag.Bool("no-agc", false, "disable adaptive gain")
	archiveFlag := flag.Bool("archive", false, "save the capture as FLAC")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("dictate %s\n", version)
		os.Exit(0)
	}

	kind, err := record.KindByName(*kindFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *idFlag == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required")
		os.Exit(1)
	}

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	cfg, err := config.Load(*configFlag, explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logDir := *logPathFlag
	if logDir == "" {
		logDir = cfg.Logging.Dir
	}
	logPath, err := log.ResolveDir(logDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SessionStart(kind.Name, *idFlag)

	var mx *metrics.Metrics
	if cfg.Metrics.Enabled {
		mx = metrics.New(nil)
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, promhttp.Handler()); err != nil {
				log.Errorf("metrics listener: %v", err)
			}
		}()
	}

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	device := pickDevice(ctx, *deviceFlag, cfg.Audio.Device, *setupFlag)
	captureDevice, err := ctx.NewCapture(device, audio.CaptureConfig{
		SampleRate: pcm.SampleRate,
		Channels:   pcm.Channels,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing capture device: %v\n", err)
		os.Exit(1)
	}
	defer captureDevice.Close()

	if device != nil && audio.IsBluetooth(device.Name) {
		fmt.Println("Warning: Bluetooth microphone, expect phone-call quality")
	}

	if err := run(cfg, kind, captureDevice, mx, *idFlag, *keepFlag, *durationFlag, *autoStopFlag, *noAGCFlag, *archiveFlag); err != nil {
		log.Errorf("session error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func pickDevice(ctx audio.Context, flagName, cfgName string, setup bool) *audio.DeviceInfo {
	if setup {
		dev, err := audio.SelectDevice(ctx)
		if err != nil {
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			return nil
		}
		return dev
	}
	name := flagName
	if name == "" {
		name = cfgName
	}
	if name == "" {
		return nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		log.Warnf("device enumeration failed: %v", err)
		return nil
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i]
		}
	}
	fmt.Printf("Warning: device %q not found, using default\n", name)
	return nil
}

func run(cfg *config.Config, kind record.Kind, dev audio.CaptureDevice, mx *metrics.Metrics, recordID, keepLocalID string, duration time.Duration, autoStop, noAGC, saveArchive bool) error {
	backlog := stream.BacklogBlock
	if cfg.Audio.Backlog == "drop_oldest" {
		backlog = stream.BacklogDropOldest
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := stream.New(sessCtx, stream.Config{
		BaseURL:      cfg.Service.BaseURL,
		Kind:         kind,
		RecordID:     recordID,
		KeepLocalID:  keepLocalID,
		Credential:   stream.StaticCredential(cfg.Service.Token),
		Backlog:      backlog,
		BacklogDepth: cfg.Audio.BacklogDepth,
		ChunkBytes:   pcm.ChunkBytes(time.Duration(cfg.Audio.ChunkMs) * time.Millisecond),
		Metrics:      mx,
		Events: stream.Events{
			Transcript: func(text string, final bool) {
				marker := "…"
				if final {
					marker = "✓"
				}
				fmt.Printf("\r\x1b[J%s %s\n", marker, text)
			},
			Processing: func(message string) {
				fmt.Printf("\r\x1b[J(%s)\n", message)
			},
		},
	})
	if err != nil {
		return err
	}

	silenceStop := make(chan struct{}, 1)
	rec := capture.New(dev, capture.Config{
		Native:     audio.CaptureConfig{SampleRate: pcm.SampleRate, Channels: pcm.Channels},
		DisableAGC: noAGC || cfg.Audio.DisableAGC,
		Monitor:    true,
		AutoStop:   autoStop || cfg.Audio.AutoStop,
		Metrics:    mx,
		Events: capture.Events{
			Silence: func(ev capture.SilenceEvent) {
				switch ev {
				case capture.SilenceWarn, capture.SilenceRepeat:
					fmt.Println("(no voice detected — is the right microphone selected?)")
				case capture.SilenceCleared:
					fmt.Println("(voice detected)")
				case capture.SilenceAutoStop:
					fmt.Println("(silence auto-stop)")
					select {
					case silenceStop <- struct{}{}:
					default:
					}
				}
			},
		},
	})
	defer rec.Close()

	if err := rec.Start(); err != nil {
		sess.Cancel()
		return err
	}
	fmt.Printf("Recording %s %s — press Enter to finish, Ctrl+C to cancel\n", kind.Name, recordID)

	enter := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var timeout <-chan time.Time
	if duration > 0 {
		timeout = time.After(duration)
	}

	var full []byte
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	cancelled := false

pump:
	for {
		select {
		case <-ticker.C:
			chunk := rec.Drain()
			if len(chunk) > 0 {
				full = append(full, chunk...)
				sess.Feed(chunk)
			}
		case <-enter:
			break pump
		case <-timeout:
			break pump
		case <-silenceStop:
			break pump
		case <-sigChan:
			cancelled = true
			break pump
		}
	}

	tail := rec.Stop(cancelled)
	if dropped := rec.DroppedFrames(); dropped > 0 {
		log.Warnf("dropped %d hardware buffers under load", dropped)
	}

	if cancelled {
		res := sess.Cancel()
		fmt.Printf("Cancelled after %.1fs of audio.\n", res.Stats.AudioSeconds)
		return nil
	}

	full = append(full, tail...)
	sess.Feed(tail)
	fmt.Printf("Captured %.1fs of audio, waiting for the update result…\n", pcm.Duration(len(full)).Seconds())

	res, err := sess.Done()
	if err != nil {
		return err
	}

	if res.Transcript != "" {
		log.TranscriptText(res.Transcript)
	}
	if saveArchive || cfg.Archive.Enabled {
		dir := cfg.Archive.Dir
		if dir == "" {
			dir = log.Dir()
		}
		if path, err := archive.Save(dir, full); err != nil {
			log.Warnf("archive failed: %v", err)
		} else {
			fmt.Printf("Archived capture to %s\n", path)
		}
	}

	switch res.State {
	case stream.Completed:
		out, _ := json.MarshalIndent(res.Record, "", "  ")
		fmt.Printf("Updated %s %s:\n%s\n", kind.Name, res.Record.RecordID(), out)
	case stream.Cancelled:
		fmt.Println("Server cancelled the session.")
	}
	fmt.Printf("connect %.0fms | %d chunks | %.1f KB | %d events | finalize %.0fms | total %.0fms\n",
		res.Stats.ConnectMs, res.Stats.SentChunks, res.Stats.SentKB,
		res.Stats.RecvMessages, res.Stats.FinalizeMs, res.Stats.TotalMs)
	return nil
}
