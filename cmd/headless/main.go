// Headless harness: runs the model lifecycle, gesture handling and the
// playback queue against stub stage capabilities, with no window or GPU.
// Useful for soaking the backend protocol and the queue semantics.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netixc/agent-avatar-app/internal/backend"
	"github.com/netixc/agent-avatar-app/internal/bus"
	"github.com/netixc/agent-avatar-app/internal/chat"
	"github.com/netixc/agent-avatar-app/internal/config"
	"github.com/netixc/agent-avatar-app/internal/interaction"
	"github.com/netixc/agent-avatar-app/internal/layout"
	"github.com/netixc/agent-avatar-app/internal/live2d"
	"github.com/netixc/agent-avatar-app/internal/logging"
	"github.com/netixc/agent-avatar-app/internal/motion"
	"github.com/netixc/agent-avatar-app/internal/speech"
)

type harnessConfig struct {
	CharacterFile string
	CharacterID   string
	BackendURL    string
	Width         float64
	Height        float64
	ScriptedTaps  int
}

func parseFlags() *harnessConfig {
	cfg := &harnessConfig{}

	flag.StringVar(&cfg.CharacterFile, "characters", "characters.yaml", "Character file path")
	flag.StringVar(&cfg.CharacterID, "character", "", "Character id (empty selects the sole entry)")
	flag.StringVar(&cfg.BackendURL, "backend", "", "Backend websocket URL (empty runs offline)")
	flag.Float64Var(&cfg.Width, "width", 800, "Stage width")
	flag.Float64Var(&cfg.Height, "height", 1000, "Stage height")
	flag.IntVar(&cfg.ScriptedTaps, "taps", 3, "Scripted taps to fire after load")

	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()

	syslog, err := logging.New(nil)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()
	zlogger := syslog.Zerolog()

	characters, err := config.LoadCharacters(cfg.CharacterFile)
	if err != nil {
		log.Fatalf("Failed to load character file: %v", err)
	}
	mc, ok := characters.Get(cfg.CharacterID)
	if !ok {
		log.Fatalf("Character %q not found (available: %v)", cfg.CharacterID, characters.IDs())
	}

	eventBus := bus.NewEventBus()
	selector := motion.NewSelector(rand.New(rand.NewSource(time.Now().UnixNano())))
	controller := interaction.NewController(selector, nil, eventBus, zlogger)
	reconciler := layout.NewReconciler(0.5, zlogger)
	queue := speech.NewQueue(eventBus, zlogger)
	history := chat.NewHistory(chat.DefaultHistoryConfig())
	queue.SetSinks(subtitleLog{}, history)

	loader := &stubLoader{logger: syslog}
	surface := newStubSurface()
	manager := live2d.NewManager(loader, eventBus, zlogger)
	manager.AttachSurface(surface)

	eventBus.Subscribe(bus.EventTypeModelReady, func(e bus.Event) {
		handle, _ := e.Data["handle"].(live2d.Handle)
		modelCfg, _ := e.Data["config"].(config.ModelConfig)
		if handle == nil {
			return
		}
		controller.Bind(handle, modelCfg)
		reconciler.SetModel(handle, modelCfg)
		queue.SetHandle(handle)
	})
	eventBus.Subscribe(bus.EventTypeModelReleased, func(e bus.Event) {
		controller.Unbind()
		reconciler.ClearModel()
		queue.SetHandle(nil)
	})
	eventBus.Subscribe(bus.EventTypeTapMotion, func(e bus.Event) {
		syslog.Info("harness", "Tap motion fired", e.Data)
	})

	reconciler.SetContainerSize(cfg.Width, cfg.Height)

	var client *backend.Client
	if cfg.BackendURL != "" {
		client = backend.NewClient(&backend.ClientConfig{
			ServerURL:      cfg.BackendURL,
			Timeout:        10 * time.Second,
			ReconnectDelay: 5 * time.Second,
		}, eventBus, zlogger)
		client.SetSpeechTaskHandler(queue.Enqueue)
		client.SetSynthCompleteHandler(func() {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
				defer cancel()
				if err := queue.WaitForCompletion(ctx); err != nil {
					return
				}
				if err := client.NotifyPlaybackComplete(); err != nil {
					syslog.Warn("backend", "Failed to send playback-complete", map[string]interface{}{
						"error": err.Error(),
					})
				}
			}()
		})
		client.SetInterruptHandlers(
			func() { queue.SetInterrupted(true) },
			func() { queue.SetInterrupted(false) },
		)
		queue.SetNotifier(client)

		if err := client.Connect(context.Background()); err != nil {
			log.Fatalf("Failed to start backend connection: %v", err)
		}
		defer client.Close()
	}

	if err := manager.Load(context.Background(), mc); err != nil {
		log.Fatalf("Model load failed: %v", err)
	}

	// Scripted taps exercise the gesture path end to end.
	for i := 0; i < cfg.ScriptedTaps; i++ {
		controller.PointerDown(cfg.Width/2, cfg.Height/2, interaction.PrimaryButton)
		controller.PointerUp(cfg.Width/2, cfg.Height/2)
		time.Sleep(200 * time.Millisecond)
	}

	syslog.Info("harness", "Running, press Ctrl+C to exit", nil)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	syslog.Info("harness", "Shutdown signal received", nil)
	manager.Release()
}

// subtitleLog prints subtitles to stdout in place of the webview overlay.
type subtitleLog struct{}

func (subtitleLog) ShowSubtitle(text string) {
	log.Printf("[subtitle] %s", text)
}
