// AgentAvatar - desktop companion window for the agent backend
package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/netixc/agent-avatar-app/internal/backend"
	"github.com/netixc/agent-avatar-app/internal/bridge"
	"github.com/netixc/agent-avatar-app/internal/bus"
	"github.com/netixc/agent-avatar-app/internal/chat"
	"github.com/netixc/agent-avatar-app/internal/config"
	"github.com/netixc/agent-avatar-app/internal/interaction"
	"github.com/netixc/agent-avatar-app/internal/layout"
	"github.com/netixc/agent-avatar-app/internal/live2d"
	"github.com/netixc/agent-avatar-app/internal/logging"
	"github.com/netixc/agent-avatar-app/internal/motion"
	"github.com/netixc/agent-avatar-app/internal/speech"
	"github.com/netixc/agent-avatar-app/internal/webstage"
)

//go:embed all:frontend/dist
var assets embed.FS

// Global logger instance
var syslog *logging.Logger

// getAssets returns the frontend assets with the correct path
func getAssets() fs.FS {
	fsys, err := fs.Sub(assets, "frontend/dist")
	if err != nil {
		syslog.Error("assets", "Failed to get assets", err, nil)
		panic(err)
	}
	return fsys
}

// loadEnvFiles loads API keys and overrides from .env files
func loadEnvFiles() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, envPath := range []string{
		filepath.Join(home, ".agentavatar", ".env"),
		".env",
	} {
		if err := godotenv.Load(envPath); err == nil {
			syslog.Info("env", "Loaded environment variables", map[string]interface{}{
				"source": envPath,
			})
		}
	}
}

func main() {
	var err error
	syslog, err = logging.New(nil) // Uses default config
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()

	syslog.Info("main", "AgentAvatar starting...", nil)

	loadEnvFiles()

	zlogger := syslog.Zerolog()

	cfg, err := config.Load()
	if err != nil {
		syslog.Warn("config", "Failed to load config, using defaults", map[string]interface{}{
			"error": err.Error(),
		})
		cfg = config.DefaultConfig()
	}
	syslog.Info("config", "Configuration loaded", map[string]interface{}{
		"windowSize": fmt.Sprintf("%dx%d", cfg.Window.Width, cfg.Window.Height),
		"backend":    cfg.Backend.ServerURL,
		"overlay":    cfg.Window.OverlayMode,
	})

	characterPath := resolveCharacterPath(cfg)
	characters, err := config.LoadCharacters(characterPath)
	if err != nil {
		syslog.Warn("config", "Failed to load character file", map[string]interface{}{
			"path":  characterPath,
			"error": err.Error(),
		})
		characters = &config.CharacterFile{Characters: map[string]config.ModelConfig{}}
	}

	eventBus := bus.NewEventBus()

	// Shell relay only exists in overlay ("pet") mode.
	var shellMessenger *bridge.ShellMessenger
	var shellRelay interaction.ShellRelay
	if cfg.Window.OverlayMode {
		shellMessenger = bridge.NewShellMessenger("avatar-stage")
		shellRelay = shellMessenger
	}

	selector := motion.NewSelector(rand.New(rand.NewSource(time.Now().UnixNano())))
	controller := interaction.NewController(selector, shellRelay, eventBus, zlogger)
	reconciler := layout.NewReconciler(cfg.Stage.DefaultScale, zlogger)
	queue := speech.NewQueue(eventBus, zlogger)
	history := chat.NewHistory(chat.HistoryConfig{
		MaxLines:       cfg.Chat.MaxLines,
		DefaultSpeaker: cfg.Chat.SpeakerName,
	})

	backendClient := backend.NewClient(&backend.ClientConfig{
		ServerURL:      cfg.Backend.ServerURL,
		Timeout:        cfg.Backend.Timeout,
		ReconnectDelay: cfg.Backend.ReconnectDelay,
		MaxReconnects:  cfg.Backend.MaxReconnects,
		ClientID:       cfg.Backend.ClientID,
	}, eventBus, zlogger)

	chatBridge := bridge.NewChatBridge(history)
	queue.SetSinks(chatBridge, history)
	queue.SetNotifier(backendClient)

	logBridge := bridge.NewLogBridge(syslog)

	// Stage capabilities are inert until startup binds the runtime
	// context; creating them here lets Wails generate their bindings.
	loader := webstage.NewLoader(zlogger)
	surface := webstage.NewSurface(live2d.SurfaceOptions{
		Width:                 cfg.Window.Width,
		Height:                cfg.Window.Height,
		TransparentBackground: cfg.Window.Transparent || cfg.Window.OverlayMode,
		DevicePixelRatio:      cfg.Stage.DevicePixelRatio,
	}, zlogger)
	manager := live2d.NewManager(loader, eventBus, zlogger)
	stageBridge := bridge.NewStageBridge(manager, controller, reconciler, characters, eventBus, syslog)

	app := &App{
		cfg:           cfg,
		syslog:        syslog,
		eventBus:      eventBus,
		characters:    characters,
		characterPath: characterPath,
		manager:       manager,
		loader:        loader,
		surface:       surface,
		controller:    controller,
		reconciler:    reconciler,
		queue:         queue,
		history:       history,
		backend:       backendClient,
		chatBridge:    chatBridge,
		logBridge:     logBridge,
		stageBridge:   stageBridge,
		shell:         shellMessenger,
	}

	appOptions := &options.App{
		Title:     cfg.Window.Title,
		Width:     cfg.Window.Width,
		Height:    cfg.Window.Height,
		MinWidth:  300,
		MinHeight: 400,
		AssetServer: &assetserver.Options{
			Assets: getAssets(),
		},
		Frameless:        cfg.Window.Frameless,
		AlwaysOnTop:      cfg.Window.AlwaysOnTop,
		BackgroundColour: &options.RGBA{R: 0, G: 0, B: 0, A: backgroundAlpha(cfg)},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
			stageBridge,
			chatBridge,
			logBridge,
		},
	}

	if err := wails.Run(appOptions); err != nil {
		syslog.Error("wails", "Wails.Run failed", err, nil)
		os.Exit(1)
	}

	syslog.Info("main", "Application exited normally", nil)
}

// backgroundAlpha returns 0 for a transparent overlay window.
func backgroundAlpha(cfg *config.Config) uint8 {
	if cfg.Window.Transparent || cfg.Window.OverlayMode {
		return 0
	}
	return 255
}

// resolveCharacterPath resolves the character file relative to the
// config directory unless it is absolute or exists in the working dir.
func resolveCharacterPath(cfg *config.Config) string {
	path := cfg.Stage.CharacterFile
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if dir, err := config.GetConfigDir(); err == nil {
		return filepath.Join(dir, path)
	}
	return path
}

// App struct holds the main application state
type App struct {
	ctx           context.Context
	cfg           *config.Config
	syslog        *logging.Logger
	eventBus      *bus.EventBus
	characters    *config.CharacterFile
	characterPath string

	manager     *live2d.Manager
	loader      *webstage.Loader
	surface     *webstage.Surface
	controller  *interaction.Controller
	reconciler  *layout.Reconciler
	queue       *speech.Queue
	history     *chat.History
	backend     *backend.Client
	chatBridge  *bridge.ChatBridge
	logBridge   *bridge.LogBridge
	stageBridge *bridge.StageBridge
	shell       *bridge.ShellMessenger

	stopWatch func()
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	a.chatBridge.Bind(ctx)
	a.logBridge.Bind(ctx)
	a.stageBridge.Bind(ctx)
	if a.shell != nil {
		a.shell.Bind(ctx)
	}

	a.loader.Bind(ctx)
	a.surface.Bind(ctx)
	a.manager.AttachSurface(a.surface)

	a.bindLifecycleEvents()
	a.bindBackendHandlers()
	a.watchCharacterFile()

	a.reconciler.SetContainerSize(float64(a.cfg.Window.Width), float64(a.cfg.Window.Height))

	go func() {
		if err := a.backend.Connect(context.Background()); err != nil {
			a.syslog.Error("backend", "Failed to start backend connection", err, nil)
		}
	}()

	// Load the default character once the stage exists.
	if mc, ok := a.characters.Get(a.cfg.Stage.DefaultCharacter); ok {
		go func() {
			if err := a.manager.Load(context.Background(), mc); err != nil {
				a.syslog.Error("model", "Initial model load failed", err, nil)
			}
		}()
	} else {
		a.syslog.Warn("model", "No default character configured", nil)
	}

	a.syslog.Info("lifecycle", "App.startup() complete", nil)
}

// bindLifecycleEvents rebinds the handle-consuming components on every
// model swap, so nothing holds a stale reference.
func (a *App) bindLifecycleEvents() {
	a.eventBus.Subscribe(bus.EventTypeModelReady, func(e bus.Event) {
		handle, _ := e.Data["handle"].(live2d.Handle)
		mc, _ := e.Data["config"].(config.ModelConfig)
		if handle == nil {
			return
		}
		a.controller.Bind(handle, mc)
		a.reconciler.SetModel(handle, mc)
		a.queue.SetHandle(handle)
	})

	a.eventBus.Subscribe(bus.EventTypeModelReleased, func(e bus.Event) {
		a.controller.Unbind()
		a.reconciler.ClearModel()
		a.queue.SetHandle(nil)
	})
}

// bindBackendHandlers routes inbound conversation frames.
func (a *App) bindBackendHandlers() {
	a.backend.SetSpeechTaskHandler(func(t *speech.Task) {
		a.queue.Enqueue(t)
	})

	a.backend.SetSynthCompleteHandler(func() {
		// Reply exactly once per synthesis batch, after the queue drains.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := a.queue.WaitForCompletion(ctx); err != nil {
				a.syslog.Warn("speech", "Timed out waiting for playback to finish", nil)
				return
			}
			if err := a.backend.NotifyPlaybackComplete(); err != nil {
				a.syslog.Warn("backend", "Failed to send playback-complete", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	})

	a.backend.SetInterruptHandlers(
		func() { a.queue.SetInterrupted(true) },
		func() { a.queue.SetInterrupted(false) },
	)

	a.backend.SetExpressionHandler(func(id string) {
		handle, ok := a.manager.Handle()
		if !ok {
			return
		}
		if id == "" {
			handle.ResetExpression()
			return
		}
		if err := handle.SetExpression(id); err != nil {
			a.syslog.Warn("model", "Failed to apply expression", map[string]interface{}{
				"expression": id,
				"error":      err.Error(),
			})
		}
	})
}

// watchCharacterFile hot-reloads the active character on file changes.
func (a *App) watchCharacterFile() {
	if !a.cfg.Stage.WatchCharacters {
		return
	}

	stop, err := config.WatchCharacters(a.characterPath,
		func(cf *config.CharacterFile) {
			a.syslog.Info("config", "Character file changed, reloading", nil)
			a.characters = cf
			a.stageBridge.SetCharacters(cf)

			current := a.stageBridge.CurrentCharacter()
			if current == "" {
				current = a.cfg.Stage.DefaultCharacter
			}
			if mc, ok := cf.Get(current); ok {
				go func() {
					if err := a.manager.Load(context.Background(), mc); err != nil {
						a.syslog.Error("model", "Hot reload failed", err, nil)
					}
				}()
			}
		},
		func(err error) {
			a.syslog.Warn("config", "Character file watch error", map[string]interface{}{
				"error": err.Error(),
			})
		})
	if err != nil {
		a.syslog.Warn("config", "Could not watch character file", map[string]interface{}{
			"path":  a.characterPath,
			"error": err.Error(),
		})
		return
	}
	a.stopWatch = stop
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	a.syslog.Info("lifecycle", "App.shutdown() called", nil)
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.backend.Close()
	if a.manager != nil {
		a.manager.Release()
	}
	a.syslog.Info("lifecycle", "AgentAvatar shutdown complete", nil)
}

// GetVersion returns the application version
func (a *App) GetVersion() string {
	return "1.0.0"
}

// GetConfig returns the current configuration
func (a *App) GetConfig() *config.Config {
	return a.cfg
}
