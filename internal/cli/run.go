package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sweeney/pedalcam/internal/auth"
	"github.com/sweeney/pedalcam/internal/camera"
	"github.com/sweeney/pedalcam/internal/cloud"
	"github.com/sweeney/pedalcam/internal/config"
	"github.com/sweeney/pedalcam/internal/control"
	"github.com/sweeney/pedalcam/internal/gpio"
	"github.com/sweeney/pedalcam/internal/logic"
	"github.com/sweeney/pedalcam/internal/metrics"
	"github.com/sweeney/pedalcam/internal/mqtt"
	"github.com/sweeney/pedalcam/internal/notify"
	"github.com/sweeney/pedalcam/internal/pedal"
	"github.com/sweeney/pedalcam/internal/profile"
	"github.com/sweeney/pedalcam/internal/status"
	"github.com/sweeney/pedalcam/internal/web"
)

func runDaemon(ctx context.Context, cfg *config.Config, sig <-chan os.Signal) error {
	if !cfg.OAuthReady() {
		return errors.New("config: oauth.client_id and oauth.client_secret must be set")
	}

	// Status tracker and metrics first so every later step can report into them.
	tracker := status.NewTracker(time.Now(), status.Config{
		CameraModel:         cfg.Camera.Model,
		PollMs:              cfg.Pedal.ReadTimeout.Milliseconds(),
		DebounceMs:          cfg.Pedal.Debounce.Milliseconds(),
		BurstCount:          cfg.Pedal.BurstCount,
		BurstWindowMs:       cfg.Pedal.BurstWindow.Milliseconds(),
		TimelapseIntervalMs: cfg.Timelapse.Interval.Milliseconds(),
		HeartbeatMs:         cfg.Heartbeat.Milliseconds(),
		Broker:              cfg.MQTT.Broker,
		HTTPAddr:            cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	profiles := profile.NewStore(profile.Config{
		UsersDir:   cfg.Storage.UsersDir,
		ActiveFile: cfg.Storage.ActiveUserFile,
		PhotoRoot:  cfg.Storage.PhotoRoot,
		CloudRoot:  cfg.Storage.CloudRoot,
	})
	if err := profiles.Setup(); err != nil {
		return fmt.Errorf("init profiles: %w", err)
	}

	// A token is required before anything else starts.
	tokens, err := newTokenManager(cfg, tracker, collector)
	if err != nil {
		return err
	}
	log.Printf("auth: checking Dropbox authorization")
	if _, err := tokens.Token(ctx); err != nil {
		return fmt.Errorf("dropbox authorization: %w", err)
	}
	if rec, err := tokens.Status(); err == nil && rec != nil {
		tracker.SetTokenExpiry(rec.Expiry())
	}

	reader, err := pedal.OpenHID(cfg.Pedal.VendorID, cfg.Pedal.ProductID)
	if err != nil {
		return fmt.Errorf("open pedal: %w", err)
	}

	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Prefix:     cfg.MQTT.Prefix,
			BufferSize: cfg.MQTT.BufferSize,
		})
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	var led gpio.Indicator = gpio.Nop{}
	if cfg.LED.Pin > 0 {
		l, err := gpio.NewLED(cfg.LED.Pin)
		if err != nil {
			log.Printf("led disabled: %v", err)
		} else {
			led = l
		}
	}
	defer led.Close()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.Chat)
		if err != nil {
			log.Printf("telegram alerts disabled: %v", err)
		} else {
			notifier = notify.NewDedup(tg, cfg.Telegram.Repeat)
		}
	}

	sigs, err := camera.LoadSignatures(cfg.Camera.SignaturesFile)
	if err != nil {
		reader.Close()
		return err
	}

	var loop *control.Loop
	cam := camera.New(cameraConfig(cfg, sigs), camera.Deps{
		Profiles: profiles,
		Tokens:   tokens,
		Uploader: cloud.NewDropbox(false),
		OnStateChange: func(s camera.ConnectionState) {
			loop.CameraStateChanged(s)
		},
	})

	loop = control.New(control.Config{
		ReadTimeout:       cfg.Pedal.ReadTimeout,
		Idle:              cfg.Pedal.Idle,
		MaxReadErrors:     cfg.Pedal.MaxReadErrors,
		CheckInterval:     cfg.Camera.CheckInterval,
		Heartbeat:         cfg.Heartbeat,
		TimelapseInterval: cfg.Timelapse.Interval,
		Classifier: logic.Config{
			Debounce:    cfg.Pedal.Debounce,
			BurstCount:  cfg.Pedal.BurstCount,
			BurstWindow: cfg.Pedal.BurstWindow,
		},
	}, control.Deps{
		Pedal:      reader,
		Camera:     cam,
		Profiles:   profiles,
		Tracker:    tracker,
		Metrics:    collector,
		Publisher:  publisher,
		MQTTStatus: mqttStatus,
		LED:        led,
		Notifier:   notifier,
		Network:    readNetworkInfo,
	})

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, loop, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("control panel listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: camera=%q debounce=%v burst=%d/%v timelapse=%v broker=%q heartbeat=%v",
		cfg.Camera.Model, cfg.Pedal.Debounce, cfg.Pedal.BurstCount, cfg.Pedal.BurstWindow,
		cfg.Timelapse.Interval, cfg.MQTT.Broker, cfg.Heartbeat)

	return loop.Run(ctx, sig)
}

func newTokenManager(cfg *config.Config, tracker *status.Tracker, collector *metrics.Collector) (*auth.Manager, error) {
	if !cfg.OAuthReady() {
		return nil, errors.New("config: oauth.client_id and oauth.client_secret must be set")
	}
	conf := auth.OAuthConfig(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.AuthURL, cfg.OAuth.TokenURL, cfg.OAuth.RedirectURL)
	observe := func(rec auth.Record) {
		collector.RecordToken(rec.Expiry())
		if tracker != nil {
			tracker.SetTokenExpiry(rec.Expiry())
		}
	}
	return auth.NewManager(
		auth.FileStore{Path: cfg.OAuth.TokenFile},
		conf,
		auth.NewHandshake(conf, cfg.OAuth.HandshakeTimeout),
		auth.WithObserver(observe),
	), nil
}

func cameraConfig(cfg *config.Config, sigs camera.Signatures) camera.Config {
	return camera.Config{
		Model:          cfg.Camera.Model,
		Command:        cfg.Camera.Command,
		Sudo:           cfg.Camera.Sudo,
		WorkDir:        cfg.Camera.WorkDir,
		Freshness:      cfg.Camera.Freshness,
		CaptureTimeout: cfg.Camera.CaptureTimeout,
		Settle:         cfg.Camera.Settle,
		Signatures:     sigs,
	}
}
