package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/adapters/media"
	"github.com/mcastano/reunion/internal/adapters/meta"
	"github.com/mcastano/reunion/internal/adapters/rtc"
	sig "github.com/mcastano/reunion/internal/adapters/signal"
	"github.com/mcastano/reunion/internal/app/coord"
	"github.com/mcastano/reunion/internal/app/peer"
	"github.com/mcastano/reunion/internal/config"
	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var (
		session = flag.String("session", "", "session id to join")
		name    = flag.String("name", "", "display name")
		token   = flag.String("token", os.Getenv("REUNION_TOKEN"), "bearer credential")
	)
	flag.Parse()
	if *session == "" || *name == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "usage: reunion -session <id> -name <name> -token <credential>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	identity, err := domain.NewIdentity(uuid.NewString(), *name)
	if err != nil {
		log.Fatal().Err(err).Msg("bad identity")
	}
	cred := domain.Credential(*token)

	chat := sig.NewClient(sig.Options{
		Name:              "chat",
		URL:               cfg.ChatURL,
		Credential:        cred,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		SendBuffer:        cfg.SendBuffer,
		ReadLimit:         cfg.ReadLimit,
	})
	voice := sig.NewClient(sig.Options{
		Name:              "voice",
		URL:               cfg.VoiceURL,
		Credential:        cred,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		SendBuffer:        cfg.SendBuffer,
		ReadLimit:         cfg.ReadLimit,
	})

	devices, err := media.NewDevices()
	if err != nil {
		log.Fatal().Err(err).Msg("media devices init")
	}
	ctrl := media.NewController(devices)
	sink := media.NewSink(io.Discard)

	neg := peer.New(ctx,
		sig.RendezvousDialer(cfg.RendezvousURL, cred),
		rtc.Factory(rtc.DefaultWebRTCConfig()),
		peer.Timings{OpenTimeout: cfg.OpenTimeout, RetryWait: cfg.RetryWait},
	)
	neg.OnIncoming(func(remote domain.PeerID) (*core.MediaStream, bool) {
		stream := ctrl.Stream()
		if stream == nil || !ctrl.MicOn() {
			return nil, false
		}
		return stream, true
	})
	neg.OnRemoteTrack(func(ctx context.Context, remote domain.PeerID, track *webrtc.TrackRemote) {
		go sink.Play(ctx, remote, track)
	})

	metaClient := meta.NewClient(cfg.MetadataURL, cred)

	c := coord.New(coord.Options{
		LocalName: cfg.LocalName,
		RosterCap: cfg.RosterCap,
		Timings:   coord.Timings{CallGrace: cfg.CallGrace, LeaveDelay: cfg.LeaveDelay},
	}, chat, voice, neg, ctrl, metaClient)
	defer c.Close()

	go renderEvents(ctx, c)
	go readCommands(ctx, c, cancel)

	c.Start(ctx, domain.SessionID(*session), identity, cred)

	<-ctx.Done()
	log.Info().Msg("exiting")
}

func renderEvents(ctx context.Context, c *coord.Coordinator) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.Events():
			switch ev.Kind {
			case coord.UIRoster:
				names := make([]string, 0, len(ev.Roster))
				for _, p := range ev.Roster {
					names = append(names, p.DisplayName)
				}
				fmt.Printf("* participantes: %s\n", strings.Join(names, ", "))
			case coord.UIMessage:
				fmt.Printf("%s: %s\n", ev.Message.Author, ev.Message.Text)
			case coord.UINotice:
				fmt.Printf("* %s\n", ev.Text)
			case coord.UIToggles:
				fmt.Printf("* cámara=%v micrófono=%v\n", ev.CameraOn, ev.MicOn)
			case coord.UINavigate:
				fmt.Println("* fin de la reunión")
			}
		}
	}
}

// readCommands turns stdin lines into coordinator operations. Lines
// starting with "/" are commands; anything else is chat.
func readCommands(ctx context.Context, c *coord.Coordinator, quit context.CancelFunc) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "/quit":
			c.Hangup()
			quit()
			return
		case line == "/hangup":
			c.Hangup()
		case line == "/cam on":
			c.SetCamera(true)
		case line == "/cam off":
			c.SetCamera(false)
		case line == "/mic on":
			c.SetMic(true)
		case line == "/mic off":
			c.SetMic(false)
		default:
			c.SendMessage(line)
		}
	}
}
