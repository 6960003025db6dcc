package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/Banula-Lavindu/Luster-backend/internal/adapters/media"
	"github.com/Banula-Lavindu/Luster-backend/internal/adapters/rtc"
	"github.com/Banula-Lavindu/Luster-backend/internal/call"
	"github.com/Banula-Lavindu/Luster-backend/internal/config"
	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
	"github.com/Banula-Lavindu/Luster-backend/internal/signaling"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	var (
		roleFlag = pflag.String("role", "callee", "call role: caller or callee")
		token    = pflag.String("token", "", "signaling auth token (required)")
		callID   = pflag.String("call", "", "call id; generated for the caller when empty")
		video    = pflag.Bool("video", false, "acquire video in addition to audio")
	)
	pflag.Parse()

	role := domain.Role(*roleFlag)
	if role != domain.RoleCaller && role != domain.RoleCallee {
		log.Fatal().Str("role", *roleFlag).Msg("role must be caller or callee")
	}
	if *token == "" {
		log.Fatal().Msg("--token is required")
	}
	if *callID == "" {
		if role != domain.RoleCaller {
			log.Fatal().Msg("--call is required for the callee")
		}
		*callID = uuid.NewString()
		log.Info().Str("call_id", *callID).Msg("generated call id")
	}

	dialer := &signaling.Dialer{
		BaseURL:     cfg.SignalURL,
		DialTimeout: cfg.DialTimeout,
		PingPeriod:  cfg.PingPeriod,
	}
	factory := rtc.NewFactory(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.STUNServers}},
	})
	var videoSrc media.Source
	if *video {
		videoSrc = media.TestPatternSource()
	}
	capturer := media.NewCapturer(media.SilenceSource(), videoSrc)

	n := call.NewNegotiator(dialer, factory, capturer)
	n.OnStateChange(func(s domain.State) {
		log.Info().Str("module", "callagent").Str("state", s.String()).Msg("session state")
	})
	n.OnRemoteTrack(func(track *webrtc.TrackRemote) {
		log.Info().Str("module", "callagent").Str("kind", track.Kind().String()).Msg("remote track")
	})

	if err := n.Start(ctx, domain.Token(*token), domain.CallID(*callID), role, *video); err != nil {
		log.Fatal().Err(err).Msg("start call")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		n.End()
		<-n.Done()
	case <-n.Done():
	}

	if err := n.Err(); err != nil {
		log.Error().Err(err).Msg("call failed")
		os.Exit(1)
	}
	log.Info().Msg("call finished")
}
