package main

import (
	"context"
	goflag "flag"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/frogrtc/frog/pkg/config"
	"github.com/frogrtc/frog/pkg/logger"
	"github.com/frogrtc/frog/pkg/os"
	"github.com/frogrtc/frog/pkg/signaler"
)

var Version = "?"

func main() {
	var conf config.Config
	if err := config.Load(&conf, ""); err != nil {
		logger.Default().Fatal().Err(err).Msg("config load")
	}
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.WithFlags(flag.CommandLine)
	flag.Parse()

	log := logger.NewConsole(conf.Debug, "s", false)
	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	svc, err := signaler.New(conf, log)
	if err != nil {
		log.Fatal().Err(err).Msg("service init")
	}
	svc.Start()

	<-os.ExpectTermination()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
