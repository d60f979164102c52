package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiotap/audiotap/internal/audioapi"
	"github.com/audiotap/audiotap/internal/config"
	"github.com/audiotap/audiotap/internal/utils"
	"github.com/audiotap/audiotap/internal/wsstream"
	"github.com/audiotap/audiotap/pkg/backend"
	"github.com/audiotap/audiotap/pkg/capture"
	"github.com/audiotap/audiotap/pkg/sink"
	"github.com/spf13/viper"
)

func selectBackend() backend.Backend {
	name := viper.GetString("backend")
	switch name {
	case "portaudio":
		return &audioapi.PortAudioBackend{}
	case "synth":
		return &audioapi.SynthBackend{}
	default:
		slog.Error("unknown backend in config", "backend", name)
		panic("unknown backend")
	}
}

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	flag.Parse()

	config.LoadConfig(*configFilePath)
	logFilePointer, err := utils.ConfigureDefaultLogger(
		viper.GetString("loglevel"),
		viper.GetString("logfile"),
		slog.HandlerOptions{},
	)
	if err != nil {
		slog.Error("error while configuring default logger", "err", err)
		panic(err)
	}
	if logFilePointer != nil {
		defer logFilePointer.Close()
	}

	// --------------------------------------------------------------------------------
	// Connect and start capturing

	conn, err := capture.Connect(selectBackend(), viper.GetString("clientname"))
	if err != nil {
		slog.Error("could not connect to audio server", "err", err)
		panic(err)
	}

	chanSink := sink.NewChannelSink(viper.GetInt("channeldepth"))
	src, err := capture.Open(conn, chanSink, capture.Options{
		Caching: viper.GetDuration("caching"),
		Pool:    sink.NewBlockPool(viper.GetInt("blockpooldepth")),
	})
	if err != nil {
		slog.Error("could not open capture source", "err", err)
		conn.Disconnect()
		panic(err)
	}

	format := sink.Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16, BlockAlign: 4}

	// --------------------------------------------------------------------------------
	// Wire the consumers: optional WAV file, optional websocket streamer

	var wavSink *sink.WAVSink
	var wavTrack sink.Track
	if wavFile := viper.GetString("wavfile"); wavFile != "" {
		wavSink, err = sink.NewWAVSink(wavFile)
		if err == nil {
			wavTrack, err = wavSink.AddTrack(format)
		}
		if err != nil {
			slog.Error("could not open wav output", "wavfile", wavFile, "err", err)
			src.Close()
			conn.Disconnect()
			panic(err)
		}
	}

	var server *wsstream.Server
	if addr := viper.GetString("listenaddr"); addr != "" {
		server = wsstream.NewServer(addr, format)
		server.Start()
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for block := range chanSink.Blocks() {
			if server != nil {
				server.Broadcast(block.Data)
			}
			if wavTrack != nil {
				// Send takes ownership and releases the block.
				wavTrack.Send(block)
			} else {
				block.Release()
			}
		}
	}()

	slog.Info(
		"capturing",
		"backend", viper.GetString("backend"),
		"caching", viper.GetDuration("caching"),
		"wavfile", viper.GetString("wavfile"),
		"listenaddr", viper.GetString("listenaddr"),
	)

	// --------------------------------------------------------------------------------
	// Run until interrupted, then tear down in order: source before
	// connection, consumers after the block channel closes.

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	slog.Info("shutting down", "dropped", chanSink.Dropped())

	src.Close()
	conn.Disconnect()
	chanSink.Close()
	<-consumerDone

	if wavSink != nil {
		if err := wavSink.Close(); err != nil {
			slog.Error("error while finalizing wav file", "err", err)
		}
	}
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}
