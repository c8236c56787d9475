package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/codewandler/voicebridge-go"
	"github.com/codewandler/voicebridge-go/config"
	"github.com/codewandler/voicebridge-go/tool"
	"github.com/gordonklaus/portaudio"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// localTools answers tool calls in-process instead of through a gateway.
type localTools struct{}

func (localTools) CheckConnection(context.Context) error { return nil }
func (localTools) ResetSession(context.Context) error    { return nil }

func (localTools) Execute(_ context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "get_time":
		return time.Now().Format(time.RFC3339), nil
	case "execute":
		return fmt.Sprintf("pretending to do: %v", args["task"]), nil
	}
	return nil, &tool.ExecutionError{Kind: tool.ErrorFailed, Tool: name, Err: fmt.Errorf("unknown tool")}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var (
		debug       = false
		srMic       = 48_000
		srSpeaker   = 48_000
		instruction = "You are a helpful voice assistant."
	)

	flag.StringVar(&instruction, "instruction", instruction, "system instruction for the model.")
	flag.IntVar(&srMic, "mic-sample-rate", srMic, "microphone sample rate")
	flag.IntVar(&srSpeaker, "speaker-sample-rate", srSpeaker, "speaker sample rate")
	flag.BoolVar(&debug, "debug", false, "enable debug logs")
	flag.Parse()

	slog.SetLogLoggerLevel(slog.LevelError)
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	must(portaudio.Initialize())
	defer portaudio.Terminate()

	spk, err := NewSpeaker(srSpeaker)
	must(err)

	settings, err := config.Load("")
	must(err)
	settings.SystemInstruction = instruction

	session := voicebridge.New(NewMicrophone(srMic), spk, localTools{},
		voicebridge.WithDefaultLogger(),
		voicebridge.WithSettings(config.Static(settings)),
		voicebridge.WithTools(
			tool.Execute(),
			tool.Tool{
				Name:        "get_time",
				Description: "Get the current time",
				Parameters: tool.Parameters{
					Type:       tool.TypeObject,
					Properties: tool.Properties{},
				},
			},
		),
	)

	go func() {
		var last voicebridge.Status
		for st := range session.Subscribe(ctx) {
			if st.InputTranscript != last.InputTranscript && st.InputTranscript != "" {
				println("you>", st.InputTranscript)
			}
			if st.OutputTranscript != last.OutputTranscript && st.OutputTranscript != "" {
				println("agent>", st.OutputTranscript)
			}
			if st.Phase != last.Phase {
				println("--", st.Phase.String(), st.LastError)
			}
			last = st
		}
	}()

	// enter toggles the session
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if err := session.Toggle(ctx); err != nil {
				slog.Error("toggle failed", slog.Any("err", err))
			}
		}
	}()

	must(session.Start(ctx))

	<-ctx.Done()
	session.Stop()
}
