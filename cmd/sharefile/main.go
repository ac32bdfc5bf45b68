// Command sharefile is a two-role CLI exercising the transport engine
// end to end: "sharefile send <file>" publishes an offer and waits for
// a peer to answer and accept; "sharefile receive <code>" joins a room
// and downloads whatever the sender offers. Grounded on
// n0remac-robot-webrtc's webrtc/client.go (flag-based CLI, a signaling
// server URL flag, log.Printf diagnostics, os/signal shutdown) and on
// Warpdrop's sender/receiver CLI session shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/zealer1995/share-file.online/internal/config"
	"github.com/zealer1995/share-file.online/internal/handshake"
	"github.com/zealer1995/share-file.online/internal/session"
	"github.com/zealer1995/share-file.online/internal/transfer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "send":
		runSend(os.Args[2:])
	case "receive":
		runReceive(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sharefile send -bus <ws-url> <file>")
	fmt.Fprintln(os.Stderr, "       sharefile receive -bus <ws-url> -out <dir> <code>")
}

func commonConfig(fs *flag.FlagSet) *config.Config {
	cfg := config.Default()
	fs.BoolVar(&cfg.UseStun, "stun", cfg.UseStun, "use STUN for ICE gathering")
	fs.BoolVar(&cfg.UseCompression, "compress", cfg.UseCompression, "gzip the signal envelope")
	fs.BoolVar(&cfg.UseUnorderedFileChannels, "unordered", cfg.UseUnorderedFileChannels, "use unordered file channels")
	fs.BoolVar(&cfg.UseStriping, "striping", cfg.UseStriping, "stripe file sends across parallel channels")
	fs.BoolVar(&cfg.Fast, "fast", cfg.Fast, "use the larger pacing/batch budgets")
	return cfg
}

func runSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	bus := fs.String("bus", "ws://localhost:8080/ws/rendezvous", "rendezvous bus URL")
	name := fs.String("name", "", "override the name announced to the receiver")
	cfg := commonConfig(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	path := fs.Arg(0)

	src, err := transfer.NewFileSource(path)
	if err != nil {
		log.Fatalf("[sharefile] open %s: %v", path, err)
	}
	displayName := *name
	if displayName == "" {
		displayName = filepath.Base(path)
	}

	ctx, cancel := signalContext()
	defer cancel()

	orch := handshake.New(ctx, *bus, cfg, session.Events{
		OnStatusChange: func(st session.Status) { log.Printf("[sharefile] status: %s", st) },
		OnError:        func(err error) { log.Printf("[sharefile] session error: %v", err) },
	}, handshake.Events{
		OnError: func(err error) { log.Printf("[sharefile] handshake error: %v", err) },
	})
	defer orch.Close()

	sender := transfer.NewSender(orch.Session(), cfg)
	sender.OnProgress(func(fileID string, sent, size int64) {
		log.Printf("[sharefile] %s: %d/%d bytes", fileID, sent, size)
	})
	engine := handshake.NewEngine(sender, nil, func(text string) {
		log.Printf("[sharefile] peer says: %s", text)
	})
	orch.Session().SetControlHandler(engine.Dispatch)

	code, err := orch.RunSender(ctx)
	if err != nil {
		log.Fatalf("[sharefile] handshake: %v", err)
	}
	fmt.Printf("Share this code with the receiver: %s\n", code)

	waitForStatus(ctx, orch.Session(), session.StatusConnected)

	job := transfer.NewOutgoing(ctx, displayName, src)
	sender.Enqueue(ctx, job)

	waitForOutgoingTerminal(ctx, job)
	if err := job.Err(); err != nil {
		log.Fatalf("[sharefile] send failed: %v", err)
	}
	log.Printf("[sharefile] send complete: %s", job.State())
}

func runReceive(args []string) {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	bus := fs.String("bus", "ws://localhost:8080/ws/rendezvous", "rendezvous bus URL")
	out := fs.String("out", ".", "directory to write received files into")
	cfg := commonConfig(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	code := fs.Arg(0)

	ctx, cancel := signalContext()
	defer cancel()

	var receiver *transfer.Receiver
	orch := handshake.New(ctx, *bus, cfg, session.Events{
		OnStatusChange: func(st session.Status) { log.Printf("[sharefile] status: %s", st) },
		OnFileFrame: func(streamID string, seq uint32, payload []byte) {
			receiver.HandleFileFrame(streamID, seq, payload)
		},
		OnError: func(err error) { log.Printf("[sharefile] session error: %v", err) },
	}, handshake.Events{
		OnError: func(err error) { log.Printf("[sharefile] handshake error: %v", err) },
	})
	defer orch.Close()

	done := make(chan struct{})
	receiver = transfer.NewReceiver(orch.Session(), cfg, transfer.ReceiverEvents{
		OnFileOffer: func(meta transfer.FileMeta) {
			dest := filepath.Join(*out, filepath.Base(meta.Name))
			sink, err := transfer.NewFileSink(dest)
			if err != nil {
				log.Printf("[sharefile] cannot create %s: %v", dest, err)
				return
			}
			log.Printf("[sharefile] receiving %s (%d bytes) -> %s", meta.Name, meta.Size, dest)
			if err := receiver.Accept(meta.FileID, sink); err != nil {
				log.Printf("[sharefile] accept: %v", err)
			}
		},
		OnProgress: func(fileID string, received, size int64) {
			log.Printf("[sharefile] %s: %d/%d bytes", fileID, received, size)
		},
		OnDone: func(fileID string) {
			log.Printf("[sharefile] %s: done", fileID)
			close(done)
		},
		OnCancelled: func(fileID, reason string) {
			log.Printf("[sharefile] %s: cancelled: %s", fileID, reason)
			close(done)
		},
	})
	engine := handshake.NewEngine(nil, receiver, func(text string) {
		log.Printf("[sharefile] peer says: %s", text)
	})
	orch.Session().SetControlHandler(engine.Dispatch)

	if err := orch.RunReceiver(ctx, code); err != nil {
		log.Fatalf("[sharefile] handshake: %v", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func waitForStatus(ctx context.Context, sess *session.Session, want session.Status) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if sess.Status() == want {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func waitForOutgoingTerminal(ctx context.Context, job *transfer.Outgoing) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		switch job.State() {
		case transfer.OutgoingDone, transfer.OutgoingCancelled, transfer.OutgoingFailed:
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
