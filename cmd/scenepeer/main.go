// scenepeer is a headless peer: it joins a scenesync host, mirrors the
// scene from patches and checks its mirror against the host by digest.
//
// Usage:
//
//	go run ./cmd/scenepeer [-url ws://127.0.0.1:7010/ws] [-name viewer] [-own first] [-drive]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scenesync/server/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:7010/ws", "host websocket URL")
	name := flag.String("name", "scenepeer", "peer name sent in hello")
	clientID := flag.String("client", "", "client id to reclaim")
	own := flag.String("own", "", `actor id to request ownership of, or "first"`)
	drive := flag.Bool("drive", false, "move owned actors")
	digestEvery := flag.Duration("digest", 2*time.Second, "digest interval, 0 disables")
	rate := flag.Duration("rate", 100*time.Millisecond, "motion interval when driving")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if err := run(*url, *name, *clientID, *own, *drive, *digestEvery, *rate, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(url, name, clientID, own string, drive bool, digestEvery, rate time.Duration, verbose bool) error {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	zapCfg.DisableCaller = true
	zapCfg.DisableStacktrace = true
	if !verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	log, err := zapCfg.Build()
	if err != nil {
		return err
	}
	defer log.Sync()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	// Only this goroutine writes to conn.
	send := func(typ string, payload any) error {
		data, err := protocol.Encode(typ, payload)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}
	p := newPeer(send, own, log)

	inbound := make(chan protocol.Envelope, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Warn("undecodable message", zap.Error(err))
				continue
			}
			inbound <- env
		}
	}()

	if err := send(protocol.TypeHello, protocol.Hello{ClientID: clientID, Name: name}); err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	var digestC <-chan time.Time
	if digestEvery > 0 {
		t := time.NewTicker(digestEvery)
		defer t.Stop()
		digestC = t.C
	}
	var driveC <-chan time.Time
	if drive {
		t := time.NewTicker(rate)
		defer t.Stop()
		driveC = t.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	start := time.Now()

	for {
		select {
		case env := <-inbound:
			if err := p.handle(env); err != nil {
				return err
			}
		case <-digestC:
			if p.client.IsNil() {
				continue
			}
			if err := p.sendDigest(); err != nil {
				return err
			}
			log.Debug("digest sent", zap.Int("actors", len(p.mirror.Actors())), zap.Int("patches", p.patches))
		case <-driveC:
			if err := p.drive(time.Since(start)); err != nil {
				return err
			}
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case sig := <-sigCh:
			log.Info("leaving",
				zap.String("signal", sig.String()),
				zap.Int("patches", p.patches),
				zap.Int("resyncs", p.resyncs))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		}
	}
}
