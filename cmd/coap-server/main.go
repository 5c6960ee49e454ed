// Command coap-server runs a CoAP endpoint in server mode: it answers
// GET /sensor and PUT /actuator, and demonstrates the separate-response
// handshake on GET /slow.
package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Lobaro/coap-go/coap"
	"github.com/Lobaro/coap-go/coapmsg"
	"github.com/Lobaro/coap-go/internal/config"
	"github.com/Lobaro/coap-go/internal/corelog"
	"github.com/Lobaro/coap-go/sckt"
)

func main() {
	fs := flag.NewFlagSet("coap-server", flag.ExitOnError)
	configPath := config.RegisterFlag(fs, "")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := corelog.New(corelog.Options{
		Level:       cfg.Logger.Level,
		File:        cfg.Logger.File,
		Development: cfg.Logger.Development,
	})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ep := coap.NewEndpoint(log)
	ep.DiscardRetransmissions = cfg.Server.DiscardRetransmissions

	ep.Handle("sensor", func(ep *coap.Endpoint, req *coapmsg.Message, from sckt.Addr) {
		ep.SendResponse(from, req.MessageID, []byte("21.5"), coapmsg.Content, coapmsg.TextPlain, req.Token)
	})

	ep.Handle("actuator", func(ep *coap.Endpoint, req *coapmsg.Message, from sckt.Addr) {
		log.Infow("actuator set", "payload", string(req.Payload), "from", from)
		ep.SendResponse(from, req.MessageID, nil, coapmsg.Changed, coapmsg.ContentFormatNone, req.Token)
	})

	ep.Handle("slow", func(ep *coap.Endpoint, req *coapmsg.Message, from sckt.Addr) {
		if err := ep.SendResponse(from, req.MessageID, nil, coapmsg.Empty, coapmsg.ContentFormatNone, nil); err != nil {
			log.Errorw("failed to ack deferred request", "error", err)
			return
		}
		// The endpoint is driven from one goroutine only, so the delayed data
		// CON is sent from the handler itself rather than a goroutine.
		time.Sleep(500 * time.Millisecond)
		ep.SendSeparate(from, req.Token, []byte("finally"), coapmsg.Content, coapmsg.TextPlain)
	})

	if err := ep.Start(portFromAddr(cfg.Server.ListenAddr)); err != nil {
		log.Fatalw("failed to start endpoint", "error", err)
	}
	defer ep.Stop()

	log.Infow("coap server listening", "addr", cfg.Server.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sigCh
		close(done)
	}()

	for {
		select {
		case <-done:
			log.Infow("shutting down")
			return
		default:
		}
		if _, err := ep.Poll(100*time.Millisecond, 5*time.Millisecond); err != nil {
			log.Errorw("poll failed", "error", err)
		}
	}
}

func portFromAddr(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
