// Command coap-client issues a single CoAP request against a server and
// prints the response, the way a curl-for-CoAP tool would.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/Lobaro/coap-go/coap"
	"github.com/Lobaro/coap-go/coapmsg"
	"github.com/Lobaro/coap-go/internal/config"
	"github.com/Lobaro/coap-go/internal/corelog"
)

func main() {
	fs := flag.NewFlagSet("coap-client", flag.ExitOnError)
	configPath := config.RegisterFlag(fs, "")
	method := fs.String("method", "GET", "GET, POST, PUT, or DELETE")
	body := fs.String("body", "", "request payload, for POST/PUT")
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: coap-client [flags] coap://host[:port]/path")
		os.Exit(2)
	}
	target := args[0]

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := corelog.New(corelog.Options{
		Level:       cfg.Logger.Level,
		Development: cfg.Logger.Development,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ep := coap.NewEndpoint(log)
	if err := ep.Start(0); err != nil {
		log.Fatalw("failed to start endpoint", "error", err)
	}
	defer ep.Stop()

	req, err := coap.NewRequest(*method, target, bytes.NewBufferString(*body))
	if err != nil {
		log.Fatalw("bad request", "error", err)
	}
	if *body != "" {
		if err := req.Options.Set(coapmsg.ContentFormatOption, coapmsg.TextPlain); err != nil {
			log.Fatalw("failed to set content-format option", "error", err)
		}
	}

	addr, err := coap.ResolveAddr(req.URL.Host)
	if err != nil {
		log.Fatalw("failed to resolve host", "error", err)
	}

	client := coap.NewClient(ep)
	resp, err := client.Do(addr, req)
	if err != nil {
		log.Fatalw("request failed", "error", err)
	}
	defer resp.Body.Close()

	payload, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		log.Fatalw("failed to read response body", "error", err)
	}

	fmt.Printf("%s\n%s\n", resp.Status, payload)
}
