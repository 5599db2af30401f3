// mailengined hosts the mail engine for a local UI process: it reads
// JSON command lines on stdin and writes JSON results on stdout.
//
// Request:  {"command": "fetch_headers", "args": {"accountId": "...", ...}}
// Response: {"ok": true, "result": ...} or {"ok": false, "error": "..."}
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zitrone/mailengine/internal/account"
	"github.com/zitrone/mailengine/internal/config"
	"github.com/zitrone/mailengine/internal/credentials"
	"github.com/zitrone/mailengine/internal/logging"
)

type request struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

type response struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func main() {
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	console := flag.Bool("console", false, "human-readable log output")
	flag.Parse()

	logging.Init(*logLevel, *console)
	log := logging.WithComponent("main")

	cfg, err := config.NewStore()
	if err != nil {
		panic(fmt.Sprintf("cannot initialize config store: %v", err))
	}
	creds := credentials.NewStore()
	registry := account.NewRegistry(cfg, creds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry.StartRetentionSweeper(ctx, time.Hour)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down")
		cancel()
		registry.DisconnectAll()
		os.Exit(0)
	}()

	log.Info().Msg("Mail engine ready")

	encoder := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1<<20), 64<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			encoder.Encode(response{OK: false, Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}

		result, err := registry.Dispatch(ctx, req.Command, req.Args)
		if err != nil {
			encoder.Encode(response{OK: false, Error: err.Error()})
			continue
		}
		encoder.Encode(response{OK: true, Result: result})
	}

	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("stdin read failed")
	}

	registry.DisconnectAll()
}
