package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/remeh/sizedwaitgroup"
	"golang.org/x/time/rate"

	"gridlayer.ai/internal/protocol"
	"gridlayer.ai/internal/transport/ws"
)

func main() {
	var (
		jobs        = flag.Int("j", 4, "files decoded in parallel")
		port        = flag.Int("port", 0, "UDP destination port for .pcap inputs (0 = any)")
		snapshotDir = flag.String("snapshot_dir", "", "write one terrain snapshot per input (optional)")
		jsonOut     = flag.Bool("json", false, "print results as JSON")
		serve       = flag.String("serve", "", "instead of decoding, stream inputs to ws clients on this address")
		perSec      = flag.Float64("rate", 200, "messages per second when serving")
		waitClients = flag.Int("wait_clients", 1, "clients to wait for before serving")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[layerreplay] ", log.LstdFlags|log.Lmicroseconds)
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: layerreplay [flags] <recording.jsonl.zst|dir|capture.pcap>...")
		os.Exit(2)
	}
	sources, err := collectSources(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "inputs:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve != "" {
		if err := serveSources(ctx, *serve, sources, *port, rate.Limit(*perSec), *waitClients, logger); err != nil {
			logger.Fatalf("serve: %v", err)
		}
		return
	}

	var (
		mu      sync.Mutex
		results []result
		failed  int
	)
	swg := sizedwaitgroup.New(*jobs)
	for _, src := range sources {
		swg.Add()
		go func(src source) {
			defer swg.Done()
			res, err := replay(ctx, src, *port, *snapshotDir, logger)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.Printf("level=error kind=replay_failed err=%v", err)
				return
			}
			results = append(results, res)
		}(src)
	}
	swg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	if *jsonOut {
		if err := writeJSON(os.Stdout, results); err != nil {
			logger.Fatalf("json: %v", err)
		}
	} else {
		for _, r := range results {
			fmt.Printf("%s messages=%s data=%s sims=%d patches=%s wind=%d aborted=%d discarded=%d truncated=%d bad=%d took=%s\n",
				r.Path, humanize.Comma(int64(r.Messages)), humanize.Bytes(r.Bytes), r.Sims, humanize.Comma(int64(r.Patches)),
				r.Wind, r.Aborted, r.Discarded, r.Truncated, r.BadEnvelope, durafmt.Parse(r.Elapsed).LimitFirstN(2).String())
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// serveSources re-streams recorded envelopes to live clients in input order.
func serveSources(ctx context.Context, addr string, sources []source, port int, limit rate.Limit, waitClients int, logger *log.Logger) error {
	srv := ws.NewServer(protocol.WelcomeMsg{SessionID: "replay"}, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/layers", srv.Handler())
	httpSrv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("level=error kind=http err=%v", err)
		}
	}()
	defer httpSrv.Close()
	logger.Printf("serving on %s/v1/layers, waiting for %d client(s)", addr, waitClients)

	for srv.Clients() < waitClients {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}

	lim := rate.NewLimiter(limit, 1)
	start := time.Now()
	sent := 0
	for _, src := range sources {
		_, err := forEachMessage(ctx, src, port, func(m protocol.LayerDataMsg) error {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
			sent++
			m.Seq = uint64(sent)
			_, err := srv.Broadcast(m)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	logger.Printf("served messages=%s in %s", humanize.Comma(int64(sent)), durafmt.Parse(time.Since(start)).LimitFirstN(2).String())
	return nil
}
