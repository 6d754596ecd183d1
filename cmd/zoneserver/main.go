// Command zoneserver runs a single zone of the shard topology: one
// authoritative 60 Hz simulation loop, one network listener, one
// cross-zone bus endpoint. Flags and their environment-variable mirrors
// are parsed with the standard library's flag package directly; the flag
// set here is a handful of scalar values, six of them mirrored 1:1 by
// environment variables, well within what
// flag.FlagSet plus a thin env-override pass covers, and nothing in the
// corpus this is built from reaches for a CLI framework just to parse a
// handful of flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riftzone/zoneserver/server"
	"github.com/riftzone/zoneserver/server/crosszone"
)

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		port       = flag.Int("port", 19132, "UDP port to listen on")
		zoneID     = flag.Int("zone-id", 0, "this zone's id on the cross-zone bus")
		redisHost  = flag.String("redis-host", "", "matchmaking/session-cache host (recorded, not dialed, by this module)")
		redisPort  = flag.Int("redis-port", 6379, "matchmaking/session-cache port")
		scyllaHost = flag.String("scylla-host", "", "persistence-store host (recorded, not dialed, by this module)")
		scyllaPort = flag.Int("scylla-port", 9042, "persistence-store port")
		configPath = flag.String("config", "", "optional TOML file with zone tuning overrides")
		whitelist  = flag.String("whitelist", "", "path to the whitelist TOML file (empty disables whitelisting)")
		ledgerPath = flag.String("ledger", "", "path to the ban/audit ledger directory (empty disables persistence)")
		metricsAddr = flag.String("metrics-addr", "127.0.0.1:9090", "bind address for the /metrics endpoint; keep this off the public interface")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	portStr := envOrDefault("ZONE_PORT", fmt.Sprint(*port))
	zoneIDStr := envOrDefault("ZONE_ID", fmt.Sprint(*zoneID))
	redisHostV := envOrDefault("ZONE_REDIS_HOST", *redisHost)
	redisPortStr := envOrDefault("ZONE_REDIS_PORT", fmt.Sprint(*redisPort))
	scyllaHostV := envOrDefault("ZONE_SCYLLA_HOST", *scyllaHost)
	scyllaPortStr := envOrDefault("ZONE_SCYLLA_PORT", fmt.Sprint(*scyllaPort))

	var zid int
	if _, err := fmt.Sscan(zoneIDStr, &zid); err != nil {
		log.Error("invalid zone id", "value", zoneIDStr, "error", err)
		return 1
	}

	conf := server.DefaultConfig()
	conf.Log = log
	conf.ZoneID = server.ZoneID(zid)
	conf.ListenAddress = fmt.Sprintf(":%s", portStr)
	conf.WhitelistPath = *whitelist
	conf.LedgerPath = *ledgerPath
	conf.RedisAddress = fmt.Sprintf("%s:%s", redisHostV, redisPortStr)
	conf.ScyllaAddress = fmt.Sprintf("%s:%s", scyllaHostV, scyllaPortStr)

	if *configPath != "" {
		var err error
		conf, err = server.LoadConfigFile(conf, *configPath)
		if err != nil {
			log.Error("failed to load config file", "path", *configPath, "error", err)
			return 1
		}
	}

	log.Info("starting zone",
		"zone_id", conf.ZoneID, "listen", conf.ListenAddress,
		"redis", conf.RedisAddress, "scylla", conf.ScyllaAddress)

	zone, err := server.New(conf)
	if err != nil {
		log.Error("failed to initialise zone", "error", err)
		return 1
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Each zoneserver process owns exactly one Zone, so there is no second
	// Zone in this process to hand msg to directly the way
	// crosszone.LocalRouter does for a multi-zone-per-process topology
	// (see server/crosszone and the migration integration tests). A real
	// multi-process deployment needs a DeliverFunc backed by a network
	// client dialing the peer zone's bus endpoint; until that transport
	// exists, cross-zone messages are logged and dropped rather than
	// silently swallowed.
	deliver := func(ctx context.Context, msg crosszone.Message) error {
		log.Warn("no inter-process cross-zone transport configured, dropping message",
			"dest", msg.DestZone, "kind", msg.Kind, "seq", msg.Seq)
		return nil
	}

	if err := zone.Run(ctx, deliver); err != nil && ctx.Err() == nil {
		log.Error("zone run exited with error", "error", err)
		return 2
	}
	return 0
}
