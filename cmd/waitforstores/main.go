package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

type probe struct {
	name string
	ping func(ctx context.Context) error
}

// Waits until every store named by TEST_POSTGRES_DSN, TEST_MONGO_URI and
// TEST_REDIS_ADDR answers a ping.
func main() {
	timeout := 60 * time.Second
	if raw := os.Getenv("WAIT_FOR_STORES_TIMEOUT_SEC"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			fmt.Fprintf(os.Stderr, "invalid WAIT_FOR_STORES_TIMEOUT_SEC: %q\n", raw)
			os.Exit(2)
		}
		timeout = time.Duration(secs) * time.Second
	}

	var probes []probe

	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open postgres: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		probes = append(probes, probe{name: "postgres", ping: db.PingContext})
	}

	if uri := os.Getenv("TEST_MONGO_URI"); uri != "" {
		client, err := mongo.Connect(options.Client().ApplyURI(uri))
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect mongo: %v\n", err)
			os.Exit(1)
		}
		defer client.Disconnect(context.Background())
		probes = append(probes, probe{name: "mongo", ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		}})
	}

	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		probes = append(probes, probe{name: "redis", ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	if len(probes) == 0 {
		fmt.Fprintln(os.Stderr, "set at least one of TEST_POSTGRES_DSN, TEST_MONGO_URI, TEST_REDIS_ADDR")
		os.Exit(2)
	}

	deadline := time.Now().Add(timeout)
	for _, p := range probes {
		if err := waitFor(p, deadline); err != nil {
			fmt.Fprintf(os.Stderr, "%s not ready within %s: %v\n", p.name, timeout, err)
			os.Exit(1)
		}
		fmt.Printf("%s ready\n", p.name)
	}
}

func waitFor(p probe, deadline time.Time) error {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := p.ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(2 * time.Second)
	}
}
