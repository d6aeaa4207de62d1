// Command admin inspects a running pointing-poker server over its gRPC
// admin endpoint.
//
//	admin [-addr localhost:9092] rooms [-limit 20] [-cursor c]
//	admin [-addr localhost:9092] room AB12C3
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	grpcx "github.com/cwrk-planet/pointing-poker/internal/transport/grpc"
)

func main() {
	addr := flag.String("addr", "localhost:9092", "admin gRPC address")
	timeout := flag.Duration("timeout", 5*time.Second, "per-call timeout")
	flag.Parse()

	if err := run(*addr, *timeout, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "admin:", err)
		os.Exit(1)
	}
}

func run(addr string, timeout time.Duration, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: admin [flags] rooms|room <id>")
	}

	c, err := grpcx.NewClient(grpcx.ClientOptions{Target: addr, Timeout: timeout})
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	switch args[0] {
	case "rooms":
		fs := flag.NewFlagSet("rooms", flag.ContinueOnError)
		limit := fs.Int("limit", 20, "page size")
		cursor := fs.String("cursor", "", "cursor from the previous page")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		page, err := c.ListRooms(ctx, *limit, *cursor)
		if err != nil {
			return err
		}
		return printJSON(page)
	case "room":
		if len(args) != 2 {
			return fmt.Errorf("usage: admin room <id>")
		}
		st, err := c.GetRoom(ctx, args[1])
		if err != nil {
			return err
		}
		return printJSON(st)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
