package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	addr := flag.String("addr", "localhost:9090", "Console gRPC address")
	timeout := flag.Duration("timeout", 3*time.Second, "Per-check timeout")
	flag.Parse()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)

	// Без аргументов проверяем саму консоль
	services := []string{""}
	for _, id := range flag.Args() {
		services = append(services, "camera/"+id)
	}

	failed := false
	for _, service := range services {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		cancel()

		name := service
		if name == "" {
			name = "console"
		}
		if err != nil {
			fmt.Printf("%-24s ERROR %v\n", name, err)
			failed = true
			continue
		}

		fmt.Printf("%-24s %s\n", name, resp.GetStatus())
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}
