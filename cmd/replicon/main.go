// Command replicon is the reference CLI for the replication runtime,
// grounded on cmd/synnergy/main.go's rootCmd.AddCommand(...) shape:
// one cobra root command, one subcommand per operating mode.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"replicon/adapter/ecsworld"
	"replicon/hostworld"
	"replicon/metrics"
	"replicon/pkg/config"
	"replicon/pkg/utils"
	"replicon/subchannel"
	"replicon/transport/memory"
	"replicon/transport/udp"
	"replicon/worldmanager"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	_ = godotenv.Load("replicon/.env")

	rootCmd := &cobra.Command{Use: "replicon"}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(benchCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var peerAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "host a world manager over a UDP transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if peerAddr == "" {
				return fmt.Errorf("serve: --peer is required")
			}

			transport, err := udp.Listen(cfg.Network.ListenAddr, nil)
			if err != nil {
				return err
			}
			defer transport.Close()

			world := ecsworld.New()
			registry := hostworld.NewChannelRegistry()
			heartbeatMS := utils.EnvOrDefaultUint64("REPLICON_HEARTBEAT_MS", uint64(cfg.Transport.HeartbeatIntervalMS))
			tick := time.Duration(heartbeatMS) * time.Millisecond
			mgr := worldmanager.New(peerAddr, transport, world, registry, tick)

			collector := metrics.New(nil)
			metricsSrv := collector.Serve(cfg.Admin.MetricsAddr)
			defer collector.Shutdown(context.Background(), metricsSrv)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			fmt.Printf("replicon: serving on %s, peer %s\n", transport.LocalAddr(), peerAddr)
			return mgr.Drive(ctx)
		},
	}
	cmd.Flags().StringVar(&peerAddr, "peer", "", "address of the remote peer")
	return cmd
}

func benchCmd() *cobra.Command {
	var ticks int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "loop back an in-memory transport and report throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub := memory.NewHub()
			addrA, addrB := "a", "b"
			tA := memory.New(hub, addrA)
			tB := memory.New(hub, addrB)
			defer tA.Close()
			defer tB.Close()

			worldA, worldB := ecsworld.New(), ecsworld.New()
			registryA, registryB := hostworld.NewChannelRegistry(), hostworld.NewChannelRegistry()
			tick := 10 * time.Millisecond
			mgrA := worldmanager.New(addrB, tA, worldA, registryA, tick)
			mgrB := worldmanager.New(addrA, tB, worldB, registryB, tick)

			global := mgrA.HostSpawnEntity(0, subchannel.Published)
			if err := mgrA.EnableDelegation(global, 1); err != nil {
				return err
			}
			if err := mgrA.RequestAuthority(global); err != nil {
				return err
			}

			sent := 0
			for i := 0; i < ticks; i++ {
				n, err := mgrA.Tick(time.Now())
				if err != nil {
					return err
				}
				sent += n
				if _, err := mgrB.PollInbound(); err != nil {
					return err
				}
			}
			fmt.Printf("replicon: bench sent %d commands over %d ticks\n", sent, ticks)
			return nil
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", utils.EnvOrDefaultInt("REPLICON_BENCH_TICKS", 100), "number of send ticks to run")
	return cmd
}
