// smqtt-gateway joins the mesh as a gateway node and bridges it to an MQTT
// broker.
//
// Usage:
//
//	smqtt-gateway [options]
//
// Options:
//
//	-config  Path to the YAML configuration file
//	-name    Mesh node name (default: "m")
//	-mode    GatewayAckAll or GatewayAckMine (default: GatewayAckAll)
//	-listen  Mesh UDP listen address (default: ":4210")
//	-peers   Comma-separated mesh peers
//	-log     Log level (default: info)
//
// Published mesh values appear on <prefix>/<device>/<name>; messages sent to
// <prefix>/<device>/<name>/set are published onto the mesh.
//
// Example:
//
//	smqtt-gateway -peers 192.168.1.255 -config /etc/smqtt/gateway.yaml
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/backkem/meshmqtt/internal/app"
	"github.com/backkem/meshmqtt/pkg/config"
	"github.com/backkem/meshmqtt/pkg/exchange"
	"github.com/backkem/meshmqtt/pkg/gateway"
	"github.com/backkem/meshmqtt/pkg/smqtt"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("smqtt-gateway: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("smqtt-gateway", flag.ExitOnError)
	var opts app.Options
	app.RegisterFlags(fs, &opts)
	if err := app.ParseFlags(fs, &opts, args); err != nil {
		return err
	}

	base := config.Default()
	base.Node.Name = smqtt.GatewayName
	base.Node.Mode = exchange.ModeGatewayAckAll.String()
	base.MQTT.Enabled = true

	cfg, err := opts.LoadConfig(base)
	if err != nil {
		return err
	}
	if !cfg.NodeMode().IsGateway() {
		return fmt.Errorf("node.mode %s is not a gateway mode", cfg.Node.Mode)
	}

	ctx, stop := app.SignalContext()
	defer stop()

	var bridge *gateway.Bridge
	rt, err := app.Setup(ctx, cfg, app.Hooks{
		OnStats: func(s smqtt.Stats) {
			if bridge != nil {
				bridge.PublishStats(s)
			}
		},
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.MQTT.Enabled {
		broker, err := gateway.ConnectPaho(cfg.PahoConfig(rt.LoggerFactory))
		if err != nil {
			return err
		}
		defer broker.Close()

		bridge, err = gateway.NewBridge(gateway.BridgeConfig{
			Node:          rt.Node,
			Broker:        broker,
			Prefix:        cfg.MQTT.Prefix,
			LoggerFactory: rt.LoggerFactory,
		})
		if err != nil {
			return err
		}
		defer bridge.Close()

		if err := bridge.Start(); err != nil {
			return err
		}
	}

	log.Printf("gateway %q running in %s mode on %s", rt.Node.Name(), rt.Node.Mode(), rt.Mesh.LocalAddr())
	err = rt.Run(ctx)
	log.Println("Shutting down...")
	return err
}
